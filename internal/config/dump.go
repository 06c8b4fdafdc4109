package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// WriteYAML 以 YAML 形式输出生效配置（数据库口令等敏感字段会被遮盖）
func WriteYAML(w io.Writer, cfg *Config) error {
	redacted := *cfg
	if redacted.Redis.Password != "" {
		redacted.Redis.Password = "******"
	}
	if redacted.Database.DSN != "" {
		redacted.Database.DSN = "******"
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&redacted); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 卡片来源
const (
	SourceConfig   = "config"
	SourceRedis    = "redis"
	SourcePostgres = "postgres"
)

// 帧锚定方式
const (
	FramingSTX    = "stx"
	FramingOffset = "offset"
)

var (
	ErrNoCards     = errors.New("no authorized cards configured")
	ErrInvalidPort = errors.New("serial port is empty")
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	Env  string `mapstructure:"env" yaml:"env"`
}

// SerialConfig 读卡器串口配置
type SerialConfig struct {
	Port        string        `mapstructure:"port" yaml:"port"`
	BaudRate    int           `mapstructure:"baudRate" yaml:"baudRate"`
	ReadTimeout time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
}

// ReaderConfig 读卡帧组装配置
type ReaderConfig struct {
	Threshold      int           `mapstructure:"threshold" yaml:"threshold"`
	Framing        string        `mapstructure:"framing" yaml:"framing"`
	WindowOffset   int           `mapstructure:"windowOffset" yaml:"windowOffset"`
	WindowLength   int           `mapstructure:"windowLength" yaml:"windowLength"`
	VerifyChecksum bool          `mapstructure:"verifyChecksum" yaml:"verifyChecksum"`
	IdleInterval   time.Duration `mapstructure:"idleInterval" yaml:"idleInterval"`
	StaleAfter     time.Duration `mapstructure:"staleAfter" yaml:"staleAfter"`
}

// AccessConfig 授权与门禁模块配置
type AccessConfig struct {
	ModuleID  int      `mapstructure:"moduleId" yaml:"moduleId"`
	Cards     []string `mapstructure:"cards" yaml:"cards"`
	Source    string   `mapstructure:"source" yaml:"source"`
	RedisKey  string   `mapstructure:"redisKey" yaml:"redisKey"`
	CardQuery string   `mapstructure:"cardQuery" yaml:"cardQuery"`
}

// HTTPConfig 运维 HTTP 服务配置（addr 为空则不启动）
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout" yaml:"writeTimeout"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize" yaml:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge" yaml:"maxAge"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level" yaml:"level"`
	Format string           `mapstructure:"format" yaml:"format"`
	File   LumberjackConfig `mapstructure:"file" yaml:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable" yaml:"enable"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// RedisConfig Redis 连接配置（仅 access.source=redis 时使用）
type RedisConfig struct {
	Addr        string        `mapstructure:"addr" yaml:"addr"`
	Password    string        `mapstructure:"password" yaml:"password"`
	DB          int           `mapstructure:"db" yaml:"db"`
	DialTimeout time.Duration `mapstructure:"dialTimeout" yaml:"dialTimeout"`
	ReadTimeout time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
}

// DatabaseConfig PostgreSQL 连接配置（仅 access.source=postgres 时使用）
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns" yaml:"maxOpenConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime" yaml:"connMaxLifetime"`
}

// Config 顶层配置结构，加载后只读
type Config struct {
	App      AppConfig      `mapstructure:"app" yaml:"app"`
	Serial   SerialConfig   `mapstructure:"serial" yaml:"serial"`
	Reader   ReaderConfig   `mapstructure:"reader" yaml:"reader"`
	Access   AccessConfig   `mapstructure:"access" yaml:"access"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 ACCESS_CONFIG 读取；否则回退到 configs/gateway.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("ACCESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("gateway")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验启动所需的最小配置
func (c *Config) Validate() error {
	if c.Serial.Port == "" {
		return ErrInvalidPort
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Serial.BaudRate)
	}
	if c.Access.ModuleID < 0 || c.Access.ModuleID > 255 {
		return fmt.Errorf("module id %d out of range 0-255", c.Access.ModuleID)
	}
	if c.Reader.Threshold < 1 {
		return fmt.Errorf("reader threshold must be positive, got %d", c.Reader.Threshold)
	}
	if c.Reader.WindowLength < 1 || c.Reader.WindowOffset < 0 {
		return fmt.Errorf("invalid extraction window offset=%d length=%d", c.Reader.WindowOffset, c.Reader.WindowLength)
	}
	switch c.Reader.Framing {
	case FramingSTX, FramingOffset:
	default:
		return fmt.Errorf("unknown reader framing %q", c.Reader.Framing)
	}
	switch c.Access.Source {
	case SourceConfig:
		if len(c.Access.Cards) == 0 {
			return ErrNoCards
		}
	case SourceRedis:
		if c.Redis.Addr == "" || c.Access.RedisKey == "" {
			return errors.New("redis card source needs redis.addr and access.redisKey")
		}
	case SourcePostgres:
		if c.Database.DSN == "" || c.Access.CardQuery == "" {
			return errors.New("postgres card source needs database.dsn and access.cardQuery")
		}
	default:
		return fmt.Errorf("unknown card source %q", c.Access.Source)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "access-gateway")
	v.SetDefault("app.env", "dev")

	v.SetDefault("serial.port", "/dev/ttyAMA0")
	v.SetDefault("serial.baudRate", 9600)
	v.SetDefault("serial.readTimeout", "0s")

	v.SetDefault("reader.threshold", 15)
	v.SetDefault("reader.framing", FramingSTX)
	v.SetDefault("reader.windowOffset", 2)
	v.SetDefault("reader.windowLength", 10)
	v.SetDefault("reader.verifyChecksum", false)
	v.SetDefault("reader.idleInterval", "20ms")
	v.SetDefault("reader.staleAfter", "0s")

	v.SetDefault("access.moduleId", 1)
	v.SetDefault("access.cards", []string{})
	v.SetDefault("access.source", SourceConfig)
	v.SetDefault("access.redisKey", "access:cards")
	v.SetDefault("access.cardQuery", "SELECT card_id FROM access_cards WHERE enabled")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/access-gateway.log")
	v.SetDefault("logging.file.maxSize", 50)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dialTimeout", "3s")
	v.SetDefault("redis.readTimeout", "3s")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxOpenConns", 2)
	v.SetDefault("database.connMaxLifetime", "10m")
}

package reader

import (
	cfgpkg "github.com/taoyao-code/access-gateway/internal/config"
)

// FromConfig 按配置构造组装器：stx 以 STX 锚定卡号，offset 为旧网关的固定偏移截取
func FromConfig(cfg cfgpkg.ReaderConfig) *Assembler {
	var extract Extractor
	switch cfg.Framing {
	case cfgpkg.FramingOffset:
		extract = OffsetExtractor(cfg.WindowOffset, cfg.WindowLength)
	default:
		extract = STXExtractor(cfg.WindowLength, cfg.VerifyChecksum)
	}
	return NewAssembler(cfg.Threshold, extract)
}

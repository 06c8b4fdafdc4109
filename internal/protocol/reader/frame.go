package reader

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// 读卡器突发帧：STX + 卡号(10位十六进制ASCII) + 校验(2位) + CR LF + ETX，共16字节
const (
	STX byte = 0x02
	ETX byte = 0x03
	CR  byte = 0x0D
	LF  byte = 0x0A

	CardIDLen         = 10
	checksumLen       = 2
	BurstLen          = 1 + CardIDLen + checksumLen + 2 + 1
	DefaultThreshold  = 15
	DefaultOffset     = 2
	DefaultWindowSize = CardIDLen
)

var (
	ErrShortWindow = errors.New("reader: frame shorter than extraction window")
	ErrNoAnchor    = errors.New("reader: no STX anchor in frame")
	ErrChecksum    = errors.New("reader: card checksum mismatch")
	ErrBadCardID   = errors.New("reader: card id is not an even-length hex string")
)

// Extractor 从一个完整窗口中取出卡号，实现不得 panic
type Extractor func(frame []byte) (string, error)

// OffsetExtractor 按固定偏移截取卡号（兼容旧网关：缓冲区字节 2..11）
func OffsetExtractor(offset, length int) Extractor {
	return func(frame []byte) (string, error) {
		if offset < 0 || length <= 0 || len(frame) < offset+length {
			return "", fmt.Errorf("%w: have %d bytes, need %d", ErrShortWindow, len(frame), offset+length)
		}
		return string(frame[offset : offset+length]), nil
	}
}

// STXExtractor 以首个 STX 为锚点，卡号紧随其后。
// verify 为 true 时要求卡号后的两位十六进制等于卡号各字节异或值。
func STXExtractor(length int, verify bool) Extractor {
	return func(frame []byte) (string, error) {
		anchor := bytes.IndexByte(frame, STX)
		if anchor < 0 {
			return "", ErrNoAnchor
		}
		start := anchor + 1
		if length <= 0 || len(frame) < start+length {
			return "", fmt.Errorf("%w: have %d bytes after STX, need %d", ErrShortWindow, len(frame)-start, length)
		}
		id := string(frame[start : start+length])
		if !verify {
			return id, nil
		}

		if len(frame) < start+length+checksumLen {
			return "", fmt.Errorf("%w: checksum missing", ErrShortWindow)
		}
		want, err := Checksum(id)
		if err != nil {
			return "", err
		}
		got := string(frame[start+length : start+length+checksumLen])
		if !strings.EqualFold(got, fmt.Sprintf("%02X", want)) {
			return "", fmt.Errorf("%w: got %q want %02X", ErrChecksum, got, want)
		}
		return id, nil
	}
}

// Checksum 计算卡号校验：按两位十六进制分组后逐字节异或
func Checksum(id string) (byte, error) {
	raw, err := hex.DecodeString(id)
	if err != nil || len(raw) == 0 {
		return 0, ErrBadCardID
	}
	var sum byte
	for _, b := range raw {
		sum ^= b
	}
	return sum, nil
}

// BuildFrame 构造一帧读卡器突发数据（用于模拟读卡器）
func BuildFrame(id string) ([]byte, error) {
	sum, err := Checksum(id)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(id)+6)
	buf = append(buf, STX)
	buf = append(buf, id...)
	buf = append(buf, fmt.Sprintf("%02X", sum)...)
	buf = append(buf, CR, LF, ETX)
	return buf, nil
}

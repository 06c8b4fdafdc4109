package serialport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"

	cfgpkg "github.com/taoyao-code/access-gateway/internal/config"
)

// ErrClosed 串口已关闭或设备已拔出，读循环应退出
var ErrClosed = errors.New("serial port closed")

// rawPort 是 serial.Port 中本包用到的子集
type rawPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Port 非阻塞逐字节读取的串口封装。
// ReadByte 只允许读循环单 goroutine 调用；Write/Close 可并发调用。
type Port struct {
	name    string
	raw     rawPort
	chunk   [64]byte
	pending []byte

	wmu    sync.Mutex
	closed atomic.Bool
}

// Open 按配置打开串口（8N1），读超时为 0 时读操作立即返回
func Open(cfg cfgpkg.SerialConfig) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Port, err)
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Port, err)
	}
	return newPort(cfg.Port, p), nil
}

func newPort(name string, raw rawPort) *Port {
	return &Port{name: name, raw: raw}
}

// Name 设备路径
func (p *Port) Name() string { return p.name }

// ReadByte 非阻塞读取一个字节。无数据时返回 ok=false 且 err 为 nil；
// 端口关闭时返回 ErrClosed；其他错误由调用方视为本轮无数据。
func (p *Port) ReadByte() (byte, bool, error) {
	if len(p.pending) > 0 {
		b := p.pending[0]
		p.pending = p.pending[1:]
		return b, true, nil
	}
	if p.closed.Load() {
		return 0, false, ErrClosed
	}

	n, err := p.raw.Read(p.chunk[:])
	if n > 0 {
		p.pending = p.chunk[1:n]
		return p.chunk[0], true, nil
	}
	if err != nil {
		if isClosedErr(err) {
			return 0, false, ErrClosed
		}
		return 0, false, fmt.Errorf("read %s: %w", p.name, err)
	}
	return 0, false, nil
}

// Write 同步写出全部字节
func (p *Port) Write(b []byte) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	if p.closed.Load() {
		return ErrClosed
	}
	for len(b) > 0 {
		n, err := p.raw.Write(b)
		if err != nil {
			if isClosedErr(err) {
				return ErrClosed
			}
			return fmt.Errorf("write %s: %w", p.name, err)
		}
		if n == 0 {
			return fmt.Errorf("write %s: %w", p.name, io.ErrShortWrite)
		}
		b = b[n:]
	}
	return nil
}

// Close 关闭串口，可重复调用
func (p *Port) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.raw.Close()
}

func isClosedErr(err error) bool {
	var pe *serial.PortError
	if errors.As(err, &pe) && pe.Code() == serial.PortClosed {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed)
}

// List 枚举本机可用串口
func List() ([]string, error) {
	return serial.GetPortsList()
}

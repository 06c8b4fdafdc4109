package door

import (
	"errors"
	"fmt"

	"github.com/taoyao-code/access-gateway/internal/access"
)

// 下行门禁指令固定 6 字节：[模块ID, 操作码, 0x55, 0xAA, CR, LF]
const (
	CommandLen      = 6
	DefaultModuleID = 1

	// 校验位占位，固定常量，收发两端均不计算也不校验
	checksumHi byte = 0x55
	checksumLo byte = 0xAA

	cr byte = 0x0D
	lf byte = 0x0A
)

// Opcode 门禁模块操作码
type Opcode byte

const (
	OpLock   Opcode = 0x00 // 拒绝/上锁
	OpAccess Opcode = 0x01 // 短时开门
	OpUnlock Opcode = 0x02 // 常开，仅手动发送
)

func (o Opcode) String() string {
	switch o {
	case OpLock:
		return "lock"
	case OpAccess:
		return "access"
	case OpUnlock:
		return "unlock"
	default:
		return fmt.Sprintf("0x%02X", byte(o))
	}
}

var (
	ErrShortCommand  = errors.New("door: command shorter than 6 bytes")
	ErrBadTerminator = errors.New("door: command not terminated by CR LF")
)

// Command 一条下行指令，值类型，构造后不可变
type Command [CommandLen]byte

// Build 构造指令
func Build(moduleID byte, op Opcode) Command {
	return Command{moduleID, byte(op), checksumHi, checksumLo, cr, lf}
}

// Encode 将授权结论编码为指令：Allowed 开门，Denied 与 Error 一律上锁
func Encode(d access.Decision, moduleID byte) Command {
	if d == access.Allowed {
		return Build(moduleID, OpAccess)
	}
	return Build(moduleID, OpLock)
}

// Parse 解析一条指令（用于模拟门禁模块）。只校验长度与 CR LF，不校验占位校验字节。
func Parse(b []byte) (Command, error) {
	var c Command
	if len(b) < CommandLen {
		return c, ErrShortCommand
	}
	if b[4] != cr || b[5] != lf {
		return c, ErrBadTerminator
	}
	copy(c[:], b[:CommandLen])
	return c, nil
}

// Bytes 返回线上字节
func (c Command) Bytes() []byte {
	out := make([]byte, CommandLen)
	copy(out, c[:])
	return out
}

func (c Command) ModuleID() byte { return c[0] }

func (c Command) Opcode() Opcode { return Opcode(c[1]) }

func (c Command) String() string {
	return fmt.Sprintf("module=%d op=%s % X", c[0], c.Opcode(), c[:])
}

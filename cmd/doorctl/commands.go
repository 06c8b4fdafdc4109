package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/access-gateway/internal/config"
	"github.com/taoyao-code/access-gateway/internal/protocol/door"
	"github.com/taoyao-code/access-gateway/internal/protocol/reader"
	"github.com/taoyao-code/access-gateway/internal/serialport"
)

// sendCommand 手动下发一条门禁指令
type sendCommand struct {
	op     door.Opcode
	Module uint8 `short:"m" long:"module" default:"1" description:"access module id"`
}

func (c *sendCommand) Execute(args []string) error {
	port, err := openPort()
	if err != nil {
		return err
	}
	defer port.Close()

	cmd := door.Build(c.Module, c.op)
	if err := port.Write(cmd.Bytes()); err != nil {
		return err
	}
	log.Info("command sent", zap.String("port", port.Name()), zap.Stringer("command", cmd))
	return nil
}

// swipeCommand 模拟读卡器输出
type swipeCommand struct {
	Repeat   int           `short:"n" long:"repeat" default:"1" description:"number of bursts"`
	Interval time.Duration `long:"interval" default:"1s" description:"delay between bursts"`
	Args     struct {
		Card string `positional-arg-name:"card" required:"yes"`
	} `positional-args:"yes"`
}

func (c *swipeCommand) Execute(args []string) error {
	burst, err := reader.BuildFrame(c.Args.Card)
	if err != nil {
		return fmt.Errorf("card %q: %w", c.Args.Card, err)
	}
	port, err := openPort()
	if err != nil {
		return err
	}
	defer port.Close()

	for i := 0; i < c.Repeat; i++ {
		if i > 0 {
			time.Sleep(c.Interval)
		}
		if err := port.Write(burst); err != nil {
			return err
		}
		log.Info("reader burst sent", zap.String("card", c.Args.Card), zap.Binary("raw", burst))
	}
	return nil
}

// monitorCommand 模拟门禁模块，打印收到的指令
type monitorCommand struct{}

func (c *monitorCommand) Execute(args []string) error {
	port, err := serialport.Open(cfgpkg.SerialConfig{Port: opts.Port, BaudRate: opts.Baud, ReadTimeout: 100 * time.Millisecond})
	if err != nil {
		return err
	}
	defer port.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("monitoring", zap.String("port", port.Name()))
	err = monitor(ctx, port, 20*time.Millisecond, func(cmd door.Command) {
		log.Info("command received", zap.Uint8("module_id", cmd.ModuleID()), zap.Stringer("opcode", cmd.Opcode()))
	}, func(dropped int) {
		log.Warn("discarded unaligned bytes", zap.Int("bytes", dropped))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type byteReader interface {
	ReadByte() (byte, bool, error)
}

// monitor 读取字节流并解出指令，直到 ctx 取消或端口关闭
func monitor(ctx context.Context, r byteReader, idle time.Duration, onCmd func(door.Command), onDrop func(int)) error {
	dec := door.NewStreamDecoder()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, ok, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, serialport.ErrClosed) {
				return err
			}
			log.Debug("read error", zap.Error(err))
		}
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idle):
			}
			continue
		}
		cmds, dropped := dec.Feed([]byte{b})
		if dropped > 0 && onDrop != nil {
			onDrop(dropped)
		}
		for _, cmd := range cmds {
			onCmd(cmd)
		}
	}
}

// configCommand 打印网关生效配置
type configCommand struct {
	File string `short:"c" long:"config" description:"config file (default $ACCESS_CONFIG or configs/gateway.yaml)"`
}

func (c *configCommand) Execute(args []string) error {
	cfg, err := cfgpkg.Load(c.File)
	if err != nil {
		return err
	}
	return cfgpkg.WriteYAML(os.Stdout, cfg)
}

type portsCommand struct{}

func (c *portsCommand) Execute(args []string) error {
	ports, err := serialport.List()
	if err != nil {
		return err
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

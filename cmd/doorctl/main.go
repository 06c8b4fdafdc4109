// doorctl 门禁调试工具：手动下发指令、模拟门禁模块、模拟读卡器。
package main

import (
	"os"

	flags "github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/access-gateway/internal/config"
	"github.com/taoyao-code/access-gateway/internal/logging"
	"github.com/taoyao-code/access-gateway/internal/protocol/door"
	"github.com/taoyao-code/access-gateway/internal/serialport"
)

type globalOptions struct {
	Port    string `short:"p" long:"port" default:"/dev/ttyAMA0" description:"serial device"`
	Baud    int    `short:"b" long:"baud" default:"9600" description:"baud rate"`
	Verbose bool   `short:"v" long:"verbose" description:"debug logging"`
}

var (
	opts   globalOptions
	parser = flags.NewParser(&opts, flags.Default)
	log    = zap.NewNop()
)

func init() {
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		level := "info"
		if opts.Verbose {
			level = "debug"
		}
		l, err := logging.InitLogger(cfgpkg.LoggingConfig{Level: level, Format: "console"})
		if err != nil {
			return err
		}
		log = l
		defer func() { _ = log.Sync() }()
		if cmd == nil {
			return nil
		}
		return cmd.Execute(args)
	}

	mustAdd("access", "grant short-term access", "Send opcode 0x01: unlock the door briefly.", &sendCommand{op: door.OpAccess})
	mustAdd("unlock", "unlock persistently", "Send opcode 0x02: keep the door unlocked until a lock command.", &sendCommand{op: door.OpUnlock})
	mustAdd("lock", "lock / deny", "Send opcode 0x00: lock the door.", &sendCommand{op: door.OpLock})
	mustAdd("monitor", "act as a fake access module", "Decode and print commands arriving on the port.", &monitorCommand{})
	mustAdd("swipe", "act as a fake card reader", "Write reader bursts for a card id to the port.", &swipeCommand{})
	mustAdd("config", "print effective gateway config", "Load the gateway config and print it as YAML.", &configCommand{})
	mustAdd("ports", "list serial ports", "List serial ports found on this host.", &portsCommand{})
}

func mustAdd(name, short, long string, data any) {
	if _, err := parser.AddCommand(name, short, long, data); err != nil {
		panic(err)
	}
}

func main() {
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func openPort() (*serialport.Port, error) {
	return serialport.Open(cfgpkg.SerialConfig{Port: opts.Port, BaudRate: opts.Baud})
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/access-gateway/internal/access"
	"github.com/taoyao-code/access-gateway/internal/cards"
	cfgpkg "github.com/taoyao-code/access-gateway/internal/config"
	"github.com/taoyao-code/access-gateway/internal/gateway"
	"github.com/taoyao-code/access-gateway/internal/health"
	"github.com/taoyao-code/access-gateway/internal/httpserver"
	"github.com/taoyao-code/access-gateway/internal/logging"
	"github.com/taoyao-code/access-gateway/internal/metrics"
	"github.com/taoyao-code/access-gateway/internal/protocol/reader"
	"github.com/taoyao-code/access-gateway/internal/serialport"
)

func main() {
	configPath := flag.String("config", "", "config file (default $ACCESS_CONFIG or configs/gateway.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "access-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1) 加载配置
	cfg, err := cfgpkg.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3) 授权卡集合，启动后只读
	cardSet, err := cards.Load(ctx, cfg, logger.Named("cards"))
	if err != nil {
		return fmt.Errorf("load authorized cards: %w", err)
	}

	// 4) 指标
	reg := metrics.NewRegistry()
	m := metrics.NewAccessMetrics(reg)
	m.AuthorizedCards.Set(float64(cardSet.Len()))

	// 5) 串口
	port, err := serialport.Open(cfg.Serial)
	if err != nil {
		return err
	}
	defer func() { _ = port.Close() }()
	logger.Info("serial port opened", zap.String("port", port.Name()), zap.Int("baud", cfg.Serial.BaudRate))

	loop := gateway.New(port,
		reader.FromConfig(cfg.Reader),
		access.NewAuthorizer(cardSet, logger.Named("access")),
		gateway.Options{
			ModuleID:     byte(cfg.Access.ModuleID),
			IdleInterval: cfg.Reader.IdleInterval,
			Logger:       logger.Named("reader"),
			Metrics:      m,
		})

	// 6) 运维 HTTP
	var httpSrv *httpserver.Server
	if cfg.HTTP.Addr != "" {
		var metricsHandler http.Handler
		if cfg.Metrics.Enable {
			metricsHandler = metrics.Handler(reg)
		}
		agg := health.NewAggregator(health.NewReaderChecker(loop, cfg.Reader.StaleAfter))
		httpSrv = httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, agg)
		go func() {
			if err := httpSrv.Start(); err != nil {
				logger.Error("http server error", zap.Error(err))
			}
		}()
	}

	// 读循环阻塞至信号到来或串口关闭
	runErr := loop.Run(ctx)
	if errors.Is(runErr, serialport.ErrClosed) {
		logger.Error("serial port closed, exiting", zap.Error(runErr))
	}

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	logger.Info("access gateway stopped")
	return runErr
}

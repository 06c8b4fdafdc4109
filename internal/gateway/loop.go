package gateway

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/access-gateway/internal/access"
	"github.com/taoyao-code/access-gateway/internal/metrics"
	"github.com/taoyao-code/access-gateway/internal/protocol/door"
	"github.com/taoyao-code/access-gateway/internal/protocol/reader"
	"github.com/taoyao-code/access-gateway/internal/serialport"
)

const DefaultIdleInterval = 20 * time.Millisecond

var ErrAlreadyRunning = errors.New("reader loop already running")

// Transport 读循环依赖的字节流：非阻塞单字节读取与同步写。
// ReadByte 返回 serialport.ErrClosed 表示对端关闭，循环随即退出。
type Transport interface {
	ReadByte() (byte, bool, error)
	Write(p []byte) error
}

// Options 读循环参数
type Options struct {
	ModuleID     byte
	IdleInterval time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.AccessMetrics
}

// Loop 读卡 -> 组帧 -> 授权 -> 编码 -> 下发 的控制循环。
// 组装缓冲只由 Run 所在 goroutine 访问，与外部共享的只有停止信号。
type Loop struct {
	transport  Transport
	assembler  *reader.Assembler
	authorizer *access.Authorizer
	moduleID   byte
	idle       time.Duration
	logger     *zap.Logger
	metrics    *metrics.AccessMetrics
	readErrLog *logThrottle

	stopC    chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
	started  atomic.Bool
	lastByte atomic.Int64
	frames   atomic.Uint64
}

// New 创建读循环
func New(t Transport, asm *reader.Assembler, auth *access.Authorizer, opts Options) *Loop {
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = DefaultIdleInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Loop{
		transport:  t,
		assembler:  asm,
		authorizer: auth,
		moduleID:   opts.ModuleID,
		idle:       opts.IdleInterval,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		readErrLog: newLogThrottle(1, 3),
		stopC:      make(chan struct{}),
	}
}

// Run 阻塞运行直到 ctx 取消、Stop 被调用或传输层关闭。
// 退出时丢弃未成帧的残余字节，不为其下发任何指令。
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	l.running.Store(true)
	defer l.running.Store(false)

	l.logger.Info("reader loop started",
		zap.Int("threshold", l.assembler.Threshold()),
		zap.Uint8("module_id", l.moduleID),
		zap.Duration("idle_interval", l.idle))

	for {
		if l.stopping(ctx) {
			l.discard("stop requested")
			return nil
		}

		b, ok, err := l.transport.ReadByte()
		if err != nil {
			if errors.Is(err, serialport.ErrClosed) {
				l.discard("transport closed")
				return err
			}
			l.onReadError(err)
			if !l.wait(ctx) {
				l.discard("stop requested")
				return nil
			}
			continue
		}
		if !ok {
			if !l.wait(ctx) {
				l.discard("stop requested")
				return nil
			}
			continue
		}

		if err := l.handleByte(b); err != nil {
			l.discard("transport closed")
			return err
		}
	}
}

// Stop 请求退出，可重复调用
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopC) })
}

// Running 循环是否在运行
func (l *Loop) Running() bool { return l.running.Load() }

// LastActivity 最近一次收到字节的时间，从未收到时为零值
func (l *Loop) LastActivity() time.Time {
	ns := l.lastByte.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Frames 已处理的完整窗口数
func (l *Loop) Frames() uint64 { return l.frames.Load() }

func (l *Loop) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-l.stopC:
		return true
	default:
		return false
	}
}

// wait 空轮询后的让出等待，可被停止信号打断；返回 false 表示应退出
func (l *Loop) wait(ctx context.Context) bool {
	timer := time.NewTimer(l.idle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-l.stopC:
		return false
	case <-timer.C:
		return true
	}
}

func (l *Loop) handleByte(b byte) error {
	l.lastByte.Store(time.Now().UnixNano())
	if l.metrics != nil {
		l.metrics.BytesReceived.Inc()
	}

	ex, complete := l.assembler.Append(b)
	if !complete {
		return nil
	}
	l.frames.Add(1)

	frameID := uuid.New().String()
	result := l.authorizer.Decide(ex.CardID, ex.Err, zap.String("frame_id", frameID))
	cmd := door.Encode(result.Decision, l.moduleID)

	fields := []zap.Field{
		zap.String("frame_id", frameID),
		zap.String("raw", hex.EncodeToString(ex.Raw)),
		zap.String("decision", result.Decision.String()),
		zap.Stringer("opcode", cmd.Opcode()),
	}
	if result.Reason != nil {
		fields = append(fields, zap.NamedError("reason", result.Reason))
	}
	l.logger.Debug("frame processed", fields...)
	l.observe(ex, result)

	if err := l.transport.Write(cmd.Bytes()); err != nil {
		if l.metrics != nil {
			l.metrics.CommandWriteErrors.Inc()
		}
		l.logger.Error("write door command failed", zap.String("frame_id", frameID), zap.Error(err))
		if errors.Is(err, serialport.ErrClosed) {
			return err
		}
		return nil
	}
	if l.metrics != nil {
		l.metrics.CommandsWritten.WithLabelValues(cmd.Opcode().String()).Inc()
	}
	return nil
}

func (l *Loop) observe(ex reader.Extraction, result access.Result) {
	if l.metrics == nil {
		return
	}
	if ex.Err != nil {
		l.metrics.FramesTotal.WithLabelValues("error").Inc()
	} else {
		l.metrics.FramesTotal.WithLabelValues("ok").Inc()
	}
	l.metrics.DecisionsTotal.WithLabelValues(result.Decision.String()).Inc()
}

func (l *Loop) onReadError(err error) {
	if l.metrics != nil {
		l.metrics.SerialReadErrors.Inc()
	}
	if ok, suppressed := l.readErrLog.Allow(); ok {
		l.logger.Warn("serial read error, treating as no data", zap.Error(err), zap.Int64("suppressed", suppressed))
	}
}

func (l *Loop) discard(why string) {
	if n := l.assembler.Len(); n > 0 {
		l.logger.Info("discarding partial frame", zap.Int("bytes", n), zap.String("why", why))
	}
	l.assembler.Reset()
	l.logger.Info("reader loop stopped", zap.String("why", why), zap.Uint64("frames", l.Frames()))
}

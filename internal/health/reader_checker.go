package health

import (
	"context"
	"time"
)

// LoopState 读循环对外暴露的运行状态
type LoopState interface {
	Running() bool
	LastActivity() time.Time
	Frames() uint64
}

// ReaderChecker 读卡循环健康检查器。
// staleAfter>0 时，超过该时长未收到任何字节判为降级（读卡器可能掉线）。
type ReaderChecker struct {
	loop       LoopState
	staleAfter time.Duration
	now        func() time.Time
}

// NewReaderChecker 创建读卡循环检查器
func NewReaderChecker(loop LoopState, staleAfter time.Duration) *ReaderChecker {
	return &ReaderChecker{loop: loop, staleAfter: staleAfter, now: time.Now}
}

func (c *ReaderChecker) Name() string { return "reader" }

func (c *ReaderChecker) Check(ctx context.Context) CheckResult {
	start := c.now()
	details := map[string]any{"frames": c.loop.Frames()}

	if !c.loop.Running() {
		return CheckResult{Status: StatusUnhealthy, Message: "reader loop not running", Details: details, Latency: c.now().Sub(start)}
	}

	last := c.loop.LastActivity()
	if !last.IsZero() {
		details["last_byte_age"] = start.Sub(last).String()
	}
	if c.staleAfter > 0 && (last.IsZero() || start.Sub(last) > c.staleAfter) {
		return CheckResult{Status: StatusDegraded, Message: "no reader traffic", Details: details, Latency: c.now().Sub(start)}
	}
	return CheckResult{Status: StatusHealthy, Message: "ok", Details: details, Latency: c.now().Sub(start)}
}

package health

import (
	"context"
	"testing"
	"time"
)

// mockChecker 模拟检查器
type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{Status: m.status, Message: "mock", Latency: time.Millisecond}
}

func TestAggregator(t *testing.T) {
	t.Run("全部健康", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"reader", StatusHealthy}, &mockChecker{"serial", StatusHealthy})
		if s := agg.Report(context.Background()).Status; s != StatusHealthy {
			t.Errorf("期望StatusHealthy，实际: %v", s)
		}
		if !agg.Ready(context.Background()) {
			t.Error("全部健康时应该Ready")
		}
	})

	t.Run("部分降级", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"reader", StatusDegraded}, &mockChecker{"serial", StatusHealthy})
		if s := agg.Report(context.Background()).Status; s != StatusDegraded {
			t.Errorf("期望StatusDegraded，实际: %v", s)
		}
		if !agg.Ready(context.Background()) {
			t.Error("降级状态应该仍然Ready")
		}
	})

	t.Run("不健康优先", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"reader", StatusDegraded}, &mockChecker{"serial", StatusUnhealthy})
		report := agg.Report(context.Background())
		if report.Status != StatusUnhealthy {
			t.Errorf("期望StatusUnhealthy，实际: %v", report.Status)
		}
		if len(report.Checks) != 2 {
			t.Errorf("期望2项检查结果，实际: %d", len(report.Checks))
		}
		if agg.Ready(context.Background()) {
			t.Error("不健康时不应Ready")
		}
	})

	t.Run("无检查器", func(t *testing.T) {
		if !NewAggregator().Ready(context.Background()) {
			t.Error("无检查器时应该Ready")
		}
	})
}

type fakeLoop struct {
	running bool
	last    time.Time
	frames  uint64
}

func (f *fakeLoop) Running() bool           { return f.running }
func (f *fakeLoop) LastActivity() time.Time { return f.last }
func (f *fakeLoop) Frames() uint64          { return f.frames }

func TestReaderChecker(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	check := func(loop *fakeLoop, stale time.Duration) CheckResult {
		c := NewReaderChecker(loop, stale)
		c.now = func() time.Time { return now }
		return c.Check(context.Background())
	}

	if r := check(&fakeLoop{running: false}, 0); r.Status != StatusUnhealthy {
		t.Errorf("未运行应为Unhealthy，实际: %v", r.Status)
	}
	if r := check(&fakeLoop{running: true}, 0); r.Status != StatusHealthy {
		t.Errorf("未配置超时应为Healthy，实际: %v", r.Status)
	}
	if r := check(&fakeLoop{running: true, last: now.Add(-time.Minute)}, 10*time.Second); r.Status != StatusDegraded {
		t.Errorf("超时无数据应为Degraded，实际: %v", r.Status)
	}
	r := check(&fakeLoop{running: true, last: now.Add(-time.Second), frames: 4}, 10*time.Second)
	if r.Status != StatusHealthy {
		t.Errorf("近期有数据应为Healthy，实际: %v", r.Status)
	}
	if r.Details["frames"] != uint64(4) || r.Details["last_byte_age"] != "1s" {
		t.Errorf("详情不符: %+v", r.Details)
	}
}

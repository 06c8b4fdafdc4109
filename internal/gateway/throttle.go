package gateway

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// logThrottle 基于 Token Bucket 的日志限流，串口持续报错时避免刷屏
type logThrottle struct {
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

// newLogThrottle perSec: 稳定速率；burst: 突发容量
func newLogThrottle(perSec float64, burst int) *logThrottle {
	if perSec <= 0 {
		perSec = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &logThrottle{limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// Allow 是否允许输出本条日志；允许时返回此前被抑制的条数并清零
func (t *logThrottle) Allow() (bool, int64) {
	if t.limiter.Allow() {
		return true, t.suppressed.Swap(0)
	}
	t.suppressed.Add(1)
	return false, 0
}

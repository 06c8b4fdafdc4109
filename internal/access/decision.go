package access

// Decision 每个完成窗口产生一次的授权结论
type Decision int

const (
	Denied Decision = iota
	Allowed
	Error
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Result 一帧的处理结果；Decision 为 Error 时 Reason 记录原因
type Result struct {
	Decision Decision
	CardID   string
	Reason   error
}

// Granted 只有 Allowed 视为放行，其余一律按拒绝处理
func (r Result) Granted() bool { return r.Decision == Allowed }

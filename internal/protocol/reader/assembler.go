package reader

import "fmt"

// State 组装器状态
type State int

const (
	StateAccumulating State = iota // 缓冲长度 <= 阈值
	StateReady                     // 越过阈值，等待一次提取
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "accumulating"
}

// Extraction 一次提取尝试的结果。Err 非空时 CardID 为空。
type Extraction struct {
	CardID string
	Raw    []byte
	Err    error
}

// Assembler 逐字节累积读卡器数据，长度越过阈值即做一次提取并清空缓冲。
// 非并发安全：只允许读循环单一 goroutine 持有。
type Assembler struct {
	threshold int
	extract   Extractor
	buf       []byte
	state     State
}

// NewAssembler 创建组装器；threshold<=0 使用默认值 15，extract 为 nil 时使用 STX 锚定
func NewAssembler(threshold int, extract Extractor) *Assembler {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if extract == nil {
		extract = STXExtractor(DefaultWindowSize, false)
	}
	return &Assembler{
		threshold: threshold,
		extract:   extract,
		buf:       make([]byte, 0, threshold+1),
	}
}

// Append 追加一个字节。越过阈值时返回本次提取结果与 true，
// 无论成功与否缓冲都会被清空，残帧不会带入下一窗口。
func (a *Assembler) Append(b byte) (Extraction, bool) {
	a.buf = append(a.buf, b)
	if len(a.buf) <= a.threshold {
		return Extraction{}, false
	}

	a.state = StateReady
	raw := make([]byte, len(a.buf))
	copy(raw, a.buf)
	id, err := a.safeExtract(raw)
	a.Reset()

	return Extraction{CardID: id, Raw: raw, Err: err}, true
}

func (a *Assembler) safeExtract(raw []byte) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			id, err = "", fmt.Errorf("reader: extractor panic: %v", r)
		}
	}()
	return a.extract(raw)
}

// Reset 丢弃当前缓冲
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
	a.state = StateAccumulating
}

// Len 当前缓冲长度
func (a *Assembler) Len() int { return len(a.buf) }

// State 当前状态；Append 返回后总是 StateAccumulating
func (a *Assembler) State() State { return a.state }

// Threshold 触发提取的长度阈值
func (a *Assembler) Threshold() int { return a.threshold }

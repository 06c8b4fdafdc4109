package door

// StreamDecoder 处理半包/粘包的流式解码器，以 CR LF 结尾对齐 6 字节指令
type StreamDecoder struct {
	buf []byte
}

// NewStreamDecoder 创建流式解码器
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{buf: make([]byte, 0, 2*CommandLen)}
}

// Feed 追加数据并尽可能解出多条指令，返回解出的指令与被丢弃的字节数
func (d *StreamDecoder) Feed(p []byte) ([]Command, int) {
	d.buf = append(d.buf, p...)
	var (
		cmds    []Command
		dropped int
	)
	for len(d.buf) >= CommandLen {
		c, err := Parse(d.buf[:CommandLen])
		if err != nil {
			// 未对齐，丢弃1字节后继续同步
			d.buf = d.buf[1:]
			dropped++
			continue
		}
		cmds = append(cmds, c)
		d.buf = d.buf[CommandLen:]
	}
	return cmds, dropped
}

// Buffered 尚未成帧的字节数
func (d *StreamDecoder) Buffered() int { return len(d.buf) }

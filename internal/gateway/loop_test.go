package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/taoyao-code/access-gateway/internal/access"
	"github.com/taoyao-code/access-gateway/internal/metrics"
	"github.com/taoyao-code/access-gateway/internal/protocol/reader"
	"github.com/taoyao-code/access-gateway/internal/serialport"
)

var (
	cmdAllow = []byte{1, 0x01, 0x55, 0xAA, 0x0D, 0x0A}
	cmdDeny  = []byte{1, 0x00, 0x55, 0xAA, 0x0D, 0x0A}
)

// fakeTransport 内存字节流，测试 goroutine 推送数据，读循环消费
type fakeTransport struct {
	mu       sync.Mutex
	in       []byte
	readErrs []error
	closed   bool
	writeErr error
	writes   [][]byte
	polls    int
}

func (f *fakeTransport) push(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in = append(f.in, b...)
}

func (f *fakeTransport) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTransport) ReadByte() (byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.readErrs) > 0 {
		err := f.readErrs[0]
		f.readErrs = f.readErrs[1:]
		return 0, false, err
	}
	if len(f.in) == 0 {
		if f.closed {
			return 0, false, serialport.ErrClosed
		}
		return 0, false, nil
	}
	b := f.in[0]
	f.in = f.in[1:]
	return b, true, nil
}

func (f *fakeTransport) Write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return nil
}

func (f *fakeTransport) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *fakeTransport) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.in)
}

func pad(b []byte, n int, fill byte) []byte {
	for len(b) < n {
		b = append(b, fill)
	}
	return b
}

type harness struct {
	t       *testing.T
	tr      *fakeTransport
	loop    *Loop
	asm     *reader.Assembler
	metrics *metrics.AccessMetrics
	errC    chan error
	exited  bool
	err     error
}

func start(t *testing.T, cards ...string) *harness {
	t.Helper()
	tr := &fakeTransport{}
	asm := reader.NewAssembler(reader.DefaultThreshold, reader.STXExtractor(reader.CardIDLen, false))
	m := metrics.NewAccessMetrics(prometheus.NewRegistry())
	loop := New(tr, asm, access.NewAuthorizer(access.NewCardSet(cards), nil), Options{
		ModuleID:     1,
		IdleInterval: 2 * time.Millisecond,
		Metrics:      m,
	})
	h := &harness{t: t, tr: tr, loop: loop, asm: asm, metrics: m, errC: make(chan error, 1)}
	go func() { h.errC <- loop.Run(context.Background()) }()
	require.Eventually(t, loop.Running, time.Second, time.Millisecond)
	t.Cleanup(func() { _ = h.stop() })
	return h
}

func (h *harness) waitWrites(n int) [][]byte {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return len(h.tr.written()) >= n }, time.Second, time.Millisecond)
	return h.tr.written()
}

// waitExit 等待 Run 返回，只消费一次结果
func (h *harness) waitExit() error {
	h.t.Helper()
	if h.exited {
		return h.err
	}
	select {
	case h.err = <-h.errC:
		h.exited = true
		return h.err
	case <-time.After(time.Second):
		h.t.Fatal("reader loop did not exit within 1s")
		return nil
	}
}

func (h *harness) stop() error {
	h.t.Helper()
	h.loop.Stop()
	return h.waitExit()
}

func TestLoop_ScenarioA_Authorized(t *testing.T) {
	h := start(t, "6A0049F63E")
	h.tr.push(pad([]byte("\x026A0049F63E\r\n"), reader.DefaultThreshold+1, 0x00))

	writes := h.waitWrites(1)
	require.NoError(t, h.stop())
	assert.Equal(t, [][]byte{cmdAllow}, h.tr.written())
	assert.Equal(t, cmdAllow, writes[0])
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.CommandsWritten.WithLabelValues("access")))
}

func TestLoop_ScenarioB_Unknown(t *testing.T) {
	h := start(t, "6A0049F63E")
	h.tr.push(pad([]byte("\x026A0049DFB8\r\n"), reader.DefaultThreshold+1, 0x00))

	h.waitWrites(1)
	require.NoError(t, h.stop())
	assert.Equal(t, [][]byte{cmdDeny}, h.tr.written())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.DecisionsTotal.WithLabelValues("denied")))
}

func TestLoop_ScenarioC_MalformedKeepsRunning(t *testing.T) {
	h := start(t, "6A0049F63E")
	h.tr.push(pad(nil, reader.DefaultThreshold+1, 0xFF))

	h.waitWrites(1)
	assert.Equal(t, cmdDeny, h.tr.written()[0])
	assert.True(t, h.loop.Running())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.FramesTotal.WithLabelValues("error")))

	// 之后的合法帧独立判定
	frame, err := reader.BuildFrame("6A0049F63E")
	require.NoError(t, err)
	h.tr.push(frame)
	writes := h.waitWrites(2)
	assert.Equal(t, cmdAllow, writes[1])
	require.NoError(t, h.stop())
	assert.Equal(t, uint64(2), h.loop.Frames())
}

func TestLoop_ScenarioD_StopWithPartialFrame(t *testing.T) {
	h := start(t, "6A0049F63E")
	h.tr.push([]byte("\x026A0049F6"))
	require.Eventually(t, func() bool { return h.tr.pending() == 0 }, time.Second, time.Millisecond)

	require.NoError(t, h.stop())
	assert.Empty(t, h.tr.written())
	assert.Equal(t, 0, h.asm.Len())
	assert.False(t, h.loop.Running())
	assert.False(t, h.loop.LastActivity().IsZero())
}

func TestLoop_NoWritesWhileAccumulating(t *testing.T) {
	h := start(t, "6A0049F63E")
	h.tr.push(pad(nil, reader.DefaultThreshold, 0x00))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.BytesReceived) == reader.DefaultThreshold
	}, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, h.stop())
	assert.Empty(t, h.tr.written())
	assert.Equal(t, uint64(0), h.loop.Frames())
}

func TestLoop_ContextCancel(t *testing.T) {
	tr := &fakeTransport{}
	loop := New(tr, reader.NewAssembler(0, nil), access.NewAuthorizer(access.NewCardSet(nil), nil), Options{
		IdleInterval: time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	errC := make(chan error, 1)
	go func() { errC <- loop.Run(ctx) }()
	require.Eventually(t, loop.Running, time.Second, time.Millisecond)

	// 长空闲间隔也必须被取消信号及时打断
	begin := time.Now()
	cancel()
	select {
	case err := <-errC:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("cancel not observed")
	}
	assert.Less(t, time.Since(begin), time.Second)

	assert.ErrorIs(t, loop.Run(context.Background()), ErrAlreadyRunning)
}

func TestLoop_StopBeforeRun(t *testing.T) {
	tr := &fakeTransport{in: pad(nil, 64, 0x02)}
	loop := New(tr, reader.NewAssembler(0, nil), access.NewAuthorizer(access.NewCardSet(nil), nil), Options{})
	loop.Stop()
	loop.Stop()
	require.NoError(t, loop.Run(context.Background()))
	assert.Empty(t, tr.written())
}

func TestLoop_TransportClosed(t *testing.T) {
	h := start(t, "6A0049F63E")
	h.tr.close()
	assert.ErrorIs(t, h.waitExit(), serialport.ErrClosed)
	assert.False(t, h.loop.Running())
}

func TestLoop_ReadErrorsAreNoData(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tr := &fakeTransport{readErrs: []error{errors.New("e1"), errors.New("e2"), errors.New("e3"), errors.New("e4"), errors.New("e5")}}
	m := metrics.NewAccessMetrics(prometheus.NewRegistry())
	loop := New(tr, reader.NewAssembler(0, nil), access.NewAuthorizer(access.NewCardSet([]string{"6A0049F63E"}), nil), Options{
		ModuleID:     1,
		IdleInterval: time.Millisecond,
		Logger:       zap.New(core),
		Metrics:      m,
	})
	frame, err := reader.BuildFrame("6A0049F63E")
	require.NoError(t, err)
	tr.push(frame)

	errC := make(chan error, 1)
	go func() { errC <- loop.Run(context.Background()) }()
	require.Eventually(t, func() bool { return len(tr.written()) == 1 }, time.Second, time.Millisecond)
	loop.Stop()
	require.NoError(t, <-errC)

	assert.Equal(t, cmdAllow, tr.written()[0])
	assert.Equal(t, float64(5), testutil.ToFloat64(m.SerialReadErrors))
	// 突发容量为3，其余被限流
	assert.Equal(t, 3, logs.FilterMessage("serial read error, treating as no data").Len())
}

func TestLoop_WriteErrorDoesNotStop(t *testing.T) {
	h := start(t, "6A0049F63E")
	h.tr.mu.Lock()
	h.tr.writeErr = errors.New("tx fifo full")
	h.tr.mu.Unlock()

	frame, err := reader.BuildFrame("6A0049F63E")
	require.NoError(t, err)
	h.tr.push(frame)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.CommandWriteErrors) == 1
	}, time.Second, time.Millisecond)
	assert.True(t, h.loop.Running())
}

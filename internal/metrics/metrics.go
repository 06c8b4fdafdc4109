package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AccessMetrics 门禁网关业务指标
type AccessMetrics struct {
	BytesReceived      prometheus.Counter
	FramesTotal        *prometheus.CounterVec // labels: result=ok|error
	DecisionsTotal     *prometheus.CounterVec // labels: decision
	CommandsWritten    *prometheus.CounterVec // labels: opcode
	CommandWriteErrors prometheus.Counter
	SerialReadErrors   prometheus.Counter
	AuthorizedCards    prometheus.Gauge
}

// NewAccessMetrics 注册并返回业务指标
func NewAccessMetrics(reg prometheus.Registerer) *AccessMetrics {
	m := &AccessMetrics{
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reader_bytes_received_total",
			Help: "Total bytes received from the card reader.",
		}),
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reader_frames_total",
			Help: "Completed reader windows by extraction result.",
		}, []string{"result"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Access decisions by outcome.",
		}, []string{"decision"}),
		CommandsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "door_commands_written_total",
			Help: "Commands written to the access module by opcode.",
		}, []string{"opcode"}),
		CommandWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "door_command_write_errors_total",
			Help: "Failed command writes to the access module.",
		}),
		SerialReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "serial_read_errors_total",
			Help: "Transient serial read errors treated as no data.",
		}),
		AuthorizedCards: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "authorized_cards",
			Help: "Number of cards in the authorized set.",
		}),
	}
	reg.MustRegister(m.BytesReceived, m.FramesTotal, m.DecisionsTotal, m.CommandsWritten,
		m.CommandWriteErrors, m.SerialReadErrors, m.AuthorizedCards)
	return m
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records peer and status API metrics.
type Recorder interface {
	// PacketReceived counts a UDP payload by its message name.
	PacketReceived(msg string, size int)

	// PacketSent counts a UDP payload by its message name.
	PacketSent(msg string, size int)

	// PacketDropped counts a payload that was not processed.
	PacketDropped(reason string)

	// SetSessions reports the number of established sessions.
	SetSessions(n int)

	// Record records a status API request.
	Record(resTime time.Duration, hasErr bool)

	// Handler exposes the recorded metrics over HTTP.
	Handler() http.Handler
}

type dummy struct{}

// NewDummy constructs a new dummy metrics recorder.
func NewDummy() Recorder {
	return &dummy{}
}

func (m *dummy) PacketReceived(msg string, size int)       {}
func (m *dummy) PacketSent(msg string, size int)           {}
func (m *dummy) PacketDropped(reason string)               {}
func (m *dummy) SetSessions(n int)                         {}
func (m *dummy) Record(resTime time.Duration, hasErr bool) {}

func (m *dummy) Handler() http.Handler {
	return http.NotFoundHandler()
}

type prom struct {
	registry *prometheus.Registry

	packetsIn  *prometheus.CounterVec
	bytesIn    prometheus.Counter
	packetsOut *prometheus.CounterVec
	bytesOut   prometheus.Counter
	dropped    *prometheus.CounterVec
	sessions   prometheus.Gauge

	reqCount prometheus.Counter
	errCount prometheus.Counter
	resTime  prometheus.Summary
}

// NewPrometheus constructs a new Prometheus metrics recorder with its own registry.
func NewPrometheus(service string) Recorder {
	m := &prom{
		registry: prometheus.NewRegistry(),
		packetsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_packets_received_total",
			Help: "The total number of received UDP payloads",
		}, []string{"message"}),
		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_bytes_received_total",
			Help: "The total number of received bytes",
		}),
		packetsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_packets_sent_total",
			Help: "The total number of sent UDP payloads",
		}, []string{"message"}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_bytes_sent_total",
			Help: "The total number of sent bytes",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_packets_dropped_total",
			Help: "The total number of payloads that were not processed",
		}, []string{"reason"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: service + "_sessions",
			Help: "The number of established sessions",
		}),
		reqCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_request_total",
			Help: "The total number of processed requests",
		}),
		errCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_errors_total",
			Help: "The total number of 500 responses",
		}),
		resTime: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: service + "_response_time",
			Help: "Response times",
		}),
	}
	m.registry.MustRegister(m.packetsIn, m.bytesIn, m.packetsOut, m.bytesOut,
		m.dropped, m.sessions, m.reqCount, m.errCount, m.resTime)
	return m
}

func (m *prom) PacketReceived(msg string, size int) {
	m.packetsIn.WithLabelValues(msg).Inc()
	m.bytesIn.Add(float64(size))
}

func (m *prom) PacketSent(msg string, size int) {
	m.packetsOut.WithLabelValues(msg).Inc()
	m.bytesOut.Add(float64(size))
}

func (m *prom) PacketDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *prom) SetSessions(n int) {
	m.sessions.Set(float64(n))
}

func (m *prom) Record(resTime time.Duration, hasErr bool) {
	m.reqCount.Inc()
	m.resTime.Observe(resTime.Seconds())
	if hasErr {
		m.errCount.Inc()
	}
}

func (m *prom) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Handler provides metrics middleware.
func Handler(m Recorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if m == nil {
			next.ServeHTTP(w, req)
			return
		}

		wrapW := &wrapResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		startTime := time.Now()
		next.ServeHTTP(wrapW, req)
		m.Record(time.Since(startTime), wrapW.statusCode == http.StatusInternalServerError)
	})
}

type wrapResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *wrapResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

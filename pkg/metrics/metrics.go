// Package metrics 以 Prometheus 指标导出上传统计
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wentf9/mirrorup/pkg/logger"
	"github.com/wentf9/mirrorup/pkg/uploader"
)

const Path = "/metrics"

type Metrics struct {
	files          *prometheus.CounterVec
	bytes          *prometheus.CounterVec
	listingRetries *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	duration       *prometheus.HistogramVec
}

func New(namespace string) *Metrics {
	return &Metrics{
		files: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_total",
				Help:      "Files processed, by outcome (sent, resumed, skipped)",
			},
			[]string{"endpoint", "outcome"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_sent_total",
				Help:      "Bytes written to remote streams",
			},
			[]string{"endpoint"},
		),
		listingRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listing_retries_total",
				Help:      "Remote directory listings that failed and were retried",
			},
			[]string{"endpoint"},
		),
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Upload calls, by result",
			},
			[]string{"endpoint", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_duration_seconds",
				Help:      "Upload call duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
			},
			[]string{"endpoint"},
		),
	}
}

// Collectors 返回需要注册的全部指标
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.files, m.bytes, m.listingRetries, m.uploads, m.duration}
}

func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.Collectors()...)
}

// Reporter 返回绑定到某个端点的 uploader.Reporter
func (m *Metrics) Reporter(endpoint string) uploader.Reporter {
	return &reporter{m: m, endpoint: endpoint}
}

type reporter struct {
	m        *Metrics
	endpoint string
}

func (r *reporter) FileDone(outcome uploader.Outcome, n uint64) {
	r.m.files.WithLabelValues(r.endpoint, string(outcome)).Inc()
	if n > 0 {
		r.m.bytes.WithLabelValues(r.endpoint).Add(float64(n))
	}
}

func (r *reporter) ListingRetried() {
	r.m.listingRetries.WithLabelValues(r.endpoint).Inc()
}

func (r *reporter) UploadDone(err error, elapsed time.Duration) {
	r.m.uploads.WithLabelValues(r.endpoint, uploader.KindOf(err)).Inc()
	r.m.duration.WithLabelValues(r.endpoint).Observe(elapsed.Seconds())
}

// Handler 返回 g 的指标 HTTP 处理器
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve 在 addr 上提供 /metrics,ctx 结束时关闭
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle(Path, Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Logger.Info("serving metrics", "addr", addr, "path", Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

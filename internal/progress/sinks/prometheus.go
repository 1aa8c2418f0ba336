package sinks

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/linkcheck/internal/progress"
)

// PrometheusSink exports crawl progress as Prometheus collectors.
type PrometheusSink struct {
	crawlsStarted  prometheus.Counter
	crawlsFinished *prometheus.CounterVec
	crawlDuration  prometheus.Histogram
	crawlPages     prometheus.Gauge
	crawlErrors    prometheus.Gauge

	fetchRequests *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		crawlsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkcheck_crawls_started_total",
			Help: "Crawls that have started.",
		}),
		crawlsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcheck_crawls_finished_total",
			Help: "Crawls that have finished, by result.",
		}, []string{"result"}),
		crawlDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkcheck_crawl_duration_seconds",
			Help:    "Wall time of finished crawls.",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 3600},
		}),
		crawlPages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkcheck_crawl_pages",
			Help: "Pages reported by the most recently finished crawl.",
		}),
		crawlErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkcheck_crawl_errors",
			Help: "Error lines reported by the most recently finished crawl.",
		}),
		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcheck_fetch_requests_total",
			Help: "Reported pages by site, status class and health.",
		}, []string{"site", "status_class", "healthy"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcheck_fetch_bytes_total",
			Help: "Body bytes downloaded per site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkcheck_fetch_duration_seconds",
			Help:    "Fetch latency by site and status class.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		}, []string{"site", "status_class"}),
	}
	for _, c := range []prometheus.Collector{
		s.crawlsStarted,
		s.crawlsFinished,
		s.crawlDuration,
		s.crawlPages,
		s.crawlErrors,
		s.fetchRequests,
		s.fetchBytes,
		s.fetchDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register crawl collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageCrawlStart:
			s.crawlsStarted.Inc()
		case progress.StageCrawlDone:
			s.finish(evt, crawlResult(evt))
		case progress.StageCrawlError:
			s.finish(evt, "interrupted")
		case progress.StageFetchDone:
			s.fetch(evt)
		}
	}
	return nil
}

func crawlResult(evt progress.Event) string {
	if evt.Errors > 0 {
		return "failed"
	}
	return "clean"
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.crawlsFinished.WithLabelValues(result).Inc()
	s.crawlPages.Set(float64(evt.Pages))
	s.crawlErrors.Set(float64(evt.Errors))
	if evt.Dur > 0 {
		s.crawlDuration.Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) fetch(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	class := string(evt.StatusClass)
	if class == "" {
		class = string(progress.StatusOther)
	}
	s.fetchRequests.WithLabelValues(site, class, strconv.FormatBool(evt.Healthy)).Inc()
	if evt.Bytes > 0 {
		s.fetchBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(site, class).Observe(evt.Dur.Seconds())
	}
}

// Close is a no-op; collectors stay registered.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

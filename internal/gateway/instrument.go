package gateway

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/opensource-finance/riskservice/internal/domain"
	"github.com/opensource-finance/riskservice/internal/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("riskservice-gateway")

var (
	// requestsTotal counts partner API calls by gateway and result
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskservice",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Partner API requests by gateway and result",
	}, []string{"gateway", "result"})

	// requestDuration tracks partner API latency
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "riskservice",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Partner API request duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	}, []string{"gateway"})

	// partnersReturned tracks result sizes
	partnersReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "riskservice",
		Subsystem: "gateway",
		Name:      "partners_returned",
		Help:      "Partners returned per request",
		Buckets:   []float64{0, 1, 5, 10, 50, 100, 500},
	})

	// cacheLookups counts response cache hits and misses
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskservice",
		Subsystem: "gateway",
		Name:      "cache_lookups_total",
		Help:      "Partner response cache lookups by outcome",
	}, []string{"outcome"})
)

// instrumented records metrics and a span around every Send.
type instrumented struct {
	next domain.PartnerGateway
	kind string
}

// Instrument wraps next with metrics and tracing labelled by kind.
func Instrument(next domain.PartnerGateway, kind string) domain.PartnerGateway {
	return &instrumented{next: next, kind: kind}
}

func (g *instrumented) Send(ctx context.Context, q *query.Select, headers map[string]string) ([]*domain.BusinessPartner, error) {
	ctx, span := tracer.Start(ctx, "gateway.Send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gateway.kind", g.kind),
			attribute.String("gateway.entity", q.From),
			attribute.Int("gateway.predicates", len(q.Where)),
		),
	)
	defer span.End()

	start := time.Now()
	partners, err := g.next.Send(ctx, q, headers)
	requestDuration.WithLabelValues(g.kind).Observe(time.Since(start).Seconds())

	if err != nil {
		requestsTotal.WithLabelValues(g.kind, errorResult(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	requestsTotal.WithLabelValues(g.kind, "ok").Inc()
	partnersReturned.Observe(float64(len(partners)))
	span.SetAttributes(attribute.Int("gateway.partners", len(partners)))
	return partners, nil
}

func errorResult(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return strconv.Itoa(se.StatusCode)
	}
	return "error"
}

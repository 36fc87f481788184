package observability

import (
	"context"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/campus-merch/api"

// Counters records service counters as OpenTelemetry Int64Counters created on first use.
type Counters struct {
	meter  metric.Meter
	logger *zap.Logger

	mu       sync.Mutex
	counters map[string]metric.Int64Counter
}

// NewCounters uses the global meter provider when meter is nil.
func NewCounters(meter metric.Meter, logger *zap.Logger) *Counters {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counters{meter: meter, logger: logger, counters: map[string]metric.Int64Counter{}}
}

// Incr adds one to the named counter.
func (c *Counters) Incr(ctx context.Context, name string, attrs map[string]string) {
	counter, ok := c.counter(name)
	if !ok {
		return
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for key, value := range attrs {
		kvs = append(kvs, attribute.String(key, value))
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].Key < kvs[j].Key })
	counter.Add(ctx, 1, metric.WithAttributes(kvs...))
}

func (c *Counters) counter(name string) (metric.Int64Counter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if counter, ok := c.counters[name]; ok {
		return counter, true
	}
	counter, err := c.meter.Int64Counter(name)
	if err != nil {
		c.logger.Warn("metrics: counter registration failed", zap.String("name", name), zap.Error(err))
		return nil, false
	}
	c.counters[name] = counter
	return counter, true
}

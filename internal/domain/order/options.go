package order

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/xenking/oralcare-shop/internal/domain/order"

type options struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	publisher      Publisher
	now            func() time.Time
}

// Option configures a Service.
type Option func(*options)

// WithTracerProvider sets the provider used for service spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets the provider used for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// WithPublisher sets where committed order events are sent.
func WithPublisher(p Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
		publisher:      nopPublisher{},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

package payment

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/oralcare-shop/internal/domain/order"
)

const instrumentationName = "github.com/xenking/oralcare-shop/internal/domain/payment"

type options struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	publisher      order.Publisher
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

// WithMeterProvider sets the provider used for payment counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// WithPublisher sets where committed order events are sent.
func WithPublisher(p order.Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, order.Event) error { return nil }

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

package pipeline

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Outcome is the resolution of one throttled task.
type Outcome[R any] struct {
	Value R
	Err   error
}

type throttleOptions struct {
	inFlight prometheus.Gauge
}

// ThrottleOption configures Throttled.
type ThrottleOption func(*throttleOptions)

// WithInFlightGauge tracks the number of running tasks in g.
func WithInFlightGauge(g prometheus.Gauge) ThrottleOption {
	return func(o *throttleOptions) { o.inFlight = g }
}

// Throttled runs fn once per item with at most limit tasks in flight and
// returns after every task has resolved. A failing or panicking task is
// recorded in its Outcome and never cancels its siblings. Outcomes are
// indexed by input position. A limit below 1 is treated as 1.
func Throttled[T, R any](ctx context.Context, limit int, items []T, fn func(context.Context, T) (R, error), opts ...ThrottleOption) []Outcome[R] {
	var o throttleOptions
	for _, opt := range opts {
		opt(&o)
	}
	if limit < 1 {
		limit = 1
	}

	out := make([]Outcome[R], len(items))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			if o.inFlight != nil {
				o.inFlight.Inc()
				defer o.inFlight.Dec()
			}
			defer func() {
				if r := recover(); r != nil {
					out[i].Err = eris.Errorf("pipeline: task panicked: %v", r)
				}
			}()
			out[i].Value, out[i].Err = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

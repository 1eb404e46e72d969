package stat

import (
	"fmt"

	"go.uber.org/zap"
)

// Factory creates empty trackers sharing a clock and a diagnostic logger.
type Factory struct {
	clock  Clock
	logger *zap.Logger
}

// Option configures a Factory.
type Option func(*Factory)

// WithClock overrides the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(f *Factory) {
		if c != nil {
			f.clock = c
		}
	}
}

// WithLogger sets the logger used for lifecycle diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

func NewFactory(opts ...Option) *Factory {
	f := &Factory{clock: SystemClock{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Clock returns the clock handed to every tracker this factory builds.
func (f *Factory) Clock() Clock { return f.clock }

// New builds an empty tracker of the requested shape.
func (f *Factory) New(kind Kind, id Identity) (Tracker, error) {
	switch kind {
	case KindCounter:
		return f.Counter(id), nil
	case KindDuration:
		return f.Duration(id), nil
	case KindCategorical:
		return f.Categorical(id), nil
	case KindValue:
		return f.Value(id), nil
	case KindAccumulator:
		return f.Accumulator(id), nil
	default:
		return nil, fmt.Errorf("stat: unknown tracker kind %q", kind)
	}
}

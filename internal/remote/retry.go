package remote

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2 * time.Second
)

// Policy tunes one retried operation.
type Policy struct {
	Name       string
	MaxRetries int
	BaseDelay  time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Name == "" {
		p.Name = "remote call"
	}
	return p
}

// DefaultPolicy returns the default retry budget for name.
func DefaultPolicy(name string) Policy {
	return Policy{Name: name, MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay}
}

// Do runs op, retrying transient failures up to p.MaxRetries times with a
// delay of BaseDelay*2^attempt before each retry. Any terminal failure is
// returned as a *PermanentError.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = p.BaseDelay << uint(p.MaxRetries)
	b.Reset()

	attempts := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logrus.WithFields(logrus.Fields{
				"op":      p.Name,
				"attempt": attempts,
				"of":      p.MaxRetries + 1,
				"delay":   next,
			}).WithError(err).Warn("Transient remote error, retrying")
		}),
	)
	if err != nil {
		var zero T
		return zero, &PermanentError{Op: p.Name, Attempts: attempts, Err: err}
	}
	return res, nil
}

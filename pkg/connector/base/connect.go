package base

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/hdm/pkg/errors"
)

// Strategy is one way of establishing a connection, for example one host of
// a primary/failover list.
type Strategy[T any] struct {
	Name string
	Dial func(ctx context.Context) (T, error)
}

// Result reports which strategy produced the value and how many dial
// attempts were spent across all strategies.
type Result[T any] struct {
	Value    T
	Strategy string
	Attempts int
	Err      error
}

// Connect tries each strategy in order. A strategy is retried with policy
// while its errors are retryable; once it is exhausted on a connectivity
// failure the next strategy is tried. Any other failure stops immediately.
func Connect[T any](ctx context.Context, policy *RetryPolicy, strategies ...Strategy[T]) Result[T] {
	if policy == nil {
		policy = NoRetryPolicy()
	}
	if len(strategies) == 0 {
		return Result[T]{Err: errors.New(errors.ErrorTypeConfig, "no connection strategies configured")}
	}

	var res Result[T]
	var failures []error
	for _, s := range strategies {
		var value T
		attempts, err := policy.Do(ctx, func(ctx context.Context) error {
			v, err := s.Dial(ctx)
			if err != nil {
				return err
			}
			value = v
			return nil
		}, errors.IsRetryable)
		res.Attempts += attempts

		if err == nil {
			res.Value = value
			res.Strategy = s.Name
			return res
		}

		err = fmt.Errorf("%s: %w", s.Name, err)
		if !errors.IsRetryable(err) {
			res.Err = err
			return res
		}
		failures = append(failures, err)
		if ctx.Err() != nil {
			break
		}
	}

	res.Err = errors.Wrap(errors.Join(failures...), errors.ErrorTypeConnection, "unable to connect")
	return res
}

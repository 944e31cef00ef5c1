package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/paygate/internal/pkg/apperr"
)

const (
	defaultMaxAttempts = 5
)

// ErrNotFound is returned by a Store when the parameter does not exist (yet).
var ErrNotFound = errors.New("parameter not found")

// Store fetches a single named value from a parameter store.
type Store interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Resolver resolves named configuration values with bounded retry.
type Resolver struct {
	store       Store
	maxAttempts int
	sleep       SleepFunc
}

// NewResolver creates a resolver retrying up to 5 times with 2^attempt second backoff.
func NewResolver(store Store) *Resolver {
	return &Resolver{
		store:       store,
		maxAttempts: defaultMaxAttempts,
		sleep:       Sleep,
	}
}

// WithSleep replaces the backoff sleeper (tests).
func (r *Resolver) WithSleep(sleep SleepFunc) *Resolver {
	r.sleep = sleep
	return r
}

// Resolve returns the value for name. Absence or transient failures are retried;
// after the last attempt the error is of kind ConfigUnavailable.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		value, err := r.store.GetParameter(ctx, name)
		if err == nil && value != "" {
			return value, nil
		}
		if err == nil {
			err = ErrNotFound
		}
		lastErr = err
		log.Warnf("[Secrets] Parameter %s unavailable (attempt %d/%d): %v", name, attempt+1, r.maxAttempts, err)

		if attempt == r.maxAttempts-1 {
			break
		}
		if err := r.sleep(ctx, backoff(attempt)); err != nil {
			return "", apperr.Wrap(apperr.KindConfigUnavailable, fmt.Sprintf("resolve %s", name), err)
		}
	}
	return "", apperr.Wrap(apperr.KindConfigUnavailable, fmt.Sprintf("resolve %s", name), lastErr)
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// Sleep waits for d, returning early with ctx's error when it is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

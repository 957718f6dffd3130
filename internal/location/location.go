// Package location resolves the coordinates attached to time-in and
// time-out. Lookups are best effort: callers treat any error as
// "no location".
package location

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/balkashynov/dtr/internal/apperr"
)

// Provider returns the current position as "lat,lng"
type Provider interface {
	Current(ctx context.Context) (string, error)
}

// Func adapts a plain function to Provider
type Func func(ctx context.Context) (string, error)

func (f Func) Current(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static always reports the same position. The zero value reports none.
type Static string

func (s Static) Current(context.Context) (string, error) {
	v := strings.TrimSpace(string(s))
	if v == "" {
		return "", apperr.ErrLocationUnavailable
	}
	return v, nil
}

// Format renders coordinates the way they are stored
func Format(lat, lng float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lng)
}

type bounded struct {
	next    Provider
	timeout time.Duration
	log     *zap.Logger
}

// WithTimeout bounds every lookup of next by d. A provider that ignores
// its context is abandoned when the deadline passes.
func WithTimeout(next Provider, d time.Duration, log *zap.Logger) Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &bounded{next: next, timeout: d, log: log}
}

type result struct {
	value string
	err   error
}

func (b *bounded) Current(ctx context.Context) (string, error) {
	if b.next == nil {
		return "", apperr.ErrLocationUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	ch := make(chan result, 1)
	go func() {
		v, err := b.next.Current(ctx)
		ch <- result{value: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			b.log.Warn("location lookup failed", zap.Error(r.err))
			return "", apperr.Wrap(apperr.CodeLocationUnavailable, "location lookup failed", r.err)
		}
		return r.value, nil
	case <-ctx.Done():
		b.log.Warn("location lookup timed out", zap.Duration("timeout", b.timeout))
		return "", apperr.Wrap(apperr.CodeLocationUnavailable, "location lookup timed out", ctx.Err())
	}
}

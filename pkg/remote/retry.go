package remote

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times, sleeping base, 2*base, 4*base...
// between tries. Only transient network failures are retried; other
// errors return immediately.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsNetwork(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(base << uint(i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

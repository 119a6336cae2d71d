package remote

import (
	"context"
	"errors"
	"net"
	"time"
)

// dialWithRetry dials addr with exponential backoff. Every failure is
// retried until maxAttempts or ctx ends; a refused or unreachable address
// at startup is usually transient.
func dialWithRetry(ctx context.Context, d *net.Dialer, addr string, maxAttempts int, backoff time.Duration) (net.Conn, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, errors.Join(ctx.Err(), lastErr)
			case <-t.C:
			}
			backoff *= 2
		}

		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, errors.Join(ctx.Err(), lastErr)
		}
	}
	return nil, lastErr
}

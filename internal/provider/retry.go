package provider

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy holds the exponential-backoff parameters for upstream calls.
// Zero values fall back to the §4.5 defaults (3 attempts, 500ms/30s).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	return p
}

// isRetryableStatus reports whether an HTTP status code from an upstream
// response is transient and worth a retry.
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, // 408
		425, // Too Early
		http.StatusTooManyRequests: // 429
		return true
	}
	return code >= 500
}

// isRetryableNetworkError reports whether a transport-level failure (no
// response received at all) is worth a retry: connection refused, reset,
// timed out, DNS failures — the network condition classes §4.5 names.
func isRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return false
}

// backoffDelay computes the exponential-backoff-with-full-jitter delay for
// the given (zero-indexed) attempt, clamped to [0, maxDelay].
func backoffDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}
	if delay <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(delay)))
}

// retryAfterDuration parses a Retry-After header, preferring it over the
// computed backoff delay when the upstream is explicit about its cooldown.
func retryAfterDuration(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// sleepWithContext sleeps for d, returning early with ctx.Err() if the
// context is canceled first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withRetry issues attempt repeatedly per policy. attempt returns the
// *http.Response (nil on a network-level failure) and an error; a
// streaming response (stream=true) is never retried once any bytes may
// have been committed to the caller, so callers pass stream=true only for
// the pre-body-read failure window.
func withRetry(ctx context.Context, policy RetryPolicy, stream bool, attempt func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	policy = policy.normalized()
	var lastErr error
	var lastResp *http.Response

	for i := 0; i < policy.MaxAttempts; i++ {
		resp, err := attempt(ctx)
		if err == nil && resp != nil && !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if err != nil && !isRetryableNetworkError(err) {
			return nil, err
		}
		if stream && resp != nil && resp.StatusCode < 400 {
			// A stream has started; do not retry even if status looked odd.
			return resp, nil
		}

		lastErr = err
		lastResp = resp

		if i == policy.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(i, policy.BaseDelay, policy.MaxDelay)
		if resp != nil {
			if ra := retryAfterDuration(resp); ra > 0 {
				delay = ra
			}
			resp.Body.Close()
		}
		if err := sleepWithContext(ctx, delay); err != nil {
			return nil, err
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return lastResp, nil
}

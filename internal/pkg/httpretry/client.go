// Package httpretry retries idempotent calls to the backend services on
// transient failures, with exponential backoff and full jitter.
package httpretry

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/masivos/admin-gateway/internal/pkg/logger"
	"github.com/masivos/admin-gateway/internal/pkg/metrics"
)

// HTTPDoer executes HTTP requests. *http.Client and *RetryClient satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient retries idempotent requests. POST and PATCH are sent once.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryClient wraps client. A nil client gets a 30s http.Client and a
// non-positive maxRetries becomes 3.
func NewRetryClient(client HTTPDoer, maxRetries int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  500 * time.Millisecond,
		maxDelay:   10 * time.Second,
	}
}

// Wrap returns client itself when maxRetries <= 0.
func Wrap(client HTTPDoer, maxRetries int) HTTPDoer {
	if maxRetries <= 0 {
		return client
	}
	return NewRetryClient(client, maxRetries)
}

// WithDelays overrides the backoff bounds.
func (rc *RetryClient) WithDelays(base, max time.Duration) *RetryClient {
	rc.baseDelay, rc.maxDelay = base, max
	return rc
}

// Do sends req, retrying transport errors and 429/5xx answers when the
// method is idempotent. When retries run out the last response is returned
// so the caller sees the backend status.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	if !idempotent(req.Method) {
		return rc.client.Do(req)
	}

	ctx := req.Context()
	var wait time.Duration
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := rewind(req); err != nil {
				return nil, err
			}
			metrics.UpstreamRetries.WithLabelValues(req.URL.Host).Inc()
			logger.Warn("httpretry: retrying",
				"attempt", attempt, "max", rc.maxRetries,
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "wait", wait)

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		resp, err := rc.client.Do(req)
		last := attempt == rc.maxRetries
		switch {
		case err != nil:
			if ctx.Err() != nil || last {
				return nil, err
			}
			wait = rc.backoff(attempt + 1)
		case !retryableStatus(resp.StatusCode) || last:
			return resp, nil
		default:
			wait = rc.backoff(attempt + 1)
			if ra, ok := retryAfter(resp); ok {
				wait = min(ra, rc.maxDelay)
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

var errBodyConsumed = errors.New("httpretry: request body cannot be replayed")

func rewind(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if req.GetBody == nil {
		return errBodyConsumed
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("httpretry: resetting body: %w", err)
	}
	req.Body = body
	return nil
}

// backoff is a random duration in [0, min(maxDelay, base*2^(attempt-1))],
// floored at the smaller of base and 100ms.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	ceiling := rc.baseDelay << (attempt - 1)
	if ceiling <= 0 || ceiling > rc.maxDelay {
		ceiling = rc.maxDelay
	}
	d := time.Duration(rand.Int63n(int64(ceiling) + 1))
	return max(d, min(rc.baseDelay, 100*time.Millisecond))
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

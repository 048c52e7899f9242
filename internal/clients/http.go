// Package clients talks to the external species information services.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

// UserAgent identifies the platform to external APIs
const UserAgent = "Urban Corridor Platform (info@fynboscorridors.org)"

const (
	defaultTimeout  = 15 * time.Second
	defaultAttempts = 3
	defaultDelay    = 500 * time.Millisecond
)

// StatusError is an unexpected HTTP status from an external API
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Error: %d", e.Code)
}

// Option configures a client
type Option func(*base)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(b *base) { b.http = c }
}

// WithRetry sets the number of attempts and the delay between them
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(b *base) {
		b.attempts = attempts
		b.delay = delay
	}
}

type base struct {
	baseURL  string
	http     *http.Client
	attempts uint
	delay    time.Duration
}

func newBase(baseURL string, opts []Option) base {
	b := base{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: defaultTimeout},
		attempts: defaultAttempts,
		delay:    defaultDelay,
	}
	for _, o := range opts {
		o(&b)
	}
	return b
}

// getJSON fetches url and decodes the body into dst. Server errors and
// network failures are retried; other statuses are returned at once.
func (b *base) getJSON(ctx context.Context, url string, dst any) error {
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("User-Agent", UserAgent)
			req.Header.Set("Accept", "application/json")

			resp, err := b.http.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				statusErr := &StatusError{Code: resp.StatusCode}
				if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
					return statusErr
				}
				return retry.Unrecoverable(statusErr)
			}
			if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
				return retry.Unrecoverable(fmt.Errorf("error decoding response: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(b.attempts),
		retry.Delay(b.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

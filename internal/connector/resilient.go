package connector

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/time/rate"

	"github.com/skysweep/skysweep/pkg/domain"
	"github.com/skysweep/skysweep/pkg/logger"
)

const (
	defaultMaxRetries      = 4
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxElapsedTime  = 2 * time.Minute
	defaultRPS             = 10
	defaultBurst           = 20
)

// RetryConfig bounds the retry budget for transient provider failures
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
}

// RateLimitConfig caps the request rate against one provider account
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Config configures the resilient connector wrapper
type Config struct {
	Retry     RetryConfig
	RateLimit RateLimitConfig
}

func (c Config) withDefaults() Config {
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = defaultMaxRetries
	}
	if c.Retry.InitialInterval == 0 {
		c.Retry.InitialInterval = defaultInitialInterval
	}
	if c.Retry.MaxElapsedTime == 0 {
		c.Retry.MaxElapsedTime = defaultMaxElapsedTime
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = defaultRPS
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = defaultBurst
	}
	return c
}

// Resilient wraps a provider connector with per-account rate limiting and
// exponential backoff retries for transient failures. Permanent failures are
// surfaced immediately.
type Resilient struct {
	inner   domain.Connector
	limiter *rate.Limiter
	config  Config
}

// NewResilient returns a connector applying the retry and rate limit policy
// on top of the wrapped connector
func NewResilient(inner domain.Connector, config Config) *Resilient {
	config = config.withDefaults()
	return &Resilient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit.RPS), config.RateLimit.Burst),
		config:  config,
	}
}

// Provider returns the provider of the wrapped connector
func (r *Resilient) Provider() domain.Provider {
	return r.inner.Provider()
}

// Regions returns the regions of the wrapped connector, rate limited and with
// transient failures retried within the configured budget. Permanent failures
// such as bad credentials surface immediately.
func (r *Resilient) Regions(ctx context.Context) ([]string, error) {
	var regions []string
	err := r.retry(ctx, func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		var err error
		regions, err = r.inner.Regions(ctx)
		if err != nil {
			if IsTransient(err) {
				logger.Warnw(
					"transient provider error, retrying",
					"provider", r.inner.Provider(),
					"operation", "regions",
					"error", err,
				)
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	})
	return regions, err
}

// List returns resources from the wrapped connector, rate limited and with
// transient failures retried within the configured budget
func (r *Resilient) List(ctx context.Context, region, kind string) ([]domain.Resource, error) {
	var resources []domain.Resource
	err := r.retry(ctx, func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		var err error
		resources, err = r.inner.List(ctx, region, kind)
		if err != nil {
			if IsTransient(err) {
				logger.Warnw(
					"transient provider error, retrying",
					"provider", r.inner.Provider(),
					"region", region,
					"kind", kind,
					"error", err,
				)
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	})
	return resources, err
}

func (r *Resilient) retry(ctx context.Context, operation func() error) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = r.config.Retry.InitialInterval
	expBackoff.MaxElapsedTime = r.config.Retry.MaxElapsedTime
	return backoff.Retry(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(expBackoff, r.config.Retry.MaxRetries), ctx),
	)
}

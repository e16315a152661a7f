// Package ratelimit enforces per-company politeness for the crawler
// worker pool using token-bucket limiters from golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// CompanyLimiters lazily creates and caches one rate.Limiter per company,
// all seeded from the same default rate/burst.
type CompanyLimiters struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	ratePerSec   float64
	burst        int
}

// NewCompanyLimiters builds a limiter cache with the given default rate
// (requests/sec) and burst size, applied to any company not otherwise
// configured.
func NewCompanyLimiters(ratePerSec float64, burst int) *CompanyLimiters {
	return &CompanyLimiters{
		limiters:   make(map[string]*rate.Limiter),
		ratePerSec: ratePerSec,
		burst:      burst,
	}
}

// Wait blocks until a token is available for company, or ctx is done.
func (c *CompanyLimiters) Wait(ctx context.Context, company string) error {
	return c.limiterFor(company).Wait(ctx)
}

func (c *CompanyLimiters) limiterFor(company string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[company]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.ratePerSec), c.burst)
		c.limiters[company] = l
	}
	return l
}

// SetCompanyRate overrides the rate/burst for one company, e.g. when a
// company's settings specify a stricter politeness window.
func (c *CompanyLimiters) SetCompanyRate(company string, ratePerSec float64, burst int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limiters[company] = rate.NewLimiter(rate.Limit(ratePerSec), burst)
}

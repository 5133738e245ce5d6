package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vendorhub/leadrouter-backend/api/responses"
	pkgerrors "github.com/vendorhub/leadrouter-backend/pkg/errors"
	"github.com/vendorhub/leadrouter-backend/pkg/logger"
)

type fixedWindowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// IntakeRateLimitPolicy bounds how many leads one source can submit through
// the public webhook per window.
type IntakeRateLimitPolicy struct {
	name    string
	window  time.Duration
	ipLimit int
}

// NewIntakeRateLimitPolicy builds a policy with the supplied window and limit.
func NewIntakeRateLimitPolicy(name string, window time.Duration, ipLimit int) IntakeRateLimitPolicy {
	return IntakeRateLimitPolicy{
		name:    strings.ToLower(strings.TrimSpace(name)),
		window:  window,
		ipLimit: ipLimit,
	}
}

func (p IntakeRateLimitPolicy) enabled() bool {
	return p.window > 0 && p.ipLimit > 0
}

func (p IntakeRateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "intake"
	}
	return p.name
}

func (p IntakeRateLimitPolicy) ipScope(ip string) string {
	if ip == "" {
		return ""
	}
	return fmt.Sprintf("%s:ip:%s", p.normalizedName(), ip)
}

// IntakeRateLimit enforces a per-IP fixed-window counter on lead intake.
func IntakeRateLimit(policy IntakeRateLimitPolicy, store fixedWindowLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := clientIP(r)
			if scope := policy.ipScope(ip); scope != "" {
				allowed, count, err := store.FixedWindowAllow(ctx, scope, int64(policy.ipLimit), policy.window)
				if err != nil {
					responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					if logg != nil {
						logCtx := logg.WithFields(ctx, map[string]any{
							"policy":         policy.normalizedName(),
							"ip":             ip,
							"attempts":       count,
							"limit":          policy.ipLimit,
							"window_seconds": int(policy.window.Seconds()),
						})
						logg.Warn(logCtx, "intake.rate_limit.blocked")
					}
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

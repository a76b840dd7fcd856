package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/imagescout/config"
	"github.com/use-agent/imagescout/models"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet hands out one token bucket per identity and forgets identities
// idle for longer than idle.
type limiterSet struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	idle     time.Duration
}

func (s *limiterSet) get(identity string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visitors[identity]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.visitors[identity] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (s *limiterSet) evict(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range s.visitors {
		if now.Sub(v.lastSeen) > s.idle {
			delete(s.visitors, id)
		}
	}
}

// RateLimit returns per-identity token-bucket middleware. The identity is
// the API key set by Auth, else the client IP. A non-positive rate disables
// limiting.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	set := &limiterSet{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(cfg.RequestsPerSecond),
		burst:    burst,
		idle:     time.Hour,
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for now := range ticker.C {
			set.evict(now)
		}
	}()

	return func(c *gin.Context) {
		identity := c.ClientIP()
		if key := c.GetString(IdentityKey); key != "" {
			identity = "key:" + key
		}

		lim := set.get(identity, time.Now())
		if !lim.Allow() {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(lim)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error: "rate limit exceeded, please slow down",
				Code:  models.ErrCodeRateLimited,
			})
			return
		}
		c.Next()
	}
}

func retryAfterSeconds(lim *rate.Limiter) int {
	r := lim.Reserve()
	defer r.Cancel()
	secs := int(r.Delay().Seconds() + 0.999)
	if secs < 1 {
		secs = 1
	}
	return secs
}

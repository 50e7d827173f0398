package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Per-IP throttling of inbound requests. This is process local and only
// protects the HTTP surface itself, outbound third-party calls go through
// the distributed limiter in internal/ratelimit instead.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	ipLimiters = make(map[string]*ipLimiter)
	ipMutex    sync.Mutex
)

// ThrottleMiddleware rejects clients exceeding r events/sec with burst b.
func ThrottleMiddleware(r rate.Limit, b int) gin.HandlerFunc {
	go cleanupIPLimiters()
	return func(gctx *gin.Context) {
		ip := gctx.ClientIP()
		if !getIPLimiter(ip, r, b).Allow() {
			gctx.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		gctx.Next()
	}
}

func getIPLimiter(ip string, r rate.Limit, b int) *rate.Limiter {
	ipMutex.Lock()
	defer ipMutex.Unlock()

	entry, exists := ipLimiters[ip]
	if !exists {
		limiter := rate.NewLimiter(r, b)
		ipLimiters[ip] = &ipLimiter{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func cleanupIPLimiters() {
	for {
		time.Sleep(time.Minute)
		ipMutex.Lock()
		for ip, entry := range ipLimiters {
			if time.Since(entry.lastSeen) > 3*time.Minute {
				delete(ipLimiters, ip)
			}
		}
		ipMutex.Unlock()
	}
}

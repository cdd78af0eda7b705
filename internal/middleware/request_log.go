package middleware

import (
	"net/http"
	"time"

	"github.com/dmchat/internal/logger"
)

// RequestLog пишет method, path и длительность (медленные — всегда, остальные — при LOG_LEVEL=debug).
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer logger.DeferLogDuration("http "+r.Method+" "+r.URL.Path, time.Now())()
		next.ServeHTTP(w, r)
	})
}

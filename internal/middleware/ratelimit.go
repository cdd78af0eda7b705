package middleware

import (
	"net/http"
	"time"

	"github.com/dmchat/internal/logger"
	"github.com/dmchat/internal/storage"
)

// RateLimit ограничивает запросы max за window на пользователя (или IP, если не авторизован).
// Счётчики живут в storage.Store (Redis или память). Ошибка хранилища не блокирует запрос.
func RateLimit(store storage.Store, name string, max int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if max <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := name + ":ip:" + r.RemoteAddr
			if userID := GetUserID(r.Context()); userID != "" {
				key = name + ":u:" + userID
			}
			allowed, err := store.Allow(r.Context(), key, max, window)
			if err != nil {
				logger.Errorf("rate limit %s: %v", key, err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				writeJSONError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

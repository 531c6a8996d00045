// cors.go — permissive CORS для фронтенда приёмной кампании.
// Бэкенд обслуживает статический фронтенд с другого origin-а,
// поэтому все ответы несут Access-Control-Allow-Origin: *.
package middleware

import (
	"net/http"
)

// CORS возвращает middleware, добавляющий CORS-заголовки ко всем ответам.
// Preflight-запросы (OPTIONS) завершаются сразу со статусом 200.
func CORS() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", "*")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

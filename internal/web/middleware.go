package web

import (
	"net/http"
	"strings"
	"time"

	"telegram-linkgrabber/internal/infra/logger"
)

const (
	sessionCookieName = "linkgrabber_session"
	sessionMaxAge     = 3600 // 1 час в секундах
)

// authMiddleware проверяет аутентификацию запроса. Принимаются три формы:
// токен в query (?token=), токен в заголовке Authorization: Bearer и
// cookie-сессия, выданная после успешного предъявления токена.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
				token = strings.TrimPrefix(bearer, "Bearer ")
			}
		}
		if token != "" {
			sessionID, valid := s.auth.ValidateToken(token)
			if !valid {
				logger.Warn("web: invalid auth token attempt")
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid authentication token"})
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookieName,
				Value:    sessionID,
				Path:     "/",
				MaxAge:   sessionMaxAge,
				HttpOnly: true,
				SameSite: http.SameSiteStrictMode,
			})
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || !s.auth.ValidateSession(cookie.Value) {
			logger.Debugf("web: unauthorized access: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware пишет в лог каждый запрос с его длительностью.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		logger.Debugf("web: %s %s from %s (%s)", r.Method, r.URL.Path, r.RemoteAddr, time.Since(started).Round(time.Millisecond))
	})
}

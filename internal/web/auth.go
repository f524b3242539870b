package web

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuthManager управляет токеном доступа и сессиями веб-интерфейса.
// Токен либо задаётся конфигурацией, либо генерируется на старте; успешное
// предъявление токена обменивается на cookie-сессию с ограниченным TTL.
type AuthManager struct {
	mu         sync.RWMutex
	token      string
	sessions   map[string]*Session
	sessionTTL time.Duration
}

// Session представляет активную сессию пользователя.
type Session struct {
	ID        string
	CreatedAt time.Time
	LastSeen  time.Time
}

// NewAuthManager создает менеджер аутентификации. Пустой token означает
// автогенерацию: вызывающий обязан показать Token() оператору.
func NewAuthManager(sessionTTL time.Duration, token string) *AuthManager {
	if strings.TrimSpace(token) == "" {
		token = uuid.New().String()
	}
	return &AuthManager{
		token:      token,
		sessions:   make(map[string]*Session),
		sessionTTL: sessionTTL,
	}
}

// Token возвращает действующий токен доступа.
func (am *AuthManager) Token() string {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return am.token
}

// ValidateToken проверяет токен и создает новую сессию.
func (am *AuthManager) ValidateToken(token string) (string, bool) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if token == "" || token != am.token {
		return "", false
	}

	sessionID := uuid.New().String()
	now := time.Now()
	am.sessions[sessionID] = &Session{ID: sessionID, CreatedAt: now, LastSeen: now}
	return sessionID, true
}

// ValidateSession проверяет, жива ли сессия, и продлевает её.
func (am *AuthManager) ValidateSession(sessionID string) bool {
	am.mu.Lock()
	defer am.mu.Unlock()

	session, ok := am.sessions[sessionID]
	if !ok {
		return false
	}
	if time.Since(session.LastSeen) > am.sessionTTL {
		delete(am.sessions, sessionID)
		return false
	}
	session.LastSeen = time.Now()
	return true
}

// CleanupExpired удаляет истекшие сессии.
func (am *AuthManager) CleanupExpired() {
	am.mu.Lock()
	defer am.mu.Unlock()

	now := time.Now()
	for id, session := range am.sessions {
		if now.Sub(session.LastSeen) > am.sessionTTL {
			delete(am.sessions, id)
		}
	}
}

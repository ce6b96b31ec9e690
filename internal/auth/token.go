// Package auth предоставляет bearer-токен для запросов к удаленному сервису историй.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"novel-client/internal/gateway"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	ErrTokenMissing   = errors.New("access token is not configured")
	ErrTokenMalformed = errors.New("access token is malformed")
)

// Claims - поля токена, которые читает клиент. Подпись не проверяется: ее проверяет сервер.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// ParseClaims разбирает JWT без проверки подписи.
func ParseClaims(token string) (*Claims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// SubjectFromToken возвращает ID пользователя: claim user_id, иначе sub.
func SubjectFromToken(token string) (string, error) {
	claims, err := ParseClaims(token)
	if err != nil {
		return "", err
	}
	if claims.UserID != "" {
		return claims.UserID, nil
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: no user_id or sub claim", ErrTokenMalformed)
	}
	return claims.Subject, nil
}

// ExpiresAt возвращает время истечения токена. ok == false, если exp не задан
// или токен не является JWT.
func ExpiresAt(token string) (time.Time, bool) {
	claims, err := ParseClaims(token)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// StaticTokenSource всегда возвращает один и тот же токен.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrTokenMissing
	}
	return string(s), nil
}

var (
	_ gateway.TokenSource = StaticTokenSource("")
	_ gateway.TokenSource = (*FileTokenSource)(nil)
)

// FileTokenSource читает токен из файла (docker secret) и перечитывает его,
// когда файл меняется. Просроченный токен отдается как есть с предупреждением в лог.
type FileTokenSource struct {
	path   string
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	token   string
	modTime time.Time
	warned  bool
}

func NewFileTokenSource(path string, logger *zap.Logger) *FileTokenSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileTokenSource{
		path:   path,
		logger: logger.Named("FileTokenSource"),
		now:    time.Now,
	}
}

func (s *FileTokenSource) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenMissing, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || !info.ModTime().Equal(s.modTime) {
		raw, err := os.ReadFile(s.path)
		if err != nil {
			return "", fmt.Errorf("failed to read token file %s: %w", s.path, err)
		}
		token := strings.TrimSpace(string(raw))
		if token == "" {
			return "", fmt.Errorf("%w: token file %s is empty", ErrTokenMissing, s.path)
		}
		s.token = token
		s.modTime = info.ModTime()
		s.warned = false
		s.logger.Debug("Access token loaded", zap.String("path", s.path))
	}

	if exp, ok := ExpiresAt(s.token); ok && s.now().After(exp) && !s.warned {
		s.warned = true
		s.logger.Warn("Access token has expired", zap.Time("expired_at", exp), zap.String("path", s.path))
	}
	return s.token, nil
}

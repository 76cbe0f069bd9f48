// Package session хранит сессию, выведенную из bearer-токена.
//
// Сессия никогда не запрашивается у сервера отдельно: пользователь и его роль
// берутся из claims токена (sub → email, role, userId, exp).
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/apierr"
	"github.com/mmeshcher/storefront/internal/model"
)

// Claims описывает claims токена, выпускаемого сервисом идентификации.
type Claims struct {
	Role   string `json:"role"`
	UserID int64  `json:"userId"`
	jwt.RegisteredClaims
}

// Derive декодирует токен и строит сессию. Подпись не проверяется: это делает сервер.
// Токен без любого из claims sub, role, userId считается повреждённым.
func Derive(token string, now time.Time) (*model.Session, error) {
	if token == "" {
		return nil, apierr.New(apierr.KindAuth, "empty credential")
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, &apierr.Error{Kind: apierr.KindAuth, Message: "malformed credential", Err: err}
	}

	if claims.Subject == "" || claims.Role == "" || claims.UserID == 0 {
		return nil, apierr.New(apierr.KindAuth, "credential is missing required claims (sub, role, userId)")
	}

	role := model.Role(claims.Role)
	if !role.Valid() {
		return nil, apierr.New(apierr.KindAuth, "credential carries unknown role %q", claims.Role)
	}

	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(now) {
		return nil, apierr.New(apierr.KindAuth, "credential expired at %s", claims.ExpiresAt.Format(time.RFC3339))
	}

	return &model.Session{
		Token: token,
		User: model.User{
			ID:    claims.UserID,
			Email: claims.Subject,
			Role:  role,
		},
	}, nil
}

// Store владеет ячейкой текущей сессии.
type Store struct {
	tokens TokenStore
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	session *model.Session
}

// Option настраивает Store.
type Option func(*Store)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore создаёт хранилище сессии поверх хранилища токена.
func NewStore(tokens TokenStore, logger *zap.Logger, opts ...Option) *Store {
	if tokens == nil {
		tokens = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resume восстанавливает сессию из сохранённого токена.
// Если токена нет, возвращается nil-сессия без ошибки.
func (s *Store) Resume() (*model.Session, error) {
	token, err := s.tokens.Load()
	if err != nil {
		return nil, apierr.Failed(err)
	}
	if token == "" {
		return nil, nil
	}
	return s.Establish(token)
}

// Establish декодирует токен и делает его текущим. При ошибке декодирования
// сессия и сохранённый токен удаляются.
func (s *Store) Establish(token string) (*model.Session, error) {
	sess, err := Derive(token, s.now())
	if err != nil {
		s.logger.Warn("discarding invalid credential", zap.Error(err))
		if clearErr := s.Clear(); clearErr != nil {
			return nil, errors.Join(err, clearErr)
		}
		return nil, err
	}

	if err := s.tokens.Save(token); err != nil {
		return nil, apierr.Failed(err)
	}

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	s.logger.Debug("session established",
		zap.Int64("userID", sess.User.ID),
		zap.String("role", string(sess.User.Role)),
	)

	cp := *sess
	return &cp, nil
}

// Clear удаляет сессию и сохранённый токен.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()

	return s.tokens.Clear()
}

// Current возвращает копию текущей сессии или nil.
func (s *Store) Current() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

// Token возвращает bearer-значение текущей сессии.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return ""
	}
	return s.session.Token
}

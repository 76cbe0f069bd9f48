// Package storefront связывает сессию, корзину, заказы, оплату и каталог
// в один явный контекст клиента с общим циклом входа и выхода.
package storefront

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/apierr"
	"github.com/mmeshcher/storefront/internal/backend"
	"github.com/mmeshcher/storefront/internal/cart"
	"github.com/mmeshcher/storefront/internal/catalog"
	"github.com/mmeshcher/storefront/internal/gate"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/order"
	"github.com/mmeshcher/storefront/internal/payment"
	"github.com/mmeshcher/storefront/internal/session"
	"github.com/mmeshcher/storefront/internal/status"
)

// Storefront хранит контекст клиента витрины.
type Storefront struct {
	client   *backend.Client
	sessions *session.Store
	logger   *zap.Logger

	Cart     *cart.Engine
	Orders   *order.Coordinator
	Payments *payment.Coordinator
	Catalog  *catalog.Service

	login    *status.Track
	register *status.Track
}

// New собирает контекст. Ответ 401 на любой запрос с токеном завершает сессию.
func New(client *backend.Client, sessions *session.Store, logger *zap.Logger) *Storefront {
	if logger == nil {
		logger = zap.NewNop()
	}

	carts := cart.NewEngine(client, sessions, logger.Named("cart"))
	sf := &Storefront{
		client:   client,
		sessions: sessions,
		logger:   logger,
		Cart:     carts,
		Orders:   order.NewCoordinator(client, carts, sessions, logger.Named("order")),
		Payments: payment.NewCoordinator(client, sessions, logger.Named("payment")),
		Catalog:  catalog.NewService(client, sessions, logger.Named("catalog")),
		login:    status.NewTrack("login"),
		register: status.NewTrack("register"),
	}
	client.SetUnauthorizedHook(sf.onUnauthorized)
	return sf
}

// Session возвращает копию текущей сессии или nil.
func (s *Storefront) Session() *model.Session { return s.sessions.Current() }

// LoginStatus возвращает состояние трека входа.
func (s *Storefront) LoginStatus() status.Snapshot { return s.login.Snapshot() }

// RegisterStatus возвращает состояние трека регистрации.
func (s *Storefront) RegisterStatus() status.Snapshot { return s.register.Snapshot() }

// Resume восстанавливает сессию из сохранённого токена.
func (s *Storefront) Resume() (*model.Session, error) {
	return s.sessions.Resume()
}

// Login обменивает учётные данные на токен и открывает новую сессию.
// Любая неудача, включая сетевую, возвращается как ошибка вида Auth,
// а ранее сохранённый токен удаляется.
func (s *Storefront) Login(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apierr.Validation("email", "email is required")
	}
	if password == "" {
		return nil, apierr.Validation("password", "password is required")
	}

	tk, err := s.login.TryBegin()
	if err != nil {
		return nil, err
	}

	sess, err := s.authenticate(ctx, email, password)
	s.login.Finish(tk, err)
	if err != nil {
		s.logger.Warn("login failed", zap.Error(err), zap.String("email", email))
		return nil, err
	}

	s.logger.Info("logged in",
		zap.Int64("userID", sess.User.ID),
		zap.String("role", string(sess.User.Role)),
	)
	return sess, nil
}

func (s *Storefront) authenticate(ctx context.Context, email, password string) (*model.Session, error) {
	token, err := s.client.Authenticate(ctx, email, password)
	if err != nil {
		// Неудачный вход завершает прежнюю сессию целиком, как и выход.
		if clearErr := s.sessions.Clear(); clearErr != nil {
			s.logger.Error("clear credential failed", zap.Error(clearErr))
		}
		s.resetEngines()
		return nil, asAuth(err)
	}

	// Новая сессия начинается с пустых корзины, заказа и оплаты.
	s.resetEngines()

	sess, err := s.sessions.Establish(token)
	if err != nil {
		return nil, asAuth(err)
	}
	return sess, nil
}

// Register создаёт учётную запись покупателя. Сессию не открывает.
func (s *Storefront) Register(ctx context.Context, name, email, password string) (*model.Account, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return nil, apierr.Validation("name", "name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apierr.Validation("email", "email is not valid")
	}
	if len(password) < 6 {
		return nil, apierr.Validation("password", "password must be at least 6 characters")
	}

	tk, err := s.register.TryBegin()
	if err != nil {
		return nil, err
	}

	acc, err := s.client.Register(ctx, name, email, password)
	s.register.Finish(tk, err)
	if err != nil {
		s.logger.Warn("register failed", zap.Error(err), zap.String("email", email))
		return nil, err
	}

	s.logger.Info("account registered", zap.Int64("userID", acc.UserID))
	return acc, nil
}

// Logout удаляет токен и сбрасывает корзину, заказ и оплату.
// Результаты операций, начатых до выхода, будут проигнорированы.
func (s *Storefront) Logout() error {
	err := s.sessions.Clear()
	s.resetEngines()
	s.login.Reset()
	s.register.Reset()

	if err != nil {
		s.logger.Error("logout: clear credential failed", zap.Error(err))
		return apierr.Failed(err)
	}
	s.logger.Info("logged out")
	return nil
}

// CheckRoute проверяет доступ текущей сессии к маршруту витрины.
func (s *Storefront) CheckRoute(path string) (gate.Decision, string) {
	return gate.CheckRoute(s.sessions.Current(), path)
}

func (s *Storefront) resetEngines() {
	s.Cart.Reset()
	s.Orders.Reset()
	s.Payments.Reset()
}

func (s *Storefront) onUnauthorized() {
	if s.sessions.Current() == nil {
		return
	}
	s.logger.Warn("credential rejected by server, ending session")
	if err := s.Logout(); err != nil {
		s.logger.Error("forced logout failed", zap.Error(err))
	}
}

func asAuth(err error) error {
	var e *apierr.Error
	if errors.As(err, &e) && e.Kind == apierr.KindAuth {
		return e
	}
	msg := "login failed"
	if e != nil && e.Message != "" {
		msg = e.Message
	}
	return &apierr.Error{Kind: apierr.KindAuth, Status: apierr.StatusOf(err), Message: msg, Err: err}
}

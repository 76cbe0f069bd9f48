// Package service реализует бизнес-логику тестового сервера витрины.
package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/session"
	"github.com/mmeshcher/storefront/internal/stub/repository"
	"github.com/mmeshcher/storefront/internal/validation"
)

var (
	// ErrInvalidCredentials возвращается при неверном email или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken возвращается для неподписанного, просроченного или неполного токена.
	ErrInvalidToken = errors.New("invalid token")
	// ErrCardRejected возвращается, если номер карты не проходит контрольную сумму.
	ErrCardRejected = errors.New("card number rejected")
)

// DefaultPassword задаёт пароль засеянных пользователей.
const DefaultPassword = "password"

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, name, email string, passwordHash []byte, role model.Role) (*repository.User, error)
	GetUserByEmail(ctx context.Context, email string) (*repository.User, error)
	GetUser(ctx context.Context, id int64) (*repository.User, error)

	AddCategory(ctx context.Context, name string) (*model.Category, error)
	Categories(ctx context.Context) ([]model.Category, error)
	AddProduct(ctx context.Context, p model.NewProduct) (*model.Product, error)
	Products(ctx context.Context) ([]model.Product, error)
	ProductByName(ctx context.Context, name string) (*model.Product, error)

	Cart(ctx context.Context, userID int64) (*model.Cart, error)
	AddToCart(ctx context.Context, userID int64, prodName string, quantity int) error
	IncreaseQuantity(ctx context.Context, userID int64, prodName string) error
	DecreaseQuantity(ctx context.Context, userID int64, prodName string) error
	RemoveItem(ctx context.Context, userID int64, prodName string) error
	ClearCart(ctx context.Context, userID int64) error

	PlaceOrder(ctx context.Context, userID int64) (*model.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)

	CreateTransaction(ctx context.Context, p repository.Payment) (*model.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	GetTransactionByOrder(ctx context.Context, orderID int64) (*model.Transaction, error)
}

// Service содержит бизнес-логику тестового сервера. Операции над данными
// без собственных правил доступны напрямую через встроенный Repository.
type Service struct {
	Repository

	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService создаёт сервис. Пустой secret заменяется случайным ключом.
func NewService(repo Repository, secret string, ttl time.Duration) *Service {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			key = []byte("storefront-stub-secret")
		}
	}
	return &Service{
		Repository: repo,
		secret:     key,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Seed создаёт пользователей всех ролей и стартовый каталог.
func (s *Service) Seed(ctx context.Context) error {
	users := []struct {
		name  string
		email string
		role  model.Role
	}{
		{"Admin", "admin@store.local", model.RoleAdmin},
		{"Biller", "biller@store.local", model.RoleBiller},
		{"Customer", "customer@store.local", model.RoleCustomer},
	}
	for _, u := range users {
		if _, err := s.CreateUser(ctx, u.name, u.email, hashPassword(u.email, DefaultPassword), u.role); err != nil {
			return fmt.Errorf("seed user %s: %w", u.email, err)
		}
	}

	for _, name := range []string{"Electronics", "Stationery"} {
		if _, err := s.AddCategory(ctx, name); err != nil {
			return fmt.Errorf("seed category %s: %w", name, err)
		}
	}

	products := []model.NewProduct{
		{ProdName: "Widget", Price: decimal.RequireFromString("12.50"), Stock: 100, Category: model.CategoryRef{CategoryName: "Electronics"}},
		{ProdName: "Gadget", Price: decimal.RequireFromString("49.99"), Stock: 20, Category: model.CategoryRef{CategoryName: "Electronics"}},
		{ProdName: "Notebook", Price: decimal.RequireFromString("3.20"), Stock: 500, Category: model.CategoryRef{CategoryName: "Stationery"}},
	}
	for _, p := range products {
		if _, err := s.AddProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ProdName, err)
		}
	}
	return nil
}

// RegisterUser регистрирует нового покупателя.
func (s *Service) RegisterUser(ctx context.Context, name, email, password string) (*repository.User, error) {
	email = strings.TrimSpace(email)
	return s.CreateUser(ctx, strings.TrimSpace(name), email, hashPassword(email, password), model.RoleCustomer)
}

// AuthenticateUser проверяет email и пароль и выпускает токен.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (string, error) {
	u, err := s.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if !hmac.Equal(hashPassword(u.Email, password), u.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	return s.IssueToken(u)
}

// IssueToken подписывает токен с claims sub, role, userId и exp.
func (s *Service) IssueToken(u *repository.User) (string, error) {
	now := s.now()
	claims := session.Claims{
		Role:   string(u.Role),
		UserID: u.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// ParseToken проверяет подпись и срок действия токена и возвращает пользователя.
func (s *Service) ParseToken(token string) (model.User, error) {
	var claims session.Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	role := model.Role(claims.Role)
	if claims.Subject == "" || claims.UserID == 0 || !role.Valid() {
		return model.User{}, ErrInvalidToken
	}
	return model.User{ID: claims.UserID, Email: claims.Subject, Role: role}, nil
}

// Pay проводит оплату заказа. Покупатель может платить только за свои заказы.
func (s *Service) Pay(ctx context.Context, payer model.User, p repository.Payment) (*model.Transaction, error) {
	order, err := s.GetOrder(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}
	if payer.Role == model.RoleCustomer && order.UserID != payer.ID {
		return nil, repository.ErrOrderNotFound
	}

	if p.Mode == model.PaymentCard {
		p.CardNumber = validation.NormalizeCardNumber(p.CardNumber)
		if !validation.PassesLuhn(p.CardNumber) {
			return nil, ErrCardRejected
		}
	}

	p.UserID = payer.ID
	return s.CreateTransaction(ctx, p)
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(strings.ToLower(email) + ":" + password))
	return sum[:]
}

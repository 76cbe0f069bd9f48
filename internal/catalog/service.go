// Package catalog открывает каталог товаров и справочник пользователей с проверкой ролей.
package catalog

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/apierr"
	"github.com/mmeshcher/storefront/internal/endpoint"
	"github.com/mmeshcher/storefront/internal/gate"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/validation"
)

// Remote описывает удалённые сервисы каталога и пользователей.
type Remote interface {
	Products(ctx context.Context) ([]model.Product, error)
	ProductByName(ctx context.Context, name string) (*model.Product, error)
	Categories(ctx context.Context) ([]model.Category, error)
	AddCategory(ctx context.Context, name string) (*model.Category, error)
	AddProduct(ctx context.Context, p model.NewProduct) (*model.Product, error)
	FindUserByEmail(ctx context.Context, email string) (*model.Account, error)
}

// SessionSource отдаёт текущую сессию.
type SessionSource interface {
	Current() *model.Session
}

// Service обслуживает каталог витрины.
type Service struct {
	remote   Remote
	sessions SessionSource
	logger   *zap.Logger
}

// NewService создаёт сервис каталога.
func NewService(remote Remote, sessions SessionSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{remote: remote, sessions: sessions, logger: logger}
}

// Products возвращает все товары.
func (s *Service) Products(ctx context.Context) ([]model.Product, error) {
	if err := s.authorize(endpoint.Products); err != nil {
		return nil, err
	}
	products, err := s.remote.Products(ctx)
	if apierr.IsKind(err, apierr.KindNotFound) {
		return []model.Product{}, nil
	}
	if err != nil {
		s.logger.Error("list products failed", zap.Error(err))
		return nil, err
	}
	return products, nil
}

// ProductByName ищет товар по названию.
func (s *Service) ProductByName(ctx context.Context, name string) (*model.Product, error) {
	if err := validation.ProductName(name); err != nil {
		return nil, err
	}
	if err := s.authorize(endpoint.ProductByName); err != nil {
		return nil, err
	}
	p, err := s.remote.ProductByName(ctx, strings.TrimSpace(name))
	if err != nil {
		s.logger.Error("find product failed", zap.Error(err), zap.String("prodName", name))
		return nil, err
	}
	return p, nil
}

// Categories возвращает все категории.
func (s *Service) Categories(ctx context.Context) ([]model.Category, error) {
	if err := s.authorize(endpoint.Categories); err != nil {
		return nil, err
	}
	cats, err := s.remote.Categories(ctx)
	if apierr.IsKind(err, apierr.KindNotFound) {
		return []model.Category{}, nil
	}
	if err != nil {
		s.logger.Error("list categories failed", zap.Error(err))
		return nil, err
	}
	return cats, nil
}

// AddCategory создаёт категорию. Занятое имя возвращается как ошибка вида Conflict.
func (s *Service) AddCategory(ctx context.Context, name string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apierr.Validation("categoryName", "category name is required")
	}
	if err := s.authorize(endpoint.AddCategory); err != nil {
		return nil, err
	}
	cat, err := s.remote.AddCategory(ctx, name)
	if err != nil {
		s.logConflictOrError("add category failed", err, name)
		return nil, err
	}
	s.logger.Info("category added", zap.String("categoryName", cat.CategoryName))
	return cat, nil
}

// AddProduct создаёт товар. Занятое название возвращается как ошибка вида Conflict.
func (s *Service) AddProduct(ctx context.Context, p model.NewProduct) (*model.Product, error) {
	p.ProdName = strings.TrimSpace(p.ProdName)
	if err := validation.ProductName(p.ProdName); err != nil {
		return nil, err
	}
	if !p.Price.GreaterThan(decimal.Zero) {
		return nil, apierr.Validation("price", "price must be positive")
	}
	if p.Stock < 0 {
		return nil, apierr.Validation("stock", "stock cannot be negative")
	}
	if strings.TrimSpace(p.Category.CategoryName) == "" {
		return nil, apierr.Validation("categoryName", "category is required")
	}
	if err := s.authorize(endpoint.AddProduct); err != nil {
		return nil, err
	}

	created, err := s.remote.AddProduct(ctx, p)
	if err != nil {
		s.logConflictOrError("add product failed", err, p.ProdName)
		return nil, err
	}
	s.logger.Info("product added", zap.String("prodName", created.ProdName))
	return created, nil
}

// FindUserByEmail ищет пользователя по email, чтобы кассир мог работать с его корзиной.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (*model.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apierr.Validation("email", "email is required")
	}
	if err := s.authorize(endpoint.FindUserByEmail); err != nil {
		return nil, err
	}
	acc, err := s.remote.FindUserByEmail(ctx, email)
	if err != nil {
		s.logger.Error("find user failed", zap.Error(err), zap.String("email", email))
		return nil, err
	}
	return acc, nil
}

func (s *Service) authorize(ep endpoint.Endpoint) error {
	return gate.Authorize(s.sessions.Current(), ep.Roles...).Err()
}

func (s *Service) logConflictOrError(msg string, err error, name string) {
	if apierr.IsKind(err, apierr.KindConflict) {
		s.logger.Warn(msg, zap.Error(err), zap.String("name", name))
		return
	}
	s.logger.Error(msg, zap.Error(err), zap.String("name", name))
}

// Package order оформляет заказы из корзины и хранит результат последнего оформления.
package order

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/apierr"
	"github.com/mmeshcher/storefront/internal/endpoint"
	"github.com/mmeshcher/storefront/internal/gate"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/status"
	"github.com/mmeshcher/storefront/internal/validation"
)

// Remote описывает удалённый сервис заказов.
type Remote interface {
	PlaceOrder(ctx context.Context, actor model.Actor) (*model.Order, error)
	GetOrder(ctx context.Context, role model.Role, orderID int64) (*model.Order, error)
	MyOrders(ctx context.Context) ([]model.Order, error)
}

// CartSync описывает то, что координатору нужно от движка корзины.
type CartSync interface {
	Cart() *model.Cart
	Actor() model.Actor
	ClearLocal()
	FetchCart(ctx context.Context, actor model.Actor) (*model.Cart, error)
}

// SessionSource отдаёт текущую сессию.
type SessionSource interface {
	Current() *model.Session
}

// Coordinator переводит корзину в заказ.
type Coordinator struct {
	remote   Remote
	carts    CartSync
	sessions SessionSource
	logger   *zap.Logger

	track *status.Track

	mu    sync.RWMutex
	order *model.Order
	gen   uint64
}

// NewCoordinator создаёт координатор заказов.
func NewCoordinator(remote Remote, carts CartSync, sessions SessionSource, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		remote:   remote,
		carts:    carts,
		sessions: sessions,
		logger:   logger,
		track:    status.NewTrack("order"),
	}
}

// Current возвращает копию последнего оформленного заказа.
func (c *Coordinator) Current() *model.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Clone()
}

// Status возвращает состояние трека оформления.
func (c *Coordinator) Status() status.Snapshot { return c.track.Snapshot() }

// PlaceOrder оформляет заказ из корзины актора.
// Корзина должна быть загружена и непуста; после принятия заказа сервером
// локальная корзина очищается сразу, а ошибка последующей сверки только логируется.
func (c *Coordinator) PlaceOrder(ctx context.Context, actor model.Actor) (*model.Order, error) {
	ep := endpoint.PlaceOrder(actor)
	if err := gate.Authorize(c.sessions.Current(), ep.Roles...).Err(); err != nil {
		return nil, err
	}

	if c.carts.Actor() != actor || c.carts.Cart().Empty() {
		return nil, apierr.New(apierr.KindPrecondition, "cart is empty")
	}

	tk, gen, err := c.begin()
	if err != nil {
		return nil, err
	}

	order, err := c.remote.PlaceOrder(ctx, actor)
	if err != nil {
		c.track.Finish(tk, err)
		c.logger.Error("place order failed", zap.Error(err), zap.Int64("userId", actor.UserID))
		return nil, err
	}

	if !c.record(gen, order) {
		c.track.Finish(tk, nil)
		return nil, apierr.New(apierr.KindStale, "session ended before the order was placed")
	}

	c.carts.ClearLocal()
	if _, err := c.carts.FetchCart(ctx, actor); err != nil {
		c.logger.Warn("order placed but cart refetch failed",
			zap.Error(err),
			zap.Int64("orderId", order.OrderID),
		)
	}

	c.track.Finish(tk, nil)
	c.logger.Debug("order placed", zap.Int64("orderId", order.OrderID))
	return order.Clone(), nil
}

// Order возвращает заказ по идентификатору. Покупатель видит только свои заказы,
// продавец и администратор — любые.
func (c *Coordinator) Order(ctx context.Context, orderID int64) (*model.Order, error) {
	if err := validation.OrderID(orderID); err != nil {
		return nil, err
	}

	sess := c.sessions.Current()
	if sess == nil {
		return nil, gate.Unauthenticated.Err()
	}
	ep := endpoint.GetOrder(sess.User.Role)
	if err := gate.Authorize(sess, ep.Roles...).Err(); err != nil {
		return nil, err
	}

	order, err := c.remote.GetOrder(ctx, sess.User.Role, orderID)
	if err != nil {
		c.logger.Error("get order failed", zap.Error(err), zap.Int64("orderId", orderID))
		return nil, err
	}
	return order, nil
}

// MyOrders возвращает заказы текущего пользователя. Если заказов нет, возвращается пустой список.
func (c *Coordinator) MyOrders(ctx context.Context) ([]model.Order, error) {
	if err := gate.Authorize(c.sessions.Current(), endpoint.ListMyOrders.Roles...).Err(); err != nil {
		return nil, err
	}

	orders, err := c.remote.MyOrders(ctx)
	if apierr.IsKind(err, apierr.KindNotFound) {
		return []model.Order{}, nil
	}
	if err != nil {
		c.logger.Error("list orders failed", zap.Error(err))
		return nil, err
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders, nil
}

// Reset забывает последний заказ и возвращает трек в idle.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.gen++
	c.order = nil
	c.mu.Unlock()

	c.track.Reset()
}

func (c *Coordinator) begin() (status.Ticket, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tk, err := c.track.TryBegin()
	return tk, c.gen, err
}

func (c *Coordinator) record(gen uint64, order *model.Order) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return false
	}
	c.order = order.Clone()
	return true
}

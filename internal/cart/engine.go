// Package cart синхронизирует локальную копию корзины с сервером.
//
// Стратегия — «запись, затем сверка»: после каждой успешной изменяющей
// операции корзина целиком перечитывается с сервера и заменяет кэш.
// Локальные патчи не применяются никогда: побеждает замена с сервера.
package cart

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

// Remote описывает удалённый сервис корзины.
type Remote interface {
	GetCart(ctx context.Context, actor model.Actor) (*model.Cart, error)
	MutateCart(ctx context.Context, op endpoint.CartOp, actor model.Actor, prodName string, quantity int) error
}

// SessionSource отдаёт текущую сессию.
type SessionSource interface {
	Current() *model.Session
}

// Engine — владелец кэша корзины и двух треков состояния:
// чтения корзины целиком и изменения отдельных позиций.
type Engine struct {
	remote   Remote
	sessions SessionSource
	logger   *zap.Logger

	whole *status.Track
	items *status.Track

	mu    sync.RWMutex
	cart  *model.Cart
	actor model.Actor
	// loaded означает, что cart отражает последнее успешное чтение корзины actor.
	loaded bool
	// gen увеличивается при Reset; завершения из прошлых поколений отбрасываются.
	gen uint64
	// issued и applied упорядочивают чтения: применяется только самое свежее.
	issued  uint64
	applied uint64
}

// NewEngine создаёт движок корзины.
func NewEngine(remote Remote, sessions SessionSource, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		remote:   remote,
		sessions: sessions,
		logger:   logger,
		whole:    status.NewTrack("cart"),
		items:    status.NewTrack("cart-item"),
	}
}

// Cart возвращает копию закэшированной корзины; nil, если корзины нет или она не загружена.
func (e *Engine) Cart() *model.Cart {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cart.Clone()
}

// Actor возвращает актора, чья корзина лежит в кэше.
func (e *Engine) Actor() model.Actor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.actor
}

// FetchStatus возвращает состояние трека чтения корзины.
func (e *Engine) FetchStatus() status.Snapshot { return e.whole.Snapshot() }

// ItemStatus возвращает состояние трека изменения позиций.
func (e *Engine) ItemStatus() status.Snapshot { return e.items.Snapshot() }

// FetchCart читает корзину актора и заменяет ею кэш.
// Ответ «не найдено» означает отсутствие корзины и возвращается как (nil, nil).
func (e *Engine) FetchCart(ctx context.Context, actor model.Actor) (*model.Cart, error) {
	if err := e.authorize(endpoint.CartGet, actor); err != nil {
		return nil, err
	}

	e.mu.RLock()
	gen := e.gen
	e.mu.RUnlock()

	return e.fetch(ctx, actor, gen)
}

// AddItem добавляет товар в корзину.
func (e *Engine) AddItem(ctx context.Context, actor model.Actor, prodName string, quantity int) (*model.Cart, error) {
	if err := validation.ProductName(prodName); err != nil {
		return nil, err
	}
	if err := validation.Quantity(quantity); err != nil {
		return nil, err
	}
	return e.mutate(ctx, endpoint.CartAdd, actor, prodName, quantity)
}

// IncreaseQuantity увеличивает количество товара на единицу.
func (e *Engine) IncreaseQuantity(ctx context.Context, actor model.Actor, prodName string) (*model.Cart, error) {
	if err := validation.ProductName(prodName); err != nil {
		return nil, err
	}
	return e.mutate(ctx, endpoint.CartIncrease, actor, prodName, 0)
}

// DecreaseQuantity уменьшает количество товара на единицу.
// Опуститься ниже одной единицы нельзя: для этого есть RemoveItem.
// Если в кэше нет корзины этого актора, она сначала читается с сервера,
// чтобы проверить нижнюю границу до отправки изменения.
func (e *Engine) DecreaseQuantity(ctx context.Context, actor model.Actor, prodName string) (*model.Cart, error) {
	if err := validation.ProductName(prodName); err != nil {
		return nil, err
	}

	e.mu.RLock()
	warm := e.loaded && e.actor == actor
	e.mu.RUnlock()

	var cached *model.Cart
	if warm {
		cached = e.Cart()
	} else {
		var err error
		if cached, err = e.FetchCart(ctx, actor); err != nil {
			return nil, err
		}
	}

	if item, ok := cached.Item(prodName); ok && item.Quantity <= 1 {
		return nil, apierr.Validation("quantity", "quantity cannot go below 1, remove the item instead")
	}
	return e.mutate(ctx, endpoint.CartDecrease, actor, prodName, 0)
}

// RemoveItem удаляет позицию из корзины.
func (e *Engine) RemoveItem(ctx context.Context, actor model.Actor, prodName string) (*model.Cart, error) {
	if err := validation.ProductName(prodName); err != nil {
		return nil, err
	}
	return e.mutate(ctx, endpoint.CartRemove, actor, prodName, 0)
}

// ClearContents очищает содержимое корзины на сервере, не удаляя саму корзину.
func (e *Engine) ClearContents(ctx context.Context, actor model.Actor) (*model.Cart, error) {
	return e.mutate(ctx, endpoint.CartClear, actor, "", 0)
}

// ClearLocal сбрасывает кэш без обращения к серверу.
// Чтения, начатые до вызова, уже не смогут его заполнить.
func (e *Engine) ClearLocal() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cart = nil
	e.loaded = false
	e.applied = e.issued
	e.logger.Debug("local cart cleared")
}

// Reset возвращает движок в исходное состояние. Результаты операций,
// начатых до сброса, будут проигнорированы.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.gen++
	e.cart = nil
	e.loaded = false
	e.actor = model.Self()
	e.applied = e.issued
	e.mu.Unlock()

	e.whole.Reset()
	e.items.Reset()
}

func (e *Engine) authorize(op endpoint.CartOp, actor model.Actor) error {
	ep := endpoint.Cart(op, actor)
	return gate.Authorize(e.sessions.Current(), ep.Roles...).Err()
}

func (e *Engine) mutate(ctx context.Context, op endpoint.CartOp, actor model.Actor, prodName string, quantity int) (*model.Cart, error) {
	if err := e.authorize(op, actor); err != nil {
		return nil, err
	}

	tk, gen, err := e.begin()
	if err != nil {
		return nil, err
	}

	if err := e.remote.MutateCart(ctx, op, actor, prodName, quantity); err != nil {
		e.items.Finish(tk, err)
		e.logger.Error("cart mutation failed",
			zap.Error(err),
			zap.Stringer("op", op),
			zap.String("prodName", prodName),
		)
		return nil, err
	}

	// Сверка начинается только после подтверждения записи.
	cart, err := e.fetch(ctx, actor, gen)
	if !e.items.Finish(tk, err) {
		return nil, staleOr(err)
	}
	if err != nil {
		e.logger.Warn("cart mutation applied but reconcile failed",
			zap.Error(err),
			zap.Stringer("op", op),
		)
		return nil, err
	}

	e.logger.Debug("cart reconciled", zap.Stringer("op", op))
	return cart, nil
}

// begin занимает трек позиций и запоминает поколение, в котором стартовала операция.
func (e *Engine) begin() (status.Ticket, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tk, err := e.items.TryBegin()
	return tk, e.gen, err
}

func (e *Engine) fetch(ctx context.Context, actor model.Actor, gen uint64) (*model.Cart, error) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return nil, staleOr(nil)
	}
	tk := e.whole.Begin()
	e.issued++
	seq := e.issued
	e.mu.Unlock()

	cart, err := e.remote.GetCart(ctx, actor)
	if apierr.IsKind(err, apierr.KindNotFound) {
		cart, err = nil, nil
	}

	current, ok := e.apply(gen, seq, actor, cart, err)
	if !ok {
		return nil, staleOr(err)
	}
	e.whole.Finish(tk, err)

	if err != nil {
		e.logger.Error("fetch cart failed", zap.Error(err))
		return nil, err
	}
	return current, nil
}

// apply записывает результат чтения в кэш и возвращает копию кэша после записи.
// Если более свежее чтение уже применено, кэш не меняется и возвращается он же.
// ok равно false, если чтение принадлежит прошлому поколению.
func (e *Engine) apply(gen, seq uint64, actor model.Actor, cart *model.Cart, err error) (current *model.Cart, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.gen {
		return nil, false
	}
	if seq <= e.applied {
		return e.cart.Clone(), true
	}

	e.applied = seq
	if err != nil {
		e.cart = nil
		e.loaded = false
		return nil, true
	}
	e.cart = cart
	e.actor = actor
	e.loaded = true
	return cart.Clone(), true
}

func staleOr(err error) error {
	if err != nil {
		return err
	}
	return apierr.New(apierr.KindStale, "session ended before the cart operation completed")
}

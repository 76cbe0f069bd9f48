package cart

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/storefront/internal/apierr"
	"github.com/mmeshcher/storefront/internal/endpoint"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/status"
)

type stubSessions struct {
	sess *model.Session
}

func (s *stubSessions) Current() *model.Session { return s.sess }

func customer() *stubSessions {
	return &stubSessions{sess: &model.Session{Token: "t", User: model.User{ID: 3, Email: "c@store.local", Role: model.RoleCustomer}}}
}

func biller() *stubSessions {
	return &stubSessions{sess: &model.Session{Token: "t", User: model.User{ID: 2, Email: "b@store.local", Role: model.RoleBiller}}}
}

// stubRemote хранит «серверную» корзину и считает вызовы.
type stubRemote struct {
	mu sync.Mutex

	prices map[string]decimal.Decimal
	stock  map[string]int
	items  []model.CartItem
	exists bool

	getErr    error
	mutateErr error

	getCalls    int
	mutateCalls []endpoint.CartOp
	actors      []model.Actor

	// mutateStarted/mutateRelease позволяют удержать запись «в полёте».
	mutateStarted chan struct{}
	mutateRelease chan struct{}
	// getStarted/getRelease удерживают одно следующее чтение; ответ снимается до ожидания.
	getStarted chan struct{}
	getRelease chan struct{}
}

func newStubRemote() *stubRemote {
	return &stubRemote{
		prices: map[string]decimal.Decimal{
			"Widget": decimal.RequireFromString("12.50"),
			"Gadget": decimal.RequireFromString("3.00"),
		},
		stock: map[string]int{"Widget": 100, "Gadget": 3},
	}
}

func (s *stubRemote) GetCart(ctx context.Context, actor model.Actor) (*model.Cart, error) {
	s.mu.Lock()
	s.getCalls++
	s.actors = append(s.actors, actor)

	var (
		cart *model.Cart
		err  error
	)
	switch {
	case s.getErr != nil:
		err = s.getErr
	case !s.exists:
		err = apierr.FromStatus(http.StatusNotFound, "Cart not found", nil)
	default:
		cart = s.snapshotLocked()
	}

	started, release := s.getStarted, s.getRelease
	s.getStarted, s.getRelease = nil, nil
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}
	return cart, err
}

func (s *stubRemote) snapshotLocked() *model.Cart {
	c := &model.Cart{CartID: 1, UserID: 3, CartTotalPrice: decimal.Zero}
	for _, it := range s.items {
		c.Items = append(c.Items, it)
		c.CartTotalPrice = c.CartTotalPrice.Add(it.TotalPrice)
	}
	if c.Items == nil {
		c.Items = []model.CartItem{}
	}
	return c
}

func (s *stubRemote) MutateCart(ctx context.Context, op endpoint.CartOp, actor model.Actor, prodName string, quantity int) error {
	if s.mutateStarted != nil {
		s.mutateStarted <- struct{}{}
		<-s.mutateRelease
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.mutateCalls = append(s.mutateCalls, op)
	s.actors = append(s.actors, actor)
	if s.mutateErr != nil {
		return s.mutateErr
	}

	switch op {
	case endpoint.CartAdd:
		s.exists = true
		s.setLocked(prodName, s.quantityLocked(prodName)+quantity)
	case endpoint.CartIncrease:
		s.setLocked(prodName, s.quantityLocked(prodName)+1)
	case endpoint.CartDecrease:
		s.setLocked(prodName, s.quantityLocked(prodName)-1)
	case endpoint.CartRemove:
		s.setLocked(prodName, 0)
	case endpoint.CartClear:
		s.items = nil
	}
	return nil
}

func (s *stubRemote) quantityLocked(name string) int {
	for _, it := range s.items {
		if it.ProdName == name {
			return it.Quantity
		}
	}
	return 0
}

// setLocked пересчитывает позицию так, как это делает сервер, включая ограничение по остатку.
func (s *stubRemote) setLocked(name string, qty int) {
	if qty > s.stock[name] {
		qty = s.stock[name]
	}
	out := s.items[:0]
	found := false
	for _, it := range s.items {
		if it.ProdName == name {
			found = true
			if qty <= 0 {
				continue
			}
			it.Quantity = qty
			it.TotalPrice = it.Price.Mul(decimal.NewFromInt(int64(qty)))
		}
		out = append(out, it)
	}
	s.items = out
	if !found && qty > 0 {
		price := s.prices[name]
		s.items = append(s.items, model.CartItem{
			CartItemID: int64(len(s.items) + 1),
			ProdName:   name,
			Price:      price,
			Quantity:   qty,
			TotalPrice: price.Mul(decimal.NewFromInt(int64(qty))),
		})
	}
}

func (s *stubRemote) calls() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls, len(s.mutateCalls)
}

func (s *stubRemote) server() *model.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func TestFetchCart_NotFoundIsEmptySuccess(t *testing.T) {
	e := NewEngine(newStubRemote(), customer(), nil)

	cart, err := e.FetchCart(context.Background(), model.Self())
	require.NoError(t, err)
	assert.Nil(t, cart)
	assert.Nil(t, e.Cart())
	assert.Equal(t, status.Succeeded, e.FetchStatus().Phase)
}

func TestFetchCart_FailureClearsCache(t *testing.T) {
	remote := newStubRemote()
	remote.exists = true
	remote.setLocked("Widget", 1)
	e := NewEngine(remote, customer(), nil)

	_, err := e.FetchCart(context.Background(), model.Self())
	require.NoError(t, err)
	require.NotNil(t, e.Cart())

	boom := apierr.FromStatus(http.StatusInternalServerError, "db down", nil)
	remote.getErr = boom

	_, err = e.FetchCart(context.Background(), model.Self())
	assert.Same(t, boom, err)
	assert.Nil(t, e.Cart())

	snap := e.FetchStatus()
	assert.Equal(t, status.Failed, snap.Phase)
	assert.Same(t, boom, snap.Err)
}

func TestFetchCart_Idempotent(t *testing.T) {
	remote := newStubRemote()
	remote.exists = true
	remote.setLocked("Widget", 2)
	e := NewEngine(remote, customer(), nil)

	first, err := e.FetchCart(context.Background(), model.Self())
	require.NoError(t, err)
	second, err := e.FetchCart(context.Background(), model.Self())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAddItem_ToEmptyCart(t *testing.T) {
	remote := newStubRemote()
	remote.mutateStarted = make(chan struct{})
	remote.mutateRelease = make(chan struct{})
	e := NewEngine(remote, customer(), nil)

	_, err := e.FetchCart(context.Background(), model.Self())
	require.NoError(t, err)
	assert.Equal(t, status.Idle, e.ItemStatus().Phase)

	type result struct {
		cart *model.Cart
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, err := e.AddItem(context.Background(), model.Self(), "Widget", 2)
		done <- result{c, err}
	}()

	<-remote.mutateStarted
	assert.Equal(t, status.InFlight, e.ItemStatus().Phase)
	close(remote.mutateRelease)

	res := <-done
	require.NoError(t, res.err)
	require.Len(t, res.cart.Items, 1)

	item := res.cart.Items[0]
	assert.Equal(t, "Widget", item.ProdName)
	assert.Equal(t, 2, item.Quantity)
	assert.True(t, item.TotalPrice.Equal(item.Price.Mul(decimal.NewFromInt(2))))
	assert.Equal(t, status.Succeeded, e.ItemStatus().Phase)
	assert.Equal(t, res.cart, e.Cart())
}

func TestMutation_CacheEqualsServerState(t *testing.T) {
	remote := newStubRemote()
	e := NewEngine(remote, customer(), nil)

	// Сервер ограничивает количество остатком: локальный патч дал бы 5.
	cart, err := e.AddItem(context.Background(), model.Self(), "Gadget", 5)
	require.NoError(t, err)

	assert.Equal(t, remote.server(), cart)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, remote.server(), e.Cart())
}

func TestDecreaseQuantity_FloorIsLocal(t *testing.T) {
	remote := newStubRemote()
	remote.exists = true
	remote.setLocked("Widget", 1)
	e := NewEngine(remote, customer(), nil)

	_, err := e.FetchCart(context.Background(), model.Self())
	require.NoError(t, err)
	before := e.Cart()
	gets, mutations := remote.calls()

	_, err = e.DecreaseQuantity(context.Background(), model.Self(), "Widget")
	assert.True(t, apierr.IsKind(err, apierr.KindValidation))

	afterGets, afterMutations := remote.calls()
	assert.Equal(t, gets, afterGets)
	assert.Equal(t, mutations, afterMutations)
	assert.Equal(t, before, e.Cart())
	assert.Equal(t, status.Idle, e.ItemStatus().Phase)
}

func TestDecreaseQuantity_ColdCacheChecksFloor(t *testing.T) {
	remote := newStubRemote()
	remote.exists = true
	remote.setLocked("Widget", 1)
	e := NewEngine(remote, customer(), nil)

	_, err := e.DecreaseQuantity(context.Background(), model.Self(), "Widget")
	assert.True(t, apierr.IsKind(err, apierr.KindValidation), "got %v", err)

	gets, mutations := remote.calls()
	assert.Equal(t, 1, gets)
	assert.Zero(t, mutations)
	assert.Equal(t, remote.server(), e.Cart())
	assert.Equal(t, status.Idle, e.ItemStatus().Phase)
}

func TestDecreaseQuantity_OtherActorCachedRefetches(t *testing.T) {
	remote := newStubRemote()
	remote.exists = true
	remote.setLocked("Widget", 1)
	e := NewEngine(remote, biller(), nil)

	_, err := e.FetchCart(context.Background(), model.ForUser(7))
	require.NoError(t, err)

	_, err = e.DecreaseQuantity(context.Background(), model.ForUser(3), "Widget")
	assert.True(t, apierr.IsKind(err, apierr.KindValidation), "got %v", err)

	gets, mutations := remote.calls()
	assert.Equal(t, 2, gets)
	assert.Zero(t, mutations)
	assert.Equal(t, model.ForUser(3), e.Actor())
}

func TestDecreaseQuantity_AboveFloor(t *testing.T) {
	remote := newStubRemote()
	remote.exists = true
	remote.setLocked("Widget", 3)
	e := NewEngine(remote, customer(), nil)

	_, err := e.FetchCart(context.Background(), model.Self())
	require.NoError(t, err)

	cart, err := e.DecreaseQuantity(context.Background(), model.Self(), "Widget")
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Items[0].Quantity)
}

func TestAddItem_RejectsBadInput(t *testing.T) {
	remote := newStubRemote()
	e := NewEngine(remote, customer(), nil)

	_, err := e.AddItem(context.Background(), model.Self(), "Widget", 0)
	assert.True(t, apierr.IsKind(err, apierr.KindValidation))
	_, err = e.AddItem(context.Background(), model.Self(), " ", 1)
	assert.True(t, apierr.IsKind(err, apierr.KindValidation))

	gets, mutations := remote.calls()
	assert.Zero(t, gets)
	assert.Zero(t, mutations)
}

func TestMutation_WriteFailureLeavesCache(t *testing.T) {
	remote := newStubRemote()
	remote.exists = true
	remote.setLocked("Widget", 2)
	e := NewEngine(remote, customer(), nil)

	_, err := e.FetchCart(context.Background(), model.Self())
	require.NoError(t, err)
	before := e.Cart()
	gets, _ := remote.calls()

	writeErr := apierr.FromStatus(http.StatusBadRequest, "Insufficient stock", map[string]string{"quantity": "too many"})
	remote.mutateErr = writeErr

	_, err = e.IncreaseQuantity(context.Background(), model.Self(), "Widget")
	assert.Same(t, writeErr, err)
	assert.Equal(t, before, e.Cart())

	afterGets, _ := remote.calls()
	assert.Equal(t, gets, afterGets, "no reconcile after failed write")

	snap := e.ItemStatus()
	assert.Equal(t, status.Failed, snap.Phase)
	assert.Same(t, writeErr, snap.Err)
}

func TestMutation_ReconcileFailureFailsMutation(t *testing.T) {
	remote := newStubRemote()
	remote.exists = true
	remote.setLocked("Widget", 2)
	e := NewEngine(remote, customer(), nil)

	_, err := e.FetchCart(context.Background(), model.Self())
	require.NoError(t, err)

	fetchErr := errors.New("connection reset")
	remote.mu.Lock()
	remote.getErr = fetchErr
	remote.mu.Unlock()

	_, err = e.RemoveItem(context.Background(), model.Self(), "Widget")
	assert.ErrorIs(t, err, fetchErr)

	_, mutations := remote.calls()
	assert.Equal(t, 1, mutations, "the write itself was dispatched")
	assert.Equal(t, status.Failed, e.ItemStatus().Phase)
	assert.Equal(t, status.Failed, e.FetchStatus().Phase)
	assert.Nil(t, e.Cart())
}

func TestMutation_SecondConcurrentMutationRejected(t *testing.T) {
	remote := newStubRemote()
	remote.mutateStarted = make(chan struct{})
	remote.mutateRelease = make(chan struct{})
	e := NewEngine(remote, customer(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := e.AddItem(context.Background(), model.Self(), "Widget", 1)
		done <- err
	}()
	<-remote.mutateStarted

	_, err := e.AddItem(context.Background(), model.Self(), "Gadget", 1)
	assert.True(t, apierr.IsKind(err, apierr.KindBusy))

	close(remote.mutateRelease)
	require.NoError(t, <-done)

	_, mutations := remote.calls()
	assert.Equal(t, 1, mutations)
}

func TestReset_InFlightResultIgnored(t *testing.T) {
	remote := newStubRemote()
	remote.mutateStarted = make(chan struct{})
	remote.mutateRelease = make(chan struct{})
	e := NewEngine(remote, customer(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := e.AddItem(context.Background(), model.Self(), "Widget", 2)
		done <- err
	}()
	<-remote.mutateStarted

	e.Reset()
	close(remote.mutateRelease)

	select {
	case err := <-done:
		assert.True(t, apierr.IsKind(err, apierr.KindStale), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("mutation did not finish")
	}

	assert.Nil(t, e.Cart())
	assert.Equal(t, status.Idle, e.ItemStatus().Phase)
	assert.Equal(t, status.Idle, e.FetchStatus().Phase)
}

func TestClearContents(t *testing.T) {
	remote := newStubRemote()
	remote.exists = true
	remote.setLocked("Widget", 2)
	e := NewEngine(remote, customer(), nil)

	cart, err := e.ClearContents(context.Background(), model.Self())
	require.NoError(t, err)
	require.NotNil(t, cart, "cart still exists after clearing contents")
	assert.Empty(t, cart.Items)
	assert.True(t, e.Cart().Empty())
}

func TestClearLocalDropsOlderFetch(t *testing.T) {
	remote := newStubRemote()
	remote.exists = true
	remote.setLocked("Widget", 2)
	e := NewEngine(remote, customer(), nil)

	_, err := e.FetchCart(context.Background(), model.Self())
	require.NoError(t, err)

	e.ClearLocal()
	assert.Nil(t, e.Cart())

	// Старое чтение с номером до очистки не должно вернуть корзину в кэш.
	e.mu.Lock()
	gen, seq := e.gen, e.applied
	e.mu.Unlock()
	current, ok := e.apply(gen, seq, model.Self(), remote.server(), nil)
	assert.True(t, ok)
	assert.Nil(t, current)
	assert.Nil(t, e.Cart())
}

func TestFetchCart_SupersededReadReturnsCache(t *testing.T) {
	remote := newStubRemote()
	remote.exists = true
	remote.setLocked("Widget", 1)
	remote.getStarted = make(chan struct{})
	remote.getRelease = make(chan struct{})
	e := NewEngine(remote, customer(), nil)

	type result struct {
		cart *model.Cart
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, err := e.FetchCart(context.Background(), model.Self())
		done <- result{c, err}
	}()
	<-remote.getStarted

	remote.mu.Lock()
	remote.setLocked("Widget", 4)
	remote.mu.Unlock()

	newer, err := e.FetchCart(context.Background(), model.Self())
	require.NoError(t, err)
	require.Equal(t, 4, newer.Items[0].Quantity)

	close(remote.getRelease)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, e.Cart(), res.cart)
		assert.Equal(t, 4, res.cart.Items[0].Quantity)
	case <-time.After(2 * time.Second):
		t.Fatal("older read did not finish")
	}
}

func TestGate(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		remote := newStubRemote()
		e := NewEngine(remote, &stubSessions{}, nil)

		_, err := e.FetchCart(context.Background(), model.Self())
		assert.True(t, apierr.IsKind(err, apierr.KindUnauthenticated))
		_, err = e.AddItem(context.Background(), model.Self(), "Widget", 1)
		assert.True(t, apierr.IsKind(err, apierr.KindUnauthenticated))

		gets, mutations := remote.calls()
		assert.Zero(t, gets)
		assert.Zero(t, mutations)
	})

	t.Run("customer cannot address another cart", func(t *testing.T) {
		remote := newStubRemote()
		e := NewEngine(remote, customer(), nil)

		_, err := e.AddItem(context.Background(), model.ForUser(9), "Widget", 1)
		assert.True(t, apierr.IsKind(err, apierr.KindForbidden))
	})

	t.Run("biller addresses target user", func(t *testing.T) {
		remote := newStubRemote()
		e := NewEngine(remote, biller(), nil)

		_, err := e.AddItem(context.Background(), model.ForUser(9), "Widget", 1)
		require.NoError(t, err)
		assert.Equal(t, model.ForUser(9), e.Actor())
		for _, a := range remote.actors {
			assert.Equal(t, model.ForUser(9), a)
		}
	})
}

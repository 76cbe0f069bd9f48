// Package payment проводит оплату заказов и хранит результат последней попытки.
package payment

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/apierr"
	"github.com/mmeshcher/storefront/internal/backend"
	"github.com/mmeshcher/storefront/internal/endpoint"
	"github.com/mmeshcher/storefront/internal/gate"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/status"
	"github.com/mmeshcher/storefront/internal/validation"
)

// Remote описывает удалённый платёжный сервис.
type Remote interface {
	Pay(ctx context.Context, mode model.PaymentMode, req backend.PaymentRequest) (*model.Transaction, error)
	TransactionForOrder(ctx context.Context, orderID int64) (*model.Transaction, error)
	TransactionByID(ctx context.Context, transactionID int64) (*model.Transaction, error)
}

// SessionSource отдаёт текущую сессию.
type SessionSource interface {
	Current() *model.Session
}

// Coordinator проводит оплату и хранит последнюю транзакцию.
// Баланс и статус платежа вычисляет сервер, клиент их только показывает.
type Coordinator struct {
	remote   Remote
	sessions SessionSource
	logger   *zap.Logger

	track *status.Track

	mu   sync.RWMutex
	last *model.Transaction
	gen  uint64
}

// NewCoordinator создаёт платёжный координатор.
func NewCoordinator(remote Remote, sessions SessionSource, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		remote:   remote,
		sessions: sessions,
		logger:   logger,
		track:    status.NewTrack("payment"),
	}
}

// Last возвращает копию результата последней оплаты.
func (c *Coordinator) Last() *model.Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return nil
	}
	tx := *c.last
	return &tx
}

// Status возвращает состояние трека оплаты.
func (c *Coordinator) Status() status.Snapshot { return c.track.Snapshot() }

// PayByCard оплачивает заказ картой.
func (c *Coordinator) PayByCard(ctx context.Context, orderID int64, amount decimal.Decimal, cardNumber, cardHolderName string) (*model.Transaction, error) {
	if err := validateCommon(orderID, amount); err != nil {
		return nil, err
	}
	if err := validation.Card(cardNumber, cardHolderName); err != nil {
		return nil, err
	}
	return c.pay(ctx, model.PaymentCard, backend.PaymentRequest{
		OrderID:        orderID,
		Amount:         amount,
		CardNumber:     validation.NormalizeCardNumber(cardNumber),
		CardHolderName: cardHolderName,
	})
}

// PayByUPI оплачивает заказ через UPI.
func (c *Coordinator) PayByUPI(ctx context.Context, orderID int64, amount decimal.Decimal, upiID string) (*model.Transaction, error) {
	if err := validateCommon(orderID, amount); err != nil {
		return nil, err
	}
	if err := validation.UPI(upiID); err != nil {
		return nil, err
	}
	return c.pay(ctx, model.PaymentUPI, backend.PaymentRequest{
		OrderID: orderID,
		Amount:  amount,
		UPIID:   upiID,
	})
}

// PayByCash фиксирует оплату наличными.
func (c *Coordinator) PayByCash(ctx context.Context, orderID int64, amount decimal.Decimal) (*model.Transaction, error) {
	if err := validateCommon(orderID, amount); err != nil {
		return nil, err
	}
	return c.pay(ctx, model.PaymentCash, backend.PaymentRequest{
		OrderID: orderID,
		Amount:  amount,
	})
}

// TransactionForOrder возвращает транзакцию по заказу текущего покупателя.
func (c *Coordinator) TransactionForOrder(ctx context.Context, orderID int64) (*model.Transaction, error) {
	if err := validation.OrderID(orderID); err != nil {
		return nil, err
	}
	if err := gate.Authorize(c.sessions.Current(), endpoint.TransactionForOrder.Roles...).Err(); err != nil {
		return nil, err
	}

	tx, err := c.remote.TransactionForOrder(ctx, orderID)
	if err != nil {
		c.logger.Error("get transaction for order failed", zap.Error(err), zap.Int64("orderId", orderID))
		return nil, err
	}
	return tx, nil
}

// TransactionByID возвращает транзакцию по идентификатору.
func (c *Coordinator) TransactionByID(ctx context.Context, transactionID int64) (*model.Transaction, error) {
	if transactionID <= 0 {
		return nil, apierr.Validation("transactionId", "transaction id must be positive")
	}
	if err := gate.Authorize(c.sessions.Current(), endpoint.TransactionByID.Roles...).Err(); err != nil {
		return nil, err
	}

	tx, err := c.remote.TransactionByID(ctx, transactionID)
	if err != nil {
		c.logger.Error("get transaction failed", zap.Error(err), zap.Int64("transactionId", transactionID))
		return nil, err
	}
	return tx, nil
}

// Reset очищает результат оплаты, чтобы следующая попытка начиналась с нуля.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.gen++
	c.last = nil
	c.mu.Unlock()

	c.track.Reset()
}

func validateCommon(orderID int64, amount decimal.Decimal) error {
	if err := validation.OrderID(orderID); err != nil {
		return err
	}
	return validation.Amount(amount)
}

func (c *Coordinator) pay(ctx context.Context, mode model.PaymentMode, req backend.PaymentRequest) (*model.Transaction, error) {
	ep, ok := endpoint.Pay(mode)
	if !ok {
		return nil, apierr.Validation("paymentMode", "unsupported payment mode "+string(mode))
	}
	if err := gate.Authorize(c.sessions.Current(), ep.Roles...).Err(); err != nil {
		return nil, err
	}

	tk, gen, err := c.begin()
	if err != nil {
		return nil, err
	}

	tx, err := c.remote.Pay(ctx, mode, req)
	if err != nil {
		c.track.Finish(tk, err)
		c.logger.Error("payment failed",
			zap.Error(err),
			zap.String("mode", string(mode)),
			zap.Int64("orderId", req.OrderID),
		)
		return nil, err
	}

	if !c.record(gen, tx) {
		return nil, apierr.New(apierr.KindStale, "session ended before the payment completed")
	}
	c.track.Finish(tk, nil)

	c.logger.Debug("payment accepted",
		zap.Int64("transactionId", tx.TransactionID),
		zap.String("paymentStatus", tx.PaymentStatus),
	)
	return tx, nil
}

// begin занимает трек и сбрасывает результат предыдущей попытки.
func (c *Coordinator) begin() (status.Ticket, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tk, err := c.track.TryBegin()
	if err != nil {
		return tk, 0, err
	}
	c.last = nil
	return tk, c.gen, nil
}

func (c *Coordinator) record(gen uint64, tx *model.Transaction) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return false
	}
	cp := *tx
	c.last = &cp
	return true
}

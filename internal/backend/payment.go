package backend

import (
	"context"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/apierr"
	"github.com/mmeshcher/storefront/internal/endpoint"
	"github.com/mmeshcher/storefront/internal/model"
)

// PaymentRequest содержит параметры оплаты; набор полей зависит от способа.
type PaymentRequest struct {
	OrderID        int64
	Amount         decimal.Decimal
	CardNumber     string
	CardHolderName string
	UPIID          string
}

func (p PaymentRequest) query(mode model.PaymentMode) url.Values {
	q := url.Values{
		"orderId":        {strconv.FormatInt(p.OrderID, 10)},
		"receivedAmount": {p.Amount.String()},
	}
	switch mode {
	case model.PaymentCard:
		q.Set("cardNumber", p.CardNumber)
		q.Set("cardHolderName", p.CardHolderName)
	case model.PaymentUPI:
		q.Set("upiId", p.UPIID)
	}
	return q
}

// Pay проводит оплату заказа указанным способом.
func (c *Client) Pay(ctx context.Context, mode model.PaymentMode, req PaymentRequest) (*model.Transaction, error) {
	ep, ok := endpoint.Pay(mode)
	if !ok {
		return nil, apierr.Validation("paymentMode", "unsupported payment mode "+string(mode))
	}

	var tx model.Transaction
	err := c.do(ctx, call{
		ep:    ep,
		query: req.query(mode),
		out:   &tx,
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// TransactionForOrder возвращает транзакцию по заказу текущего покупателя.
func (c *Client) TransactionForOrder(ctx context.Context, orderID int64) (*model.Transaction, error) {
	return c.transaction(ctx, endpoint.TransactionForOrder, map[string]int64{"orderId": orderID})
}

// TransactionByID возвращает транзакцию по идентификатору.
func (c *Client) TransactionByID(ctx context.Context, transactionID int64) (*model.Transaction, error) {
	return c.transaction(ctx, endpoint.TransactionByID, map[string]int64{"id": transactionID})
}

func (c *Client) transaction(ctx context.Context, ep endpoint.Endpoint, vars map[string]int64) (*model.Transaction, error) {
	var tx model.Transaction
	if err := c.do(ctx, call{ep: ep, path: ep.Expand(vars), out: &tx}); err != nil {
		return nil, err
	}
	return &tx, nil
}

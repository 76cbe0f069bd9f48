package backend

import (
	"context"
	"net/url"
	"strconv"

	"github.com/mmeshcher/storefront/internal/endpoint"
	"github.com/mmeshcher/storefront/internal/model"
)

// GetCart возвращает корзину актора. Если корзины нет, возвращается ошибка вида NotFound.
func (c *Client) GetCart(ctx context.Context, actor model.Actor) (*model.Cart, error) {
	ep := endpoint.Cart(endpoint.CartGet, actor)

	var cart model.Cart
	err := c.do(ctx, call{
		ep:   ep,
		path: ep.Expand(map[string]int64{"userId": actor.UserID}),
		out:  &cart,
	})
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// MutateCart выполняет изменяющую операцию над корзиной актора.
// quantity используется только операцией добавления.
func (c *Client) MutateCart(ctx context.Context, op endpoint.CartOp, actor model.Actor, prodName string, quantity int) error {
	ep := endpoint.Cart(op, actor)

	q := url.Values{}
	if op != endpoint.CartClear {
		q.Set("prodName", prodName)
	}
	if op == endpoint.CartAdd {
		q.Set("quantity", strconv.Itoa(quantity))
	}
	if !actor.IsSelf() && op != endpoint.CartClear {
		q.Set("userId", strconv.FormatInt(actor.UserID, 10))
	}

	return c.do(ctx, call{
		ep:    ep,
		path:  ep.Expand(map[string]int64{"userId": actor.UserID}),
		query: q,
	})
}

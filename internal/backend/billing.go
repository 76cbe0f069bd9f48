package backend

import (
	"context"

	"github.com/mmeshcher/storefront/internal/endpoint"
	"github.com/mmeshcher/storefront/internal/model"
)

// PlaceOrder оформляет заказ из корзины актора.
func (c *Client) PlaceOrder(ctx context.Context, actor model.Actor) (*model.Order, error) {
	ep := endpoint.PlaceOrder(actor)

	var order model.Order
	err := c.do(ctx, call{
		ep:   ep,
		path: ep.Expand(map[string]int64{"userId": actor.UserID}),
		out:  &order,
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrder возвращает заказ по идентификатору через адрес, соответствующий роли.
func (c *Client) GetOrder(ctx context.Context, role model.Role, orderID int64) (*model.Order, error) {
	ep := endpoint.GetOrder(role)

	var order model.Order
	err := c.do(ctx, call{
		ep:   ep,
		path: ep.Expand(map[string]int64{"id": orderID}),
		out:  &order,
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// MyOrders возвращает заказы текущего пользователя.
func (c *Client) MyOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	if err := c.do(ctx, call{ep: endpoint.ListMyOrders, out: &orders}); err != nil {
		return nil, err
	}
	return orders, nil
}

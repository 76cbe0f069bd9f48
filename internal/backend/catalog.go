package backend

import (
	"context"
	"net/url"

	"github.com/mmeshcher/storefront/internal/endpoint"
	"github.com/mmeshcher/storefront/internal/model"
)

// Products возвращает все товары каталога.
func (c *Client) Products(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	if err := c.do(ctx, call{ep: endpoint.Products, out: &products}); err != nil {
		return nil, err
	}
	return products, nil
}

// ProductByName ищет товар по точному названию.
func (c *Client) ProductByName(ctx context.Context, name string) (*model.Product, error) {
	var p model.Product
	err := c.do(ctx, call{
		ep:    endpoint.ProductByName,
		query: url.Values{"prodName": {name}},
		out:   &p,
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Categories возвращает все категории.
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	var cats []model.Category
	if err := c.do(ctx, call{ep: endpoint.Categories, out: &cats}); err != nil {
		return nil, err
	}
	return cats, nil
}

// AddCategory создаёт категорию. На дубликат имени возвращается ошибка вида Conflict.
func (c *Client) AddCategory(ctx context.Context, name string) (*model.Category, error) {
	var cat model.Category
	err := c.do(ctx, call{
		ep:   endpoint.AddCategory,
		body: model.CategoryRef{CategoryName: name},
		out:  &cat,
	})
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// AddProduct создаёт товар. На дубликат названия возвращается ошибка вида Conflict.
func (c *Client) AddProduct(ctx context.Context, p model.NewProduct) (*model.Product, error) {
	var created model.Product
	if err := c.do(ctx, call{ep: endpoint.AddProduct, body: p, out: &created}); err != nil {
		return nil, err
	}
	return &created, nil
}

// Package model содержит доменные сущности клиента витрины.
package model

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Role описывает роль пользователя, зашитую в учётные данные.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleBiller   Role = "BILLER"
	RoleCustomer Role = "CUSTOMER"
)

// Valid сообщает, является ли роль одной из известных.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleBiller, RoleCustomer:
		return true
	}
	return false
}

// User содержит данные пользователя, извлечённые из учётных данных.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Session описывает текущую сессию: исходный токен и пользователя.
type Session struct {
	Token string `json:"-"`
	User  User   `json:"user"`
}

// Actor определяет, от чьего имени выполняется операция над корзиной или заказом.
// Нулевое значение означает самого пользователя сессии.
type Actor struct {
	UserID int64
}

// Self возвращает актора, действующего от своего имени.
func Self() Actor { return Actor{} }

// ForUser возвращает актора, адресующего корзину указанного пользователя.
func ForUser(userID int64) Actor { return Actor{UserID: userID} }

// IsSelf сообщает, действует ли актор от своего имени.
func (a Actor) IsSelf() bool { return a.UserID == 0 }

// CartItem описывает позицию корзины.
type CartItem struct {
	CartItemID int64           `json:"cartItemId"`
	ProdID     int64           `json:"prodId"`
	ProdName   string          `json:"prodName"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// Cart описывает корзину пользователя в том виде, в каком её вернул сервер.
type Cart struct {
	CartID         int64           `json:"cartId"`
	UserID         int64           `json:"userId"`
	CartTotalPrice decimal.Decimal `json:"cartTotalPrice"`
	Items          []CartItem      `json:"items"`
}

// Empty сообщает, что корзины нет или в ней нет позиций.
func (c *Cart) Empty() bool {
	return c == nil || len(c.Items) == 0
}

// Item возвращает позицию по названию товара.
func (c *Cart) Item(prodName string) (CartItem, bool) {
	if c == nil {
		return CartItem{}, false
	}
	for _, it := range c.Items {
		if it.ProdName == prodName {
			return it, true
		}
	}
	return CartItem{}, false
}

// Clone возвращает независимую копию корзины.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Items = slices.Clone(c.Items)
	return &cp
}

// OrderItem описывает позицию заказа.
type OrderItem struct {
	OrderItemID int64           `json:"orderItemId"`
	ProdID      int64           `json:"prodId"`
	ProdName    string          `json:"prodName"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
}

// Order описывает неизменяемый снимок корзины на момент оформления.
type Order struct {
	OrderID        int64           `json:"orderId"`
	UserID         int64           `json:"userId"`
	CartID         int64           `json:"cartId"`
	OrderDate      Timestamp       `json:"orderDate"`
	TotalBillPrice decimal.Decimal `json:"totalBillPrice"`
	OrderItems     []OrderItem     `json:"orderItems"`
}

// Clone возвращает независимую копию заказа.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.OrderItems = slices.Clone(o.OrderItems)
	return &cp
}

// PaymentMode описывает способ оплаты.
type PaymentMode string

const (
	PaymentCash PaymentMode = "CASH"
	PaymentCard PaymentMode = "CARD"
	PaymentUPI  PaymentMode = "UPI"
)

// Статусы транзакции, которые выставляет сервер.
const (
	PaymentStatusPending    = "Pending"
	PaymentStatusCompleted  = "Completed"
	PaymentStatusIncomplete = "Incomplete"
)

// Transaction описывает результат попытки оплаты заказа.
type Transaction struct {
	TransactionID   int64           `json:"transactionId"`
	UserID          int64           `json:"userId"`
	OrderID         int64           `json:"orderId"`
	RequiredAmount  decimal.Decimal `json:"requiredAmount"`
	ReceivedAmount  decimal.Decimal `json:"receivedAmount"`
	BalanceAmount   decimal.Decimal `json:"balanceAmount"`
	PaymentMode     PaymentMode     `json:"paymentMode"`
	PaymentStatus   string          `json:"paymentStatus"`
	PaymentTime     Timestamp       `json:"paymentTime"`
	UPIID           *string         `json:"upiId,omitempty"`
	TransactionTime *Timestamp      `json:"transactionTime,omitempty"`
	CardNumber      *string         `json:"cardNumber,omitempty"`
	CardHolderName  *string         `json:"cardHolderName,omitempty"`
}

// Category описывает категорию товаров.
type Category struct {
	CategoryID   int64  `json:"categoryId"`
	CategoryName string `json:"categoryName"`
}

// Product описывает товар каталога.
type Product struct {
	ProdID   int64           `json:"prodId"`
	ProdName string          `json:"prodName"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Category Category        `json:"category"`
}

// NewProduct описывает запрос на создание товара.
type NewProduct struct {
	ProdName string          `json:"prodName"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Category CategoryRef     `json:"category"`
}

// CategoryRef ссылается на категорию по имени.
type CategoryRef struct {
	CategoryName string `json:"categoryName"`
}

// Account описывает учётную запись пользователя, возвращаемую сервисом идентификации.
type Account struct {
	UserID int64  `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

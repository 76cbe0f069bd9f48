// Package endpoint содержит единственную таблицу соответствия
// «операция × актор/роль → метод, путь, допустимые роли».
// Новая роль или новый путь меняются только здесь.
package endpoint

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mmeshcher/storefront/internal/model"
)

// Endpoint описывает удалённую операцию.
type Endpoint struct {
	Method string
	Path   string
	// Roles перечисляет роли, которым разрешена операция. Пустой список разрешает любую сессию.
	Roles []model.Role
	// Public означает, что операция не требует сессии.
	Public bool
}

// Expand подставляет значения вместо {name} в шаблоне пути.
func (e Endpoint) Expand(vars map[string]int64) string {
	if len(vars) == 0 {
		return e.Path
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", strconv.FormatInt(v, 10))
	}
	return strings.NewReplacer(pairs...).Replace(e.Path)
}

var (
	selfCartRoles  = []model.Role{model.RoleCustomer, model.RoleBiller}
	otherCartRoles = []model.Role{model.RoleBiller, model.RoleAdmin}
	staffRoles     = []model.Role{model.RoleBiller, model.RoleAdmin}
	adminRoles     = []model.Role{model.RoleAdmin}
)

// CartOp описывает операцию над корзиной.
type CartOp int

const (
	CartGet CartOp = iota
	CartAdd
	CartRemove
	CartIncrease
	CartDecrease
	CartClear
)

func (op CartOp) String() string {
	switch op {
	case CartGet:
		return "get-cart"
	case CartAdd:
		return "add-item"
	case CartRemove:
		return "remove-item"
	case CartIncrease:
		return "increase-qty"
	case CartDecrease:
		return "decrease-qty"
	case CartClear:
		return "clear-contents"
	}
	return "cart-op(" + strconv.Itoa(int(op)) + ")"
}

type pair struct {
	self  Endpoint
	other Endpoint
}

var cartTable = map[CartOp]pair{
	CartGet: {
		self:  Endpoint{Method: http.MethodGet, Path: "/cart/customer/getMyCart", Roles: selfCartRoles},
		other: Endpoint{Method: http.MethodGet, Path: "/cart/biller/getCartByUser/{userId}", Roles: otherCartRoles},
	},
	CartAdd: {
		self:  Endpoint{Method: http.MethodPost, Path: "/cart/customer/addToMyCart", Roles: selfCartRoles},
		other: Endpoint{Method: http.MethodPost, Path: "/cart/biller/addToCart", Roles: otherCartRoles},
	},
	CartRemove: {
		self:  Endpoint{Method: http.MethodDelete, Path: "/cart/customer/removeItemFromMyCart", Roles: selfCartRoles},
		other: Endpoint{Method: http.MethodDelete, Path: "/cart/biller/removeItemFromCart", Roles: otherCartRoles},
	},
	CartIncrease: {
		self:  Endpoint{Method: http.MethodPut, Path: "/cart/customer/increaseQuantity", Roles: selfCartRoles},
		other: Endpoint{Method: http.MethodPut, Path: "/cart/biller/increaseQuantity", Roles: otherCartRoles},
	},
	CartDecrease: {
		self:  Endpoint{Method: http.MethodPut, Path: "/cart/customer/decreaseQuantity", Roles: selfCartRoles},
		other: Endpoint{Method: http.MethodPut, Path: "/cart/biller/decreaseQuantity", Roles: otherCartRoles},
	},
	CartClear: {
		self:  Endpoint{Method: http.MethodDelete, Path: "/cart/customer/clearMyCart", Roles: selfCartRoles},
		other: Endpoint{Method: http.MethodDelete, Path: "/cart/biller/clearUserCartContents/{userId}", Roles: otherCartRoles},
	},
}

// Cart выбирает адрес операции над корзиной для актора.
func Cart(op CartOp, actor model.Actor) Endpoint {
	p := cartTable[op]
	if actor.IsSelf() {
		return p.self
	}
	return p.other
}

var placeOrder = pair{
	self:  Endpoint{Method: http.MethodPost, Path: "/bill/customer/placeMyOrder", Roles: selfCartRoles},
	other: Endpoint{Method: http.MethodPost, Path: "/bill/biller/placeOrder/{userId}", Roles: staffRoles},
}

// PlaceOrder выбирает адрес оформления заказа для актора.
func PlaceOrder(actor model.Actor) Endpoint {
	if actor.IsSelf() {
		return placeOrder.self
	}
	return placeOrder.other
}

var orderLookup = map[model.Role]Endpoint{
	model.RoleCustomer: {Method: http.MethodGet, Path: "/bill/customer/getMyOrderById/{id}", Roles: []model.Role{model.RoleCustomer}},
	model.RoleBiller:   {Method: http.MethodGet, Path: "/bill/admin-biller/getOrderByOrderId/{id}", Roles: staffRoles},
	model.RoleAdmin:    {Method: http.MethodGet, Path: "/bill/admin-biller/getOrderByOrderId/{id}", Roles: staffRoles},
}

// GetOrder выбирает адрес чтения заказа по роли: покупатель видит только свои заказы.
func GetOrder(role model.Role) Endpoint {
	if ep, ok := orderLookup[role]; ok {
		return ep
	}
	return orderLookup[model.RoleCustomer]
}

// ListMyOrders возвращает список заказов текущего пользователя.
var ListMyOrders = Endpoint{Method: http.MethodGet, Path: "/bill/customer/getMyOrders"}

var payRoles = []model.Role{model.RoleBiller, model.RoleCustomer}

var payTable = map[model.PaymentMode]Endpoint{
	model.PaymentCard: {Method: http.MethodPost, Path: "/payment/biller-customer/payByCard", Roles: payRoles},
	model.PaymentUPI:  {Method: http.MethodPost, Path: "/payment/biller-customer/payByUpi", Roles: payRoles},
	model.PaymentCash: {Method: http.MethodPost, Path: "/payment/biller-customer/payByCash", Roles: payRoles},
}

// Pay выбирает адрес оплаты для способа оплаты.
func Pay(mode model.PaymentMode) (Endpoint, bool) {
	ep, ok := payTable[mode]
	return ep, ok
}

var (
	// TransactionForOrder возвращает транзакцию по заказу текущего покупателя.
	TransactionForOrder = Endpoint{Method: http.MethodGet, Path: "/payment/customer/getMyTransactionByOrderId/{orderId}", Roles: []model.Role{model.RoleCustomer}}
	// TransactionByID возвращает транзакцию по идентификатору (администратор).
	TransactionByID = Endpoint{Method: http.MethodGet, Path: "/payment/admin/getPaymentById/{id}", Roles: adminRoles}
)

var (
	Login    = Endpoint{Method: http.MethodPost, Path: "/user/login", Public: true}
	Register = Endpoint{Method: http.MethodPost, Path: "/user/register", Public: true}

	FindUserByEmail = Endpoint{Method: http.MethodGet, Path: "/user/biller/findUserByEmail", Roles: staffRoles}

	Products      = Endpoint{Method: http.MethodGet, Path: "/invent/admin-biller-customer/getAllProducts"}
	ProductByName = Endpoint{Method: http.MethodGet, Path: "/invent/biller/getProductByProdName", Roles: staffRoles}
	Categories    = Endpoint{Method: http.MethodGet, Path: "/invent/admin/getAllCategory", Roles: adminRoles}
	AddCategory   = Endpoint{Method: http.MethodPost, Path: "/invent/admin/addCategory", Roles: adminRoles}
	AddProduct    = Endpoint{Method: http.MethodPost, Path: "/invent/admin/addProduct", Roles: adminRoles}
)

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/storefront/internal/endpoint"
	"github.com/mmeshcher/storefront/internal/model"
	custommiddleware "github.com/mmeshcher/storefront/internal/stub/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware тестового сервера.
// Пути, методы и роли берутся из той же таблицы, что использует клиент.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Method(endpoint.Login.Method, endpoint.Login.Path, http.HandlerFunc(h.Login))
	r.Method(endpoint.Register.Method, endpoint.Register.Path, http.HandlerFunc(h.Register))

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		h.route(r, endpoint.FindUserByEmail, h.FindUserByEmail)

		h.route(r, endpoint.Products, h.GetAllProducts)
		h.route(r, endpoint.ProductByName, h.GetProductByName)
		h.route(r, endpoint.Categories, h.GetAllCategories)
		h.route(r, endpoint.AddCategory, h.AddCategory)
		h.route(r, endpoint.AddProduct, h.AddProduct)

		for _, self := range []bool{true, false} {
			actor := model.ForUser(1)
			if self {
				actor = model.Self()
			}

			h.route(r, endpoint.Cart(endpoint.CartGet, actor), h.GetCart(self))
			for _, op := range []endpoint.CartOp{endpoint.CartAdd, endpoint.CartRemove, endpoint.CartIncrease, endpoint.CartDecrease, endpoint.CartClear} {
				h.route(r, endpoint.Cart(op, actor), h.MutateCart(op, self))
			}
			h.route(r, endpoint.PlaceOrder(actor), h.PlaceOrder(self))
		}

		h.route(r, endpoint.GetOrder(model.RoleCustomer), h.GetOrder(true))
		h.route(r, endpoint.GetOrder(model.RoleAdmin), h.GetOrder(false))
		h.route(r, endpoint.ListMyOrders, h.GetMyOrders)

		for _, mode := range []model.PaymentMode{model.PaymentCard, model.PaymentUPI, model.PaymentCash} {
			ep, _ := endpoint.Pay(mode)
			h.route(r, ep, h.Pay(mode))
		}
		h.route(r, endpoint.TransactionForOrder, h.GetMyTransactionByOrder)
		h.route(r, endpoint.TransactionByID, h.GetPaymentByID)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, http.StatusNotFound, "No handler for "+r.URL.Path)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}

func (h *Handler) route(r chi.Router, ep endpoint.Endpoint, fn http.HandlerFunc) {
	r.With(h.authMiddleware.RequireRoles(ep.Roles...)).Method(ep.Method, ep.Path, fn)
}

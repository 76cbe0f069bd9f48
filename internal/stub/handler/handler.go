// Package handler содержит HTTP-обработчики тестового сервера витрины.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/endpoint"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/stub/middleware"
	"github.com/mmeshcher/storefront/internal/stub/repository"
	"github.com/mmeshcher/storefront/internal/stub/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, name, email, password string) (*repository.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (string, error)
	ParseToken(token string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*repository.User, error)

	Categories(ctx context.Context) ([]model.Category, error)
	AddCategory(ctx context.Context, name string) (*model.Category, error)
	Products(ctx context.Context) ([]model.Product, error)
	ProductByName(ctx context.Context, name string) (*model.Product, error)
	AddProduct(ctx context.Context, p model.NewProduct) (*model.Product, error)

	Cart(ctx context.Context, userID int64) (*model.Cart, error)
	AddToCart(ctx context.Context, userID int64, prodName string, quantity int) error
	IncreaseQuantity(ctx context.Context, userID int64, prodName string) error
	DecreaseQuantity(ctx context.Context, userID int64, prodName string) error
	RemoveItem(ctx context.Context, userID int64, prodName string) error
	ClearCart(ctx context.Context, userID int64) error

	PlaceOrder(ctx context.Context, userID int64) (*model.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)

	Pay(ctx context.Context, payer model.User, p repository.Payment) (*model.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	GetTransactionByOrder(ctx context.Context, orderID int64) (*model.Transaction, error)
}

// Handler реализует HTTP-обработчики тестового сервера витрины.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	now            func() time.Time
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		service: s,
		logger:  logger,
		now:     time.Now,
	}
	h.authMiddleware = middleware.NewAuthMiddleware(s, h.writeError)
	return h
}

// errorResponse описывает конверт ошибки, общий для всех ответов сервера.
type errorResponse struct {
	Timestamp string            `json:"timestamp"`
	Status    int               `json:"status"`
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Path      string            `json:"path"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeFieldErrors(w, r, status, message, nil)
}

func (h *Handler) writeFieldErrors(w http.ResponseWriter, r *http.Request, status int, message string, fields map[string]string) {
	resp := errorResponse{
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      r.URL.Path,
		Errors:    fields,
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// writeServiceError переводит ошибку сервиса в HTTP-ответ.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrUserExists):
		h.writeFieldErrors(w, r, http.StatusConflict, "User already exists", map[string]string{"email": "already registered"})
	case errors.Is(err, repository.ErrCategoryExists):
		h.writeFieldErrors(w, r, http.StatusConflict, "Category already exists", map[string]string{"categoryName": "already exists"})
	case errors.Is(err, repository.ErrProductExists):
		h.writeFieldErrors(w, r, http.StatusConflict, "Product already exists", map[string]string{"prodName": "already exists"})
	case errors.Is(err, service.ErrInvalidCredentials):
		h.writeError(w, r, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, repository.ErrUserNotFound):
		h.writeError(w, r, http.StatusNotFound, "User not found")
	case errors.Is(err, repository.ErrCategoryNotFound):
		h.writeFieldErrors(w, r, http.StatusNotFound, "Category not found", map[string]string{"categoryName": "unknown category"})
	case errors.Is(err, repository.ErrProductNotFound):
		h.writeError(w, r, http.StatusNotFound, "Product not found")
	case errors.Is(err, repository.ErrCartNotFound):
		h.writeError(w, r, http.StatusNotFound, "Cart not found")
	case errors.Is(err, repository.ErrItemNotInCart):
		h.writeError(w, r, http.StatusNotFound, "Item not found in cart")
	case errors.Is(err, repository.ErrOrderNotFound):
		h.writeError(w, r, http.StatusNotFound, "Order not found")
	case errors.Is(err, repository.ErrTransactionNotFound):
		h.writeError(w, r, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, repository.ErrInsufficientStock):
		h.writeFieldErrors(w, r, http.StatusBadRequest, "Insufficient stock", map[string]string{"quantity": "exceeds available stock"})
	case errors.Is(err, repository.ErrQuantityFloor):
		h.writeFieldErrors(w, r, http.StatusBadRequest, "Quantity cannot go below 1", map[string]string{"quantity": "minimum is 1"})
	case errors.Is(err, repository.ErrEmptyCart):
		h.writeError(w, r, http.StatusBadRequest, "Cart is empty")
	case errors.Is(err, service.ErrCardRejected):
		h.writeFieldErrors(w, r, http.StatusBadRequest, "Card number rejected", map[string]string{"cardNumber": "invalid card number"})
	default:
		h.logger.Error("request failed", zap.Error(err), zap.String("path", r.URL.Path))
		h.writeError(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию и возвращает токен текстом.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Malformed request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.writeFieldErrors(w, r, http.StatusBadRequest, "Email and password are required", requiredFields(map[string]string{
			"email": req.Email, "password": req.Password,
		}))
		return
	}

	token, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(token))
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	UserID int64      `json:"userId"`
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	Role   model.Role `json:"role"`
}

func toUserResponse(u *repository.User) userResponse {
	return userResponse{UserID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// Register регистрирует нового покупателя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Malformed request body")
		return
	}
	if fields := requiredFields(map[string]string{"name": req.Name, "email": req.Email, "password": req.Password}); len(fields) > 0 {
		h.writeFieldErrors(w, r, http.StatusBadRequest, "Validation failed", fields)
		return
	}

	u, err := h.service.RegisterUser(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// FindUserByEmail ищет пользователя по email.
func (h *Handler) FindUserByEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		h.writeFieldErrors(w, r, http.StatusBadRequest, "Email is required", map[string]string{"email": "required"})
		return
	}
	u, err := h.service.GetUserByEmail(r.Context(), email)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toUserResponse(u))
}

// GetAllProducts возвращает каталог.
func (h *Handler) GetAllProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.Products(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, products)
}

// GetProductByName ищет товар по названию.
func (h *Handler) GetProductByName(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.ProductByName(r.Context(), r.URL.Query().Get("prodName"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// GetAllCategories возвращает категории.
func (h *Handler) GetAllCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.service.Categories(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cats)
}

// AddCategory создаёт категорию.
func (h *Handler) AddCategory(w http.ResponseWriter, r *http.Request) {
	var req model.CategoryRef
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.CategoryName) == "" {
		h.writeFieldErrors(w, r, http.StatusBadRequest, "Category name is required", map[string]string{"categoryName": "required"})
		return
	}
	cat, err := h.service.AddCategory(r.Context(), strings.TrimSpace(req.CategoryName))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, cat)
}

// AddProduct создаёт товар.
func (h *Handler) AddProduct(w http.ResponseWriter, r *http.Request) {
	var req model.NewProduct
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Malformed request body")
		return
	}
	fields := requiredFields(map[string]string{"prodName": req.ProdName, "categoryName": req.Category.CategoryName})
	if !req.Price.IsPositive() {
		fields["price"] = "must be positive"
	}
	if req.Stock < 0 {
		fields["stock"] = "cannot be negative"
	}
	if len(fields) > 0 {
		h.writeFieldErrors(w, r, http.StatusBadRequest, "Validation failed", fields)
		return
	}

	p, err := h.service.AddProduct(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

// cartTarget определяет пользователя, чья корзина адресуется запросом.
// Для собственных адресов это пользователь токена, для адресов кассира —
// параметр пути или запроса userId.
func (h *Handler) cartTarget(r *http.Request, self bool) (int64, bool) {
	if self {
		u, ok := middleware.GetUserFromContext(r.Context())
		return u.ID, ok
	}
	raw := chi.URLParam(r, "userId")
	if raw == "" {
		raw = r.URL.Query().Get("userId")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}

// GetCart возвращает корзину.
func (h *Handler) GetCart(self bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := h.cartTarget(r, self)
		if !ok {
			h.writeFieldErrors(w, r, http.StatusBadRequest, "User id is required", map[string]string{"userId": "required"})
			return
		}
		c, err := h.service.Cart(r.Context(), userID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, c)
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

// MutateCart выполняет изменяющую операцию над корзиной.
func (h *Handler) MutateCart(op endpoint.CartOp, self bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := h.cartTarget(r, self)
		if !ok {
			h.writeFieldErrors(w, r, http.StatusBadRequest, "User id is required", map[string]string{"userId": "required"})
			return
		}

		q := r.URL.Query()
		prodName := strings.TrimSpace(q.Get("prodName"))
		if op != endpoint.CartClear && prodName == "" {
			h.writeFieldErrors(w, r, http.StatusBadRequest, "Product name is required", map[string]string{"prodName": "required"})
			return
		}

		var err error
		switch op {
		case endpoint.CartAdd:
			quantity, convErr := strconv.Atoi(q.Get("quantity"))
			if convErr != nil || quantity < 1 {
				h.writeFieldErrors(w, r, http.StatusBadRequest, "Quantity must be at least 1", map[string]string{"quantity": "must be at least 1"})
				return
			}
			err = h.service.AddToCart(r.Context(), userID, prodName, quantity)
		case endpoint.CartIncrease:
			err = h.service.IncreaseQuantity(r.Context(), userID, prodName)
		case endpoint.CartDecrease:
			err = h.service.DecreaseQuantity(r.Context(), userID, prodName)
		case endpoint.CartRemove:
			err = h.service.RemoveItem(r.Context(), userID, prodName)
		case endpoint.CartClear:
			err = h.service.ClearCart(r.Context(), userID)
		}
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}

		h.writeJSON(w, http.StatusOK, messageResponse{Message: op.String() + " ok"})
	}
}

// PlaceOrder оформляет заказ из корзины.
func (h *Handler) PlaceOrder(self bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := h.cartTarget(r, self)
		if !ok {
			h.writeFieldErrors(w, r, http.StatusBadRequest, "User id is required", map[string]string{"userId": "required"})
			return
		}
		o, err := h.service.PlaceOrder(r.Context(), userID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusCreated, o)
	}
}

// GetOrder возвращает заказ. Покупатель видит только собственные заказы.
func (h *Handler) GetOrder(ownOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			h.writeFieldErrors(w, r, http.StatusBadRequest, "Order id is required", map[string]string{"id": "must be a positive number"})
			return
		}
		o, err := h.service.GetOrder(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		if u, _ := middleware.GetUserFromContext(r.Context()); ownOnly && o.UserID != u.ID {
			h.writeServiceError(w, r, repository.ErrOrderNotFound)
			return
		}
		h.writeJSON(w, http.StatusOK, o)
	}
}

// GetMyOrders возвращает заказы пользователя. На пустой список отвечает 404.
func (h *Handler) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.GetUserFromContext(r.Context())
	orders, err := h.service.GetOrdersByUser(r.Context(), u.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if len(orders) == 0 {
		h.writeError(w, r, http.StatusNotFound, "No orders found")
		return
	}
	h.writeJSON(w, http.StatusOK, orders)
}

// Pay проводит оплату указанным способом.
func (h *Handler) Pay(mode model.PaymentMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		fields := map[string]string{}

		orderID, err := strconv.ParseInt(q.Get("orderId"), 10, 64)
		if err != nil || orderID <= 0 {
			fields["orderId"] = "must be a positive number"
		}
		received, err := decimal.NewFromString(q.Get("receivedAmount"))
		if err != nil || !received.IsPositive() {
			fields["receivedAmount"] = "must be a positive amount"
		}

		p := repository.Payment{OrderID: orderID, Mode: mode, Received: received}
		switch mode {
		case model.PaymentCard:
			p.CardNumber = q.Get("cardNumber")
			p.CardHolderName = strings.TrimSpace(q.Get("cardHolderName"))
			for k, v := range requiredFields(map[string]string{"cardNumber": p.CardNumber, "cardHolderName": p.CardHolderName}) {
				fields[k] = v
			}
		case model.PaymentUPI:
			p.UPIID = strings.TrimSpace(q.Get("upiId"))
			if !strings.Contains(p.UPIID, "@") {
				fields["upiId"] = "must look like name@bank"
			}
		}
		if len(fields) > 0 {
			h.writeFieldErrors(w, r, http.StatusBadRequest, "Validation failed", fields)
			return
		}

		payer, _ := middleware.GetUserFromContext(r.Context())
		tx, err := h.service.Pay(r.Context(), payer, p)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusCreated, tx)
	}
}

// GetMyTransactionByOrder возвращает транзакцию по собственному заказу покупателя.
func (h *Handler) GetMyTransactionByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderId")
	if !ok {
		h.writeFieldErrors(w, r, http.StatusBadRequest, "Order id is required", map[string]string{"orderId": "must be a positive number"})
		return
	}
	u, _ := middleware.GetUserFromContext(r.Context())
	o, err := h.service.GetOrder(r.Context(), orderID)
	if err == nil && o.UserID != u.ID {
		err = repository.ErrOrderNotFound
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	tx, err := h.service.GetTransactionByOrder(r.Context(), orderID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// GetPaymentByID возвращает транзакцию по идентификатору.
func (h *Handler) GetPaymentByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		h.writeFieldErrors(w, r, http.StatusBadRequest, "Transaction id is required", map[string]string{"id": "must be a positive number"})
		return
	}
	tx, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func requiredFields(values map[string]string) map[string]string {
	fields := map[string]string{}
	for k, v := range values {
		if strings.TrimSpace(v) == "" {
			fields[k] = "required"
		}
	}
	return fields
}

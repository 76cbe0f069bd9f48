// Package repository содержит хранилище тестового сервера витрины в памяти.
package repository

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/model"
)

var (
	// ErrUserExists возвращается при попытке создать пользователя с занятым email.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrCategoryExists возвращается при создании категории с занятым именем.
	ErrCategoryExists = errors.New("category already exists")
	// ErrCategoryNotFound возвращается, если категория не найдена.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrProductExists возвращается при создании товара с занятым названием.
	ErrProductExists = errors.New("product already exists")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrCartNotFound возвращается, если у пользователя ещё нет корзины.
	ErrCartNotFound = errors.New("cart not found")
	// ErrItemNotInCart возвращается, если товара нет в корзине.
	ErrItemNotInCart = errors.New("item not in cart")
	// ErrInsufficientStock возвращается, если остатка не хватает.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrQuantityFloor возвращается при попытке уменьшить количество ниже единицы.
	ErrQuantityFloor = errors.New("quantity cannot go below 1")
	// ErrEmptyCart возвращается при оформлении заказа из пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrTransactionNotFound возвращается, если транзакция не найдена.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// User описывает учётную запись с хэшем пароля.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash []byte
	Role         model.Role
}

// Payment содержит данные оплаты, пришедшие от клиента.
type Payment struct {
	UserID         int64
	OrderID        int64
	Mode           model.PaymentMode
	Received       decimal.Decimal
	CardNumber     string
	CardHolderName string
	UPIID          string
}

type cartLine struct {
	id       int64
	prodID   int64
	quantity int
}

type cart struct {
	id     int64
	userID int64
	lines  []cartLine
}

// MemoryRepository хранит данные сервера в памяти процесса.
type MemoryRepository struct {
	mu  sync.RWMutex
	now func() time.Time

	nextID int64

	users        map[int64]*User
	categories   map[int64]*model.Category
	products     map[int64]*model.Product
	carts        map[int64]*cart
	orders       map[int64]*model.Order
	transactions map[int64]*model.Transaction
}

// NewMemoryRepository создаёт пустое хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:          time.Now,
		users:        make(map[int64]*User),
		categories:   make(map[int64]*model.Category),
		products:     make(map[int64]*model.Product),
		carts:        make(map[int64]*cart),
		orders:       make(map[int64]*model.Order),
		transactions: make(map[int64]*model.Transaction),
	}
}

// Close освобождает ресурсы хранилища.
func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) id() int64 {
	r.nextID++
	return r.nextID
}

// CreateUser создаёт пользователя.
func (r *MemoryRepository) CreateUser(ctx context.Context, name, email string, passwordHash []byte, role model.Role) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return nil, ErrUserExists
		}
	}

	u := &User{ID: r.id(), Name: name, Email: email, PasswordHash: passwordHash, Role: role}
	r.users[u.ID] = u
	cp := *u
	return &cp, nil
}

// GetUserByEmail ищет пользователя по email без учёта регистра.
func (r *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

// GetUser возвращает пользователя по идентификатору.
func (r *MemoryRepository) GetUser(ctx context.Context, id int64) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// AddCategory создаёт категорию.
func (r *MemoryRepository) AddCategory(ctx context.Context, name string) (*model.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.categoryByNameLocked(name); ok {
		return nil, ErrCategoryExists
	}
	c := &model.Category{CategoryID: r.id(), CategoryName: name}
	r.categories[c.CategoryID] = c
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) categoryByNameLocked(name string) (*model.Category, bool) {
	for _, c := range r.categories {
		if strings.EqualFold(c.CategoryName, name) {
			return c, true
		}
	}
	return nil, false
}

// Categories возвращает категории по возрастанию идентификатора.
func (r *MemoryRepository) Categories(ctx context.Context) ([]model.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Category, 0, len(r.categories))
	for _, c := range r.categories {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out, nil
}

// AddProduct создаёт товар в существующей категории.
func (r *MemoryRepository) AddProduct(ctx context.Context, p model.NewProduct) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.productByNameLocked(p.ProdName); ok {
		return nil, ErrProductExists
	}
	cat, ok := r.categoryByNameLocked(p.Category.CategoryName)
	if !ok {
		return nil, ErrCategoryNotFound
	}

	prod := &model.Product{
		ProdID:   r.id(),
		ProdName: p.ProdName,
		Price:    p.Price,
		Stock:    p.Stock,
		Category: *cat,
	}
	r.products[prod.ProdID] = prod
	cp := *prod
	return &cp, nil
}

func (r *MemoryRepository) productByNameLocked(name string) (*model.Product, bool) {
	for _, p := range r.products {
		if strings.EqualFold(p.ProdName, name) {
			return p, true
		}
	}
	return nil, false
}

// Products возвращает товары по возрастанию идентификатора.
func (r *MemoryRepository) Products(ctx context.Context) ([]model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProdID < out[j].ProdID })
	return out, nil
}

// ProductByName ищет товар по названию без учёта регистра.
func (r *MemoryRepository) ProductByName(ctx context.Context, name string) (*model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.productByNameLocked(name)
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

// Cart возвращает корзину пользователя с пересчитанными суммами.
func (r *MemoryRepository) Cart(ctx context.Context, userID int64) (*model.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.carts[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return r.renderCartLocked(c), nil
}

func (r *MemoryRepository) renderCartLocked(c *cart) *model.Cart {
	out := &model.Cart{
		CartID:         c.id,
		UserID:         c.userID,
		CartTotalPrice: decimal.Zero,
		Items:          make([]model.CartItem, 0, len(c.lines)),
	}
	for _, l := range c.lines {
		p := r.products[l.prodID]
		total := p.Price.Mul(decimal.NewFromInt(int64(l.quantity)))
		out.Items = append(out.Items, model.CartItem{
			CartItemID: l.id,
			ProdID:     p.ProdID,
			ProdName:   p.ProdName,
			Price:      p.Price,
			Quantity:   l.quantity,
			TotalPrice: total,
		})
		out.CartTotalPrice = out.CartTotalPrice.Add(total)
	}
	return out
}

// AddToCart добавляет товар в корзину пользователя, создавая её при необходимости.
func (r *MemoryRepository) AddToCart(ctx context.Context, userID int64, prodName string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return ErrUserNotFound
	}
	p, ok := r.productByNameLocked(prodName)
	if !ok {
		return ErrProductNotFound
	}

	c, ok := r.carts[userID]
	if !ok {
		c = &cart{id: r.id(), userID: userID}
		r.carts[userID] = c
	}

	i := slices.IndexFunc(c.lines, func(l cartLine) bool { return l.prodID == p.ProdID })
	current := 0
	if i >= 0 {
		current = c.lines[i].quantity
	}
	if current+quantity > p.Stock {
		return ErrInsufficientStock
	}

	if i >= 0 {
		c.lines[i].quantity += quantity
		return nil
	}
	c.lines = append(c.lines, cartLine{id: r.id(), prodID: p.ProdID, quantity: quantity})
	return nil
}

// IncreaseQuantity увеличивает количество товара в корзине на единицу.
func (r *MemoryRepository) IncreaseQuantity(ctx context.Context, userID int64, prodName string) error {
	return r.updateLine(userID, prodName, func(p *model.Product, l *cartLine) error {
		if l.quantity+1 > p.Stock {
			return ErrInsufficientStock
		}
		l.quantity++
		return nil
	})
}

// DecreaseQuantity уменьшает количество товара в корзине на единицу.
func (r *MemoryRepository) DecreaseQuantity(ctx context.Context, userID int64, prodName string) error {
	return r.updateLine(userID, prodName, func(_ *model.Product, l *cartLine) error {
		if l.quantity <= 1 {
			return ErrQuantityFloor
		}
		l.quantity--
		return nil
	})
}

// RemoveItem удаляет позицию из корзины.
func (r *MemoryRepository) RemoveItem(ctx context.Context, userID int64, prodName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, i, err := r.lineLocked(userID, prodName)
	if err != nil {
		return err
	}
	c.lines = slices.Delete(c.lines, i, i+1)
	return nil
}

// ClearCart очищает содержимое корзины, сохраняя саму корзину.
func (r *MemoryRepository) ClearCart(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[userID]
	if !ok {
		return ErrCartNotFound
	}
	c.lines = nil
	return nil
}

func (r *MemoryRepository) updateLine(userID int64, prodName string, fn func(*model.Product, *cartLine) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, i, err := r.lineLocked(userID, prodName)
	if err != nil {
		return err
	}
	return fn(r.products[c.lines[i].prodID], &c.lines[i])
}

func (r *MemoryRepository) lineLocked(userID int64, prodName string) (*cart, int, error) {
	c, ok := r.carts[userID]
	if !ok {
		return nil, 0, ErrCartNotFound
	}
	p, ok := r.productByNameLocked(prodName)
	if !ok {
		return nil, 0, ErrProductNotFound
	}
	i := slices.IndexFunc(c.lines, func(l cartLine) bool { return l.prodID == p.ProdID })
	if i < 0 {
		return nil, 0, ErrItemNotInCart
	}
	return c, i, nil
}

// PlaceOrder превращает корзину пользователя в заказ: списывает остатки и очищает корзину.
func (r *MemoryRepository) PlaceOrder(ctx context.Context, userID int64) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[userID]
	if !ok || len(c.lines) == 0 {
		return nil, ErrEmptyCart
	}
	for _, l := range c.lines {
		if r.products[l.prodID].Stock < l.quantity {
			return nil, ErrInsufficientStock
		}
	}

	snapshot := r.renderCartLocked(c)
	o := &model.Order{
		OrderID:        r.id(),
		UserID:         userID,
		CartID:         c.id,
		OrderDate:      model.Timestamp{Time: r.now().UTC()},
		TotalBillPrice: snapshot.CartTotalPrice,
		OrderItems:     make([]model.OrderItem, 0, len(snapshot.Items)),
	}
	for _, it := range snapshot.Items {
		o.OrderItems = append(o.OrderItems, model.OrderItem{
			OrderItemID: r.id(),
			ProdID:      it.ProdID,
			ProdName:    it.ProdName,
			Price:       it.Price,
			Quantity:    it.Quantity,
			TotalPrice:  it.TotalPrice,
		})
	}
	for _, l := range c.lines {
		r.products[l.prodID].Stock -= l.quantity
	}
	c.lines = nil

	r.orders[o.OrderID] = o
	return o.Clone(), nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *MemoryRepository) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

// GetOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *MemoryRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, *o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID > out[j].OrderID })
	return out, nil
}

// CreateTransaction записывает попытку оплаты заказа. Остаток и статус
// вычисляются от суммы заказа: balance = required − received.
func (r *MemoryRepository) CreateTransaction(ctx context.Context, p Payment) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[p.OrderID]
	if !ok {
		return nil, ErrOrderNotFound
	}

	now := model.Timestamp{Time: r.now().UTC()}
	balance := o.TotalBillPrice.Sub(p.Received)
	status := model.PaymentStatusIncomplete
	if !balance.IsPositive() {
		status = model.PaymentStatusCompleted
	}

	tx := &model.Transaction{
		TransactionID:  r.id(),
		UserID:         o.UserID,
		OrderID:        o.OrderID,
		RequiredAmount: o.TotalBillPrice,
		ReceivedAmount: p.Received,
		BalanceAmount:  balance,
		PaymentMode:    p.Mode,
		PaymentStatus:  status,
		PaymentTime:    now,
	}
	switch p.Mode {
	case model.PaymentCard:
		masked := maskCard(p.CardNumber)
		holder := p.CardHolderName
		tx.CardNumber = &masked
		tx.CardHolderName = &holder
		tx.TransactionTime = &now
	case model.PaymentUPI:
		upi := p.UPIID
		tx.UPIID = &upi
		tx.TransactionTime = &now
	}

	r.transactions[tx.TransactionID] = tx
	cp := *tx
	return &cp, nil
}

// GetTransaction возвращает транзакцию по идентификатору.
func (r *MemoryRepository) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

// GetTransactionByOrder возвращает последнюю транзакцию по заказу.
func (r *MemoryRepository) GetTransactionByOrder(ctx context.Context, orderID int64) (*model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last *model.Transaction
	for _, tx := range r.transactions {
		if tx.OrderID == orderID && (last == nil || tx.TransactionID > last.TransactionID) {
			last = tx
		}
	}
	if last == nil {
		return nil, ErrTransactionNotFound
	}
	cp := *last
	return &cp, nil
}

func maskCard(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}

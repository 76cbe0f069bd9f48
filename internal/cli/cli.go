// Package cli реализует подкоманды консольного клиента витрины.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/mmeshcher/storefront/internal/apierr"
	"github.com/mmeshcher/storefront/internal/endpoint"
	"github.com/mmeshcher/storefront/internal/gate"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/storefront"
)

// ErrUsage возвращается при неверном вызове команды.
var ErrUsage = errors.New("usage")

// Usage содержит краткую справку по подкомандам.
const Usage = `usage: storefront [flags] <command> [args]

commands:
  login <email> <password>
  logout
  register <name> <email> <password>
  whoami
  route <path>

  cart [--user ID] show
  cart [--user ID] add <product> [quantity]
  cart [--user ID] inc|dec|remove <product>
  cart [--user ID] clear

  order [--user ID] place
  order show <order-id>
  order list

  pay card <order-id> <amount> <card-number> <holder>
  pay upi  <order-id> <amount> <upi-id>
  pay cash <order-id> <amount>
  tx order <order-id>
  tx show <transaction-id>

  products [name]
  categories
  category add <name>
  product add <name> <price> <stock> <category>
  user <email>
`

type message string

type routeResult struct {
	Decision string `json:"decision"`
	Redirect string `json:"redirect,omitempty"`
}

// App выполняет подкоманды поверх контекста витрины.
type App struct {
	sf *storefront.Storefront
	p  *Printer
}

// New создаёт App.
func New(sf *storefront.Storefront, out io.Writer, format string) *App {
	return &App{sf: sf, p: NewPrinter(out, format)}
}

// Run выполняет одну подкоманду.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageErr("missing command")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return a.login(ctx, rest)
	case "logout":
		if err := a.sf.Logout(); err != nil {
			return err
		}
		return a.p.Print(message("logged out"))
	case "register":
		return a.register(ctx, rest)
	case "whoami":
		sess := a.sf.Session()
		if sess == nil {
			return a.p.Print(message("not logged in"))
		}
		return a.p.Print(sess)
	case "route":
		if len(rest) != 1 {
			return usageErr("route <path>")
		}
		d, redirect := a.sf.CheckRoute(rest[0])
		return a.p.Print(routeResult{Decision: d.String(), Redirect: redirect})
	case "cart":
		return a.cart(ctx, rest)
	case "order":
		return a.order(ctx, rest)
	case "pay":
		return a.pay(ctx, rest)
	case "tx":
		return a.tx(ctx, rest)
	case "products":
		return a.products(ctx, rest)
	case "categories":
		cats, err := a.sf.Catalog.Categories(ctx)
		if err != nil {
			return err
		}
		return a.p.Print(cats)
	case "category":
		if len(rest) != 2 || rest[0] != "add" {
			return usageErr("category add <name>")
		}
		cat, err := a.sf.Catalog.AddCategory(ctx, rest[1])
		if err != nil {
			return err
		}
		return a.p.Print(cat)
	case "product":
		return a.addProduct(ctx, rest)
	case "user":
		if len(rest) != 1 {
			return usageErr("user <email>")
		}
		acc, err := a.sf.Catalog.FindUserByEmail(ctx, rest[0])
		if err != nil {
			return err
		}
		return a.p.Print(acc)
	}
	return usageErr(fmt.Sprintf("unknown command %q", cmd))
}

func (a *App) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageErr("login <email> <password>")
	}
	sess, err := a.sf.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	return a.p.Print(sess)
}

func (a *App) register(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return usageErr("register <name> <email> <password>")
	}
	acc, err := a.sf.Register(ctx, args[0], args[1], args[2])
	if err != nil {
		return err
	}
	return a.p.Print(acc)
}

// cart перед каждым изменением загружает корзину: локальные проверки
// (например, нижняя граница количества) опираются на кэш.
func (a *App) cart(ctx context.Context, args []string) error {
	actor, args, err := parseActor("cart", args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		args = []string{"show"}
	}

	op, rest := args[0], args[1:]
	var mutate func() (*model.Cart, error)
	switch op {
	case "show":
		if len(rest) != 0 {
			return usageErr("cart show")
		}
	case "add":
		if len(rest) < 1 || len(rest) > 2 {
			return usageErr("cart add <product> [quantity]")
		}
		qty := 1
		if len(rest) == 2 {
			if qty, err = strconv.Atoi(rest[1]); err != nil {
				return usageErr("quantity must be a number")
			}
		}
		mutate = func() (*model.Cart, error) { return a.sf.Cart.AddItem(ctx, actor, rest[0], qty) }
	case "inc", "dec", "remove":
		if len(rest) != 1 {
			return usageErr(fmt.Sprintf("cart %s <product>", op))
		}
		fn := map[string]func(context.Context, model.Actor, string) (*model.Cart, error){
			"inc":    a.sf.Cart.IncreaseQuantity,
			"dec":    a.sf.Cart.DecreaseQuantity,
			"remove": a.sf.Cart.RemoveItem,
		}[op]
		mutate = func() (*model.Cart, error) { return fn(ctx, actor, rest[0]) }
	case "clear":
		mutate = func() (*model.Cart, error) { return a.sf.Cart.ClearContents(ctx, actor) }
	default:
		return usageErr(fmt.Sprintf("unknown cart command %q", op))
	}

	cart, err := a.sf.Cart.FetchCart(ctx, actor)
	if err != nil {
		return err
	}
	if mutate != nil {
		if cart, err = mutate(); err != nil {
			return err
		}
	}
	return a.p.Print(cart)
}

func (a *App) order(ctx context.Context, args []string) error {
	actor, args, err := parseActor("order", args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return usageErr("order place|show|list")
	}

	switch args[0] {
	case "place":
		if _, err := a.sf.Cart.FetchCart(ctx, actor); err != nil {
			return err
		}
		o, err := a.sf.Orders.PlaceOrder(ctx, actor)
		if err != nil {
			return err
		}
		return a.p.Print(o)
	case "show":
		if len(args) != 2 {
			return usageErr("order show <order-id>")
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		o, err := a.sf.Orders.Order(ctx, id)
		if err != nil {
			return err
		}
		return a.p.Print(o)
	case "list":
		orders, err := a.sf.Orders.MyOrders(ctx)
		if err != nil {
			return err
		}
		return a.p.Print(orders)
	}
	return usageErr(fmt.Sprintf("unknown order command %q", args[0]))
}

func (a *App) pay(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return usageErr("pay card|upi|cash <order-id> <amount> ...")
	}
	orderID, err := parseID(args[1])
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(args[2])
	if err != nil {
		return usageErr("amount must be a number")
	}

	var tx *model.Transaction
	switch args[0] {
	case "card":
		if len(args) != 5 {
			return usageErr("pay card <order-id> <amount> <card-number> <holder>")
		}
		tx, err = a.sf.Payments.PayByCard(ctx, orderID, amount, args[3], args[4])
	case "upi":
		if len(args) != 4 {
			return usageErr("pay upi <order-id> <amount> <upi-id>")
		}
		tx, err = a.sf.Payments.PayByUPI(ctx, orderID, amount, args[3])
	case "cash":
		if len(args) != 3 {
			return usageErr("pay cash <order-id> <amount>")
		}
		tx, err = a.sf.Payments.PayByCash(ctx, orderID, amount)
	default:
		return usageErr(fmt.Sprintf("unknown payment mode %q", args[0]))
	}
	if err != nil {
		return err
	}
	return a.p.Print(tx)
}

func (a *App) tx(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageErr("tx order|show <id>")
	}
	id, err := parseID(args[1])
	if err != nil {
		return err
	}

	var tx *model.Transaction
	switch args[0] {
	case "order":
		tx, err = a.sf.Payments.TransactionForOrder(ctx, id)
	case "show":
		tx, err = a.sf.Payments.TransactionByID(ctx, id)
	default:
		return usageErr(fmt.Sprintf("unknown tx command %q", args[0]))
	}
	if err != nil {
		return err
	}
	return a.p.Print(tx)
}

func (a *App) products(ctx context.Context, args []string) error {
	switch len(args) {
	case 0:
		products, err := a.sf.Catalog.Products(ctx)
		if err != nil {
			return err
		}
		return a.p.Print(products)
	case 1:
		product, err := a.findProduct(ctx, args[0])
		if err != nil {
			return err
		}
		return a.p.Print(product)
	}
	return usageErr("products [name]")
}

// findProduct ищет товар по названию. Поиск по имени на сервере доступен
// только персоналу, остальные роли ищут в общем списке товаров.
func (a *App) findProduct(ctx context.Context, name string) (*model.Product, error) {
	if gate.Authorize(a.sf.Session(), endpoint.ProductByName.Roles...).Allowed() {
		return a.sf.Catalog.ProductByName(ctx, name)
	}

	products, err := a.sf.Catalog.Products(ctx)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	for i := range products {
		if strings.EqualFold(products[i].ProdName, name) {
			return &products[i], nil
		}
	}
	return nil, apierr.New(apierr.KindNotFound, "product %q not found", name)
}

func (a *App) addProduct(ctx context.Context, args []string) error {
	if len(args) != 5 || args[0] != "add" {
		return usageErr("product add <name> <price> <stock> <category>")
	}
	price, err := decimal.NewFromString(args[2])
	if err != nil {
		return usageErr("price must be a number")
	}
	stock, err := strconv.Atoi(args[3])
	if err != nil {
		return usageErr("stock must be a number")
	}

	product, err := a.sf.Catalog.AddProduct(ctx, model.NewProduct{
		ProdName: args[1],
		Price:    price,
		Stock:    stock,
		Category: model.CategoryRef{CategoryName: args[4]},
	})
	if err != nil {
		return err
	}
	return a.p.Print(product)
}

func parseActor(name string, args []string) (model.Actor, []string, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	user := fs.Int64("user", 0, "act on the cart of another user (biller)")
	if err := fs.Parse(args); err != nil {
		return model.Actor{}, nil, usageErr(err.Error())
	}
	if *user < 0 {
		return model.Actor{}, nil, usageErr("--user must be positive")
	}
	return model.ForUser(*user), fs.Args(), nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, usageErr(fmt.Sprintf("%q is not a valid id", s))
	}
	return id, nil
}

func usageErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrUsage, msg)
}

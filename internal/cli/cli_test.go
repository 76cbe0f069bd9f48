package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/storefront/internal/apierr"
	"github.com/mmeshcher/storefront/internal/backend"
	"github.com/mmeshcher/storefront/internal/config"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/session"
	"github.com/mmeshcher/storefront/internal/storefront"
	"github.com/mmeshcher/storefront/internal/stub/handler"
	"github.com/mmeshcher/storefront/internal/stub/repository"
	"github.com/mmeshcher/storefront/internal/stub/service"
)

func newApp(t *testing.T, format string) (*App, *bytes.Buffer) {
	t.Helper()

	svc := service.NewService(repository.NewMemoryRepository(), "cli-secret", time.Hour)
	require.NoError(t, svc.Seed(context.Background()))
	srv := httptest.NewServer(handler.NewHandler(svc, nil).SetupRouter())
	t.Cleanup(srv.Close)

	sessions := session.NewStore(session.NewMemoryStore(), nil)
	client := backend.NewClient(srv.URL, sessions, backend.WithRetryMax(0))

	out := &bytes.Buffer{}
	return New(storefront.New(client, sessions, nil), out, format), out
}

func run(t *testing.T, app *App, out *bytes.Buffer, args ...string) string {
	t.Helper()
	out.Reset()
	require.NoError(t, app.Run(context.Background(), args))
	return out.String()
}

func TestRun_Usage(t *testing.T) {
	app, _ := newApp(t, config.OutputText)

	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"dance"}},
		{"login without password", []string{"login", "a@b.c"}},
		{"bad quantity", []string{"cart", "add", "Widget", "many"}},
		{"bad order id", []string{"order", "show", "x"}},
		{"bad amount", []string{"pay", "cash", "1", "lots"}},
		{"unknown payment mode", []string{"pay", "cheque", "1", "10"}},
		{"negative user", []string{"cart", "--user", "-3", "show"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := app.Run(context.Background(), tt.args)
			assert.ErrorIs(t, err, ErrUsage)
		})
	}
}

func TestRun_RequiresSession(t *testing.T) {
	app, _ := newApp(t, config.OutputText)

	err := app.Run(context.Background(), []string{"cart", "show"})
	assert.True(t, apierr.IsKind(err, apierr.KindUnauthenticated), "got %v", err)
}

func TestRun_CartAndOrderJSON(t *testing.T) {
	app, out := newApp(t, config.OutputJSON)
	run(t, app, out, "login", "customer@store.local", service.DefaultPassword)

	var cart model.Cart
	require.NoError(t, json.Unmarshal([]byte(run(t, app, out, "cart", "add", "Widget", "2")), &cart))
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	require.NoError(t, json.Unmarshal([]byte(run(t, app, out, "cart", "dec", "Widget")), &cart))
	assert.Equal(t, 1, cart.Items[0].Quantity)

	err := app.Run(context.Background(), []string{"cart", "dec", "Widget"})
	assert.True(t, apierr.IsKind(err, apierr.KindValidation), "got %v", err)

	var order model.Order
	require.NoError(t, json.Unmarshal([]byte(run(t, app, out, "order", "place")), &order))
	assert.Positive(t, order.OrderID)
	assert.True(t, order.TotalBillPrice.Equal(decimal.RequireFromString("12.50")), "total %s", order.TotalBillPrice)

	var orders []model.Order
	require.NoError(t, json.Unmarshal([]byte(run(t, app, out, "order", "list")), &orders))
	assert.Len(t, orders, 1)
}

func TestRun_YAMLKeepsFieldNames(t *testing.T) {
	app, out := newApp(t, config.OutputYAML)
	run(t, app, out, "login", "biller@store.local", service.DefaultPassword)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(run(t, app, out, "products", "Gadget")), &doc))
	assert.Equal(t, "Gadget", doc["prodName"])
	assert.Equal(t, "49.99", doc["price"])
}

func TestRun_ProductLookupForCustomer(t *testing.T) {
	app, out := newApp(t, config.OutputJSON)
	run(t, app, out, "login", "customer@store.local", service.DefaultPassword)

	var product model.Product
	require.NoError(t, json.Unmarshal([]byte(run(t, app, out, "products", "gadget")), &product))
	assert.Equal(t, "Gadget", product.ProdName)
	assert.True(t, product.Price.Equal(decimal.RequireFromString("49.99")))

	err := app.Run(context.Background(), []string{"products", "Teapot"})
	assert.True(t, apierr.IsKind(err, apierr.KindNotFound), "got %v", err)
}

func TestRun_Text(t *testing.T) {
	app, out := newApp(t, config.OutputText)

	assert.Contains(t, run(t, app, out, "whoami"), "not logged in")

	run(t, app, out, "login", "biller@store.local", service.DefaultPassword)
	assert.Contains(t, run(t, app, out, "whoami"), "BILLER")
	assert.Contains(t, run(t, app, out, "route", "/admin/products"), "role not permitted")
	assert.Contains(t, run(t, app, out, "user", "customer@store.local"), "CUSTOMER")
	assert.Contains(t, run(t, app, out, "products"), "Notebook")

	assert.Contains(t, run(t, app, out, "logout"), "logged out")
	assert.Contains(t, run(t, app, out, "route", "/cart"), "/login")
}

func TestRun_BillerPaysForCustomer(t *testing.T) {
	app, out := newApp(t, config.OutputJSON)
	run(t, app, out, "login", "biller@store.local", service.DefaultPassword)

	var acc model.Account
	require.NoError(t, json.Unmarshal([]byte(run(t, app, out, "user", "customer@store.local")), &acc))
	user := strconv.FormatInt(acc.UserID, 10)

	run(t, app, out, "cart", "--user", user, "add", "Notebook", "5")

	var order model.Order
	require.NoError(t, json.Unmarshal([]byte(run(t, app, out, "order", "--user", user, "place")), &order))
	assert.Equal(t, acc.UserID, order.UserID)

	var tx model.Transaction
	orderID := strconv.FormatInt(order.OrderID, 10)
	require.NoError(t, json.Unmarshal([]byte(run(t, app, out, "pay", "card", orderID, "16.00", "4111-1111-1111-1111", "Jane Doe")), &tx))
	assert.Equal(t, model.PaymentStatusCompleted, tx.PaymentStatus)
	require.NotNil(t, tx.CardNumber)
	assert.Equal(t, "************1111", *tx.CardNumber)
}

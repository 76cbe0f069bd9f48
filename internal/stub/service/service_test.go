package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/session"
	"github.com/mmeshcher/storefront/internal/stub/repository"
)

func newSeeded(t *testing.T) *Service {
	t.Helper()
	svc := NewService(repository.NewMemoryRepository(), "test-secret", time.Hour)
	if err := svc.Seed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return svc
}

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user@store.local", "pass")
	b := hashPassword("USER@store.local", "pass")
	c := hashPassword("user@store.local", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must ignore email case, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

func TestAuthenticateUser(t *testing.T) {
	svc := newSeeded(t)
	ctx := context.Background()

	token, err := svc.AuthenticateUser(ctx, "biller@store.local", DefaultPassword)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	sess, err := session.Derive(token, time.Now())
	if err != nil {
		t.Fatalf("client cannot derive session from issued token: %v", err)
	}
	if sess.User.Role != model.RoleBiller || sess.User.Email != "biller@store.local" {
		t.Fatalf("session user = %+v", sess.User)
	}

	if _, err := svc.AuthenticateUser(ctx, "biller@store.local", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.AuthenticateUser(ctx, "ghost@store.local", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user err = %v, want ErrInvalidCredentials", err)
	}
}

func TestRegisterUserIsCustomer(t *testing.T) {
	svc := newSeeded(t)
	ctx := context.Background()

	u, err := svc.RegisterUser(ctx, " New ", "new@store.local", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Role != model.RoleCustomer || u.Name != "New" {
		t.Fatalf("user = %+v", u)
	}
	if _, err := svc.AuthenticateUser(ctx, "new@store.local", "secret1"); err != nil {
		t.Fatalf("login after register: %v", err)
	}
	if _, err := svc.RegisterUser(ctx, "Dup", "new@store.local", "x"); !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("duplicate err = %v, want ErrUserExists", err)
	}
}

func TestParseToken(t *testing.T) {
	svc := newSeeded(t)
	u, err := svc.GetUserByEmail(context.Background(), "customer@store.local")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}

	token, err := svc.IssueToken(u)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.ID != u.ID || got.Role != model.RoleCustomer {
		t.Fatalf("user = %+v", got)
	}

	other := NewService(repository.NewMemoryRepository(), "other-secret", time.Hour)
	if _, err := other.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign signature err = %v, want ErrInvalidToken", err)
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := svc.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired err = %v, want ErrInvalidToken", err)
	}
}

func TestPay(t *testing.T) {
	svc := newSeeded(t)
	ctx := context.Background()

	customer, _ := svc.GetUserByEmail(ctx, "customer@store.local")
	biller, _ := svc.GetUserByEmail(ctx, "biller@store.local")

	if err := svc.AddToCart(ctx, customer.ID, "Widget", 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	order, err := svc.PlaceOrder(ctx, customer.ID)
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	payer := model.User{ID: customer.ID, Role: model.RoleCustomer}

	_, err = svc.Pay(ctx, payer, repository.Payment{
		OrderID: order.OrderID, Mode: model.PaymentCard, Received: decimal.NewFromInt(25),
		CardNumber: "4111 1111 1111 1112", CardHolderName: "Jane",
	})
	if !errors.Is(err, ErrCardRejected) {
		t.Fatalf("bad luhn err = %v, want ErrCardRejected", err)
	}

	tx, err := svc.Pay(ctx, payer, repository.Payment{
		OrderID: order.OrderID, Mode: model.PaymentCard, Received: decimal.NewFromInt(25),
		CardNumber: "4111 1111 1111 1111", CardHolderName: "Jane",
	})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if tx.PaymentStatus != model.PaymentStatusCompleted || !tx.BalanceAmount.IsZero() {
		t.Fatalf("tx = %s balance %s, want Completed 0", tx.PaymentStatus, tx.BalanceAmount)
	}

	stranger := model.User{ID: biller.ID + 100, Role: model.RoleCustomer}
	if _, err := svc.Pay(ctx, stranger, repository.Payment{OrderID: order.OrderID, Mode: model.PaymentCash, Received: decimal.NewFromInt(1)}); !errors.Is(err, repository.ErrOrderNotFound) {
		t.Fatalf("foreign order err = %v, want ErrOrderNotFound", err)
	}

	staff := model.User{ID: biller.ID, Role: model.RoleBiller}
	if _, err := svc.Pay(ctx, staff, repository.Payment{OrderID: order.OrderID, Mode: model.PaymentCash, Received: decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("biller pay: %v", err)
	}
}

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"

	"github.com/mmeshcher/storefront/internal/apierr"
	"github.com/mmeshcher/storefront/internal/endpoint"
	"github.com/mmeshcher/storefront/internal/model"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID     int64      `json:"id"`
	UserID int64      `json:"userId"`
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	Role   model.Role `json:"role"`
}

func (u userResponse) account() *model.Account {
	id := u.UserID
	if id == 0 {
		id = u.ID
	}
	return &model.Account{UserID: id, Name: u.Name, Email: u.Email, Role: u.Role}
}

// Authenticate обменивает логин и пароль на токен.
// Сервер может вернуть токен как JSON-строку или как текст.
func (c *Client) Authenticate(ctx context.Context, email, password string) (string, error) {
	var raw []byte
	err := c.do(ctx, call{
		ep:   endpoint.Login,
		body: credentialsRequest{Email: email, Password: password},
		raw:  &raw,
	})
	if err != nil {
		return "", err
	}

	raw = bytes.TrimSpace(raw)
	token := string(raw)
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &token); err != nil {
			return "", apierr.New(apierr.KindAuth, "malformed login response")
		}
	}
	if token == "" {
		return "", apierr.New(apierr.KindAuth, "empty login response")
	}
	return token, nil
}

// Register создаёт учётную запись покупателя.
func (c *Client) Register(ctx context.Context, name, email, password string) (*model.Account, error) {
	var u userResponse
	err := c.do(ctx, call{
		ep:   endpoint.Register,
		body: registerRequest{Name: name, Email: email, Password: password},
		out:  &u,
	})
	if err != nil {
		return nil, err
	}
	return u.account(), nil
}

// FindUserByEmail ищет пользователя по email (кассир, администратор).
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*model.Account, error) {
	var u userResponse
	err := c.do(ctx, call{
		ep:    endpoint.FindUserByEmail,
		query: url.Values{"email": {email}},
		out:   &u,
	})
	if err != nil {
		return nil, err
	}
	return u.account(), nil
}

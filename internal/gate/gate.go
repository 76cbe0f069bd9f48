// Package gate решает, может ли сессия выполнить операцию или открыть маршрут.
//
// Отказ никогда не паникует и не возвращается как брошенная ошибка: это
// значение Decision, по которому вызывающий код выбирает перенаправление.
package gate

import (
	"slices"
	"strings"

	"github.com/mmeshcher/storefront/internal/apierr"
	"github.com/mmeshcher/storefront/internal/model"
)

// Decision описывает результат проверки доступа.
type Decision int

const (
	Allow Decision = iota
	Unauthenticated
	RoleNotPermitted
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Unauthenticated:
		return "unauthenticated"
	case RoleNotPermitted:
		return "role not permitted"
	}
	return "unknown"
}

// Allowed сообщает, что доступ разрешён.
func (d Decision) Allowed() bool { return d == Allow }

// Err превращает отказ в ошибку таксономии apierr; для Allow возвращает nil.
func (d Decision) Err() error {
	switch d {
	case Unauthenticated:
		return apierr.New(apierr.KindUnauthenticated, "sign in required")
	case RoleNotPermitted:
		return apierr.New(apierr.KindForbidden, "current role may not perform this operation")
	}
	return nil
}

// Пути, на которые отправляется пользователь при отказе.
const (
	LoginPath   = "/login"
	DefaultPath = "/"
)

// Redirect возвращает путь перенаправления для отказа или пустую строку для Allow.
func Redirect(d Decision) string {
	switch d {
	case Unauthenticated:
		return LoginPath
	case RoleNotPermitted:
		return DefaultPath
	}
	return ""
}

// Authorize проверяет сессию против набора ролей.
// Пустой набор означает «любая аутентифицированная сессия».
func Authorize(sess *model.Session, required ...model.Role) Decision {
	if sess == nil {
		return Unauthenticated
	}
	if len(required) == 0 {
		return Allow
	}
	if slices.Contains(required, sess.User.Role) {
		return Allow
	}
	return RoleNotPermitted
}

// Route описывает защищённый маршрут: точный путь или префикс с завершающим «/».
type Route struct {
	Pattern string
	Roles   []model.Role
}

var anyRole = []model.Role{model.RoleAdmin, model.RoleCustomer, model.RoleBiller}

// Routes содержит таблицу защищённых маршрутов витрины.
var Routes = []Route{
	{Pattern: "/", Roles: anyRole},
	{Pattern: "/products", Roles: anyRole},
	{Pattern: "/my-orders", Roles: anyRole},
	{Pattern: "/order-details/", Roles: anyRole},
	{Pattern: "/payment/", Roles: anyRole},
	{Pattern: "/order-confirmation/", Roles: anyRole},
	{Pattern: "/cart", Roles: []model.Role{model.RoleCustomer, model.RoleBiller}},
	{Pattern: "/biller/", Roles: []model.Role{model.RoleBiller, model.RoleAdmin}},
	{Pattern: "/admin/", Roles: []model.Role{model.RoleAdmin}},
}

var publicRoutes = []string{LoginPath, "/register"}

// Lookup находит маршрут для пути. Второе значение false, если путь публичный или неизвестен.
func Lookup(path string) (Route, bool) {
	if slices.Contains(publicRoutes, path) {
		return Route{}, false
	}
	for _, r := range Routes {
		if strings.HasSuffix(r.Pattern, "/") && r.Pattern != "/" {
			if strings.HasPrefix(path, r.Pattern) {
				return r, true
			}
			continue
		}
		if path == r.Pattern {
			return r, true
		}
	}
	return Route{}, false
}

// CheckRoute проверяет вход на маршрут и возвращает путь перенаправления при отказе.
func CheckRoute(sess *model.Session, path string) (Decision, string) {
	r, ok := Lookup(path)
	if !ok {
		return Allow, ""
	}
	d := Authorize(sess, r.Roles...)
	return d, Redirect(d)
}

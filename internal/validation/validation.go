// Package validation содержит клиентские проверки формы входных данных.
// Проверки выполняются до обращения к сети.
package validation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/apierr"
)

const (
	minCardDigits = 13
	maxCardDigits = 19
)

// NormalizeCardNumber убирает пробелы и дефисы из номера карты.
func NormalizeCardNumber(number string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, number)
}

// IsValidCardNumber проверяет, что после удаления разделителей номер состоит из 13–19 цифр.
func IsValidCardNumber(number string) bool {
	digits := NormalizeCardNumber(number)
	if len(digits) < minCardDigits || len(digits) > maxCardDigits {
		return false
	}
	for _, ch := range digits {
		if !unicode.IsDigit(ch) || ch > unicode.MaxASCII {
			return false
		}
	}
	return true
}

var upiPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{2,256}@[A-Za-z][A-Za-z0-9]{1,63}$`)

// IsValidUPIID проверяет форму идентификатора UPI: localpart@handle.
func IsValidUPIID(id string) bool {
	return upiPattern.MatchString(id)
}

// Card проверяет реквизиты карты.
func Card(number, holder string) error {
	if !IsValidCardNumber(number) {
		return apierr.Validation("cardNumber", "card number must contain 13 to 19 digits")
	}
	if strings.TrimSpace(holder) == "" {
		return apierr.Validation("cardHolderName", "card holder name is required")
	}
	return nil
}

// UPI проверяет идентификатор UPI.
func UPI(id string) error {
	if !IsValidUPIID(id) {
		return apierr.Validation("upiId", "UPI id must look like name@bank")
	}
	return nil
}

// Amount проверяет, что сумма положительна.
func Amount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apierr.Validation("receivedAmount", "amount must be positive")
	}
	return nil
}

// OrderID проверяет идентификатор заказа.
func OrderID(id int64) error {
	if id <= 0 {
		return apierr.Validation("orderId", "order id must be positive")
	}
	return nil
}

// ProductName проверяет название товара.
func ProductName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apierr.Validation("prodName", "product name is required")
	}
	return nil
}

// Quantity проверяет количество: не меньше одной единицы.
func Quantity(q int) error {
	if q < 1 {
		return apierr.Validation("quantity", "quantity must be at least 1")
	}
	return nil
}

package validator

import (
	"strings"
	"unicode/utf8"

	"fulfillment/internal/domain/model"
	"fulfillment/internal/usecase"

	"github.com/shopspring/decimal"
)

const (
	minAddressLen   = 5
	maxAddressLen   = 500
	maxCartQuantity = 1000
)

func invalid(msg string) error {
	return usecase.NewAppError(usecase.KindValidation, msg)
}

// 購入確定の入力を検証
// 住所は任意。指定するなら空白除去後5文字以上
func ValidateCheckout(shippingAddress *string, method string) error {
	if shippingAddress != nil {
		n := utf8.RuneCountInString(strings.TrimSpace(*shippingAddress))
		if n < minAddressLen {
			return invalid("shipping address must be at least 5 characters")
		}
		if n > maxAddressLen {
			return invalid("shipping address is too long")
		}
	}

	method = strings.TrimSpace(method)
	if method != "" && !model.PaymentMethod(method).Valid() {
		return invalid("payment method must be one of stripe, razorpay, paypal")
	}
	return nil
}

// カート追加の入力を検証
func ValidateCartItem(productID int64, quantity int64) error {
	if productID <= 0 {
		return invalid("invalid product id")
	}
	if quantity <= 0 {
		return invalid("quantity must be > 0")
	}
	if quantity > maxCartQuantity {
		return invalid("quantity is too large")
	}
	return nil
}

// 商品の作成・更新の入力を検証
func ValidateProduct(name string, price decimal.Decimal, stock int64) error {
	if strings.TrimSpace(name) == "" {
		return invalid("name required")
	}
	if price.IsNegative() {
		return invalid("price must be >= 0")
	}
	//小数2桁まで
	if !price.Equal(price.Round(model.CurrencyScale)) {
		return invalid("price must have at most 2 decimal places")
	}
	if stock < 0 {
		return invalid("stock must be >= 0")
	}
	return nil
}

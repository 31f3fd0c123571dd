package usecase

import (
	"errors"
	"fmt"
)

// 失敗の種類。handlerがHTTPステータスに変換する
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindUnauthorized       Kind = "Unauthorized"
	KindForbidden          Kind = "Forbidden"
	KindNotFound           Kind = "NotFound"
	KindEmptyCart          Kind = "EmptyCart"
	KindProductMissing     Kind = "ProductMissing"
	KindInsufficientStock  Kind = "InsufficientStock"
	KindGatewayUnavailable Kind = "GatewayUnavailable"
	KindPaymentNotFound    Kind = "PaymentNotFound"
	KindReconcileConflict  Kind = "ReconcileConflict"
	KindInternal           Kind = "InternalError"
)

type AppError struct {
	Kind    Kind
	Message string

	// InsufficientStock / ProductMissing の対象商品
	ProductID int64

	cause error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func NewAppError(kind Kind, message string) error {
	return &AppError{Kind: kind, Message: message}
}

func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	ok := errors.As(err, &ae)
	return ae, ok
}

// AppError以外はInternalError扱い
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ae, ok := AsAppError(err); ok {
		return ae.Kind
	}
	return KindInternal
}

// 外には詳細を出さない（causeはログ用）
func internalError(err error) error {
	return &AppError{Kind: KindInternal, Message: "internal error", cause: err}
}

func productError(kind Kind, productID int64, format string) error {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, productID), ProductID: productID}
}

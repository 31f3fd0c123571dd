package handler

import (
	"net/http"

	"fulfillment/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ProductID int64  `json:"product_id,omitempty"`
}

func statusOf(kind usecase.Kind) int {
	switch kind {
	case usecase.KindValidation, usecase.KindEmptyCart:
		return http.StatusBadRequest
	case usecase.KindUnauthorized:
		return http.StatusUnauthorized
	case usecase.KindForbidden:
		return http.StatusForbidden
	case usecase.KindNotFound, usecase.KindPaymentNotFound:
		return http.StatusNotFound
	case usecase.KindProductMissing, usecase.KindInsufficientStock, usecase.KindReconcileConflict:
		return http.StatusConflict
	case usecase.KindGatewayUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	ae, ok := usecase.AsAppError(err)
	if !ok || ae.Kind == usecase.KindInternal {
		//500は中身を出さない
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: string(usecase.KindInternal)})
	}
	return c.JSON(statusOf(ae.Kind), ErrorResponse{
		Error:     ae.Message,
		Code:      string(ae.Kind),
		ProductID: ae.ProductID,
	})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: string(usecase.KindValidation)})
}

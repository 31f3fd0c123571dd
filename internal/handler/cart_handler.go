package handler

import (
	"net/http"
	"strconv"

	"fulfillment/internal/config"
	"fulfillment/internal/middleware"
	"fulfillment/internal/usecase"
	"fulfillment/internal/validator"

	"github.com/labstack/echo/v4"
)

// /cartのHTTP
type CartHandler struct {
	uc       *usecase.CartUsecase
	checkout *usecase.CheckoutUsecase
}

// DI
func NewCartHandler(uc *usecase.CartUsecase, checkout *usecase.CheckoutUsecase) *CartHandler {
	return &CartHandler{uc: uc, checkout: checkout}
}

type AddCartRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type CheckoutRequest struct {
	ShippingAddress *string `json:"shipping_address"`
	PaymentMethod   string  `json:"payment_method"`
}

// 決済が開始できなかったときのレスポンス（支払いidでリトライしてもらう）
type CheckoutPendingResponse struct {
	ErrorResponse
	Order   any `json:"order"`
	Payment any `json:"payment"`
}

// /cart を登録。checkoutLimitは購入確定だけに掛ける
func (h *CartHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, checkoutLimit echo.MiddlewareFunc) {
	g := e.Group("/cart")
	g.Use(middleware.AuthJWT(cfg))

	g.GET("", h.getCart)
	g.POST("/items", h.addItem)
	g.DELETE("/items/:productId", h.removeItem)

	if checkoutLimit != nil {
		g.POST("/checkout", h.doCheckout, checkoutLimit)
	} else {
		g.POST("/checkout", h.doCheckout)
	}
}

func (h *CartHandler) getCart(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.GetCart(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) addItem(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req AddCartRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := validator.ValidateCartItem(req.ProductID, req.Quantity); err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.AddItem(c.Request().Context(), userID, usecase.AddCartItemInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) removeItem(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid product id")
	}

	out, err := h.uc.RemoveItem(c.Request().Context(), userID, productID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) doCheckout(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := validator.ValidateCheckout(req.ShippingAddress, req.PaymentMethod); err != nil {
		return writeError(c, err)
	}

	out, err := h.checkout.Checkout(c.Request().Context(), userID, usecase.CheckoutInput{
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		return writeCheckoutError(c, out, err)
	}

	return c.JSON(http.StatusCreated, out)
}

// 注文はcommit済みなので中身も返す
func writeCheckoutError(c echo.Context, out usecase.CheckoutOutput, err error) error {
	if usecase.KindOf(err) != usecase.KindGatewayUnavailable || out.Payment.ID == 0 {
		return writeError(c, err)
	}
	ae, _ := usecase.AsAppError(err)
	return c.JSON(http.StatusServiceUnavailable, CheckoutPendingResponse{
		ErrorResponse: ErrorResponse{Error: ae.Message, Code: string(ae.Kind)},
		Order:         out.Order,
		Payment:       out.Payment,
	})
}

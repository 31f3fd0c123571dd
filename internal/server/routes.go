package server

import (
	"fulfillment/internal/config"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, cfg config.Config, h Handlers) {
	if h.Product != nil {
		h.Product.RegisterRoutes(e)
	}
	if h.Cart != nil {
		//購入確定は1ユーザーがそう何度も叩かない
		h.Cart.RegisterRoutes(e, cfg, rateLimit(1, 5))
	}
	if h.Order != nil {
		h.Order.RegisterRoutes(e, cfg)
	}
	if h.Webhook != nil {
		h.Webhook.RegisterRoutes(e, rateLimit(50, 100))
	}
	if h.Admin != nil {
		h.Admin.RegisterRoutes(e, cfg)
	}
}

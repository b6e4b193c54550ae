package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// hstsMaxAge is one year in seconds.
const hstsMaxAge = 31536000

// apiCSP allows nothing but same-origin images; responses are JSON, JPEG or
// an event stream and never render active content.
const apiCSP = "default-src 'none'; img-src 'self' data:; frame-ancestors 'none'"

// Capture headers set on photo responses that browsers may read.
var exposedHeaders = []string{"X-Capture-Id", "X-Faces-Blurred"}

// NewCORS allows the given origins to drive the control API. Credentials are
// never allowed, so a wildcard origin stays safe.
func NewCORS(origins []string) echo.MiddlewareFunc {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPut,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		ExposeHeaders: exposedHeaders,
	})
}

// NewSecureHeaders sets the hardening headers. HSTS is only sent when the
// server terminates TLS itself.
func NewSecureHeaders(tls bool) echo.MiddlewareFunc {
	cfg := middleware.SecureConfig{
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: apiCSP,
		ReferrerPolicy:        "no-referrer",
	}
	if tls {
		cfg.HSTSMaxAge = hstsMaxAge
	}
	return middleware.SecureWithConfig(cfg)
}

// NewNoStore marks API responses as uncacheable except stored capture
// images, which never change once written.
func NewNoStore() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			if strings.HasSuffix(c.Path(), "/image") {
				h.Set(echo.HeaderCacheControl, "private, max-age=86400, immutable")
			} else {
				h.Set(echo.HeaderCacheControl, "no-store")
			}
			return next(c)
		}
	}
}

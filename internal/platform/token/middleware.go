package token

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Headers every inter-bridge call must carry besides the bearer token. The
// values are opaque pass-throughs; only presence is checked here.
const (
	HeaderRequestID        = "X-Request-Id"
	HeaderTimestamp        = "X-Timestamp"
	HeaderConsentManagerID = "X-CM-ID"
)

// Middleware returns an echo middleware enforcing a valid bearer token plus
// the required inter-bridge headers. Verified claims are stored under
// "bridge_claims" for downstream handlers.
func Middleware(svc *Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authz := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			claims, err := svc.Verify(strings.TrimPrefix(authz, "Bearer "))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid bearer token")
			}

			for _, h := range []string{HeaderRequestID, HeaderTimestamp, HeaderConsentManagerID} {
				if c.Request().Header.Get(h) == "" {
					return echo.NewHTTPError(http.StatusBadRequest, "missing required header: "+h)
				}
			}

			c.Set("bridge_claims", claims)
			return next(c)
		}
	}
}

// DevMiddleware stamps synthetic claims on every request. Development mode
// only; mirrors the relaxed auth path used for local bridges.
func DevMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("bridge_claims", &Claims{ClientID: "dev-client", BridgeID: "dev-bridge"})
			return next(c)
		}
	}
}

// ClaimsFromContext returns the verified bridge claims, or nil when the route
// is unauthenticated.
func ClaimsFromContext(c echo.Context) *Claims {
	claims, _ := c.Get("bridge_claims").(*Claims)
	return claims
}

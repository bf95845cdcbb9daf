package middlewares

import (
	"strings"

	t_token "video_ingest_service/pkg/token"

	"github.com/gofiber/fiber/v2"
)

const (
	//QueryToken token in query name
	QueryToken = "auth"

	//CookieToken token in cookie name
	CookieToken = "auth_token"

	//TokenSubject get subject form token, set c.locals name
	TokenSubject = "Subject"
	//TokenRole get role form token, set c.locals name
	TokenRole = "role"
)

// JWTMiddleware validates JWT from Authorization: Bearer, query or cookie.
// When roles is not empty the token role must be one of them.
func JWTMiddleware(secret []byte, roles ...t_token.RoleType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := bearer(c.Get(fiber.HeaderAuthorization))

		if tokenStr == "" {
			tokenStr = c.Query(QueryToken)
		}

		// 如果查詢參數中沒有 token，則嘗試從 Cookie 中獲取
		if tokenStr == "" {
			tokenStr = c.Cookies(CookieToken)
		}

		// 如果仍然沒有 token，則返回未授權錯誤
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token",
			})
		}

		claims, err := t_token.ParseJWT(secret, tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		if len(roles) > 0 && !hasRole(claims.Role, roles) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient role",
			})
		}

		c.Locals(TokenSubject, claims.Subject)
		c.Locals(TokenRole, claims.Role)
		return c.Next()
	}
}

func bearer(h string) string {
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func hasRole(role string, roles []t_token.RoleType) bool {
	for _, r := range roles {
		if string(r) == role {
			return true
		}
	}
	return false
}

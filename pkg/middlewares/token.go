package middlewares

import (
	"context"

	t_token "chat_room_client/pkg/token"

	"github.com/gofiber/fiber/v2"
)

const (
	//QueryToken token in query name
	QueryToken = "auth"

	//CookieToken token in cookie name
	CookieToken = "auth_token"

	//TokenMemberID get member form token, set c.locals name
	TokenMemberID = "MemberID"
	//TokenRole get role form token, set c.locals name
	TokenRole = "role"
)

// SessionCheck 額外檢查 token 對應的 session 仍有效
type SessionCheck func(ctx context.Context, token string) error

// TokenFromRequest query 優先, 其次 cookie, 最後 Authorization header
func TokenFromRequest(c *fiber.Ctx) string {
	if tokenStr := c.Query(QueryToken); tokenStr != "" {
		return tokenStr
	}
	if tokenStr := c.Cookies(CookieToken); tokenStr != "" {
		return tokenStr
	}
	tokenStr, _ := t_token.FromBearer(c.Get(fiber.HeaderAuthorization))
	return tokenStr
}

// JWTMiddleware validates the JWT and stores its claims in c.Locals
func JWTMiddleware(checks ...SessionCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := TokenFromRequest(c)

		// 沒有 token，則返回未授權錯誤
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token",
			})
		}

		claims, err := t_token.ParseJWTFunc(tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		for _, check := range checks {
			if err := check(c.UserContext(), tokenStr); err != nil {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Session expired",
				})
			}
		}

		c.Locals(TokenMemberID, claims.MemberID)
		c.Locals(TokenRole, claims.Role)
		return c.Next()
	}
}

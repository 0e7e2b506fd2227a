package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// LocalOperatorID is the fiber locals key holding the authenticated operator.
const LocalOperatorID = "operator_id"

// JWTMiddleware validates bearer tokens and stores the operator id in locals.
func JWTMiddleware(secret string) fiber.Handler {
	secretBytes := []byte(secret)
	return func(c *fiber.Ctx) error {
		token := parseBearer(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		parsed, err := parseMiddlewareClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
			return secretBytes, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		claims, ok := parsed.Claims.(*Claims)
		if !ok || !parsed.Valid || claims.OperatorID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, ErrTokenInvalid.Error())
		}

		c.Locals(LocalOperatorID, claims.OperatorID)
		return c.Next()
	}
}

var parseMiddlewareClaimsFn = jwt.ParseWithClaims

// OperatorID returns the operator set by JWTMiddleware, or "".
func OperatorID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalOperatorID).(string)
	return id
}

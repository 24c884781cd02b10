package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jengzang/riskzone-engine/pkg/response"
)

// ActorKey is the gin context key holding the authenticated actor
const ActorKey = "actor"

// AnonymousActor is recorded when auth is optional and no token was sent
const AnonymousActor = "anonymous"

// Claims are the bearer token claims an actor is derived from
type Claims struct {
	UserID    string `json:"user_id,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
	OrgID     string `json:"org_id,omitempty"`
	jwt.RegisteredClaims
}

// Actor returns the most descriptive identity in the claims
func (c *Claims) Actor() string {
	switch {
	case c.UserEmail != "":
		return c.UserEmail
	case c.UserID != "":
		return c.UserID
	default:
		return c.Subject
	}
}

// Auth validates HS256 bearer tokens and stores the actor for audit fields.
// When required is false, requests without a token proceed as AnonymousActor.
func Auth(secret string, required bool) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if required {
				response.Unauthorized(c, "missing bearer token")
				return
			}
			c.Set(ActorKey, AnonymousActor)
			c.Next()
			return
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			response.Unauthorized(c, "malformed authorization header")
			return
		}

		claims := &Claims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.Unauthorized(c, "token expired")
				return
			}
			response.Unauthorized(c, "invalid token")
			return
		}

		actor := claims.Actor()
		if actor == "" {
			response.Unauthorized(c, "token carries no subject")
			return
		}
		c.Set(ActorKey, actor)
		if claims.OrgID != "" {
			c.Set("organization_id", claims.OrgID)
		}
		c.Next()
	}
}

// ActorFrom returns the actor stored by Auth, or AnonymousActor
func ActorFrom(c *gin.Context) string {
	if actor := c.GetString(ActorKey); actor != "" {
		return actor
	}
	return AnonymousActor
}

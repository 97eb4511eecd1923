package middleware

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/catalog/api/transport"
	"github.com/fastygo/catalog/domain"
)

// Roles carried in the "role" claim.
const (
	RoleAdmin        = "admin"
	RoleCollaborator = "collaborator"
)

// User values set on authenticated requests.
const (
	UserValueSubject = "auth_subject"
	UserValueRole    = "auth_role"
)

// Claims is the token payload the catalog accepts.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuth builds middleware that admits HMAC-signed tokens whose role is one
// of roles. An empty role list admits any valid token.
func JWTAuth(secret, issuer string, logger *zap.Logger) func(roles ...string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(roles ...string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
			return func(ctx *fasthttp.RequestCtx) {
				tokenString := extractToken(ctx)
				if tokenString == "" {
					deny(ctx, fasthttp.StatusUnauthorized, domain.ErrCodeUnauthorized, "missing bearer token")
					return
				}

				claims := &Claims{}
				token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
					if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
					}
					return []byte(secret), nil
				})
				if err != nil || !token.Valid {
					logger.Warn("invalid jwt token", zap.Error(err))
					deny(ctx, fasthttp.StatusUnauthorized, domain.ErrCodeUnauthorized, "invalid token")
					return
				}
				if issuer != "" && !claims.VerifyIssuer(issuer, true) {
					logger.Warn("jwt issuer mismatch", zap.String("issuer", claims.Issuer))
					deny(ctx, fasthttp.StatusUnauthorized, domain.ErrCodeUnauthorized, "invalid token")
					return
				}
				if !allowed(claims.Role, roles) {
					logger.Warn("role not allowed", zap.String("subject", claims.Subject), zap.String("role", claims.Role))
					deny(ctx, fasthttp.StatusForbidden, domain.ErrCodeForbidden, "role not allowed")
					return
				}

				ctx.SetUserValue(UserValueSubject, claims.Subject)
				ctx.SetUserValue(UserValueRole, claims.Role)
				next(ctx)
			}
		}
	}
}

func allowed(role string, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func deny(ctx *fasthttp.RequestCtx, status int, code domain.ErrorCode, message string) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBodyString(transport.NewError(string(code), message, nil).String())
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := string(ctx.Request.Header.Peek("Authorization"))
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}

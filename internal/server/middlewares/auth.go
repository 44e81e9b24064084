package middlewares

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	srvErrors "github.com/spicaengine/fnscheduler/pkg/errors"
)

const SubjectKey = "auth_subject"

const issuer = "fnscheduler"

// Authenticator accepts HS256 bearer tokens signed with secret. Tokens must
// carry an expiry.
func Authenticator(secret []byte) gin.HandlerFunc {
	log := zap.S().Named("auth")

	return func(c *gin.Context) {
		subject, err := Verify(secret, c.GetHeader("Authorization"))
		if err != nil {
			log.Debugw("request rejected", "path", c.Request.URL.Path, "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(SubjectKey, subject)
		c.Next()
	}
}

// Verify checks an Authorization header value and returns the token subject.
func Verify(secret []byte, header string) (string, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", srvErrors.NewUnauthorizedError("missing bearer token")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return "", srvErrors.NewUnauthorizedError(err.Error())
	}
	return claims.Subject, nil
}

// SignToken issues a token Authenticator accepts.
func SignToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

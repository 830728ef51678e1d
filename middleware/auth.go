package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gestia/mailroom/cache"
	"github.com/gestia/mailroom/config"
	"github.com/gin-gonic/gin"
)

const AccountIDKey = "account_id"
const AccountNameKey = "account_name"
const AccountEmailKey = "account_email"

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// Check session still valid in cache.
		sessionKey := "session:" + tokenStr
		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, sessionKey)
		if err != nil || !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		ctx.Set(AccountIDKey, claims.AccountID)
		ctx.Set(AccountNameKey, claims.Name)
		ctx.Set(AccountEmailKey, claims.Email)
		ctx.Next()
	}
}

// GetAccountID retrieves the authenticated account ID from the Gin context.
func GetAccountID(c *gin.Context) int64 {
	if v, exists := c.Get(AccountIDKey); exists {
		return v.(int64)
	}
	return 0
}

// GetAccountName retrieves the authenticated account's display name.
func GetAccountName(c *gin.Context) string {
	if v, exists := c.Get(AccountNameKey); exists {
		return v.(string)
	}
	return ""
}

// GetAccountEmail retrieves the authenticated account's email.
func GetAccountEmail(c *gin.Context) string {
	if v, exists := c.Get(AccountEmailKey); exists {
		return v.(string)
	}
	return ""
}

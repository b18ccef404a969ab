package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/viewisland/internal/db"
	"github.com/viewisland/internal/service"
)

const principalKey = "principal"

// 会话中保存的字段
const (
	SessionUserID = "user_id"
	SessionEmail  = "email"
	SessionRole   = "role"
)

// TokenVerifier 校验 Bearer 令牌。
type TokenVerifier interface {
	VerifyToken(raw string) (*service.Principal, error)
}

// Authenticate 解析调用者身份：优先使用 Authorization: Bearer，
// 其次使用会话 cookie。两者都没有时返回 401。
func Authenticate(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
				return
			}
			principal, err := verifier.VerifyToken(parts[1])
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
				return
			}
			c.Set(principalKey, principal)
			c.Next()
			return
		}

		if principal := sessionPrincipal(c); principal != nil {
			c.Set(principalKey, principal)
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
}

// CurrentPrincipal returns the authenticated caller, or nil.
func CurrentPrincipal(c *gin.Context) *service.Principal {
	value, exists := c.Get(principalKey)
	if !exists {
		return nil
	}
	principal, _ := value.(*service.Principal)
	return principal
}

// SaveSession 将身份写入会话 cookie。
func SaveSession(c *gin.Context, principal service.Principal) error {
	session := sessions.Default(c)
	session.Set(SessionUserID, principal.UserID)
	session.Set(SessionEmail, principal.Email)
	session.Set(SessionRole, string(principal.Role))
	return session.Save()
}

// ClearSession 清空会话。
func ClearSession(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	return session.Save()
}

func sessionPrincipal(c *gin.Context) *service.Principal {
	// 未挂载会话中间件时 sessions.Default 会 panic
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return nil
	}
	session := sessions.Default(c)

	userID, ok := session.Get(SessionUserID).(uint)
	if !ok || userID == 0 {
		return nil
	}
	role := db.Role(stringValue(session.Get(SessionRole)))
	if !role.Valid() {
		return nil
	}
	return &service.Principal{
		UserID: userID,
		Email:  stringValue(session.Get(SessionEmail)),
		Role:   role,
	}
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

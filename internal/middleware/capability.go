package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/viewisland/internal/db"
)

// Operation 是需要授权的后台操作。
type Operation string

const (
	OpCreatePost      Operation = "create-post"
	OpUpdatePost      Operation = "update-post"
	OpDeletePost      Operation = "delete-post"
	OpListPosts       Operation = "list-posts"
	OpGetPost         Operation = "get-post"
	OpAdminOverview   Operation = "admin-overview"
	OpGeoBreakdown    Operation = "admin-geo-breakdown"
	OpCreateCategory  Operation = "create-category"
	OpUpdateCategory  Operation = "update-category"
	OpDeleteCategory  Operation = "delete-category"
	OpListSubscribers Operation = "list-subscribers"
)

var (
	allRoles    = []db.Role{db.RoleSuperAdmin, db.RoleEditor, db.RoleWriter}
	editorAndUp = []db.Role{db.RoleSuperAdmin, db.RoleEditor}
	superOnly   = []db.Role{db.RoleSuperAdmin}
)

// Capabilities 是操作到允许角色的静态映射。
var Capabilities = map[Operation][]db.Role{
	OpCreatePost:      allRoles,
	OpUpdatePost:      allRoles,
	OpDeletePost:      allRoles,
	OpListPosts:       editorAndUp,
	OpGetPost:         editorAndUp,
	OpAdminOverview:   editorAndUp,
	OpGeoBreakdown:    editorAndUp,
	OpCreateCategory:  editorAndUp,
	OpUpdateCategory:  superOnly,
	OpDeleteCategory:  superOnly,
	OpListSubscribers: superOnly,
}

// Allowed reports whether role may perform op. Unknown operations are denied.
func Allowed(op Operation, role db.Role) bool {
	for _, r := range Capabilities[op] {
		if r == role {
			return true
		}
	}
	return false
}

// RequireCapability 必须挂在 Authenticate 之后。
func RequireCapability(op Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := CurrentPrincipal(c)
		if principal == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !Allowed(op, principal.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		c.Next()
	}
}

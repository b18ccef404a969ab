package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/viewisland/internal/handler"
	"github.com/viewisland/internal/logging"
	"github.com/viewisland/internal/metrics"
	"github.com/viewisland/internal/middleware"
	"go.uber.org/zap"
)

const sessionName = "viewisland_session"

// Options 配置路由依赖。
type Options struct {
	SessionSecret string
	// ViewLimiter 为空时使用每分钟 5 次的内存限流。
	ViewLimiter middleware.Limiter
	// TrustedProxies 为空时不信任任何代理头，ClientIP 取连接地址。
	TrustedProxies []string
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, opts Options) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		logging.L().Warn("invalid trusted proxies, trusting none", zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Metrics())

	store := cookie.NewStore([]byte(opts.SessionSecret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode, MaxAge: 86400})
	r.Use(sessions.Sessions(sessionName, store))

	limiter := opts.ViewLimiter
	if limiter == nil {
		limiter = middleware.NewMemoryLimiter(5, time.Minute)
	}

	r.GET("/healthz", api.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api")
	{
		posts := apiGroup.Group("/posts")
		posts.GET("", api.ListPosts)
		posts.GET("/trending", api.TrendingPosts)
		posts.GET("/:post", api.GetPostBySlug)
		posts.POST("/:post/view",
			middleware.RateLimit(limiter, middleware.ViewKey("post"), func(*gin.Context) {
				metrics.ViewsRateLimited.Inc()
			}),
			api.RecordView,
		)

		apiGroup.GET("/categories", api.ListCategories)
		apiGroup.GET("/categories/:slug", api.GetCategory)

		apiGroup.GET("/authors/:id", api.GetAuthor)

		apiGroup.POST("/subscribers", api.Subscribe)
		apiGroup.POST("/subscribers/:id/unsubscribe", api.Unsubscribe)

		apiGroup.POST("/auth/login", api.Login)
		apiGroup.POST("/auth/logout", api.Logout)
	}

	// 需要认证的后台路由
	admin := apiGroup.Group("/admin")
	admin.Use(middleware.Authenticate(api.Auth()))
	{
		admin.GET("/me", api.Me)

		admin.GET("/posts", middleware.RequireCapability(middleware.OpListPosts), api.AdminListPosts)
		admin.POST("/posts", middleware.RequireCapability(middleware.OpCreatePost), api.CreatePost)
		admin.GET("/posts/:id", middleware.RequireCapability(middleware.OpGetPost), api.AdminGetPost)
		admin.PATCH("/posts/:id", middleware.RequireCapability(middleware.OpUpdatePost), api.UpdatePost)
		admin.DELETE("/posts/:id", middleware.RequireCapability(middleware.OpDeletePost), api.DeletePost)

		admin.GET("/stats", middleware.RequireCapability(middleware.OpAdminOverview), api.AdminStats)
		admin.GET("/stats/geo", middleware.RequireCapability(middleware.OpGeoBreakdown), api.GeoStats)

		admin.POST("/categories", middleware.RequireCapability(middleware.OpCreateCategory), api.CreateCategory)
		admin.PATCH("/categories/:id", middleware.RequireCapability(middleware.OpUpdateCategory), api.UpdateCategory)
		admin.DELETE("/categories/:id", middleware.RequireCapability(middleware.OpDeleteCategory), api.DeleteCategory)

		admin.GET("/subscribers", middleware.RequireCapability(middleware.OpListSubscribers), api.ListSubscribers)
	}

	return r
}

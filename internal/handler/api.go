package handler

import (
	"time"

	"github.com/viewisland/internal/geo"
	"github.com/viewisland/internal/service"
	"gorm.io/gorm"
)

// Options 配置 handler 依赖的外部组件。
type Options struct {
	Geo      geo.Resolver
	Location *time.Location
	Clock    service.Clock
	JWT      string
	TokenTTL time.Duration
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db          *gorm.DB
	posts       *service.PostService
	analytics   *service.AnalyticsService
	categories  *service.CategoryService
	subscribers *service.SubscriberService
	authors     *service.AuthorService
	auth        *service.AuthService
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB, opts Options) *API {
	api := &API{
		db:          gdb,
		posts:       service.NewPostService(gdb),
		analytics:   service.NewAnalyticsService(gdb, opts.Geo).WithLocation(opts.Location),
		categories:  service.NewCategoryService(gdb),
		subscribers: service.NewSubscriberService(gdb),
		authors:     service.NewAuthorService(gdb),
		auth:        service.NewAuthService(gdb, opts.JWT, opts.TokenTTL),
	}
	if opts.Clock != nil {
		api.posts.WithClock(opts.Clock)
		api.analytics.WithClock(opts.Clock)
		api.categories.WithClock(opts.Clock)
		api.subscribers.WithClock(opts.Clock)
		api.authors.WithClock(opts.Clock)
		api.auth.WithClock(opts.Clock)
	}
	return api
}

// Auth exposes the token verifier for the auth middleware.
func (a *API) Auth() *service.AuthService {
	return a.auth
}

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/viewisland/internal/db"
	"github.com/viewisland/internal/geo"
	"github.com/viewisland/internal/handler"
	"github.com/viewisland/internal/logging"
	"github.com/viewisland/internal/middleware"
	"github.com/viewisland/internal/router"
	"github.com/viewisland/internal/service"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

var ginOnce sync.Once

type testEnv struct {
	db       *gorm.DB
	router   *gin.Engine
	now      time.Time
	category db.Category
	tokens   map[db.Role]string
}

func setupHandlerTest(t *testing.T) *testEnv {
	t.Helper()
	ginOnce.Do(func() {
		gin.SetMode(gin.TestMode)
	})

	dsn := fmt.Sprintf("file:handler-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := db.Open(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	resolver, err := geo.NewStaticResolver(map[string]string{"192.0.2.0/24": "US", "198.51.100.0/24": "GB"})
	if err != nil {
		t.Fatalf("failed to build resolver: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	api := handler.NewAPI(gdb, handler.Options{
		Geo:      resolver,
		Location: time.UTC,
		Clock:    func() time.Time { return now },
		JWT:      "handler-test-secret",
		TokenTTL: time.Hour,
	})
	r := router.SetupRouter(api, router.Options{
		SessionSecret: "handler-session-secret",
		ViewLimiter:   middleware.NewMemoryLimiter(5, time.Minute),
	})

	env := &testEnv{db: gdb, router: r, now: now, tokens: map[db.Role]string{}}

	env.category = db.Category{Name: "World", Slug: "world"}
	if err := gdb.Create(&env.category).Error; err != nil {
		t.Fatalf("failed to seed category: %v", err)
	}

	for _, role := range []db.Role{db.RoleSuperAdmin, db.RoleEditor, db.RoleWriter} {
		email := fmt.Sprintf("%s@example.com", role)
		if _, err := service.CreateUser(context.Background(), gdb, email, "secret-pass", string(role), role); err != nil {
			t.Fatalf("failed to seed %s: %v", role, err)
		}
		w := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": "secret-pass"})
		if w.Code != http.StatusOK {
			t.Fatalf("login as %s failed: %d %s", role, w.Code, w.Body.String())
		}
		var login service.LoginResult
		decode(t, w, &login)
		env.tokens[role] = login.Token
	}

	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return e.doFrom(t, method, path, token, body, "192.0.2.10:4321")
}

func (e *testEnv) doFrom(t *testing.T, method, path, token string, body interface{}, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = remoteAddr
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func (e *testEnv) createPost(t *testing.T, payload map[string]interface{}) db.Post {
	t.Helper()
	if _, ok := payload["categoryId"]; !ok {
		payload["categoryId"] = e.category.ID
	}
	w := e.do(t, http.MethodPost, "/api/admin/posts", e.tokens[db.RoleWriter], payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("create post failed: %d %s", w.Code, w.Body.String())
	}
	var post db.Post
	decode(t, w, &post)
	return post
}

func TestPublicPostEndpoints(t *testing.T) {
	env := setupHandlerTest(t)

	published := env.createPost(t, map[string]interface{}{"title": "Breaking News", "content": "**hello**", "status": "PUBLISHED"})
	env.createPost(t, map[string]interface{}{"title": "Quiet Draft"})
	env.createPost(t, map[string]interface{}{
		"title":       "Scheduled",
		"status":      "PUBLISHED",
		"publishedAt": env.now.Add(time.Hour),
	})

	w := env.do(t, http.MethodGet, "/api/posts?page=1&limit=10", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list posts: expected 200, got %d", w.Code)
	}
	var list service.PublishedList
	decode(t, w, &list)
	if list.Meta.Total != 1 || len(list.Data) != 1 || list.Data[0].Slug != "breaking-news" {
		t.Fatalf("unexpected public list: %+v", list)
	}
	if list.Data[0].Author.FullName != string(db.RoleWriter) {
		t.Fatalf("expected author summary, got %+v", list.Data[0].Author)
	}

	w = env.do(t, http.MethodGet, "/api/posts/breaking-news", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("post detail: expected 200, got %d", w.Code)
	}
	var detail service.PostDetail
	decode(t, w, &detail)
	if detail.ID != published.ID || detail.ContentHTML == "" {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("@example.com")) {
		t.Fatalf("author email must not be exposed: %s", w.Body.String())
	}

	for _, slug := range []string{"quiet-draft", "scheduled", "missing"} {
		if w := env.do(t, http.MethodGet, "/api/posts/"+slug, "", nil); w.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", slug, w.Code)
		}
	}

	w = env.do(t, http.MethodGet, "/api/posts/trending", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("trending: expected 200, got %d", w.Code)
	}
	var trending []service.PostSummary
	decode(t, w, &trending)
	if len(trending) != 1 {
		t.Fatalf("expected 1 trending post, got %d", len(trending))
	}
}

func TestAuthorProfileEndpoint(t *testing.T) {
	env := setupHandlerTest(t)

	var writer db.User
	if err := env.db.Where("role = ?", db.RoleWriter).First(&writer).Error; err != nil {
		t.Fatalf("load writer: %v", err)
	}
	if err := env.db.Model(&writer).Update("bio", "Island correspondent").Error; err != nil {
		t.Fatalf("set bio: %v", err)
	}

	env.createPost(t, map[string]interface{}{"title": "Ferry Strike", "status": "PUBLISHED"})
	env.createPost(t, map[string]interface{}{"title": "Unsent Draft"})
	env.createPost(t, map[string]interface{}{
		"title":       "Embargoed",
		"status":      "PUBLISHED",
		"publishedAt": env.now.Add(time.Hour),
	})

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/authors/%d", writer.ID), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("author profile: expected 200, got %d %s", w.Code, w.Body.String())
	}
	var profile service.AuthorProfile
	decode(t, w, &profile)
	if profile.Bio != "Island correspondent" || len(profile.Posts) != 1 || profile.Posts[0].Slug != "ferry-strike" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	for _, private := range []string{"@example.com", "password", "role"} {
		if bytes.Contains(w.Body.Bytes(), []byte(private)) {
			t.Fatalf("profile must not expose %q: %s", private, w.Body.String())
		}
	}

	if w := env.do(t, http.MethodGet, "/api/authors/9999", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing author: expected 404, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/authors/abc", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad author id: expected 400, got %d", w.Code)
	}
}

func TestRecordViewEndpoint(t *testing.T) {
	env := setupHandlerTest(t)
	post := env.createPost(t, map[string]interface{}{"title": "Viewed", "status": "PUBLISHED"})
	path := fmt.Sprintf("/api/posts/%d/view", post.ID)

	for i := 0; i < 3; i++ {
		w := env.do(t, http.MethodPost, path, "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("view %d: expected 200, got %d %s", i, w.Code, w.Body.String())
		}
	}
	w := env.doFrom(t, http.MethodPost, path, "", nil, "127.0.0.1:9999")
	var result service.ViewResult
	decode(t, w, &result)
	if result.Views != 4 || result.Country != db.UnknownCountry {
		t.Fatalf("unexpected view result: %+v", result)
	}

	w = env.do(t, http.MethodGet, "/api/admin/stats/geo?range=24h", env.tokens[db.RoleEditor], nil)
	if w.Code != http.StatusOK {
		t.Fatalf("geo stats: expected 200, got %d", w.Code)
	}
	var breakdown service.GeoBreakdown
	decode(t, w, &breakdown)
	if breakdown.Total != 4 || breakdown.Countries[0].Country != "US" || breakdown.Countries[0].Views != 3 {
		t.Fatalf("unexpected geo breakdown: %+v", breakdown)
	}
	if breakdown.Countries[0].Percent != 75 || breakdown.Countries[1].Percent != 25 {
		t.Fatalf("unexpected percents: %+v", breakdown.Countries)
	}

	if w := env.do(t, http.MethodPost, "/api/posts/99999/view", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing post view: expected 404, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/posts/abc/view", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", w.Code)
	}
}

func TestRecordViewIsRateLimited(t *testing.T) {
	env := setupHandlerTest(t)
	post := env.createPost(t, map[string]interface{}{"title": "Hot", "status": "PUBLISHED"})
	path := fmt.Sprintf("/api/posts/%d/view", post.ID)

	for i := 0; i < 5; i++ {
		if w := env.do(t, http.MethodPost, path, "", nil); w.Code != http.StatusOK {
			t.Fatalf("view %d: expected 200, got %d", i, w.Code)
		}
	}
	w := env.do(t, http.MethodPost, path, "", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	// 其他 IP 不受影响
	if w := env.doFrom(t, http.MethodPost, path, "", nil, "198.51.100.7:1000"); w.Code != http.StatusOK {
		t.Fatalf("other client: expected 200, got %d", w.Code)
	}
}

func TestAdminAuthorization(t *testing.T) {
	env := setupHandlerTest(t)

	if w := env.do(t, http.MethodGet, "/api/admin/stats", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/admin/stats", "not-a-token", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/admin/stats", env.tokens[db.RoleWriter], nil); w.Code != http.StatusForbidden {
		t.Fatalf("writer stats: expected 403, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/admin/stats", env.tokens[db.RoleEditor], nil); w.Code != http.StatusOK {
		t.Fatalf("editor stats: expected 200, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/admin/subscribers", env.tokens[db.RoleEditor], nil); w.Code != http.StatusForbidden {
		t.Fatalf("editor subscribers: expected 403, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/admin/subscribers", env.tokens[db.RoleSuperAdmin], nil); w.Code != http.StatusOK {
		t.Fatalf("super admin subscribers: expected 200, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "EDITOR@example.com", "password": "nope"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", w.Code)
	}
}

func TestSessionCookieLogin(t *testing.T) {
	env := setupHandlerTest(t)

	login := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "EDITOR@example.com", "password": "secret-pass"})
	if login.Code != http.StatusOK {
		t.Fatalf("login failed: %d", login.Code)
	}
	cookies := login.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("expected session cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/me", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("session auth: expected 200, got %d", w.Code)
	}
	var me service.Principal
	decode(t, w, &me)
	if me.Role != db.RoleEditor {
		t.Fatalf("unexpected principal: %+v", me)
	}
}

func TestAdminPostLifecycle(t *testing.T) {
	env := setupHandlerTest(t)
	editor := env.tokens[db.RoleEditor]

	post := env.createPost(t, map[string]interface{}{"title": "Lifecycle", "status": "PUBLISHED"})
	if post.PublishedAt == nil {
		t.Fatalf("expected publishedAt to be set")
	}

	w := env.do(t, http.MethodPost, "/api/admin/posts", env.tokens[db.RoleWriter], map[string]interface{}{
		"title": "Lifecycle", "categoryId": env.category.ID,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate slug: expected 409, got %d", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/admin/posts", env.tokens[db.RoleWriter], map[string]interface{}{
		"title": "No Category", "categoryId": 999,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown category: expected 400, got %d", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/admin/posts", env.tokens[db.RoleWriter], map[string]interface{}{"categoryId": env.category.ID})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing title: expected 400, got %d", w.Code)
	}

	path := fmt.Sprintf("/api/admin/posts/%d", post.ID)
	w = env.do(t, http.MethodPatch, path, env.tokens[db.RoleWriter], map[string]interface{}{"status": "DRAFT", "views": 1000})
	if w.Code != http.StatusOK {
		t.Fatalf("unpublish: expected 200, got %d %s", w.Code, w.Body.String())
	}
	var updated db.Post
	decode(t, w, &updated)
	if updated.PublishedAt != nil || updated.Views != 0 {
		t.Fatalf("unexpected updated post: %+v", updated)
	}
	if w := env.do(t, http.MethodGet, "/api/posts/lifecycle", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unpublished post should be hidden, got %d", w.Code)
	}

	if w := env.do(t, http.MethodGet, path, env.tokens[db.RoleWriter], nil); w.Code != http.StatusForbidden {
		t.Fatalf("writer admin get: expected 403, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, path, editor, nil); w.Code != http.StatusOK {
		t.Fatalf("editor admin get: expected 200, got %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/admin/posts", editor, nil)
	var all []db.Post
	decode(t, w, &all)
	if len(all) != 1 {
		t.Fatalf("expected 1 post in admin list, got %d", len(all))
	}

	if w := env.do(t, http.MethodDelete, path, env.tokens[db.RoleWriter], nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, path, env.tokens[db.RoleWriter], nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", w.Code)
	}
}

func TestCategoryAndSubscriberEndpoints(t *testing.T) {
	env := setupHandlerTest(t)
	editor := env.tokens[db.RoleEditor]

	w := env.do(t, http.MethodPost, "/api/admin/categories", editor, map[string]string{"name": "Sport"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create category: expected 201, got %d", w.Code)
	}
	var sport db.Category
	decode(t, w, &sport)

	if w := env.do(t, http.MethodPost, "/api/admin/categories", editor, map[string]string{"name": "Sport"}); w.Code != http.StatusConflict {
		t.Fatalf("duplicate category: expected 409, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/admin/categories", env.tokens[db.RoleWriter], map[string]string{"name": "Arts"}); w.Code != http.StatusForbidden {
		t.Fatalf("writer category create: expected 403, got %d", w.Code)
	}

	env.createPost(t, map[string]interface{}{"title": "Match Report", "status": "PUBLISHED", "categoryId": sport.ID})

	w = env.do(t, http.MethodGet, "/api/categories/sport", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("category page: expected 200, got %d", w.Code)
	}
	var page service.CategoryPage
	decode(t, w, &page)
	if len(page.Posts) != 1 || page.Posts[0].Slug != "match-report" {
		t.Fatalf("unexpected category page: %+v", page)
	}

	w = env.do(t, http.MethodGet, "/api/posts?category=sport", "", nil)
	var filtered service.PublishedList
	decode(t, w, &filtered)
	if filtered.Meta.Total != 1 {
		t.Fatalf("expected 1 sport post, got %d", filtered.Meta.Total)
	}

	categoryPath := fmt.Sprintf("/api/admin/categories/%d", sport.ID)
	if w := env.do(t, http.MethodPatch, categoryPath, editor, map[string]string{"name": "Sports"}); w.Code != http.StatusForbidden {
		t.Fatalf("editor category update: expected 403, got %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, categoryPath, editor, nil); w.Code != http.StatusForbidden {
		t.Fatalf("editor category delete: expected 403, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPatch, categoryPath, env.tokens[db.RoleSuperAdmin], map[string]string{"name": " "}); w.Code != http.StatusBadRequest {
		t.Fatalf("blank category name: expected 400, got %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, categoryPath, env.tokens[db.RoleSuperAdmin], nil); w.Code != http.StatusConflict {
		t.Fatalf("delete in-use category: expected 409, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/subscribers", "", map[string]string{"email": "reader@example.com"})
	if w.Code != http.StatusCreated {
		t.Fatalf("subscribe: expected 201, got %d", w.Code)
	}
	var sub db.Subscriber
	decode(t, w, &sub)
	if w := env.do(t, http.MethodPost, "/api/subscribers", "", map[string]string{"email": "reader@example.com"}); w.Code != http.StatusConflict {
		t.Fatalf("duplicate subscribe: expected 409, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/subscribers", "", map[string]string{"email": "not-an-email"}); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid email: expected 400, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, fmt.Sprintf("/api/subscribers/%d/unsubscribe", sub.ID), "", nil); w.Code != http.StatusOK {
		t.Fatalf("unsubscribe: expected 200, got %d", w.Code)
	}
}

func TestAdminStatsAndHealth(t *testing.T) {
	env := setupHandlerTest(t)

	w := env.do(t, http.MethodGet, "/api/admin/stats", env.tokens[db.RoleSuperAdmin], nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", w.Code)
	}
	var stats service.AdminStats
	decode(t, w, &stats)
	if stats.Overview.TotalPosts != 0 || len(stats.CategoryData) != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if w := env.do(t, http.MethodGet, "/api/admin/stats/geo?range=1y", env.tokens[db.RoleSuperAdmin], nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad range: expected 400, got %d", w.Code)
	}

	if w := env.do(t, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/metrics", "", nil); w.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", w.Code)
	}
}

func TestInternalErrorsAreLoggedWithRequestID(t *testing.T) {
	env := setupHandlerTest(t)

	core, logs := observer.New(zap.ErrorLevel)
	previous := logging.L()
	logging.Set(zap.New(core))
	t.Cleanup(func() { logging.Set(previous) })

	sqlDB, err := env.db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.Header.Set("X-Request-ID", "req-broken-db")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("sql")) {
		t.Fatalf("internal error details must not leak: %s", w.Body.String())
	}

	entries := logs.FilterMessage("request failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one error log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-broken-db" || fields["path"] != "/api/posts" {
		t.Fatalf("unexpected log fields: %+v", fields)
	}

	if w := env.do(t, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz with closed db: expected 503, got %d", w.Code)
	}
}

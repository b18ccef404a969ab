package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/viewisland/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPage       = 1
	defaultPerPage    = 10
	maxPerPage        = 100
	trendingLimit     = 10
	categoryPageLimit = 10
)

// PostService wraps post related database operations:
// the publishing lifecycle and the public read paths.
type PostService struct {
	db    *gorm.DB
	clock Clock
}

// PostInput represents fields accepted when creating a post.
type PostInput struct {
	Title       string
	Slug        *string
	Excerpt     string
	Content     string
	CoverImage  string
	CategoryID  uint
	Status      db.PostStatus
	PublishedAt *time.Time
	IsTrending  bool
}

// PostPatch carries the fields supplied to an update; nil means untouched.
type PostPatch struct {
	Title       *string
	Slug        *string
	Excerpt     *string
	Content     *string
	CoverImage  *string
	CategoryID  *uint
	Status      *db.PostStatus
	PublishedAt *time.Time
	IsTrending  *bool
}

// PublicFilter describes filters for the public listing.
type PublicFilter struct {
	Page         int
	Limit        int
	CategorySlug string
}

// AuthorSummary 只包含可公开的作者字段。
type AuthorSummary struct {
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl"`
}

// CategorySummary 是列表中附带的栏目信息。
type CategorySummary struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// PostSummary 是不含正文的文章投影。
type PostSummary struct {
	ID          uint            `json:"id"`
	Title       string          `json:"title"`
	Slug        string          `json:"slug"`
	Excerpt     string          `json:"excerpt"`
	CoverImage  string          `json:"coverImage"`
	PublishedAt *time.Time      `json:"publishedAt"`
	Views       int64           `json:"views"`
	IsTrending  bool            `json:"isTrending"`
	Category    CategorySummary `json:"category"`
	Author      AuthorSummary   `json:"author"`
}

// PostDetail 是详情页投影，包含正文及渲染后的 HTML。
type PostDetail struct {
	PostSummary
	Content     string `json:"content"`
	ContentHTML string `json:"contentHtml"`
}

// ListMeta 分页信息
type ListMeta struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	LastPage int   `json:"lastPage"`
}

// PublishedList aggregates a page of visible posts and its counters.
type PublishedList struct {
	Data []PostSummary `json:"data"`
	Meta ListMeta      `json:"meta"`
}

var summaryColumns = []string{
	"posts.id", "posts.title", "posts.slug", "posts.excerpt", "posts.cover_image",
	"posts.status", "posts.published_at", "posts.views", "posts.is_trending",
	"posts.author_id", "posts.category_id", "posts.created_at", "posts.updated_at",
}

// NewPostService creates a PostService instance.
func NewPostService(gdb *gorm.DB) *PostService {
	return &PostService{db: gdb, clock: systemClock}
}

// WithClock 替换时间来源，便于测试定时发布。
func (s *PostService) WithClock(clock Clock) *PostService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Create persists a new post authored by authorID.
// 未提供 slug 时由标题生成；slug 预检查只是快速路径，唯一索引才是最终依据。
func (s *PostService) Create(ctx context.Context, input PostInput, authorID uint) (*db.Post, error) {
	slug, err := resolveSlug(input.Slug, input.Title)
	if err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = db.StatusDraft
	}
	if status != db.StatusDraft && status != db.StatusPublished {
		return nil, ErrInvalidStatus
	}

	taken, err := s.slugExists(ctx, slug, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrSlugTaken
	}

	post := db.Post{
		Title:       strings.TrimSpace(input.Title),
		Slug:        slug,
		Excerpt:     strings.TrimSpace(input.Excerpt),
		Content:     input.Content,
		CoverImage:  strings.TrimSpace(input.CoverImage),
		Status:      status,
		PublishedAt: schedulePublication(status, input.PublishedAt, s.clock()),
		IsTrending:  input.IsTrending,
		AuthorID:    authorID,
		CategoryID:  input.CategoryID,
	}

	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&post).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("create post: %w", err)
	}

	return &post, nil
}

// Update applies the supplied fields to an existing post. Views are never written here.
func (s *PostService) Update(ctx context.Context, id uint, patch PostPatch) (*db.Post, error) {
	var post db.Post
	err := db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.First(&post, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPostNotFound
			}
			return err
		}

		if err := applyPatch(&post, patch, s.clock()); err != nil {
			return err
		}

		return tx.Model(&post).
			Omit(clause.Associations).
			Select("title", "slug", "excerpt", "content", "cover_image", "status",
				"published_at", "is_trending", "category_id", "updated_at").
			Updates(&post).Error
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrSlugTaken
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("update post %d: %w", id, err)
	}

	return &post, nil
}

// Delete removes a post and its per-day statistics.
func (s *PostService) Delete(ctx context.Context, id uint) error {
	err := db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&db.DailyPostStat{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&db.Post{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrPostNotFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete post %d: %w", id, err)
	}
	return err
}

// Get fetches a post by id regardless of status, for the admin panel.
func (s *PostService) Get(ctx context.Context, id uint) (*db.Post, error) {
	var post db.Post
	if err := s.db.WithContext(ctx).Preload("Category").Preload("Author").First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

// ListForAdmin returns every post, most recently edited first.
func (s *PostService) ListForAdmin(ctx context.Context) ([]db.Post, error) {
	var posts []db.Post
	if err := s.db.WithContext(ctx).
		Select(summaryColumns).
		Preload("Category").
		Preload("Author").
		Order("posts.updated_at desc, posts.id desc").
		Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// ListPublished 返回可见文章的分页列表。count 与列表在同一个读事务中执行，
// total/lastPage 与返回的数据一致。
func (s *PostService) ListPublished(ctx context.Context, filter PublicFilter) (*PublishedList, error) {
	page, limit := normalizePage(filter.Page, filter.Limit)
	categorySlug := strings.TrimSpace(filter.CategorySlug)
	now := s.clock()

	var (
		total int64
		posts []db.Post
	)

	err := db.Snapshot(ctx, s.db, func(tx *gorm.DB) error {
		base := func() *gorm.DB {
			q := tx.Model(&db.Post{}).Scopes(visibleAt(now))
			if categorySlug != "" {
				q = q.Where("posts.category_id IN (?)",
					tx.Model(&db.Category{}).Select("id").Where("slug = ?", categorySlug))
			}
			return q
		}

		if err := base().Count(&total).Error; err != nil {
			return err
		}

		offset, ok := pageOffset(page, limit)
		if !ok || int64(offset) >= total {
			return nil
		}
		return preloadSummary(base()).
			Order("posts.published_at desc, posts.id desc").
			Limit(limit).
			Offset(offset).
			Find(&posts).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list published posts: %w", err)
	}

	result := &PublishedList{
		Data: make([]PostSummary, 0, len(posts)),
		Meta: ListMeta{
			Total:    total,
			Page:     page,
			LastPage: int((total + int64(limit) - 1) / int64(limit)),
		},
	}
	for i := range posts {
		result.Data = append(result.Data, toSummary(&posts[i]))
	}
	return result, nil
}

// Trending 返回浏览量最高的 10 篇可见文章。
func (s *PostService) Trending(ctx context.Context) ([]PostSummary, error) {
	var posts []db.Post
	if err := preloadSummary(s.db.WithContext(ctx).Model(&db.Post{}).Scopes(visibleAt(s.clock()))).
		Order("posts.views desc, posts.published_at desc, posts.id desc").
		Limit(trendingLimit).
		Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("list trending posts: %w", err)
	}

	summaries := make([]PostSummary, 0, len(posts))
	for i := range posts {
		summaries = append(summaries, toSummary(&posts[i]))
	}
	return summaries, nil
}

// BySlug 返回可见文章的完整投影。不存在、草稿、未到发布时间统一返回 ErrPostNotFound。
func (s *PostService) BySlug(ctx context.Context, slug string) (*PostDetail, error) {
	var post db.Post
	if err := s.db.WithContext(ctx).
		Preload("Category").
		Preload("Author", publicAuthorColumns).
		Where("slug = ?", strings.TrimSpace(slug)).
		First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("load post %q: %w", slug, err)
	}

	visible, err := ResolveVisible(&post, s.clock())
	if err != nil {
		return nil, err
	}

	html, err := RenderContent(visible.Content)
	if err != nil {
		return nil, fmt.Errorf("render post %q: %w", slug, err)
	}

	return &PostDetail{
		PostSummary: toSummary(visible),
		Content:     visible.Content,
		ContentHTML: html,
	}, nil
}

func (s *PostService) slugExists(ctx context.Context, slug string, excludeID uint) (bool, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&db.Post{}).Where("slug = ?", slug)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// schedulePublication 计算新建文章的发布时间：
// 草稿始终为空；已发布且未指定时间则取 now；指定的时间（过去或未来）原样使用。
func schedulePublication(status db.PostStatus, requested *time.Time, now time.Time) *time.Time {
	if status != db.StatusPublished {
		return nil
	}
	if requested != nil && !requested.IsZero() {
		at := requested.UTC()
		return &at
	}
	at := now.UTC()
	return &at
}

func applyPatch(post *db.Post, patch PostPatch, now time.Time) error {
	if patch.Title != nil {
		post.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Slug != nil {
		slug := strings.TrimSpace(*patch.Slug)
		if slug == "" {
			return ErrEmptySlug
		}
		post.Slug = slug
	}
	if patch.Excerpt != nil {
		post.Excerpt = strings.TrimSpace(*patch.Excerpt)
	}
	if patch.Content != nil {
		post.Content = *patch.Content
	}
	if patch.CoverImage != nil {
		post.CoverImage = strings.TrimSpace(*patch.CoverImage)
	}
	if patch.CategoryID != nil {
		post.CategoryID = *patch.CategoryID
	}
	if patch.IsTrending != nil {
		post.IsTrending = *patch.IsTrending
	}
	if patch.Status != nil {
		if *patch.Status != db.StatusDraft && *patch.Status != db.StatusPublished {
			return ErrInvalidStatus
		}
		post.Status = *patch.Status
	}

	switch post.Status {
	case db.StatusDraft:
		post.PublishedAt = nil
	case db.StatusPublished:
		if patch.PublishedAt != nil && !patch.PublishedAt.IsZero() {
			at := patch.PublishedAt.UTC()
			post.PublishedAt = &at
		} else if post.PublishedAt == nil {
			at := now.UTC()
			post.PublishedAt = &at
		}
	}
	return nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultPerPage
	}
	if limit > maxPerPage {
		limit = maxPerPage
	}
	return page, limit
}

// pageOffset 计算 (page-1)*limit，结果溢出 int 时返回 false。
func pageOffset(page, limit int) (int, bool) {
	if page < 1 || limit < 1 {
		return 0, false
	}
	if page-1 > math.MaxInt/limit {
		return 0, false
	}
	return (page - 1) * limit, true
}

func publicAuthorColumns(q *gorm.DB) *gorm.DB {
	return q.Select("id", "full_name", "avatar_url")
}

func preloadSummary(q *gorm.DB) *gorm.DB {
	return q.Select(summaryColumns).
		Preload("Category").
		Preload("Author", publicAuthorColumns)
}

func toSummary(post *db.Post) PostSummary {
	return PostSummary{
		ID:          post.ID,
		Title:       post.Title,
		Slug:        post.Slug,
		Excerpt:     post.Excerpt,
		CoverImage:  post.CoverImage,
		PublishedAt: post.PublishedAt,
		Views:       post.Views,
		IsTrending:  post.IsTrending,
		Category:    CategorySummary{Name: post.Category.Name, Slug: post.Category.Slug},
		Author:      AuthorSummary{FullName: post.Author.FullName, AvatarURL: post.Author.AvatarURL},
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/viewisland/internal/db"
	"gorm.io/gorm"
)

// CategoryService wraps category related operations.
type CategoryService struct {
	db    *gorm.DB
	clock Clock
}

// CategoryInput represents fields accepted when creating a category.
type CategoryInput struct {
	Name        string
	Slug        *string
	Description string
}

// CategoryPatch carries the supplied fields of an update.
type CategoryPatch struct {
	Name        *string
	Slug        *string
	Description *string
}

// CategoryWithCount 栏目及其文章数（含草稿）
type CategoryWithCount struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	PostCount   int64  `json:"postCount"`
}

// CategoryPage 栏目页：栏目信息与最新的可见文章。
type CategoryPage struct {
	ID          uint          `json:"id"`
	Name        string        `json:"name"`
	Slug        string        `json:"slug"`
	Description string        `json:"description"`
	Posts       []PostSummary `json:"posts"`
}

// NewCategoryService creates a CategoryService instance.
func NewCategoryService(gdb *gorm.DB) *CategoryService {
	return &CategoryService{db: gdb, clock: systemClock}
}

// WithClock 替换时间来源。
func (s *CategoryService) WithClock(clock Clock) *CategoryService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Create 新建栏目，未提供 slug 时由名称生成。
func (s *CategoryService) Create(ctx context.Context, input CategoryInput) (*db.Category, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, ErrEmptyName
	}
	slug, err := resolveSlug(input.Slug, input.Name)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&db.Category{}).
		Where("slug = ? OR name = ?", slug, strings.TrimSpace(input.Name)).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrCategoryExists
	}

	category := db.Category{
		Name:        strings.TrimSpace(input.Name),
		Slug:        slug,
		Description: strings.TrimSpace(input.Description),
	}
	if err := s.db.WithContext(ctx).Create(&category).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("create category: %w", err)
	}
	return &category, nil
}

// List returns categories ordered by name with their post counts.
func (s *CategoryService) List(ctx context.Context) ([]CategoryWithCount, error) {
	rows := []CategoryWithCount{}
	if err := s.db.WithContext(ctx).Table("categories").
		Select("categories.id, categories.name, categories.slug, categories.description, COUNT(posts.id) AS post_count").
		Joins("LEFT JOIN posts ON posts.category_id = categories.id").
		Group("categories.id, categories.name, categories.slug, categories.description").
		Order("categories.name asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetBySlug 返回栏目及其最新 10 篇可见文章。
func (s *CategoryService) GetBySlug(ctx context.Context, slug string) (*CategoryPage, error) {
	var category db.Category
	if err := s.db.WithContext(ctx).Where("slug = ?", strings.TrimSpace(slug)).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}

	var posts []db.Post
	if err := preloadSummary(s.db.WithContext(ctx).Model(&db.Post{}).Scopes(visibleAt(s.clock()))).
		Where("posts.category_id = ?", category.ID).
		Order("posts.published_at desc, posts.id desc").
		Limit(categoryPageLimit).
		Find(&posts).Error; err != nil {
		return nil, err
	}

	page := &CategoryPage{
		ID:          category.ID,
		Name:        category.Name,
		Slug:        category.Slug,
		Description: category.Description,
		Posts:       make([]PostSummary, 0, len(posts)),
	}
	for i := range posts {
		page.Posts = append(page.Posts, toSummary(&posts[i]))
	}
	return page, nil
}

// Update 按提供的字段更新栏目。
func (s *CategoryService) Update(ctx context.Context, id uint, patch CategoryPatch) (*db.Category, error) {
	var category db.Category
	if err := s.db.WithContext(ctx).First(&category, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, ErrEmptyName
		}
		category.Name = name
	}
	if patch.Slug != nil {
		slug := strings.TrimSpace(*patch.Slug)
		if slug == "" {
			return nil, ErrEmptySlug
		}
		category.Slug = slug
	}
	if patch.Description != nil {
		category.Description = strings.TrimSpace(*patch.Description)
	}

	if err := s.db.WithContext(ctx).Save(&category).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("update category %d: %w", id, err)
	}
	return &category, nil
}

// Delete removes a category that no longer has posts.
func (s *CategoryService) Delete(ctx context.Context, id uint) error {
	return db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		var inUse int64
		if err := tx.Model(&db.Post{}).Where("category_id = ?", id).Count(&inUse).Error; err != nil {
			return err
		}
		if inUse > 0 {
			return ErrCategoryInUse
		}

		result := tx.Delete(&db.Category{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrCategoryNotFound
		}
		return nil
	})
}

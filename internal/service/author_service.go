package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/viewisland/internal/db"
	"gorm.io/gorm"
)

const authorPostsLimit = 20

// AuthorService 提供作者主页的只读查询。
type AuthorService struct {
	db    *gorm.DB
	clock Clock
}

// AuthorProfile 是作者的公开资料，不包含邮箱、密码和角色。
type AuthorProfile struct {
	ID            uint          `json:"id"`
	FullName      string        `json:"fullName"`
	AvatarURL     string        `json:"avatarUrl"`
	Bio           string        `json:"bio"`
	TwitterHandle string        `json:"twitterHandle"`
	LinkedinURL   string        `json:"linkedinUrl"`
	WebsiteURL    string        `json:"websiteUrl"`
	Posts         []PostSummary `json:"posts"`
}

// NewAuthorService creates an AuthorService.
func NewAuthorService(gdb *gorm.DB) *AuthorService {
	return &AuthorService{db: gdb, clock: systemClock}
}

// WithClock 替换时间来源。
func (s *AuthorService) WithClock(clock Clock) *AuthorService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Profile 返回作者公开资料及其最新的 20 篇可见文章。
// 草稿和尚未到发布时间的文章不会出现。
func (s *AuthorService) Profile(ctx context.Context, id uint) (*AuthorProfile, error) {
	now := s.clock()
	profile := &AuthorProfile{Posts: []PostSummary{}}

	err := db.Snapshot(ctx, s.db, func(tx *gorm.DB) error {
		var author db.User
		if err := tx.Select("id", "full_name", "avatar_url", "bio", "twitter_handle", "linkedin_url", "website_url").
			First(&author, id).Error; err != nil {
			return err
		}
		profile.ID = author.ID
		profile.FullName = author.FullName
		profile.AvatarURL = author.AvatarURL
		profile.Bio = author.Bio
		profile.TwitterHandle = author.TwitterHandle
		profile.LinkedinURL = author.LinkedinURL
		profile.WebsiteURL = author.WebsiteURL

		var posts []db.Post
		if err := preloadSummary(tx.Model(&db.Post{}).Scopes(visibleAt(now))).
			Where("posts.author_id = ?", id).
			Order("posts.published_at desc, posts.id desc").
			Limit(authorPostsLimit).
			Find(&posts).Error; err != nil {
			return err
		}
		for i := range posts {
			profile.Posts = append(profile.Posts, toSummary(&posts[i]))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuthorNotFound
		}
		return nil, fmt.Errorf("author profile %d: %w", id, err)
	}
	return profile, nil
}

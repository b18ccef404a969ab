package service

import (
	"time"

	"github.com/viewisland/internal/db"
	"gorm.io/gorm"
)

// Clock 返回当前时间，测试中可替换。
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// IsPublic 判断文章在 now 时刻是否对外可见：
// 状态为 PUBLISHED、发布时间非空且不晚于 now。
// 定时发布的文章不需要后台任务，每次读取时重新判断。
func IsPublic(post *db.Post, now time.Time) bool {
	if post == nil {
		return false
	}
	return post.Status == db.StatusPublished &&
		post.PublishedAt != nil &&
		!post.PublishedAt.After(now)
}

// ResolveVisible 仅在文章可见时返回它，否则返回与“不存在”相同的 ErrPostNotFound，
// 避免泄露草稿或定时文章的存在。
func ResolveVisible(post *db.Post, now time.Time) (*db.Post, error) {
	if !IsPublic(post, now) {
		return nil, ErrPostNotFound
	}
	return post, nil
}

// visibleAt 是 IsPublic 对应的查询条件。
func visibleAt(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where("posts.status = ? AND posts.published_at IS NOT NULL AND posts.published_at <= ?",
			db.StatusPublished, now.UTC())
	}
}

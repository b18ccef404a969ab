package db

import "time"

// PostStatus 描述文章的发布状态
type PostStatus string

const (
	StatusDraft     PostStatus = "DRAFT"
	StatusPublished PostStatus = "PUBLISHED"
)

// Post 定义了文章模型
// Views 只能通过浏览记录递增，编辑接口不会写入该字段。
// 文章为硬删除，删除后 slug 可被复用。
type Post struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:200;not null" json:"title"`
	Slug        string     `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Excerpt     string     `gorm:"size:512" json:"excerpt"`
	Content     string     `gorm:"type:text" json:"content"`
	CoverImage  string     `gorm:"size:512" json:"coverImage"`
	Status      PostStatus `gorm:"size:20;not null;default:DRAFT;index:idx_posts_visibility,priority:1" json:"status"`
	PublishedAt *time.Time `gorm:"index:idx_posts_visibility,priority:2" json:"publishedAt"`
	Views       int64      `gorm:"not null;default:0;index" json:"views"`
	IsTrending  bool       `gorm:"not null;default:false" json:"isTrending"`
	AuthorID    uint       `gorm:"index;not null" json:"authorId"`
	Author      User       `gorm:"constraint:OnDelete:RESTRICT" json:"author"`
	CategoryID  uint       `gorm:"index;not null" json:"categoryId"`
	Category    Category   `gorm:"constraint:OnDelete:RESTRICT" json:"category"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TableName 指定自定义表名。
func (Post) TableName() string {
	return "posts"
}

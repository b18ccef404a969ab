package db

import "time"

// Subscriber 记录新闻简报订阅者，退订为软删除。
type Subscriber struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Email          string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	IsActive       bool       `gorm:"not null;default:true" json:"isActive"`
	UnsubscribedAt *time.Time `json:"unsubscribedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// TableName 指定自定义表名。
func (Subscriber) TableName() string {
	return "subscribers"
}

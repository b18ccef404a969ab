package db

import "time"

// Role 表示后台账号的角色。
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleEditor     Role = "EDITOR"
	RoleWriter     Role = "WRITER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleEditor, RoleWriter:
		return true
	}
	return false
}

// User 定义了作者/后台用户模型
type User struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Email     string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password  string `gorm:"not null" json:"-"`
	FullName  string `gorm:"size:120" json:"fullName"`
	AvatarURL string `gorm:"size:512" json:"avatarUrl"`
	Role      Role   `gorm:"size:20;not null;default:WRITER" json:"role"`
	// 作者主页展示的公开资料
	Bio           string    `gorm:"type:text" json:"bio"`
	TwitterHandle string    `gorm:"size:64" json:"twitterHandle"`
	LinkedinURL   string    `gorm:"size:512" json:"linkedinUrl"`
	WebsiteURL    string    `gorm:"size:512" json:"websiteUrl"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TableName 指定自定义表名。
func (User) TableName() string {
	return "users"
}

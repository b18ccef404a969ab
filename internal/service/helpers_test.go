package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/viewisland/internal/db"
	"gorm.io/gorm"
)

func setupServiceTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	gdb, err := db.Open(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func fixedClock(at time.Time) Clock {
	return func() time.Time { return at }
}

func strPtr(v string) *string { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func statusPtr(v db.PostStatus) *db.PostStatus { return &v }

// seedAuthorAndCategory 创建一个作者和一个栏目供文章测试使用。
func seedAuthorAndCategory(t *testing.T, gdb *gorm.DB) (db.User, db.Category) {
	t.Helper()
	author := db.User{Email: "writer@example.com", Password: "x", FullName: "Wendy Writer", Role: db.RoleWriter}
	if err := gdb.Create(&author).Error; err != nil {
		t.Fatalf("create author: %v", err)
	}
	category := db.Category{Name: "World", Slug: "world"}
	if err := gdb.Create(&category).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	return author, category
}

func mustCreatePost(t *testing.T, svc *PostService, input PostInput, authorID uint) *db.Post {
	t.Helper()
	post, err := svc.Create(context.Background(), input, authorID)
	if err != nil {
		t.Fatalf("create post %q: %v", input.Title, err)
	}
	return post
}

package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := Open(fmt.Sprintf("file:db-%d?mode=memory&cache=shared", time.Now().UnixNano()), nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func seedPost(t *testing.T, gdb *gorm.DB, slug string) error {
	t.Helper()
	user := User{Email: slug + "@example.com", Password: "x", FullName: "Tester", Role: RoleWriter}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	category := Category{Name: "Cat " + slug, Slug: "cat-" + slug}
	if err := gdb.Create(&category).Error; err != nil {
		t.Fatalf("failed to create category: %v", err)
	}
	return gdb.Create(&Post{Title: "T", Slug: slug, AuthorID: user.ID, CategoryID: category.ID}).Error
}

func TestIsPostgresDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want bool
	}{
		{dsn: "postgres://user@localhost/viewisland", want: true},
		{dsn: "POSTGRESQL://user@localhost/viewisland", want: true},
		{dsn: "viewisland.db", want: false},
		{dsn: "file:test?mode=memory&cache=shared", want: false},
	}

	for _, tt := range tests {
		if got := isPostgresDSN(tt.dsn); got != tt.want {
			t.Fatalf("isPostgresDSN(%q) = %v, want %v", tt.dsn, got, tt.want)
		}
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "viewisland.db")
	gdb, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer sqlDB.Close()
		if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
			t.Fatalf("expected sqlite to be limited to one connection, got %d", got)
		}
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("expected parent directory to exist: %v", err)
	}
}

func TestIsUniqueViolationOnDuplicateSlug(t *testing.T) {
	gdb := openTestDB(t)

	if err := seedPost(t, gdb, "same-slug"); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := gdb.Create(&Post{Title: "Again", Slug: "same-slug", AuthorID: 1, CategoryID: 1}).Error
	if err == nil {
		t.Fatalf("expected duplicate slug to fail")
	}
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if IsUniqueViolation(errors.New("some other failure")) || IsUniqueViolation(nil) {
		t.Fatalf("unrelated errors must not be reported as unique violations")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	gdb := openTestDB(t)
	boom := errors.New("boom")

	err := WithTx(context.Background(), gdb, func(tx *gorm.DB) error {
		if err := tx.Create(&Subscriber{Email: "rollback@example.com", IsActive: true}).Error; err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var count int64
	if err := gdb.Model(&Subscriber{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to leave no rows, got %d", count)
	}
}

func TestSnapshotSeesConsistentData(t *testing.T) {
	gdb := openTestDB(t)
	if err := seedPost(t, gdb, "snap"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	var count int64
	var posts []Post
	err := Snapshot(context.Background(), gdb, func(tx *gorm.DB) error {
		if err := tx.Model(&Post{}).Count(&count).Error; err != nil {
			return err
		}
		return tx.Find(&posts).Error
	})
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if count != 1 || len(posts) != 1 {
		t.Fatalf("expected 1 post in both queries, got count=%d list=%d", count, len(posts))
	}
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// WithTx 以作用域方式执行事务：fn 返回错误或 panic 时整体回滚，否则提交。
func WithTx(ctx context.Context, gdb *gorm.DB, fn func(tx *gorm.DB) error) error {
	return gdb.WithContext(ctx).Transaction(fn)
}

// Snapshot 在同一个只读事务中执行多条查询，保证 count 与列表看到同一份数据。
// Postgres 使用 REPEATABLE READ；sqlite 的读事务本身即为快照。
func Snapshot(ctx context.Context, gdb *gorm.DB, fn func(tx *gorm.DB) error) error {
	var opts *sql.TxOptions
	if gdb.Dialector != nil && gdb.Dialector.Name() == "postgres" {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	if opts == nil {
		return gdb.WithContext(ctx).Transaction(fn)
	}
	return gdb.WithContext(ctx).Transaction(fn, opts)
}

// IsUniqueViolation 判断错误是否来自唯一约束。
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

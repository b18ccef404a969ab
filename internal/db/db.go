package db

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 是一个全局的数据库连接实例
var DB *gorm.DB

const defaultDatabasePath = "viewisland.db"

// zapWriter 将 gorm 日志写入 zap。
type zapWriter struct {
	logger *zap.Logger
}

func (w *zapWriter) Printf(format string, args ...interface{}) {
	w.logger.Sugar().Infof(format, args...)
}

// Init 初始化数据库连接并执行自动迁移。
// databaseURL 以 postgres:// 开头时使用 Postgres，否则视为 sqlite 文件路径，
// 为空时回退到 viewisland.db。
func Init(databaseURL string, log *zap.Logger) error {
	gdb, err := Open(databaseURL, log)
	if err != nil {
		return err
	}
	if err := Migrate(gdb); err != nil {
		return err
	}
	DB = gdb
	return nil
}

// Open 按 DSN 选择驱动并建立连接，不做迁移。
func Open(databaseURL string, log *zap.Logger) (*gorm.DB, error) {
	dsn := strings.TrimSpace(databaseURL)
	if dsn == "" {
		dsn = defaultDatabasePath
	}

	cfg := &gorm.Config{
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	if log != nil {
		cfg.Logger = logger.New(&zapWriter{logger: log}, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	} else {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}

	if isPostgresDSN(dsn) {
		return gorm.Open(postgres.Open(dsn), cfg)
	}

	if err := ensureParentDir(dsn); err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}

	// sqlite 只允许单写者，串行化连接避免 database is locked
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return gdb, nil
}

// Migrate 为核心模型创建表与索引。
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&User{},
		&Category{},
		&Post{},
		&DailyPostStat{},
		&DailyGeoStat{},
		&Subscriber{},
	)
}

func isPostgresDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

func ensureParentDir(path string) error {
	if strings.HasPrefix(path, "file:") || strings.Contains(path, ":memory:") {
		return nil
	}

	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}

// Package storage は永続化レイヤーの接続を提供します。
package storage

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open は SQLite データベースを開き、gorm のハンドルを返します。
// SQLite は単一ライターのため接続数は1本に制限します。
func Open(path string, logger zerolog.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(logger),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// Close は下位の接続を閉じます。
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.logger.WithLevel(w.level).Msgf(format, args...)
}

// NewGormLogger は gorm のログを zerolog へ流すロガーを作成します。
// 200ms を超えるクエリは警告として出力されます。
func NewGormLogger(logger zerolog.Logger) gormlogger.Interface {
	level, writeAt := gormlogger.Warn, zerolog.WarnLevel
	if logger.GetLevel() <= zerolog.DebugLevel {
		level, writeAt = gormlogger.Info, zerolog.DebugLevel
	}
	writer := gormWriter{
		logger: logger.With().Str("component", "gorm").Logger(),
		level:  writeAt,
	}
	return gormlogger.New(writer, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

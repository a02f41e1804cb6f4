package datastore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/platewatch/platewatch-go/internal/errors"
	"github.com/platewatch/platewatch-go/internal/logging"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SlowQueryThreshold defines the duration after which a query is logged as slow.
const SlowQueryThreshold = 1 * time.Second

var (
	serviceLogger *slog.Logger
	loggerOnce    sync.Once
)

// getLogger returns the datastore service logger, falling back to a discard
// logger when logging has not been initialized (unit tests).
func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logging.ForService("datastore")
		if serviceLogger == nil {
			serviceLogger = logging.NewDiscardLogger("datastore")
		}
	})
	return serviceLogger
}

// performAutoMigration runs GORM auto-migration for all models.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Camera{}, &BlacklistEntry{}, &Detection{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("db_type", dbType).
			Build()
	}

	if debug {
		getLogger().Debug("auto-migration completed", "db_type", dbType, "connection", connectionInfo)
	}

	return nil
}

// slogGormLogger adapts the service slog logger to GORM's logger interface.
type slogGormLogger struct {
	level gormlogger.LogLevel
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() gormlogger.Interface {
	return &slogGormLogger{level: gormlogger.Warn}
}

func (l *slogGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &slogGormLogger{level: level}
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		getLogger().Info(msg, "data", data)
	}
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		getLogger().Warn(msg, "data", data)
	}
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		getLogger().Error(msg, "data", data)
	}
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)

	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		getLogger().Error("query failed", "sql", sql, "rows", rows, "elapsed", elapsed, "error", err)
	case elapsed > SlowQueryThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		getLogger().Warn("slow query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}

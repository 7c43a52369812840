package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	// slowArchiveWrite is the threshold above which archive statements log at WARN.
	slowArchiveWrite = 500 * time.Millisecond
	// maxLoggedSQL caps the SQL text attached to a log entry.
	maxLoggedSQL = 512
)

// GormLogger writes GORM output for the Postgres session archive to zap,
// under the "archive" logger name. Only archive writes go through it; the
// station's local SQLite store does not use GORM.
type GormLogger struct {
	log   *zap.Logger
	level gormlogger.LogLevel
}

// NewGormLogger starts at the Warn level, so a normal archive save logs
// nothing. Each save inserts a session row, its trial rows and gaze points in
// batches of several hundred; at Info every batch would produce a log line.
// LogMode can raise the level while debugging the archive.
func NewGormLogger(log *zap.Logger) *GormLogger {
	return &GormLogger{log: log.Named("archive"), level: gormlogger.Warn}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Sugar().Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Sugar().Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Sugar().Errorf(msg, data...)
	}
}

// Trace is called by GORM after every archive statement.
//
//   - A failed statement logs at ERROR with its SQL, except
//     gorm.ErrRecordNotFound, which is an empty lookup rather than a failure.
//   - A statement slower than slowArchiveWrite logs at WARN with its SQL.
//   - At the Info level every other statement logs at DEBUG without SQL.
//
// SQL is cut to maxLoggedSQL bytes since a gaze point batch insert carries
// every bound value and can run to megabytes.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	if len(sql) > maxLoggedSQL {
		sql = sql[:maxLoggedSQL] + "..."
	}

	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		l.log.Error("Archive statement failed",
			zap.Error(err),
			zap.Duration("elapsed", elapsed),
			zap.Int64("rows", rows),
			zap.String("sql", sql),
		)
	case elapsed > slowArchiveWrite && l.level >= gormlogger.Warn:
		l.log.Warn("Slow archive statement",
			zap.Duration("elapsed", elapsed),
			zap.Int64("rows", rows),
			zap.String("sql", sql),
		)
	case l.level >= gormlogger.Info:
		l.log.Debug("Archive statement",
			zap.Duration("elapsed", elapsed),
			zap.Int64("rows", rows),
		)
	}
}

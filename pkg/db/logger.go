package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"engagement-ledger/pkg/logger"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

const defaultSlowThreshold = 200 * time.Millisecond

// QueryLogger routes gorm output through zap. Statements are logged with the
// trace of the request that issued them so a ledger write can be followed
// from the HTTP span down to its SQL.
type QueryLogger struct {
	base          *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
	showSQL       bool
}

func NewQueryLogger(level gormlogger.LogLevel, slowThreshold time.Duration, showSQL bool) *QueryLogger {
	if slowThreshold <= 0 {
		slowThreshold = defaultSlowThreshold
	}
	return &QueryLogger{
		level:         level,
		slowThreshold: slowThreshold,
		showSQL:       showSQL,
	}
}

func (l *QueryLogger) log(ctx context.Context) *zap.Logger {
	if l.base != nil {
		return l.base
	}
	return logger.FromContext(ctx)
}

func (l *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *QueryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log(ctx).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *QueryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *QueryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log(ctx).Error(fmt.Sprintf(msg, data...))
	}
}

// Trace reports failed and slow statements. Not-found lookups and unique
// violations are expected outcomes on the ledger paths (idempotent opens,
// duplicate action submissions) and are logged at debug.
func (l *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("file", utils.FileWithLineNum()),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
	}

	switch {
	case err != nil && (errors.Is(err, gormlogger.ErrRecordNotFound) || IsDuplicate(err)):
		l.log(ctx).Debug("gorm.query", append(fields, zap.Error(err))...)
	case err != nil && l.level >= gormlogger.Error:
		l.log(ctx).Error("gorm.query", append(fields, zap.Error(err))...)
	case elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.log(ctx).Warn("gorm.slow_query", append(fields, zap.Duration("threshold", l.slowThreshold))...)
	case l.level >= gormlogger.Info && l.showSQL:
		l.log(ctx).Info("gorm.query", fields...)
	}
}

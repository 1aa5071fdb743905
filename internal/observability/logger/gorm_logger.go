package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes gorm diagnostics through the request-scoped zap logger.
// Statements are logged without their bound parameters.
type GormLogger struct {
	level gormlogger.LogLevel
	slow  time.Duration
}

func NewGormLogger(level gormlogger.LogLevel, slow time.Duration) *GormLogger {
	return &GormLogger{level: level, slow: slow}
}

// DefaultGormLogger reports failures and statements slower than 200ms.
func DefaultGormLogger() *GormLogger {
	return NewGormLogger(gormlogger.Warn, 200*time.Millisecond)
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) message(ctx context.Context, threshold gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.level < threshold {
		return
	}
	if ce := FromContext(ctx).Check(level, msg); ce != nil {
		ce.Write(zap.String("component", "gorm"), zap.Any("data", data))
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	level, ok := l.traceLevel(err, elapsed)
	if !ok {
		return
	}
	ce := FromContext(ctx).Check(level, "gorm.query")
	if ce == nil {
		return
	}

	sql, rows := fc()
	sql = strings.TrimSpace(sql)
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("operation", operationFromSQL(sql)),
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

// traceLevel decides whether a statement is worth logging. Missing rows are
// how snapshot lookups report absence, and unique violations drive eid
// retries and duplicate submissions, so neither is treated as a failure.
func (l *GormLogger) traceLevel(err error, elapsed time.Duration) (zapcore.Level, bool) {
	switch {
	case l.level <= gormlogger.Silent:
		return 0, false
	case err != nil && errors.Is(err, gormlogger.ErrRecordNotFound):
		return 0, false
	case err != nil && isDuplicateKey(err):
		return zapcore.DebugLevel, true
	case err != nil:
		return zapcore.ErrorLevel, l.level >= gormlogger.Error
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		return zapcore.WarnLevel, true
	default:
		return zapcore.DebugLevel, l.level >= gormlogger.Info
	}
}

// ParamsFilter drops bound values so identities and names stay out of logs.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

// operationFromSQL names the statement kind by its first DML verb, so a CTE
// reports the verb of its first inner statement.
func operationFromSQL(sql string) string {
	for _, word := range strings.Fields(sql) {
		switch verb := strings.ToUpper(strings.Trim(word, "();")); verb {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return verb
		}
	}
	return "UNKNOWN"
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

var _ gormlogger.Interface = (*GormLogger)(nil)

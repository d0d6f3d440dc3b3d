package database

import (
	"context"
	"errors"
	"time"

	"github.com/partup/partup/internal/util"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

const defaultSlowThreshold = 200 * time.Millisecond

// gormLogger sends gorm's query log to zap. Every statement is logged when
// the zap logger has debug enabled, otherwise only slow statements are.
type gormLogger struct {
	logger        *zap.SugaredLogger
	level         logger.LogLevel
	slowThreshold time.Duration
}

type LoggerOption func(*gormLogger)

// WithSlowThreshold sets how long a statement may run before it is logged as
// slow. Zero disables slow statement logging.
func WithSlowThreshold(d time.Duration) LoggerOption {
	return func(l *gormLogger) {
		l.slowThreshold = d
	}
}

func NewLogger(sugar *zap.SugaredLogger, opts ...LoggerOption) logger.Interface {
	l := &gormLogger{
		logger:        sugar,
		level:         logger.Warn,
		slowThreshold: defaultSlowThreshold,
	}
	if sugar.Desugar().Core().Enabled(zapcore.DebugLevel) {
		l.level = logger.Info
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		util.WithTrace(ctx, l.logger).Infof(msg, args...)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		util.WithTrace(ctx, l.logger).Warnf(msg, args...)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		util.WithTrace(ctx, l.logger).Errorf(msg, args...)
	}
}

// expected reports errors the stores turn into store.ErrNotFound or
// store.ErrDuplicate. Those are outcomes, not failures.
func expected(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || IsDuplicateError(err)
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	log := func() *zap.SugaredLogger {
		sql, rows := fc()
		return util.WithTrace(ctx, l.logger).With(
			"sql", sql,
			"rows", rows,
			"elapsed_ms", float64(elapsed.Nanoseconds())/1e6,
			"caller", utils.FileWithLineNum(),
		)
	}
	switch {
	case err != nil && !expected(err) && l.level >= logger.Error:
		// the statement error is returned to the caller, which decides how loud to be
		log().Debugw("sql statement failed", "error", err)
	case l.slowThreshold != 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		log().Warnw("slow sql statement", "threshold", l.slowThreshold)
	case l.level >= logger.Info:
		log().Debugw("sql statement")
	}
}

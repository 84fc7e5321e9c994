// Package logging defines the Logger interface used by every node and the driver.
// It also includes functions for setting the global log level and a per-package log level.
package logging

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mut           sync.RWMutex
	logLevel      = zapcore.InfoLevel
	packageLevels = make(map[string]zapcore.Level)
)

// ParseLevel converts a level name to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return l, fmt.Errorf("invalid log level '%s'", level)
	}
	return l, nil
}

// SetLogLevel sets the global log level.
func SetLogLevel(levelStr string) error {
	level, err := ParseLevel(levelStr)
	if err != nil {
		return err
	}
	mut.Lock()
	logLevel = level
	mut.Unlock()
	return nil
}

// SetPackageLogLevel sets a log level for a package, overriding the global level.
func SetPackageLogLevel(packageName, levelStr string) error {
	level, err := ParseLevel(levelStr)
	if err != nil {
		return err
	}
	mut.Lock()
	packageLevels[packageName] = level
	mut.Unlock()
	return nil
}

// SetPackageLogLevels parses a list of package:level strings and applies each of them.
func SetPackageLogLevels(pkgLevels []string) error {
	for _, pkgLevel := range pkgLevels {
		pkg, level, ok := strings.Cut(pkgLevel, ":")
		if !ok {
			return fmt.Errorf("expected package:level, got '%s'", pkgLevel)
		}
		if err := SetPackageLogLevel(pkg, level); err != nil {
			return err
		}
	}
	return nil
}

// Logger is the logging interface used by the nodes. It is a subset of zap.SugaredLogger.
type Logger interface {
	Debug(args ...any)
	Debugf(template string, args ...any)
	Info(args ...any)
	Infof(template string, args ...any)
	Warn(args ...any)
	Warnf(template string, args ...any)
	Error(args ...any)
	Errorf(template string, args ...any)
}

type wrapper struct {
	inner *zap.SugaredLogger
	level zap.AtomicLevel
	mut   sync.Mutex
}

// log runs fn after adjusting the level to the one configured for the caller's package.
func (wr *wrapper) log(fn func(*zap.SugaredLogger)) {
	wr.mut.Lock()
	defer wr.mut.Unlock()

	mut.RLock()
	level := logLevel
	if len(packageLevels) > 0 {
		// skip log and the exported method
		if _, file, _, ok := runtime.Caller(2); ok {
			for pkg, l := range packageLevels {
				if strings.Contains(file, pkg) {
					level = l
					break
				}
			}
		}
	}
	mut.RUnlock()

	wr.level.SetLevel(level)
	fn(wr.inner)
}

func (wr *wrapper) Debug(args ...any) {
	wr.log(func(l *zap.SugaredLogger) { l.Debug(args...) })
}

func (wr *wrapper) Debugf(template string, args ...any) {
	wr.log(func(l *zap.SugaredLogger) { l.Debugf(template, args...) })
}

func (wr *wrapper) Info(args ...any) {
	wr.log(func(l *zap.SugaredLogger) { l.Info(args...) })
}

func (wr *wrapper) Infof(template string, args ...any) {
	wr.log(func(l *zap.SugaredLogger) { l.Infof(template, args...) })
}

func (wr *wrapper) Warn(args ...any) {
	wr.log(func(l *zap.SugaredLogger) { l.Warn(args...) })
}

func (wr *wrapper) Warnf(template string, args ...any) {
	wr.log(func(l *zap.SugaredLogger) { l.Warnf(template, args...) })
}

func (wr *wrapper) Error(args ...any) {
	wr.log(func(l *zap.SugaredLogger) { l.Error(args...) })
}

func (wr *wrapper) Errorf(template string, args ...any) {
	wr.log(func(l *zap.SugaredLogger) { l.Errorf(template, args...) })
}

func currentLevel() zapcore.Level {
	mut.RLock()
	defer mut.RUnlock()
	return logLevel
}

// New returns a new logger for stderr with the given name.
// Setting OFCONS_LOG_TYPE=json switches to JSON output.
func New(name string) Logger {
	var config zap.Config
	if strings.ToLower(os.Getenv("OFCONS_LOG_TYPE")) == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.DisableStacktrace = true
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}
	config.Level.SetLevel(currentLevel())
	// skip the closure, log and the exported method
	l, err := config.Build(zap.AddCallerSkip(3))
	if err != nil {
		panic(err)
	}
	return &wrapper{inner: l.Sugar().Named(name), level: config.Level}
}

// NewWithDest returns a new logger for the given destination with the given name.
func NewWithDest(dest io.Writer, name string) Logger {
	atom := zap.NewAtomicLevelAt(currentLevel())
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.Lock(zapcore.AddSync(dest)), atom)
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(3))
	return &wrapper{inner: l.Sugar().Named(name), level: atom}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &wrapper{inner: zap.NewNop().Sugar(), level: zap.NewAtomicLevel()}
}

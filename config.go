package qutex

import (
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultGridlockTimeout is the minimum lockvoker age before the gridlock
// detectors run on a failed acquisition, unless overridden via
// [WithGridlockTimeout].
const DefaultGridlockTimeout = 5 * time.Second

// config holds the package-level configuration. Immutable once published;
// Configure swaps in a fresh copy.
type config struct {
	debugLockTracking bool
	gridlockTimeout   time.Duration
	traceCallables    bool
}

var pkgConfig atomic.Pointer[config]

var defaultConfig = config{
	gridlockTimeout: DefaultGridlockTimeout,
}

// cfg returns the current configuration, which is never nil.
func cfg() *config {
	if c := pkgConfig.Load(); c != nil {
		return c
	}
	return &defaultConfig
}

// Option configures package-level behavior, for [Configure].
type Option interface {
	apply(*config) error
}

type optionImpl struct {
	applyFunc func(*config) error
}

func (o *optionImpl) apply(c *config) error {
	return o.applyFunc(c)
}

// WithDebugLockTracking enables or disables debug lock tracking: current
// owner recording on qutexes, the deadlock check at lockvoker construction,
// and the gridlock detectors.
//
// Disabled by default. The detectors are advisory; enabling them never
// changes acquisition behavior, only whether diagnosis runs.
func WithDebugLockTracking(enabled bool) Option {
	return &optionImpl{func(c *config) error {
		c.debugLockTracking = enabled
		return nil
	}}
}

// WithGridlockTimeout sets the minimum lockvoker age before the gridlock
// detectors run on a failed acquisition. Only meaningful with debug lock
// tracking enabled.
func WithGridlockTimeout(d time.Duration) Option {
	return &optionImpl{func(c *config) error {
		if d <= 0 {
			return fmt.Errorf(`qutex: gridlock timeout must be positive: %v`, d)
		}
		c.gridlockTimeout = d
		return nil
	}}
}

// WithTraceCallables enables or disables callable tracing: posted callbacks
// and lockvoker wakes carry creator metadata (function, file, line), emitted
// as a trace-level log event when they run. See [SetLogger].
func WithTraceCallables(enabled bool) Option {
	return &optionImpl{func(c *config) error {
		c.traceCallables = enabled
		return nil
	}}
}

// Configure applies package-level options. It replaces the previous
// configuration wholesale: options not specified revert to their defaults.
//
// Configuration is expected to happen once, at startup, before any qutex
// traffic. Lockvokers already in flight observe configuration changes on
// their next run.
func Configure(options ...Option) error {
	c := defaultConfig
	for _, o := range options {
		if o == nil {
			continue
		}
		if err := o.apply(&c); err != nil {
			return err
		}
	}
	pkgConfig.Store(&c)
	return nil
}

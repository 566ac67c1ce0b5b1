// Package config handles loading and validation of the applockd configuration file.
//
// The format is picked by extension: .toml, .yaml, .yml or .json. Absent keys keep their
// defaults, lock settings that are absent keep the value the engine already has.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/MatthiasKunnen/applock/pkg/applock"
)

// File is the content of a configuration file.
type File struct {
	Lock    LockConfig    `toml:"lock" yaml:"lock" json:"lock"`
	Session SessionConfig `toml:"session" yaml:"session" json:"session"`
	Idle    IdleConfig    `toml:"idle" yaml:"idle" json:"idle"`
	Secrets SecretsConfig `toml:"secrets" yaml:"secrets" json:"secrets"`
	Logging LoggingConfig `toml:"logging" yaml:"logging" json:"logging"`
}

// LockConfig holds the engine settings. Timeouts are in seconds.
type LockConfig struct {
	ScreenLock        *bool    `toml:"screen_lock" yaml:"screen_lock" json:"screen_lock"`
	BackgroundLock    *bool    `toml:"background_lock" yaml:"background_lock" json:"background_lock"`
	BackgroundTimeout *float64 `toml:"background_timeout" yaml:"background_timeout" json:"background_timeout"`
	TouchIdle         *bool    `toml:"touch_idle" yaml:"touch_idle" json:"touch_idle"`
	TouchIdleTimeout  *float64 `toml:"touch_idle_timeout" yaml:"touch_idle_timeout" json:"touch_idle_timeout"`
	Debug             *bool    `toml:"debug" yaml:"debug" json:"debug"`
}

// SessionConfig selects the logind session and the D-Bus screen sources.
type SessionConfig struct {
	// ID of the logind session. Empty means the session of the daemon.
	ID string `toml:"id" yaml:"id" json:"id"`
	// LockSignals reports session lock and unlock as screen signals.
	LockSignals bool `toml:"lock_signals" yaml:"lock_signals" json:"lock_signals"`
	// Sleep reports suspend and shutdown as screen signals.
	Sleep bool `toml:"sleep" yaml:"sleep" json:"sleep"`
}

type IdleConfig struct {
	// Wayland enables user activity reports through ext-idle-notify-v1.
	Wayland bool `toml:"wayland" yaml:"wayland" json:"wayland"`
	// Threshold in seconds of inactivity before the seat counts as idle.
	Threshold float64 `toml:"threshold" yaml:"threshold" json:"threshold"`
}

type SecretsConfig struct {
	// Collections to lock whenever the application locks, relative to /org/freedesktop/secrets.
	Collections []string `toml:"collections" yaml:"collections" json:"collections"`
}

type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level" json:"level"`
	Format string `toml:"format" yaml:"format" json:"format"`
}

func DefaultFile() *File {
	return &File{
		Session: SessionConfig{
			LockSignals: true,
			Sleep:       true,
		},
		Idle: IdleConfig{
			Wayland:   true,
			Threshold: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func (f *File) Validate() error {
	var errs []error

	for name, seconds := range map[string]*float64{
		"lock.background_timeout": f.Lock.BackgroundTimeout,
		"lock.touch_idle_timeout": f.Lock.TouchIdleTimeout,
	} {
		if seconds != nil {
			if err := validateSeconds(*seconds); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}

	if err := validateSeconds(f.Idle.Threshold); err != nil {
		errs = append(errs, fmt.Errorf("idle.threshold: %w", err))
	} else if f.Idle.Wayland {
		// Activity is reported once per threshold, the touch timer must outlast that.
		touchTimeout := applock.DefaultTouchIdleTimeout.Seconds()
		if f.Lock.TouchIdleTimeout != nil {
			touchTimeout = *f.Lock.TouchIdleTimeout
		}
		if f.Idle.Threshold >= touchTimeout {
			errs = append(errs, fmt.Errorf(
				"idle.threshold: %v seconds must be below the touch idle timeout of %v seconds",
				f.Idle.Threshold,
				touchTimeout,
			))
		}
	}

	if _, err := f.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(f.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", f.Logging.Format))
	}

	for _, c := range f.Secrets.Collections {
		if strings.TrimSpace(c) == "" {
			errs = append(errs, errors.New("secrets.collections: empty collection"))
			break
		}
	}

	return errors.Join(errs...)
}

func validateSeconds(seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return fmt.Errorf("%v seconds: %w", seconds, applock.ErrInvalidTimeout)
	}
	if seconds > math.MaxInt64/float64(time.Second) {
		return fmt.Errorf("%v seconds is too large", seconds)
	}
	return nil
}

// Options converts the lock section into engine options. Settings absent from the file are
// left nil.
func (f *File) Options() applock.Options {
	opts := applock.Options{
		ScreenLockEnabled:     f.Lock.ScreenLock,
		BackgroundLockEnabled: f.Lock.BackgroundLock,
		TouchIdleEnabled:      f.Lock.TouchIdle,
		Debug:                 f.Lock.Debug,
	}
	if f.Lock.BackgroundTimeout != nil {
		opts.BackgroundTimeout = applock.Duration(applock.Seconds(*f.Lock.BackgroundTimeout))
	}
	if f.Lock.TouchIdleTimeout != nil {
		opts.TouchIdleTimeout = applock.Duration(applock.Seconds(*f.Lock.TouchIdleTimeout))
	}
	return opts
}

func (f *File) IdleThreshold() time.Duration {
	return applock.Seconds(f.Idle.Threshold)
}

func (f *File) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(f.Logging.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

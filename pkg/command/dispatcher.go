// Package command exposes an applock engine to a host through named commands with named
// arguments.
//
// A Dispatcher is not safe for concurrent use, call Handle on the goroutine that owns the engine.
package command

import (
	"errors"
	"log/slog"
	"runtime"
	"time"

	"github.com/MatthiasKunnen/applock/pkg/applock"
)

// Engine is the part of [applock.Engine] that commands drive.
type Engine interface {
	Init(opts applock.Options) error
	SetLocked(locked bool)
	SetScreenLockEnabled(enabled bool)
	SetBackgroundLockEnabled(enabled bool)
	SetBackgroundTimeout(timeout time.Duration) error
	SetTouchIdleEnabled(enabled bool)
	SetTouchIdleTimeout(timeout time.Duration) error
	RestartTouchTimer()
	OnTouchSignal()
	SetScreenRecordingProtection(enabled bool, warning string)
	StopScreenDetection()
}

// NotImplementedResult is returned by Handle for methods the dispatcher does not know.
type NotImplementedResult struct{}

var NotImplemented = NotImplementedResult{}

type handlerFunc func(args Args) (any, error)

type Dispatcher struct {
	engine   Engine
	logger   *slog.Logger
	handlers map[string]handlerFunc
}

func NewDispatcher(engine Engine, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		engine: engine,
		logger: logger.With("component", "command"),
	}
	d.handlers = map[string]handlerFunc{
		"init":                                d.init,
		"setLockEnabled":                      d.setLockEnabled,
		"setScreenLockEnabled":                d.setScreenLockEnabled,
		"setBackgroundLockEnabled":            d.setBackgroundLockEnabled,
		"setBackgroundTimeout":                d.setBackgroundTimeout,
		"setTouchTimeoutEnabled":              d.setTouchTimeoutEnabled,
		"setTouchTimeout":                     d.setTouchTimeout,
		"restartTouchTimer":                   d.restartTouchTimer,
		"onUserInteraction":                   d.onUserInteraction,
		"setScreenRecordingProtectionEnabled": d.setScreenRecordingProtectionEnabled,
		"stopBrightnessDetection":             d.stopBrightnessDetection,
		"getPlatformVersion":                  d.getPlatformVersion,
	}

	return d
}

// Handle runs method with args. Unknown methods return NotImplemented and no error. Invalid
// arguments are reported as ErrInvalidArgument and leave the engine untouched.
func (d *Dispatcher) Handle(method string, args Args) (any, error) {
	handler, ok := d.handlers[method]
	if !ok {
		d.logger.Debug("unknown command", "method", method)
		return NotImplemented, nil
	}

	result, err := handler(args)
	if err != nil {
		d.logger.Debug("command failed", "method", method, "error", err)
		return nil, err
	}

	return result, nil
}

func (d *Dispatcher) init(args Args) (any, error) {
	var opts applock.Options

	boolOptions := []struct {
		name   string
		target **bool
	}{
		{"isScreenLockEnabled", &opts.ScreenLockEnabled},
		{"isBackgroundLockEnabled", &opts.BackgroundLockEnabled},
		{"isTouchTimeoutEnabled", &opts.TouchIdleEnabled},
		{"debug", &opts.Debug},
	}
	for _, o := range boolOptions {
		v, ok, err := args.Bool(o.name)
		if err != nil {
			return nil, err
		}
		if ok {
			*o.target = applock.Bool(v)
		}
	}

	durationOptions := []struct {
		name   string
		target **time.Duration
	}{
		{"backgroundTimeout", &opts.BackgroundTimeout},
		{"touchTimeout", &opts.TouchIdleTimeout},
	}
	for _, o := range durationOptions {
		v, ok, err := args.Seconds(o.name)
		if err != nil {
			return nil, err
		}
		if ok {
			*o.target = applock.Duration(v)
		}
	}

	return nil, engineError(d.engine.Init(opts))
}

func (d *Dispatcher) setLockEnabled(args Args) (any, error) {
	enabled, err := args.RequiredBool("enabled")
	if err != nil {
		return nil, err
	}
	d.engine.SetLocked(enabled)
	return nil, nil
}

func (d *Dispatcher) setScreenLockEnabled(args Args) (any, error) {
	enabled, err := args.RequiredBool("enabled")
	if err != nil {
		return nil, err
	}
	d.engine.SetScreenLockEnabled(enabled)
	return nil, nil
}

func (d *Dispatcher) setBackgroundLockEnabled(args Args) (any, error) {
	enabled, err := args.RequiredBool("enabled")
	if err != nil {
		return nil, err
	}
	d.engine.SetBackgroundLockEnabled(enabled)
	return nil, nil
}

func (d *Dispatcher) setBackgroundTimeout(args Args) (any, error) {
	timeout, err := args.RequiredSeconds("timeout")
	if err != nil {
		return nil, err
	}
	return nil, engineError(d.engine.SetBackgroundTimeout(timeout))
}

func (d *Dispatcher) setTouchTimeoutEnabled(args Args) (any, error) {
	enabled, err := args.RequiredBool("enabled")
	if err != nil {
		return nil, err
	}
	d.engine.SetTouchIdleEnabled(enabled)
	return nil, nil
}

func (d *Dispatcher) setTouchTimeout(args Args) (any, error) {
	timeout, err := args.RequiredSeconds("timeout")
	if err != nil {
		return nil, err
	}
	return nil, engineError(d.engine.SetTouchIdleTimeout(timeout))
}

func (d *Dispatcher) restartTouchTimer(Args) (any, error) {
	d.engine.RestartTouchTimer()
	return nil, nil
}

func (d *Dispatcher) onUserInteraction(Args) (any, error) {
	d.engine.OnTouchSignal()
	return nil, nil
}

func (d *Dispatcher) setScreenRecordingProtectionEnabled(args Args) (any, error) {
	enabled, err := args.RequiredBool("enabled")
	if err != nil {
		return nil, err
	}
	warning, err := args.String("warningMessage")
	if err != nil {
		return nil, err
	}
	d.engine.SetScreenRecordingProtection(enabled, warning)
	return nil, nil
}

func (d *Dispatcher) stopBrightnessDetection(Args) (any, error) {
	d.engine.StopScreenDetection()
	return nil, nil
}

func (d *Dispatcher) getPlatformVersion(Args) (any, error) {
	return runtime.GOOS + " " + runtime.GOARCH, nil
}

// engineError maps validation failures of the engine to ErrInvalidArgument.
func engineError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, applock.ErrInvalidTimeout) {
		return ErrInvalidArgument.WithMessagef("%v", err)
	}
	return err
}

// Package daemon wires an applock engine to the desktop session and to its host.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MatthiasKunnen/applock/pkg/applock"
	"github.com/MatthiasKunnen/applock/pkg/channel"
	"github.com/MatthiasKunnen/applock/pkg/command"
	"github.com/MatthiasKunnen/applock/pkg/config"
	"github.com/MatthiasKunnen/applock/pkg/idle"
	"github.com/MatthiasKunnen/applock/pkg/inhibit"
	"github.com/MatthiasKunnen/applock/pkg/lifecycle"
	"github.com/MatthiasKunnen/applock/pkg/lock"
	"github.com/MatthiasKunnen/applock/pkg/loop"
	"github.com/MatthiasKunnen/applock/pkg/secrets"
)

const (
	loopQueueSize = 64
	closeTimeout  = 2 * time.Second

	inhibitWho = "applockd"
	inhibitWhy = "Lock the application before the system sleeps"
)

type Options struct {
	// File is the loaded configuration.
	File *config.File
	// ConfigPath is watched for changes when not empty.
	ConfigPath string
	// SessionID overrides the session of the configuration file when not empty.
	SessionID string

	NoDBus    bool
	NoWayland bool

	Stdin  io.Reader
	Stdout io.Writer
	Logger *slog.Logger
}

type namedCloser struct {
	name  string
	close func() error
}

// Daemon owns the loop, the engine and every collaborator of the engine.
type Daemon struct {
	file   *config.File
	logger *slog.Logger

	loop     *loop.Loop
	engine   *applock.Engine
	tracker  *lifecycle.Tracker
	writer   *channel.Writer
	server   *channel.Server
	loader   *config.Loader
	session  *lock.SessionWatcher
	dispatch <-chan func() error

	closers []namedCloser
}

// New connects to every configured source. Sources that are unavailable are logged and
// skipped, the host can still drive the engine through commands.
func New(opts Options) (*Daemon, error) {
	if opts.File == nil {
		opts.File = config.DefaultFile()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Stdin == nil || opts.Stdout == nil {
		return nil, errors.New("daemon: Stdin and Stdout are required")
	}

	d := &Daemon{
		file:    opts.File,
		logger:  opts.Logger,
		loop:    loop.New(loopQueueSize),
		tracker: lifecycle.NewTracker(opts.Logger),
		writer:  channel.NewWriter(opts.Stdout),
	}

	var emitter applock.Emitter = channel.NewEmitter(d.writer)
	var screens []applock.ScreenSource
	if !opts.NoDBus {
		screens = d.connectScreenSources(opts)
		emitter = d.wrapSecrets(emitter)
	}

	platform := applock.Platform{
		Clock:     d.loop,
		Executor:  d.loop,
		Emitter:   emitter,
		Lifecycle: d.tracker,
		Screen:    screens,
		Logger:    opts.Logger,
	}
	if !opts.NoWayland && d.file.Idle.Wayland {
		if monitor := d.connectWayland(); monitor != nil {
			platform.Touch = monitor
		}
	}

	d.engine = applock.New(platform)
	d.server = channel.NewServer(
		opts.Stdin,
		d.writer,
		d.loop,
		command.NewDispatcher(d.engine, opts.Logger),
		d.tracker,
		opts.Logger,
	)

	if opts.ConfigPath != "" {
		d.loader = config.NewLoader(opts.ConfigPath)
		d.addCloser("config watcher", d.loader.Close)
	}

	return d, nil
}

func (d *Daemon) addCloser(name string, fn func() error) {
	d.closers = append(d.closers, namedCloser{name: name, close: fn})
}

func (d *Daemon) connectScreenSources(opts Options) []applock.ScreenSource {
	var screens []applock.ScreenSource

	if d.file.Session.LockSignals {
		sessionID := opts.SessionID
		if sessionID == "" {
			sessionID = d.file.Session.ID
		}
		w, err := lock.NewSessionWatcher(sessionID, d.logger)
		if err != nil {
			d.logger.Warn("Session lock signals unavailable", "error", err)
		} else {
			d.session = w
			screens = append(screens, w)
			d.addCloser("session watcher", w.Close)
		}
	}

	if d.file.Session.Sleep {
		w, err := inhibit.NewSleepWatcher(inhibitWho, inhibitWhy, d.logger)
		if err != nil {
			d.logger.Warn("Sleep signals unavailable", "error", err)
		} else {
			// Engine handlers only post, release the inhibitor once the loop caught up.
			w.SetFlush(d.loop.Flush)
			screens = append(screens, w)
			d.addCloser("sleep watcher", w.Close)
		}
	}

	return screens
}

func (d *Daemon) wrapSecrets(next applock.Emitter) applock.Emitter {
	if len(d.file.Secrets.Collections) == 0 {
		return next
	}

	service, err := secrets.New()
	if err != nil {
		d.logger.Warn("Secret service unavailable", "error", err)
		return next
	}

	emitter, err := secrets.NewLockingEmitter(next, service, d.file.Secrets.Collections, d.logger)
	if err != nil {
		d.logger.Warn("Unable to lock secrets on app lock", "error", err)
		if err := service.Close(); err != nil {
			d.logger.Warn("Failed to close secret service", "error", err)
		}
		return next
	}
	d.addCloser("secret service", func() error {
		emitter.Wait()
		return service.Close()
	})
	return emitter
}

// connectWayland creates the activity monitor. Nil is returned when Wayland is unavailable.
func (d *Daemon) connectWayland() *idle.ActivityMonitor {
	controller, dispatch, err := idle.NewWaylandIdleController()
	if err != nil {
		d.logger.Warn("Wayland activity reports unavailable", "error", err)
		return nil
	}

	monitor, err := idle.NewActivityMonitor(controller, d.file.IdleThreshold())
	if err != nil {
		d.logger.Warn("Wayland activity reports unavailable", "error", err)
		if err := controller.Close(); err != nil {
			d.logger.Warn("Failed to close Wayland connection", "error", err)
		}
		return nil
	}

	d.dispatch = dispatch
	d.addCloser("wayland connection", controller.Close)
	d.addCloser("activity monitor", monitor.Close)
	return monitor
}

// Run starts the engine and serves the host until ctx is done or the host closes its end of the
// channel. The engine is closed before Run returns, the collaborators are closed by Close.
func (d *Daemon) Run(ctx context.Context) error {
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = d.loop.Run(loopCtx)
	}()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.loop.Do(ctx, d.start); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	if d.dispatch != nil {
		go d.runDispatch(ctx)
	}

	if d.loader != nil {
		if err := d.watchConfig(ctx); err != nil {
			d.logger.Warn("Configuration hot reload unavailable", "error", err)
		}
	}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- d.server.Serve(ctx)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveDone:
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		d.logger.Info("Host channel closed")
	}

	closeCtx, cancelClose := context.WithTimeout(context.Background(), closeTimeout)
	defer cancelClose()
	if closeErr := d.loop.Do(closeCtx, d.engine.Close); closeErr != nil {
		d.logger.Warn("Failed to close engine", "error", closeErr)
	}
	d.writer.Close()

	return err
}

func (d *Daemon) start() {
	d.engine.Start()
	if err := d.engine.Configure(d.file.Options()); err != nil {
		d.logger.Warn("Failed to apply configuration", "error", err)
	}

	if d.session == nil {
		return
	}

	locked, err := d.session.Locked()
	if err != nil {
		d.logger.Warn("Unable to read session lock state", "error", err)
		return
	}
	if locked {
		d.logger.Info("Session is already locked")
		d.engine.OnScreenOff()
	}
}

func (d *Daemon) watchConfig(ctx context.Context) error {
	d.loader.OnChange(func(f *config.File) {
		d.loop.Post(func() {
			if err := d.engine.Configure(f.Options()); err != nil {
				d.logger.Warn("Failed to apply reloaded configuration", "error", err)
				return
			}
			d.logger.Info("Configuration reloaded", "config", d.engine.Config())
		})
	})

	if _, err := d.loader.Load(); err != nil {
		return err
	}
	if err := d.loader.Watch(); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-d.loader.Errors():
				d.logger.Warn("Configuration reload failed", "error", err)
			}
		}
	}()

	return nil
}

// runDispatch executes the Wayland dispatch functions. All Wayland interactions after the
// activity monitor was created happen on this goroutine.
func (d *Daemon) runDispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case dispatchFunc, ok := <-d.dispatch:
			if !ok {
				return
			}
			if err := dispatchFunc(); err != nil {
				// The connection is unusable once dispatching fails.
				d.logger.Warn("Wayland dispatch error, activity reports stopped", "error", err)
				return
			}
		}
	}
}

// Close releases every collaborator in the reverse order of creation.
func (d *Daemon) Close() error {
	var err error
	for i := len(d.closers) - 1; i >= 0; i-- {
		c := d.closers[i]
		if closeErr := c.close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close %s: %w", c.name, closeErr))
		}
	}
	d.closers = nil
	return err
}

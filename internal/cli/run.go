package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MatthiasKunnen/applock/internal/daemon"
	"github.com/MatthiasKunnen/applock/pkg/applock"
	"github.com/MatthiasKunnen/applock/pkg/config"
	"github.com/spf13/cobra"
)

type runFlags struct {
	configPath string
	sessionID  string
	debug      bool
	logLevel   string
	logFormat  string
	noDBus     bool
	noWayland  bool
}

var runOpts runFlags

func init() {
	flags := runCmd.Flags()
	flags.StringVarP(&runOpts.configPath, "config", "c", "", "configuration file (.toml, .yaml or .json), reloaded on change")
	flags.StringVar(&runOpts.sessionID, "session", os.Getenv("XDG_SESSION_ID"), "logind session to watch")
	flags.BoolVar(&runOpts.debug, "debug", false, "log countdowns and lock decisions")
	flags.StringVar(&runOpts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&runOpts.logFormat, "log-format", "", "log format: text or json")
	flags.BoolVar(&runOpts.noDBus, "no-dbus", false, "do not watch the session, sleep or secret service")
	flags.BoolVar(&runOpts.noWayland, "no-wayland", false, "do not report user activity from Wayland")

	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve a host application over stdin and stdout",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	file := config.DefaultFile()
	if runOpts.configPath != "" {
		var err error
		file, err = config.Load(runOpts.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	applyFlags(file, runOpts)

	level, err := file.SlogLevel()
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), level, file.Logging.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	d, err := daemon.New(daemon.Options{
		File:       file,
		ConfigPath: runOpts.configPath,
		SessionID:  runOpts.sessionID,
		NoDBus:     runOpts.noDBus,
		NoWayland:  runOpts.noWayland,
		Stdin:      cmd.InOrStdin(),
		Stdout:     cmd.OutOrStdout(),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("initialize daemon: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("Failed to close daemon", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("applockd started", "version", rootCmd.Version)
	return d.Run(ctx)
}

// applyFlags lets explicitly set flags override the configuration file.
func applyFlags(file *config.File, flags runFlags) {
	if flags.debug {
		file.Lock.Debug = applock.Bool(true)
		if flags.logLevel == "" {
			file.Logging.Level = "debug"
		}
	}
	if flags.logLevel != "" {
		file.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		file.Logging.Format = flags.logFormat
	}
}

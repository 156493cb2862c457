// serialbox writes, reads and checks binary field archives from the command
// line.
//
//	serialbox [--config file] [--log-level level] <command> [flags]
//
// Commands are put, get, inspect and verify. The configuration file is taken
// from --config or SERIALBOX_CONFIG; without either the defaults are used.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/havogt/serialbox2/internal/archive"
	"github.com/havogt/serialbox2/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// exitError carries a process exit code without printing anything more
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()

	if err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// command is a subcommand body. It receives the already configured
// environment and its own arguments.
type command func(ctx context.Context, env *environment, args []string) error

type environment struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	archive  *archive.Config
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
}

var commands = map[string]command{
	"put":     runPut,
	"get":     runGet,
	"inspect": runInspect,
	"verify":  runVerify,
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var configPath, logLevel string

	flagSet := pflag.NewFlagSet("serialbox", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&configPath, "config", os.Getenv("SERIALBOX_CONFIG"), "path to the YAML configuration file")
	flagSet.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flagSet.Usage = func() { printUsage(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return &exitError{code: 2}
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(stderr, flagSet)
		return &exitError{code: 2}
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	config.ApplyEnvironmentOverrides(cfg)
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := initLogger(cfg.Logging, stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	env := &environment{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		archive:  cfg.ToArchiveConfig(registry),
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
	}

	cmdErr := cmd(ctx, env, rest[1:])

	if cfg.Metrics.Enabled && cfg.Metrics.Textfile != "" {
		if err := prometheus.WriteToTextfile(cfg.Metrics.Textfile, registry); err != nil {
			logger.Error("Failed to write metrics textfile",
				zap.String("path", cfg.Metrics.Textfile), zap.Error(err))
		}
	}
	return cmdErr
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintln(w, "Usage: serialbox [flags] <command> [command flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  put      write a file as one occurrence of a field")
	fmt.Fprintln(w, "  get      print the bytes of one occurrence")
	fmt.Fprintln(w, "  inspect  print the field table of an archive")
	fmt.Fprintln(w, "  verify   check every occurrence against its checksum")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, flagSet.FlagUsages())
}

// initLogger builds the zap logger from the logging configuration
func initLogger(cfg config.LoggingConfig, out io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var encoderConfig zapcore.EncoderConfig
	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(out)), zap.NewAtomicLevelAt(level))
	return zap.New(core), nil
}

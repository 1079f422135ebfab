package main

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/diibridge/config"
)

var rootCmd = &cobra.Command{
	Use:   "diibridge",
	Short: "RVFI-DII bridge between a test generator and a core model.",
	Long: `diibridge receives instruction traces from an RVFI-DII test ` +
		`generator over TCP, feeds them to a cycle-stepped core model and ` +
		`returns the execution trace.`,
	SilenceUsage: true,
}

func init() {
	addConfigFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

func addConfigFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "JSON configuration file")
	flags.String("env", ".env", "file with DIIBRIDGE_* variables")
	flags.Int("port", 0, "TCP port the test generator connects to")
	flags.IntP("verbosity", "v", 0, "log verbosity (0-2)")
	flags.String("record", "", "SQLite file to record retirements to")
	flags.Int("monitor-port", 0, "port of the HTTP monitor, 0 disables it")
	flags.Bool("streaming", false, "start stepping before a trace is complete")
}

// Execute runs the root command and exits through atexit so registered
// flushes run.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

// loadConfig builds the effective configuration: defaults, then the
// --config file, then environment variables, then explicitly set flags.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()

	path, _ := flags.GetString("config")
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	}

	envFile, _ := flags.GetString("env")
	if err := cfg.ApplyEnv(envFile); err != nil {
		return nil, err
	}

	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}

	if flags.Changed("verbosity") {
		cfg.Verbosity, _ = flags.GetInt("verbosity")
	}

	if flags.Changed("record") {
		cfg.RecordPath, _ = flags.GetString("record")
	}

	if flags.Changed("monitor-port") {
		cfg.MonitorPort, _ = flags.GetInt("monitor-port")
	}

	if flags.Changed("streaming") {
		cfg.Streaming, _ = flags.GetBool("streaming")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newLogger(verbosity int) logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, args)
			return
		}

		fmt.Fprintln(os.Stderr, args)
	}, funcr.Options{
		LogTimestamp: true,
		Verbosity:    verbosity,
	})
}

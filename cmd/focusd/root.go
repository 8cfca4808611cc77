package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/realtime-ai/focusstream/pkg/config"
	"github.com/realtime-ai/focusstream/pkg/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	configFile string
	v          = config.NewViper()
	cfg        *config.Config
)

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"data":           "data.path",
	"model":          "model.path",
	"sample-rate":    "sample_rate",
	"chunk-len":      "chunk_len",
	"window":         "verdict.window_chunks",
	"addr":           "server.addr",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"trace-exporter": "trace.exporter",
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "focusd",
	Short: "Real-time EEG focus classification server",
	Long: `focusd replays a recorded EEG signal in real time, classifies each chunk
as focused or not from its band power, aggregates the labels into periodic
verdicts and broadcasts the live state to WebSocket clients.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default is ./configs/focusd.yaml)")
	pf.String("data", "", "recording to replay (.npz, .npy or .wav)")
	pf.String("model", "", "classifier artifact (YAML or JSON)")
	pf.Int("sample-rate", 0, "sampling rate in Hz")
	pf.Int("chunk-len", 0, "samples per chunk")
	pf.Int("window", 0, "chunks per verdict window")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (text, json)")
	pf.String("trace-exporter", "", "trace exporter (none, stdout, otlp)")
}

// initializeConfig reads the .env file and config file, binds flags, then
// loads and validates the result and sets up logging.
func initializeConfig(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	if err := readConfigFile(v, configFile); err != nil {
		return err
	}
	if err := bindFlags(cmd, v); err != nil {
		return err
	}

	loaded, err := config.Load(v)
	if err != nil {
		return err
	}
	if err := logging.Setup(loaded.Log.Level, loaded.Log.Format); err != nil {
		return err
	}
	cfg = loaded

	if used := v.ConfigFileUsed(); used != "" {
		logging.For("cli").WithField("file", used).Debug("using config file")
	}
	return nil
}

// readConfigFile reads an explicit file, or searches the usual places.
// Only an explicit file is required to exist.
func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/focusd")
		v.SetConfigName("focusd")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// bindFlags binds each cobra flag to its associated viper configuration key
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var lastErr error

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		// Unset flags must not shadow file or environment values
		if !f.Changed {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			lastErr = err
		}
	})

	return lastErr
}

package cli

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/parisxmas/kobodash/internal/config"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:          "kobodash",
	Short:        "Mirror KoboToolbox forms locally and serve dashboard analytics",
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default $"+config.EnvFile+")")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// withApp loads the config and runs fn against a fully wired app.
func withApp(fn func(a *app) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/lensnet-go/cmd/classify"
	"github.com/tphakala/lensnet-go/cmd/live"
	"github.com/tphakala/lensnet-go/cmd/models"
	"github.com/tphakala/lensnet-go/internal/buildinfo"
	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/logger"
)

// RootCommand creates the root command. Subcommands share settings, which
// are loaded once flags have been parsed.
func RootCommand(build buildinfo.BuildInfo) *cobra.Command {
	settings := &conf.Settings{}
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "lensnet",
		Short:        "LensNet-Go live camera classifier",
		Version:      build.Version(),
		SilenceUsage: true,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		live.Command(settings, build),
		classify.Command(settings),
		models.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded
		return initialize(settings)
	}

	return rootCmd
}

// initialize installs the global logger for the loaded settings.
func initialize(settings *conf.Settings) error {
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}
	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)
	return nil
}

// setupFlags defines the global flags and binds them into viper so they
// take precedence over the config file.
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to config.yaml")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.StringP("model", "m", "", "Classification model (mobilenet_v2, efficientnet_lite0, resnet50)")
	flags.Float64P("threshold", "t", 0, "Minimum confidence for reported results, between 0 and 1")

	bindings := map[string]string{
		"debug":               "debug",
		"model.type":          "model",
		"model.minconfidence": "threshold",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

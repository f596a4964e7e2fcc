package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cryguy/jsbridge"
	"github.com/cryguy/jsbridge/internal/hostconfig"
	"github.com/cryguy/jsbridge/internal/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	LogLevel string
	LogFile  string
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "jsbridge",
		Short:         "Run JavaScript through an embedded engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level: debug|info|warn|error (default from JSBRIDGE_LOG_LEVEL)")
	root.PersistentFlags().StringVar(&flags.LogFile, "log-file", "", "also write logs to this rolling file")

	root.AddCommand(newRunCmd(&flags))
	root.AddCommand(newEnginesCmd())
	return root
}

// hostSetup loads environment settings and builds the logger, with flags
// taking precedence over the environment.
func hostSetup(flags *globalFlags) (*hostconfig.Config, *zap.Logger, error) {
	host, err := hostconfig.Load()
	if err != nil {
		return nil, nil, err
	}
	logCfg := host.LoggingConfig()
	if flags.LogLevel != "" {
		logCfg.Level = flags.LogLevel
	}
	if flags.LogFile != "" {
		logCfg.File = flags.LogFile
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return host, logger, nil
}

func newEnginesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List available engines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range jsbridge.Engines() {
				marker := ""
				if name == jsbridge.DefaultEngine() {
					marker = " (default)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", name, marker)
			}
			return nil
		},
	}
}

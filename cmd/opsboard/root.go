package main

import (
	"github.com/opsboard/opsboard/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "opsboard",
	Short:         "Opsboard is an IT operations dashboard for assets, users, software, networks and patching.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		structured := commandUsesStructuredLogging(cmd)
		setCommandExecutionContext(commandExecutionContext{
			CommandPath:       cmd.CommandPath(),
			UsesStructuredLog: structured,
		})
		if !structured {
			return nil
		}
		_, err := logging.BootstrapFromEnv(logging.BootstrapOptions{Command: cmd.CommandPath(), Writer: cmd.ErrOrStderr()})
		return err
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd, scanCmd, syncCmd, migrateCmd, seedCmd, adminsCmd, loginCmd, logoutCmd, whoamiCmd, accessCmd)
}

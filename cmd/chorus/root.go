package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "chorus",
		Short:         "Chorus audio worker CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newConfigCommand(&configFlag))
	rootCmd.AddCommand(newDepsCommand(&configFlag))
	rootCmd.AddCommand(newQueueCommand(&configFlag))
	rootCmd.AddCommand(newUploadCommand(&configFlag))
	rootCmd.AddCommand(newRunsCommand(&configFlag))
	rootCmd.AddCommand(newTestNotifyCommand(&configFlag))

	return rootCmd
}

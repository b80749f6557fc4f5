package app

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/factmap/cmd/factmap/cmd/anomalies"
	"github.com/agentstation/factmap/cmd/factmap/cmd/run"
	sourcescmd "github.com/agentstation/factmap/cmd/factmap/cmd/sources"
)

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(run.NewCommand(a))
	rootCmd.AddCommand(sourcescmd.NewCommand(a))
	rootCmd.AddCommand(anomalies.NewCommand(a))
	rootCmd.AddCommand(a.CreateVersionCommand())
}

// AnomalyFile returns the configured anomaly file path.
func (a *App) AnomalyFile() string {
	return a.config.AnomalyFile
}

// CreateVersionCommand creates the version command.
func (a *App) CreateVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("factmap %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit:   %s\n", a.commit)
				cmd.Printf("  built:    %s\n", a.date)
				cmd.Printf("  built by: %s\n", a.builtBy)
			}
		},
	}
}

package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "events_service",
	Short: "Background events and consistency worker for the vinyl catalog",
	Long: `Runs the outbox relay that publishes catalog domain events to the
message broker, the background sweepers that keep cache, audit log and
pricing tables tidy, and an operational HTTP endpoint.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			log.Error().Err(err).Msg("Failed to display help")
		}
	},
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize()
}

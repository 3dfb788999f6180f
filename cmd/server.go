package cmd

import (
	"moodfm/logger"
	"moodfm/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the MoodFM web server",
	Long:  `Start the HTTP server that serves the pages and JSON API, talks to the generation backend and falls back to the local music store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	logger.Info("[Server] starting MoodFM")
	return server.Start(cfg)
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

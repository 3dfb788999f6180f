package cmd

import (
	"fmt"

	"moodfm/server"

	"github.com/spf13/cobra"
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Generation backend utilities",
}

var backendHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the generation backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		gateway := server.NewGateway(cfg, nil)
		fmt.Printf("Backend: %s\n", gateway.BaseURL())
		if !gateway.HealthCheck(cmd.Context()) {
			return fmt.Errorf("backend at %s is not healthy", gateway.BaseURL())
		}
		fmt.Println("Backend is healthy.")
		return nil
	},
}

func init() {
	backendCmd.AddCommand(backendHealthCmd)
	rootCmd.AddCommand(backendCmd)
}

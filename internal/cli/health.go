package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the Vector Index, Ontology, and LLM Clients",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	defer engine.Close()

	if err := engine.Health(context.Background()); err != nil {
		return fmt.Errorf("unhealthy: %w", err)
	}
	fmt.Println("ok")
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/clinextract"
)

var validateCmd = &cobra.Command{
	Use:   "validate-templates [templates.json]",
	Short: "Structurally validate a list of templates without running a job",
	Long:  "Checks acyclic section dependencies, unique section ids, and known section types, the same structural checks ProcessEncounter runs before scheduling any work.",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	var raw []byte
	var err error
	if args[0] == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("reading templates: %w", err)
	}

	var templates []clinextract.Template
	if err := json.Unmarshal(raw, &templates); err != nil {
		return fmt.Errorf("parsing templates: %w", err)
	}

	engine, err := newEngine()
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	defer engine.Close()

	if err := engine.ValidateTemplates(templates); err != nil {
		return fmt.Errorf("templates are invalid: %w", err)
	}
	fmt.Println("templates are valid")
	return nil
}

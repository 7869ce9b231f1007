package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/clinextract"
)

var preferencesCmd = &cobra.Command{
	Use:   "preferences",
	Short: "Inspect or update a doctor's terminology preferences",
}

var preferencesGetCmd = &cobra.Command{
	Use:   "get [doctor_id]",
	Short: "Print a doctor's stored preference snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreferencesGet,
}

var preferencesPutCmd = &cobra.Command{
	Use:   "put [doctor_id] [entries.json]",
	Short: "Bulk-replace a doctor's preference entries from a JSON file",
	Args:  cobra.ExactArgs(2),
	RunE:  runPreferencesPut,
}

func init() {
	rootCmd.AddCommand(preferencesCmd)
	preferencesCmd.AddCommand(preferencesGetCmd, preferencesPutCmd)
}

func runPreferencesGet(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	defer engine.Close()

	prefs, err := engine.GetDoctorPreferences(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("fetching preferences: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(prefs)
}

func runPreferencesPut(cmd *cobra.Command, args []string) error {
	var raw []byte
	var err error
	if args[1] == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(args[1])
	}
	if err != nil {
		return fmt.Errorf("reading entries: %w", err)
	}

	var entries map[string]clinextract.PreferenceEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("parsing entries: %w", err)
	}

	engine, err := newEngine()
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	defer engine.Close()

	if err := engine.PutDoctorPreferences(context.Background(), args[0], entries); err != nil {
		return fmt.Errorf("storing preferences: %w", err)
	}
	fmt.Printf("stored %d preference entries for doctor %s\n", len(entries), args[0])
	return nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/clinextract"
)

var processCmd = &cobra.Command{
	Use:   "process [request.json]",
	Short: "Submit an encounter request and stream its section publications",
	Long: `Read an EncounterRequest JSON document from a file (or stdin with "-"),
submit it for processing, and poll until the job reaches a terminal status,
printing each accepted or failed section as it is published.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().Duration("poll-interval", time.Second, "status polling interval")
}

func runProcess(cmd *cobra.Command, args []string) error {
	var raw []byte
	var err error
	if args[0] == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("reading request: %w", err)
	}

	var req clinextract.EncounterRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("parsing request: %w", err)
	}

	engine, err := newEngine()
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	defer engine.Close()

	ctx := context.Background()
	job, err := engine.ProcessEncounter(ctx, req)
	if err != nil {
		return fmt.Errorf("submitting encounter: %w", err)
	}
	fmt.Printf("job_id: %s\n", job.JobID)

	interval, _ := cmd.Flags().GetDuration("poll-interval")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		status, err := engine.JobStatus(job.JobID)
		if err != nil {
			return fmt.Errorf("polling job status: %w", err)
		}
		if isTerminalJobStatus(status.Status) {
			fmt.Printf("job %s finished with status %s\n", job.JobID, status.Status)
			return nil
		}
	}
	return nil
}

func isTerminalJobStatus(status clinextract.JobStatusValue) bool {
	switch status {
	case clinextract.JobCompleted, clinextract.JobPartiallyFailed, clinextract.JobFailed, clinextract.JobCancelled:
		return true
	default:
		return false
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/calliq/qaengine/pkg/models"
	"github.com/calliq/qaengine/pkg/queue"
)

var (
	sandboxBlueprintID    string
	sandboxCompanyID      string
	sandboxTranscriptFile string
	sandboxRecordingID    string
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Run an ad hoc sandbox evaluation against a blueprint",
	Long: `sandbox runs the same sandbox-evaluate task handler the HTTP
	synchronous sandbox endpoint calls in-process, against either a transcript
	JSON file (--transcript-file) or an existing recording (--recording-id),
	and prints the resulting SandboxRun as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		runID := models.NewID()
		taskPayload := queue.SandboxTaskPayload{
			SandboxRunID: runID,
			CompanyID:    sandboxCompanyID,
			BlueprintID:  sandboxBlueprintID,
		}

		if sandboxTranscriptFile != "" {
			transcript, err := loadTranscriptFile(sandboxTranscriptFile)
			if err != nil {
				return err
			}
			taskPayload.Transcript = transcript
		} else if sandboxRecordingID != "" {
			taskPayload.RecordingID = &sandboxRecordingID
		} else {
			return fmt.Errorf("one of --transcript-file or --recording-id is required")
		}

		payload, err := json.Marshal(taskPayload)
		if err != nil {
			return fmt.Errorf("marshal sandbox payload: %w", err)
		}

		handler := a.handlers[queue.TaskKindSandboxEvaluate]
		if err := handler(ctx, payload); err != nil {
			return fmt.Errorf("sandbox evaluate failed: %w", err)
		}

		run, err := a.store.GetSandboxRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("load sandbox run: %w", err)
		}

		out, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal sandbox run: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func loadTranscriptFile(path string) (*models.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript file: %w", err)
	}
	var transcript models.Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return nil, fmt.Errorf("parse transcript file: %w", err)
	}
	return &transcript, nil
}

func init() {
	sandboxCmd.Flags().StringVar(&sandboxBlueprintID, "blueprint-id", "", "Blueprint id to evaluate against")
	sandboxCmd.Flags().StringVar(&sandboxCompanyID, "company-id", "default", "Tenant company id")
	sandboxCmd.Flags().StringVar(&sandboxTranscriptFile, "transcript-file", "", "Path to a transcript JSON file")
	sandboxCmd.Flags().StringVar(&sandboxRecordingID, "recording-id", "", "Existing recording id to evaluate")
	_ = sandboxCmd.MarkFlagRequired("blueprint-id")
}

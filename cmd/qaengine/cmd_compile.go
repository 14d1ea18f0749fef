package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calliq/qaengine/pkg/queue"
)

var (
	compileBlueprintVersionID string
	compileBlueprintID        string
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a published BlueprintVersion into a CompiledFlowVersion",
	Long: `compile runs the same compile-blueprint task handler the background
	queue dispatches, in-process, against an already-published BlueprintVersion.
	Useful for re-running compilation after a blueprint package change without
	going through the HTTP publish endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		payload, err := json.Marshal(queue.CompileTaskPayload{
				BlueprintID:        compileBlueprintID,
				BlueprintVersionID: compileBlueprintVersionID,
		})
		if err != nil {
			return fmt.Errorf("marshal compile payload: %w", err)
		}

		handler := a.handlers[queue.TaskKindCompileBlueprint]
		if err := handler(ctx, payload); err != nil {
			return fmt.Errorf("compile failed: %w", err)
		}

		fmt.Printf("compiled blueprint version %s\n", compileBlueprintVersionID)
		return nil
	},
}

func init() {
	compileCmd.Flags().StringVar(&compileBlueprintID, "blueprint-id", "", "Blueprint id")
	compileCmd.Flags().StringVar(&compileBlueprintVersionID, "blueprint-version-id", "", "BlueprintVersion id to compile")
	_ = compileCmd.MarkFlagRequired("blueprint-id")
	_ = compileCmd.MarkFlagRequired("blueprint-version-id")
}

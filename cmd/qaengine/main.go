// Command qaengine runs the call QA evaluation engine: the HTTP API, the
// background worker pool, and one-shot CLI entry points for compiling a
// blueprint or running a sandbox evaluation outside the server process.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configDir string
	httpPort  string
	ginMode   string
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// rootCmd is the base command; running it with no subcommand is
// equivalent to `qaengine serve`.
var rootCmd = &cobra.Command{
	Use:   "qaengine",
	Short: "Call QA evaluation engine",
	Long: `qaengine scores customer-service call recordings against
	versioned QA blueprints: deterministic phrase/rule detection, optional
	LLM-judged behaviors, and a weighted rubric score, run either as the
	background pipeline or on demand against an ad hoc transcript.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	rootCmd.PersistentFlags().StringVar(&httpPort,
		"http-port", getEnv("HTTP_PORT", "8080"), "HTTP listen port")
	rootCmd.PersistentFlags().StringVar(&ginMode,
		"gin-mode", getEnv("GIN_MODE", "debug"), "gin mode: debug, release, or test")

	rootCmd.AddCommand(serveCmd, compileCmd, sandboxCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

// Exit codes. Zero means an output file was produced, even when some batches
// failed with warnings.
const (
	ExitSuccess      = 0
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
)

var rootCmd = &cobra.Command{
	Use:   "redline",
	Short: "LLM document review CLI",
	Long:  "Redline reviews the text of a .docx document with an LLM and writes a copy with anchored comments, leaving the original text untouched.",
}

// Run executes the root command and returns an exit code.
func Run() int {
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}

	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print redline version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "redline version %s\n", version)
	},
}

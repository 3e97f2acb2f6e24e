package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List example model identifiers",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(os.Stdout, "Any OpenAI-compatible chat model works. Examples:")
		fmt.Fprintln(os.Stdout)
		fmt.Fprintln(os.Stdout, "  Hosted (set REDLINE_API_KEY):")
		fmt.Fprintln(os.Stdout, "    gpt-4o")
		fmt.Fprintln(os.Stdout, "    gpt-4o-mini")
		fmt.Fprintln(os.Stdout)
		fmt.Fprintln(os.Stdout, "  Local Ollama (set REDLINE_BASE_URL=http://localhost:11434/v1):")
		fmt.Fprintln(os.Stdout, "    ollama/gemma3:12b")
		fmt.Fprintln(os.Stdout, "    ollama/llama3.1:8b")
		fmt.Fprintln(os.Stdout, "    ollama/qwen2.5:14b")
	},
}

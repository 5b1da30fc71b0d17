package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentic-research/srcmap/internal/mapping"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(resolveCmd)
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <document> <file>",
	Short: "Print the download URL a debugger would use for a local source file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read mapping document: %w", err)
		}
		doc, err := mapping.Load(data)
		if err != nil {
			return err
		}

		file, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("resolve file path: %w", err)
		}
		url, ok := doc.Resolve(file)
		if !ok {
			return fmt.Errorf("no mapping for %s", file)
		}
		fmt.Fprintln(cmd.OutOrStdout(), url)
		return nil
	},
}

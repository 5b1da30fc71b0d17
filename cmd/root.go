package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "srcmap",
	Short: "srcmap: map build sources to the commit URLs they were built from",
	Long: `srcmap discovers the source roots of a git checkout, rewrites their
repository URLs with configured translation rules and writes a source mapping
document plus version metadata into the build's intermediate directory.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package cmd

import (
	"fmt"

	"github.com/agentic-research/srcmap/internal/stamp"
	"github.com/spf13/cobra"
)

var ldflagsSymbol string

func init() {
	stampCmd.Flags().StringVar(&ldflagsSymbol, "ldflags", "", "Print a linker flag setting this string variable (e.g. main.version)")
	rootCmd.AddCommand(stampCmd)
}

var stampCmd = &cobra.Command{
	Use:   "stamp <version> <revision>",
	Short: "Print the informational version for a base version and revision",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := stamp.InformationalVersion(args[0], args[1])
		if err != nil {
			return err
		}
		if ldflagsSymbol != "" {
			if v, err = stamp.Ldflags(ldflagsSymbol, v); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

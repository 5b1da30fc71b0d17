package cmd

import (
	"fmt"
	"strings"

	"github.com/agentic-research/srcmap/internal/config"
	"github.com/agentic-research/srcmap/internal/repourl"
	"github.com/agentic-research/srcmap/internal/translate"
	"github.com/spf13/cobra"
)

var (
	translateConfig string
	extraRules      []string
)

func init() {
	translateCmd.Flags().StringVarP(&translateConfig, "config", "c", "", "Path to build file (default ./srcmap.hcl)")
	translateCmd.Flags().StringArrayVarP(&extraRules, "rule", "r", nil, "Extra rule as pattern=replacement, applied after configured rules")
	rootCmd.AddCommand(translateCmd)
}

var translateCmd = &cobra.Command{
	Use:   "translate <url>",
	Short: "Canonicalize a repository URL and apply the translation rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(".", translateConfig)
		if err != nil {
			return err
		}

		rules := make([]translate.Rule, 0, len(cfg.Rules)+len(extraRules))
		for _, r := range cfg.Rules {
			rules = append(rules, translate.Rule{Name: r.Name, Pattern: r.Pattern, Replacement: r.Replacement, Partial: r.Partial})
		}
		for i, raw := range extraRules {
			r, err := parseRuleFlag(raw)
			if err != nil {
				return err
			}
			r.Name = fmt.Sprintf("--rule #%d", i+1)
			rules = append(rules, r)
		}

		canonical, err := repourl.Canonicalize(args[0])
		if err != nil {
			return err
		}
		out, err := translate.Translate(canonical, rules)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

// parseRuleFlag splits "pattern=replacement" at the last '='.
func parseRuleFlag(s string) (translate.Rule, error) {
	i := strings.LastIndexByte(s, '=')
	if i <= 0 {
		return translate.Rule{}, fmt.Errorf("invalid --rule %q: want pattern=replacement", s)
	}
	return translate.Rule{Pattern: s[:i], Replacement: s[i+1:]}, nil
}

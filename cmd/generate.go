package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/agentic-research/srcmap/internal/config"
	"github.com/agentic-research/srcmap/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	configPath           string
	publishRepositoryURL bool
	versionOverride      string
	manifestPath         string
)

func init() {
	generateCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to build file (default <dir>/srcmap.hcl)")
	generateCmd.Flags().BoolVar(&publishRepositoryURL, "publish-repository-url", false, "Publish the translated repository URL in version metadata and manifest")
	generateCmd.Flags().StringVar(&versionOverride, "version", "", "Base version to stamp (default from config, then 1.0.0)")
	generateCmd.Flags().StringVar(&manifestPath, "manifest", "", "Package manifest (.nuspec) to stamp with repository metadata")
	rootCmd.AddCommand(generateCmd)
}

var generateCmd = &cobra.Command{
	Use:   "generate [dir]",
	Short: "Write the source mapping document and version metadata for a project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}

		cfg, err := config.Load(dir, configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("publish-repository-url") {
			cfg.PublishRepositoryURL = publishRepositoryURL
		}
		if versionOverride != "" {
			cfg.Version = versionOverride
		}
		if manifestPath != "" {
			if cfg.Manifest, err = filepath.Abs(manifestPath); err != nil {
				return fmt.Errorf("resolve manifest path: %w", err)
			}
		}

		res, err := pipeline.Run(cmd.Context(), pipeline.Options{Dir: dir, Config: cfg})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, t := range res.Templates {
			fmt.Fprintf(out, "%s* -> %s\n", t.PathPrefix, t.URLPattern)
		}
		fmt.Fprintf(out, "Wrote %s\n", res.DocumentPath)
		fmt.Fprintf(out, "Wrote %s\n", res.VersionPath)
		if cfg.Manifest != "" {
			fmt.Fprintf(out, "Stamped %s\n", cfg.Manifest)
		}
		fmt.Fprintf(out, "Informational version: %s\n", res.InformationalVersion)
		return nil
	},
}

package api

// Config represents the root of a srcmap.hcl file. It describes how the
// source roots of a build are mapped to download URLs.
type Config struct {
	// Project name. Names the generated files under IntermediateDir.
	Project string `hcl:"project,optional"`
	// Version is the base version stamped with the revision.
	Version string `hcl:"version,optional"`
	// IntermediateDir receives the generated mapping and version files.
	IntermediateDir string `hcl:"intermediate_dir,optional"`
	// Manifest is an optional package manifest (.nuspec) to stamp.
	Manifest string `hcl:"manifest,optional"`
	// Remote used for discovery (default "origin").
	Remote string `hcl:"remote,optional"`
	// PublishRepositoryURL controls whether the translated repository URL
	// is written to the version file and manifest.
	PublishRepositoryURL bool `hcl:"publish_repository_url,optional"`
	// FallbackProvider composes URLs for hosts no provider claims.
	FallbackProvider string `hcl:"fallback_provider,optional"`
	// Workers bounds concurrent URL composition.
	Workers int `hcl:"workers,optional"`

	Rules       []Rule       `hcl:"rule,block"`
	Hosts       []Host       `hcl:"host,block"`
	SourceRoots []SourceRoot `hcl:"source_root,block"`
}

// Rule is a repository URL translation rule, applied in file order.
type Rule struct {
	Name        string `hcl:"name,label"`
	Pattern     string `hcl:"pattern"`
	Replacement string `hcl:"replacement"`
	// Partial rewrites every match instead of requiring a full-URL match.
	Partial bool `hcl:"partial,optional"`
}

// Host assigns a provider (github, gitlab, ...) to a host name. A leading
// "*." matches any subdomain.
type Host struct {
	Name     string `hcl:"name,label"`
	Provider string `hcl:"provider"`
}

// SourceRoot declares a root explicitly instead of discovering it from git.
type SourceRoot struct {
	Path          string `hcl:"path"`
	RepositoryURL string `hcl:"repository_url"`
	Revision      string `hcl:"revision"`
	TopLevel      bool   `hcl:"top_level,optional"`
}

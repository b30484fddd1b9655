package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

// Options holds the CLI's flag-bound inputs, mirroring the teacher's
// options.Options (cmd/root.go's o.AddFlags(cmd) shape) scaled down to
// this crawler's configuration surface.
type Options struct {
	GitlabURL    string
	OutputDir    string
	OAuthToken   string
	RefreshToken string
	ClientID     string
	ClientSecret string
	ConfigFile   string

	Concurrency       int
	RequestsPerSecond float64
	MaxRetries        int
	TimeoutMS         int
	LogLevel          string

	ProjectIDs   []string
	ProjectPaths []string
	GroupIDs     []string
	GroupPaths   []string
}

// AddFlags registers every flag onto cmd, following the teacher's
// `o.AddFlags(cmd)` convention of a single method owning all flag wiring.
func (o *Options) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.GitlabURL, "gitlab-url", "https://gitlab.com", "base URL of the GitLab instance to crawl")
	cmd.Flags().StringVar(&o.OutputDir, "output-dir", "./gitlab-crawl-output", "directory JSONL/JSON output is written under")
	cmd.Flags().StringVar(&o.OAuthToken, "oauth-token", "", "GitLab OAuth access token")
	cmd.Flags().StringVar(&o.RefreshToken, "refresh-token", "", "GitLab OAuth refresh token (enables auto-refresh)")
	cmd.Flags().StringVar(&o.ClientID, "client-id", "", "OAuth application client ID (required for refresh)")
	cmd.Flags().StringVar(&o.ClientSecret, "client-secret", "", "OAuth application client secret (required for refresh)")
	cmd.Flags().StringVar(&o.ConfigFile, "config", "", "optional YAML overlay for includeResources/rate overrides")

	cmd.Flags().IntVar(&o.Concurrency, "concurrency", 5, "global maximum number of concurrently running jobs")
	cmd.Flags().Float64Var(&o.RequestsPerSecond, "requests-per-second", 50, "global default request rate")
	cmd.Flags().IntVar(&o.MaxRetries, "max-retries", 3, "maximum retry attempts per job before giving up")
	cmd.Flags().IntVar(&o.TimeoutMS, "timeout-ms", 0, "optional per-job timeout in milliseconds (0 disables it)")
	cmd.Flags().StringVar(&o.LogLevel, "log-level", "info", "log level: debug, info, warn, error")

	cmd.Flags().StringSliceVar(&o.ProjectIDs, "project-id", nil, "restrict crawling to these project IDs (repeatable)")
	cmd.Flags().StringSliceVar(&o.ProjectPaths, "project-path", nil, "restrict crawling to projects under these path prefixes (repeatable)")
	cmd.Flags().StringSliceVar(&o.GroupIDs, "group-id", nil, "restrict crawling to these group IDs (repeatable)")
	cmd.Flags().StringSliceVar(&o.GroupPaths, "group-path", nil, "restrict crawling to groups under these path prefixes (repeatable)")
}

// TimeoutDuration converts TimeoutMS to a time.Duration for callers that
// need it (config.Config stores the raw millisecond count, per spec.md §6).
func (o *Options) TimeoutDuration() time.Duration {
	return time.Duration(o.TimeoutMS) * time.Millisecond
}

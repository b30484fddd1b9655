// Package cmd implements the gitlab-crawler command-line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ossf/gitlab-crawler/apiclient"
	"github.com/ossf/gitlab-crawler/auth"
	"github.com/ossf/gitlab-crawler/config"
	"github.com/ossf/gitlab-crawler/crawler"
	sce "github.com/ossf/gitlab-crawler/errors"
	"github.com/ossf/gitlab-crawler/job"
)

const (
	crawlerLong = "A program that crawls a GitLab instance's groups, projects, and their " +
		"sub-resources into a local, resumable JSONL/JSON archive."
	crawlerUse   = "gitlab-crawler --gitlab-url=<url> --oauth-token=<token> --output-dir=<dir>"
	crawlerShort = "GitLab crawler"
)

// New creates the root command, following the teacher's
// `New(o *options.Options) *cobra.Command` shape (cmd/root.go).
func New(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   crawlerUse,
		Short: crawlerShort,
		Long:  crawlerLong,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Validate(); err != nil {
				return fmt.Errorf("validating options: %w", err)
			}
			cmd.SilenceUsage = true
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd(o)
		},
	}

	o.AddFlags(cmd)
	return cmd
}

// Validate checks the required option combinations spec.md §6 calls for
// (gitlabUrl/outputDir/auth), returning the first failed check.
func (o *Options) Validate() error {
	if o.GitlabURL == "" {
		return sce.WithMessage(sce.ErrConfig, "--gitlab-url is required")
	}
	if o.OutputDir == "" {
		return sce.WithMessage(sce.ErrConfig, "--output-dir is required")
	}
	if o.OAuthToken == "" {
		return sce.WithMessage(sce.ErrConfig, "--oauth-token is required")
	}
	if o.RefreshToken != "" && (o.ClientID == "" || o.ClientSecret == "") {
		return sce.WithMessage(sce.ErrConfig, "--client-id and --client-secret are required when --refresh-token is set")
	}
	return nil
}

func rootCmd(o *Options) error {
	authCfg := &job.AuthConfig{
		OAuthToken:   o.OAuthToken,
		RefreshToken: o.RefreshToken,
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
	}

	cfg, err := config.Load(o.GitlabURL, o.OutputDir, authCfg)
	if err != nil {
		return err
	}
	cfg.Concurrency = o.Concurrency
	cfg.RequestsPerSecond = o.RequestsPerSecond
	cfg.MaxRetries = o.MaxRetries
	cfg.TimeoutMS = o.TimeoutMS
	cfg.LogLevel = o.LogLevel
	cfg.IncludeResources = config.IncludeResources{
		ProjectIDs:   o.ProjectIDs,
		ProjectPaths: o.ProjectPaths,
		GroupIDs:     o.GroupIDs,
		GroupPaths:   o.GroupPaths,
	}

	if o.ConfigFile != "" {
		if err := config.LoadYAMLOverlay(cfg, o.ConfigFile); err != nil {
			return err
		}
	}

	client, err := apiclient.NewGitlabClient(o.GitlabURL, o.OAuthToken)
	if err != nil {
		return sce.WithMessage(sce.ErrConfig, fmt.Sprintf("creating GitLab client: %v", err))
	}

	var refreshFunc auth.RefreshFunc
	if o.RefreshToken != "" {
		refreshFunc = auth.NewOAuthRefresher(o.GitlabURL)
	}

	c := crawler.New(cfg, client, refreshFunc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return c.Run(ctx)
}

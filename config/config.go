// Package config defines the crawler's runtime configuration, following
// the teacher's options.New() env-parsing + defaulting pattern, plus an
// optional YAML overlay for the include-resource filters.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"

	"github.com/ossf/gitlab-crawler/job"
	sce "github.com/ossf/gitlab-crawler/errors"
)

// IncludeResources narrows discovery per spec.md §4.5.1. Nil/empty slices
// mean "accept all" for that dimension.
type IncludeResources struct {
	ProjectIDs    []string `yaml:"projectIds"`
	ProjectPaths  []string `yaml:"projectPaths"`
	GroupIDs      []string `yaml:"groupIds"`
	GroupPaths    []string `yaml:"groupPaths"`
}

// Hooks are the optional scheduler extension points from spec.md §6.
// BeforeJobStart returning false skips enqueuing the job.
// A panic inside AfterJobComplete/JobFailed is recovered and logged, never
// propagated (§4.5.3).
type Hooks struct {
	BeforeJobStart    func(j job.Job) bool
	AfterJobComplete  func(j job.Job)
	JobFailed         func(j job.Job, err error)
}

// Env holds the tunables caarlos0/env is allowed to override, mirroring
// options.Options' env-tagged fields.
type Env struct {
	Concurrency       int    `env:"GITLAB_CRAWLER_CONCURRENCY"`
	RequestsPerSecond float64 `env:"GITLAB_CRAWLER_REQUESTS_PER_SECOND"`
	MaxRetries        int    `env:"GITLAB_CRAWLER_MAX_RETRIES"`
	LogLevel          string `env:"GITLAB_CRAWLER_LOG_LEVEL"`
	TimeoutMS         int    `env:"GITLAB_CRAWLER_TIMEOUT_MS"`
}

// Config is the full recognized configuration key set from spec.md §6.
type Config struct {
	GitlabURL string
	Auth      *job.AuthConfig
	OutputDir string

	RequestsPerSecond          float64
	ResourceSpecificRateLimits map[job.Type]float64

	Concurrency                int
	ConcurrencyPerResourceType map[job.Type]int

	MaxRetries        int
	RetryDelayMS      int
	RetryBackoffFactor float64
	RetryJitter       float64

	// TimeoutMS is the optional per-job timeout (0 disables it).
	TimeoutMS int

	IncludeResources IncludeResources
	Hooks            Hooks

	LogLevel string
}

// Default per-type request rates from spec.md §4.1.
var defaultResourceRates = map[job.Type]float64{
	job.DiscoverGroups:          1,
	job.DiscoverProjects:        1,
	job.DiscoverSubgroups:       1,
	job.GroupDetails:            2,
	job.GroupMembers:            2,
	job.GroupIssues:             2,
	job.GroupProjects:           1,
	job.ProjectDetails:          5,
	job.ProjectBranches:         3,
	job.ProjectMergeRequests:    2,
	job.ProjectIssues:           2,
	job.ProjectPipelines:        2,
	job.ProjectMilestones:       5,
	job.ProjectReleases:         5,
	job.ProjectVulnerabilities:  1,
	job.MergeRequestDiscussions: 1,
	job.IssueDiscussions:        1,
	job.PipelineDetails:         1,
	job.PipelineTestReports:     1,
}

// Load builds a Config from required fields plus environment overrides,
// matching options.New()'s "parse env, then default the zero values" shape.
func Load(gitlabURL, outputDir string, auth *job.AuthConfig) (*Config, error) {
	if gitlabURL == "" {
		return nil, sce.WithMessage(sce.ErrConfig, "gitlabUrl is required")
	}
	if outputDir == "" {
		return nil, sce.WithMessage(sce.ErrConfig, "outputDir is required")
	}
	if auth == nil {
		return nil, sce.WithMessage(sce.ErrConfig, "auth is required")
	}

	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, sce.WithMessage(sce.ErrConfig, fmt.Sprintf("env.Parse: %v", err))
	}

	c := &Config{
		GitlabURL:                  gitlabURL,
		OutputDir:                  outputDir,
		Auth:                       auth,
		RequestsPerSecond:          50,
		ResourceSpecificRateLimits: cloneRates(defaultResourceRates),
		Concurrency:                5,
		ConcurrencyPerResourceType: map[job.Type]int{},
		MaxRetries:                 3,
		RetryDelayMS:               5000,
		RetryBackoffFactor:         2,
		RetryJitter:                0.1,
		LogLevel:                   "info",
	}

	if e.Concurrency > 0 {
		c.Concurrency = e.Concurrency
	}
	if e.RequestsPerSecond > 0 {
		c.RequestsPerSecond = e.RequestsPerSecond
	}
	if e.MaxRetries > 0 {
		c.MaxRetries = e.MaxRetries
	}
	if e.LogLevel != "" {
		c.LogLevel = e.LogLevel
	}
	if e.TimeoutMS > 0 {
		c.TimeoutMS = e.TimeoutMS
	}

	// Per-type concurrency default: ceil(rate) when unset (SPEC_FULL.md
	// "Supplemented features" #3).
	for typ, rate := range c.ResourceSpecificRateLimits {
		if _, ok := c.ConcurrencyPerResourceType[typ]; !ok {
			n := int(rate)
			if float64(n) < rate {
				n++
			}
			if n < 1 {
				n = 1
			}
			c.ConcurrencyPerResourceType[typ] = n
		}
	}

	return c, nil
}

// LoadYAMLOverlay reads IncludeResources and per-type rate overrides from a
// YAML file, following the teacher's config.parseFile(scorecard.yml) idiom.
func LoadYAMLOverlay(c *Config, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return sce.WithMessage(sce.ErrConfig, fmt.Sprintf("reading %s: %v", path, err))
	}

	var overlay struct {
		IncludeResources           IncludeResources   `yaml:"includeResources"`
		ResourceSpecificRateLimits map[string]float64 `yaml:"resourceSpecificRateLimits"`
	}
	if err := yaml.Unmarshal(content, &overlay); err != nil {
		return sce.WithMessage(sce.ErrConfig, fmt.Sprintf("parsing %s: %v", path, err))
	}

	c.IncludeResources = overlay.IncludeResources
	for typ, rate := range overlay.ResourceSpecificRateLimits {
		c.ResourceSpecificRateLimits[job.Type(typ)] = rate
	}
	return nil
}

func cloneRates(m map[job.Type]float64) map[job.Type]float64 {
	out := make(map[job.Type]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RateFor returns the effective requests-per-second for typ, falling back
// to the global default when no per-type override exists.
func (c *Config) RateFor(typ job.Type) float64 {
	if r, ok := c.ResourceSpecificRateLimits[typ]; ok {
		return r
	}
	return c.RequestsPerSecond
}

// ConcurrencyFor returns the effective per-type concurrency cap, falling
// back to the global cap when unset (spec.md §4.5.2).
func (c *Config) ConcurrencyFor(typ job.Type) int {
	if n, ok := c.ConcurrencyPerResourceType[typ]; ok && n > 0 {
		return n
	}
	return c.Concurrency
}

// NonSecretSubset returns the part of Config safe to embed in exportState()
// (spec.md §6: "config: <minimal non-secret subset>"). Auth and hooks are
// deliberately excluded.
func (c *Config) NonSecretSubset() map[string]any {
	return map[string]any{
		"gitlabUrl":                  c.GitlabURL,
		"outputDir":                  c.OutputDir,
		"requestsPerSecond":          c.RequestsPerSecond,
		"concurrency":                c.Concurrency,
		"maxRetries":                 c.MaxRetries,
		"retryDelayMs":               c.RetryDelayMS,
		"retryBackoffFactor":         c.RetryBackoffFactor,
		"retryJitter":                c.RetryJitter,
		"timeout":                    c.TimeoutMS,
	}
}

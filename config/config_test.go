package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ossf/gitlab-crawler/job"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	c, err := Load("https://gitlab.example.com", t.TempDir(), &job.AuthConfig{OAuthToken: "tok"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5", c.Concurrency)
	}
	if c.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", c.MaxRetries)
	}
	if got := c.RateFor(job.ProjectDetails); got != 5 {
		t.Errorf("RateFor(ProjectDetails) = %v, want 5", got)
	}
	if got := c.RateFor(job.Type("UNKNOWN")); got != c.RequestsPerSecond {
		t.Errorf("RateFor(unknown) = %v, want global default %v", got, c.RequestsPerSecond)
	}
}

func TestLoadRequiresFields(t *testing.T) {
	t.Parallel()

	if _, err := Load("", t.TempDir(), &job.AuthConfig{}); err == nil {
		t.Error("Load() with empty gitlabUrl must error")
	}
	if _, err := Load("https://x", "", &job.AuthConfig{}); err == nil {
		t.Error("Load() with empty outputDir must error")
	}
	if _, err := Load("https://x", t.TempDir(), nil); err == nil {
		t.Error("Load() with nil auth must error")
	}
}

func TestConcurrencyForDefaultsFromRate(t *testing.T) {
	t.Parallel()

	c, err := Load("https://x", t.TempDir(), &job.AuthConfig{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	// ProjectDetails rate is 5/s -> default concurrency ceil(5) = 5.
	if got := c.ConcurrencyFor(job.ProjectDetails); got != 5 {
		t.Errorf("ConcurrencyFor(ProjectDetails) = %d, want 5", got)
	}
	c.ConcurrencyPerResourceType[job.ProjectDetails] = 2
	if got := c.ConcurrencyFor(job.ProjectDetails); got != 2 {
		t.Errorf("ConcurrencyFor(ProjectDetails) after override = %d, want 2", got)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	t.Parallel()

	c, err := Load("https://x", t.TempDir(), &job.AuthConfig{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "crawler.yml")
	content := []byte("includeResources:\n  projectPaths: [\"acme/\"]\nresourceSpecificRateLimits:\n  PROJECT_DETAILS: 9\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if err := LoadYAMLOverlay(c, path); err != nil {
		t.Fatalf("LoadYAMLOverlay() error = %v", err)
	}
	if len(c.IncludeResources.ProjectPaths) != 1 || c.IncludeResources.ProjectPaths[0] != "acme/" {
		t.Errorf("IncludeResources.ProjectPaths = %v", c.IncludeResources.ProjectPaths)
	}
	if got := c.RateFor(job.ProjectDetails); got != 9 {
		t.Errorf("RateFor(ProjectDetails) after overlay = %v, want 9", got)
	}
}

func TestNonSecretSubsetExcludesAuth(t *testing.T) {
	t.Parallel()

	c, err := Load("https://x", t.TempDir(), &job.AuthConfig{OAuthToken: "super-secret"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	subset := c.NonSecretSubset()
	for k, v := range subset {
		if s, ok := v.(string); ok && s == "super-secret" {
			t.Errorf("NonSecretSubset() leaked secret via key %q", k)
		}
	}
	if _, ok := subset["auth"]; ok {
		t.Error("NonSecretSubset() must not include an auth key")
	}
}

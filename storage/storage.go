// Package storage implements the persistence sink collaborator (spec.md
// §1, §6): an append-only JSON-lines/JSON writer over the canonical output
// paths. It is a default, swappable implementation — ProcessorRegistry
// depends only on the Store interface.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sce "github.com/ossf/gitlab-crawler/errors"
)

// Store is the persistence collaborator handlers write through (spec.md
// §6).
type Store interface {
	// WriteJSONL appends records to path (relative to the output root) as
	// newline-delimited JSON, one record per line.
	WriteJSONL(path string, records []any) error
	// WriteJSON writes obj as a single JSON document at path, overwriting
	// any existing content.
	WriteJSON(path string, obj any) error
}

// FileStore is the default Store, writing under a root directory on the
// local filesystem.
type FileStore struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates a FileStore rooted at root. root is created lazily
// on first write.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root, locks: make(map[string]*sync.Mutex)}
}

func (f *FileStore) lockFor(path string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[path]
	if !ok {
		l = &sync.Mutex{}
		f.locks[path] = l
	}
	return l
}

func (f *FileStore) resolve(path string) (string, error) {
	full := filepath.Join(f.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating parent directories for %s: %w", path, err)
	}
	return full, nil
}

// WriteJSONL appends records to path as JSON lines. Writes to the same
// path are serialized with a per-path lock; the Scheduler's single
// in-flight-handler-per-resource guarantee (spec.md §5) means two handlers
// never contend for the same path under normal operation, but the lock
// keeps this type safe to call directly in tests and from retried handlers.
func (f *FileStore) WriteJSONL(path string, records []any) error {
	if len(records) == 0 {
		return nil
	}

	full, err := f.resolve(path)
	if err != nil {
		return sce.WithMessage(sce.ErrJobFailed, err.Error())
	}

	lock := f.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	file, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return sce.WithMessage(sce.ErrJobFailed, fmt.Sprintf("opening %s: %v", path, err))
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return sce.WithMessage(sce.ErrJobFailed, fmt.Sprintf("encoding record for %s: %v", path, err))
		}
	}
	return nil
}

// WriteJSON writes obj as a single JSON document at path, overwriting any
// existing content.
func (f *FileStore) WriteJSON(path string, obj any) error {
	full, err := f.resolve(path)
	if err != nil {
		return sce.WithMessage(sce.ErrJobFailed, err.Error())
	}

	lock := f.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.Marshal(obj)
	if err != nil {
		return sce.WithMessage(sce.ErrJobFailed, fmt.Sprintf("marshaling %s: %v", path, err))
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return sce.WithMessage(sce.ErrJobFailed, fmt.Sprintf("writing %s: %v", path, err))
	}
	return nil
}

// Canonical output paths (spec.md §6).
const (
	GroupsPath   = "groups.jsonl"
	ProjectsPath = "projects.jsonl"
)

func GroupDetailsPath(gid string) string  { return filepath.Join("groups", gid, "details.json") }
func GroupSubgroupsPath(gid string) string { return filepath.Join("groups", gid, "subgroups.jsonl") }
func GroupMembersPath(gid string) string  { return filepath.Join("groups", gid, "members.jsonl") }
func GroupProjectsPath(gid string) string { return filepath.Join("groups", gid, "projects.jsonl") }
func GroupIssuesPath(gid string) string   { return filepath.Join("groups", gid, "issues.jsonl") }

func ProjectDetailsPath(pid string) string { return filepath.Join("projects", pid, "details.json") }
func ProjectBranchesPath(pid string) string {
	return filepath.Join("projects", pid, "branches.jsonl")
}
func ProjectMergeRequestsPath(pid string) string {
	return filepath.Join("projects", pid, "merge_requests.jsonl")
}
func ProjectIssuesPath(pid string) string { return filepath.Join("projects", pid, "issues.jsonl") }
func ProjectMilestonesPath(pid string) string {
	return filepath.Join("projects", pid, "milestones.jsonl")
}
func ProjectReleasesPath(pid string) string {
	return filepath.Join("projects", pid, "releases.jsonl")
}
func ProjectPipelinesPath(pid string) string {
	return filepath.Join("projects", pid, "pipelines.jsonl")
}
func ProjectVulnerabilitiesPath(pid string) string {
	return filepath.Join("projects", pid, "vulnerabilities.jsonl")
}

func MergeRequestDiscussionsPath(pid, iid string) string {
	return filepath.Join("projects", pid, "merge_requests", iid, "discussions.jsonl")
}
func IssueDiscussionsPath(pid, iid string) string {
	return filepath.Join("projects", pid, "issues", iid, "discussions.jsonl")
}
func PipelineDetailsPath(pid, pipelineID string) string {
	return filepath.Join("projects", pid, "pipelines", pipelineID, "details.json")
}
func PipelineTestReportPath(pid, pipelineID string) string {
	return filepath.Join("projects", pid, "pipelines", pipelineID, "test-report.json")
}

package apiclienttest

import (
	"context"
	"testing"

	"github.com/ossf/gitlab-crawler/apiclient"
)

func TestClientRecordsCallsAndDefaultsToEmpty(t *testing.T) {
	t.Parallel()

	c := &Client{}
	records, err := c.Groups().All(context.Background(), apiclient.Page{Page: 1, PerPage: 100})
	if err != nil {
		t.Fatalf("Groups().All() error = %v", err)
	}
	if records != nil {
		t.Errorf("records = %v, want nil for an unscripted call", records)
	}
	if len(c.Calls) != 1 || c.Calls[0] != "Groups.All(1)" {
		t.Errorf("Calls = %v, want [Groups.All(1)]", c.Calls)
	}
}

func TestClientInvokesScriptedFunc(t *testing.T) {
	t.Parallel()

	want := []apiclient.Record{{"id": 1}}
	c := &Client{
		ProjectsIssuesFunc: func(ctx context.Context, projectID string, p apiclient.Page) ([]apiclient.Record, error) {
			if projectID != "42" {
				t.Errorf("projectID = %q, want 42", projectID)
			}
			return want, nil
		},
	}

	got, err := c.Projects().Issues(context.Background(), "42", apiclient.Page{Page: 1})
	if err != nil {
		t.Fatalf("Issues() error = %v", err)
	}
	if len(got) != 1 || got[0]["id"] != 1 {
		t.Errorf("got %v, want %v", got, want)
	}
}

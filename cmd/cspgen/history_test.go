package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

// TestHistory tests listing and showing recorded runs.
func TestHistory(t *testing.T) {
	t.Parallel()

	server := newTestSite(t)
	dbDir := filepath.Join(t.TempDir(), "db")

	if _, _, err := executeRoot(t, "-u", server.URL, "-o", t.TempDir(), "--delay", "0s",
		"--save", "--db-dir", dbDir); err != nil {
		t.Fatalf("failed to record run: %v", err)
	}

	t.Run("lists runs", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := executeRoot(t, "history", "--db-dir", dbDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "ID") || !strings.Contains(stdout, "2/2") {
			t.Errorf("unexpected listing: %s", stdout)
		}
		if !strings.Contains(stdout, "1 run(s)") {
			t.Errorf("expected one run: %s", stdout)
		}
	})

	t.Run("filters by host", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := executeRoot(t, "history", "other.example", "--db-dir", dbDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "No runs recorded for other.example") {
			t.Errorf("unexpected output: %s", stdout)
		}
	})

	t.Run("shows the stored policy", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := executeRoot(t, "history", "show", "1", "--db-dir", dbDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var policy map[string][]string
		if err := json.Unmarshal([]byte(stdout), &policy); err != nil {
			t.Fatalf("expected policy JSON, got %q: %v", stdout, err)
		}
		if strings.Join(policy["script-src"], " ") != "cdn.example.net 'self'" {
			t.Errorf("unexpected policy %v", policy)
		}
	})

	t.Run("shows a markdown report", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := executeRoot(t, "history", "show", "1", "--markdown", "--db-dir", dbDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "## Directives") {
			t.Errorf("unexpected report: %s", stdout)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		t.Parallel()

		_, _, err := executeRoot(t, "history", "show", "99", "--db-dir", dbDir)
		if err == nil || !strings.Contains(err.Error(), "no run with id 99") {
			t.Errorf("expected not found error, got %v", err)
		}
	})

	t.Run("invalid run id", func(t *testing.T) {
		t.Parallel()

		if _, _, err := executeRoot(t, "history", "show", "abc", "--db-dir", dbDir); err == nil {
			t.Error("expected error for invalid id")
		}
	})
}

// TestHistory_NoDatabase tests listing when nothing was recorded yet.
func TestHistory_NoDatabase(t *testing.T) {
	t.Parallel()

	_, _, err := executeRoot(t, "history", "--db-dir", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "--save") {
		t.Errorf("expected database not found error, got %v", err)
	}
}

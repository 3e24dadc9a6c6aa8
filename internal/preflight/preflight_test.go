package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"autopublish/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func healthServer(t *testing.T, key string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+key {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunAllChecksConfiguredServices(t *testing.T) {
	srv := healthServer(t, "good-key")
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Publisher.Mode = config.PublisherModeHTTP
	cfg.Publisher.Endpoint = srv.URL
	cfg.Publisher.APIKey = "good-key"
	cfg.Imagery.Endpoint = srv.URL
	cfg.Imagery.APIKey = "bad-key"

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %+v", results)
	}
	if !results[0].Passed || !results[1].Passed {
		t.Fatalf("expected state dir and publisher to pass, got %+v", results)
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Imagery" {
		t.Fatalf("expected imagery failure, got %+v", failed)
	}
}

func TestRunAllLocalModeOnlyChecksStateDir(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()

	results := RunAll(context.Background(), &cfg)
	if len(results) != 1 || !results[0].Passed {
		t.Fatalf("expected a single passing state dir check, got %+v", results)
	}
}

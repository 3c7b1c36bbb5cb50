package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/glorpus-work/querykit/internal/logger"
	"github.com/glorpus-work/querykit/pkg/sack"
)

// TestServer represents a test HTTP server for testing
type TestServer struct {
	Server *httptest.Server
	URL    string

	requests atomic.Int64
}

// NewTestServer starts a server that serves files from the given directory.
// It is stopped when the test ends.
func NewTestServer(t *testing.T, dir string) *TestServer {
	t.Helper()
	ts := &TestServer{}
	files := http.FileServer(http.Dir(dir))
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests.Add(1)
		files.ServeHTTP(w, r)
	}))
	ts.URL = ts.Server.URL
	t.Cleanup(ts.Server.Close)
	return ts
}

// Requests returns the number of requests served so far.
func (ts *TestServer) Requests() int64 {
	return ts.requests.Load()
}

// WriteRepoFile writes a single-section .repo file into dir.
func WriteRepoFile(t *testing.T, dir, id, baseURL string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create %s: %v", dir, err)
	}
	content := fmt.Sprintf("[%s]\nname=%s $releasever - $basearch\nbaseurl=%s\nenabled=1\ngpgcheck=0\n", id, id, baseURL)
	p := filepath.Join(dir, id+".repo")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", p, err)
	}
	return p
}

// SetupTestConfig writes a configuration file whose data, cache and state
// directories live below root and which declares the given distributions.
func SetupTestConfig(t *testing.T, root string, distros ...string) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("bus:\n  type: session\n")
	b.WriteString("settings:\n")
	fmt.Fprintf(&b, "  data_dir: %s\n", filepath.Join(root, "repos"))
	fmt.Fprintf(&b, "  cache_dir: %s\n", filepath.Join(root, "cache"))
	fmt.Fprintf(&b, "  state_dir: %s\n", filepath.Join(root, "state"))
	b.WriteString("  url_schemes: [https, http, file]\n")
	b.WriteString("  log_level: debug\n")
	b.WriteString("defaults:\n  arch: x86_64\n  load_filelists: true\n")
	b.WriteString("distros:\n")
	for _, d := range distros {
		fmt.Fprintf(&b, "  - id: %s\n    releasever: \"40\"\n", d)
	}

	configPath := filepath.Join(root, "config.yaml")
	logger.Debugf("Writing test config to: %s", configPath)
	if err := os.WriteFile(configPath, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

// BuildSack builds an index for distro from XML metadata of the given
// repositories (repo id to packages) and opens it. The index is closed when
// the test ends.
func BuildSack(t *testing.T, distro string, repos map[string][]Pkg) sack.Sack {
	t.Helper()
	return BuildSackAt(t, "https://mirror.example.com/", distro, repos)
}

// BuildSackAt is BuildSack with the repositories served below mirror.
func BuildSackAt(t *testing.T, mirror, distro string, repos map[string][]Pkg) sack.Sack {
	t.Helper()
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "sack-"+distro+".sqlite")

	b, err := sack.NewBuilder(ctx, p, distro)
	if err != nil {
		t.Fatalf("Failed to create builder: %v", err)
	}
	for _, id := range sortedKeys(repos) {
		pkgs := repos[id]
		base := mirror + id + "/"
		if err := b.AddRepo(ctx, sack.RepoInfo{ID: id, BaseURL: base, Revision: "1"}); err != nil {
			b.Abort()
			t.Fatalf("Failed to add repo %s: %v", id, err)
		}
		if err := b.ImportPrimaryXML(ctx, id, strings.NewReader(PrimaryXML(pkgs))); err != nil {
			b.Abort()
			t.Fatalf("Failed to import primary of %s: %v", id, err)
		}
		if err := b.ImportFilelistsXML(ctx, id, strings.NewReader(FilelistsXML(pkgs))); err != nil {
			b.Abort()
			t.Fatalf("Failed to import filelists of %s: %v", id, err)
		}
	}
	if _, err := b.Finish(ctx); err != nil {
		t.Fatalf("Failed to finish index: %v", err)
	}

	s, err := sack.Open(ctx, p, nil)
	if err != nil {
		t.Fatalf("Failed to open index: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sortedKeys(m map[string][]Pkg) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

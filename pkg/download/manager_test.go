package download

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glorpus-work/querykit/pkg/auth"
	pkgerrors "github.com/glorpus-work/querykit/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	tests := []struct {
		name       string
		timeout    time.Duration
		userAgent  string
		expectedUA string
	}{
		{
			name:       "default user agent",
			timeout:    time.Second,
			expectedUA: "querykit/1.0",
		},
		{
			name:       "custom user agent",
			timeout:    2 * time.Second,
			userAgent:  "test-agent/1.0",
			expectedUA: "test-agent/1.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.timeout, tt.userAgent)
			require.NotNil(t, m)
			assert.Equal(t, tt.timeout, m.client.Timeout)
			assert.Equal(t, tt.expectedUA, m.userAgent)
		})
	}
}

func TestFetch_SingleFile(t *testing.T) {
	tests := []struct {
		name           string
		setupServer    func() *httptest.Server
		item           Item
		expectError    bool
		expectErrorMsg string
		checkFile      bool
	}{
		{
			name: "successful download",
			setupServer: func() *httptest.Server {
				return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusOK)
					_, _ = w.Write([]byte("test content"))
				}))
			},
			item: Item{
				ID:  "test1",
				URL: &url.URL{},
			},
			expectError:    false,
			expectErrorMsg: "",
			checkFile:      true,
		},
		{
			name: "not found",
			setupServer: func() *httptest.Server {
				return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusNotFound)
				}))
			},
			item: Item{
				ID:  "test2",
				URL: &url.URL{},
			},
			expectError:    true,
			expectErrorMsg: "unexpected status code: 404",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := tt.setupServer()
			defer server.Close()

			if tt.item.URL.Host == "" {
				parsedURL, err := url.Parse(server.URL)
				require.NoError(t, err)
				tt.item.URL = parsedURL
			}

			tempDir := t.TempDir()
			m := NewManager(time.Second, "test")

			path, err := m.Fetch(context.Background(), tt.item, Options{Dir: tempDir})
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectErrorMsg)
				return
			}

			require.NoError(t, err)

			if tt.checkFile {
				content, err := os.ReadFile(path)
				require.NoError(t, err)
				assert.Equal(t, "test content", string(content))
			}
		})
	}
}

func TestFetch_WithChecksum(t *testing.T) {
	sum256 := sha256.Sum256([]byte("test content"))
	sum512 := sha512.Sum512([]byte("test content"))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("test content"))
	}))
	defer server.Close()

	tests := []struct {
		name         string
		checksum     string
		checksumType string
		expectError  error
	}{
		{
			name:     "valid sha256 checksum",
			checksum: hex.EncodeToString(sum256[:]),
		},
		{
			name:         "valid sha512 checksum",
			checksum:     hex.EncodeToString(sum512[:]),
			checksumType: "sha512",
		},
		{
			name:         "uppercase checksum",
			checksum:     strings.ToUpper(hex.EncodeToString(sum256[:])),
			checksumType: "SHA256",
		},
		{
			name:        "invalid checksum",
			checksum:    "invalidchecksum1234567890abcdef1234567890abcdef1234567890abcdef12345678",
			expectError: pkgerrors.ErrFileHashMismatch,
		},
		{
			name:         "unsupported checksum type",
			checksum:     hex.EncodeToString(sum256[:]),
			checksumType: "md5",
			expectError:  pkgerrors.ErrUnsupportedChecksum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsedURL, err := url.Parse(server.URL)
			require.NoError(t, err)

			item := Item{
				ID:           "test-checksum",
				URL:          parsedURL,
				Checksum:     tt.checksum,
				ChecksumType: tt.checksumType,
			}

			tempDir := t.TempDir()
			m := NewManager(time.Second, "test")

			_, err = m.Fetch(context.Background(), item, Options{Dir: tempDir})

			if tt.expectError != nil {
				require.ErrorIs(t, err, tt.expectError)
				leftovers, globErr := filepath.Glob(filepath.Join(tempDir, "dl-*.tmp"))
				require.NoError(t, globErr)
				assert.Empty(t, leftovers)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestFetchAll_Concurrent(t *testing.T) {
	const numItems = 5
	var serverResponses = make(map[string]string)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract the item ID from the URL path
		id := r.URL.Path[1:] // remove leading slash
		content, exists := serverResponses[id]
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(content))
	}))

	defer server.Close()

	// Prepare test data
	var items []Item
	for i := 0; i < numItems; i++ {
		id := string(rune('a' + i)) // a, b, c, ...
		content := "content for " + id
		serverResponses[id] = content

		parsedURL, err := url.Parse(server.URL + "/" + id)
		require.NoError(t, err)

		items = append(items, Item{
			ID:  id,
			URL: parsedURL,
		})
	}

	tests := []struct {
		name       string
		concurrent bool
	}{
		{
			name:       "sequential",
			concurrent: false,
		},
		{
			name:       "concurrent",
			concurrent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			m := NewManager(5*time.Second, "test")

			opts := Options{
				Dir: tempDir,
			}
			if tt.concurrent {
				opts.Concurrency = 3 // Test with 3 concurrent workers
			}

			results, err := m.FetchAll(context.Background(), items, opts)
			require.NoError(t, err)
			require.Len(t, results, numItems)

			// Verify all files were downloaded correctly
			for i, item := range items {
				path, ok := results[item.ID]
				require.True(t, ok, "missing result for item %d", i)
				require.NotEmpty(t, path, "empty path for item %d", i)

				content, err := os.ReadFile(path)
				require.NoError(t, err, "failed to read file for item %d", i)
				require.Equal(t, serverResponses[item.ID], string(content), "content mismatch for item %d", i)
			}
		})
	}
}

func TestFetch_ErrorHandling(t *testing.T) {
	tests := []struct {
		name        string
		setupServer func() *httptest.Server
		item        Item
		expectError string
	}{
		{
			name: "invalid URL",
			setupServer: func() *httptest.Server {
				return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusBadRequest)
					_, _ = w.Write([]byte("bad request"))
				}))
			},
			item: Item{
				ID:  "bad-request",
				URL: &url.URL{},
			},
			expectError: "unexpected status code: 400",
		},
		{
			name: "server error",
			setupServer: func() *httptest.Server {
				return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusInternalServerError)
				}))
			},
			item: Item{
				ID:  "server-error",
				URL: &url.URL{},
			},
			expectError: "unexpected status code: 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := tt.setupServer()
			defer server.Close()

			if tt.item.URL.Host == "" {
				parsedURL, err := url.Parse(server.URL)
				require.NoError(t, err)
				tt.item.URL = parsedURL
			}

			tempDir := t.TempDir()
			m := NewManager(time.Second, "test")

			_, err := m.Fetch(context.Background(), tt.item, Options{Dir: tempDir})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestFetch_ReusesVerifiedFile(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("primary"))
	}))
	defer server.Close()

	sum := sha256.Sum256([]byte("primary"))
	u, err := url.Parse(server.URL + "/repodata/primary.xml.gz")
	require.NoError(t, err)
	item := Item{ID: "fedora/primary", URL: u, Checksum: hex.EncodeToString(sum[:]), Filename: "primary.xml.gz"}

	dir := t.TempDir()
	m := NewManager(time.Second, "test")
	first, err := m.Fetch(context.Background(), item, Options{Dir: dir})
	require.NoError(t, err)
	second, err := m.Fetch(context.Background(), item, Options{Dir: dir})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, filepath.Join(dir, "primary.xml.gz"), first)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchAll_DeduplicatesURLs(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("shared"))
	}))
	defer server.Close()

	u, err := url.Parse(server.URL + "/shared")
	require.NoError(t, err)
	items := []Item{{ID: "one", URL: u}, {ID: "two", URL: u}}

	results, err := NewManager(time.Second, "test").FetchAll(context.Background(), items, Options{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, results["one"], results["two"])
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchAll_RelativeDir(t *testing.T) {
	_, err := NewManager(time.Second, "").FetchAll(context.Background(), nil, Options{Dir: "relative"})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidPath)
}

func TestGet(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		if r.URL.Path != "/repodata/repomd.xml" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("<repomd/>"))
	}))
	defer server.Close()

	m := NewManager(time.Second, "querykit-test")

	u, err := url.Parse(server.URL + "/repodata/repomd.xml")
	require.NoError(t, err)
	data, err := m.Get(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, "<repomd/>", string(data))
	assert.Equal(t, "querykit-test", gotUA)

	u, err = url.Parse(server.URL + "/missing")
	require.NoError(t, err)
	_, err = m.Get(context.Background(), u)
	assert.ErrorIs(t, err, pkgerrors.ErrDownloadFailed)
}

func TestGet_Auth(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("<repomd/>"))
	}))
	defer server.Close()

	u, err := url.Parse(server.URL + "/repodata/repomd.xml")
	require.NoError(t, err)
	hosts, err := auth.NewHosts([]auth.Credential{{Host: u.Host, Token: "s3cret"}})
	require.NoError(t, err)

	_, err = NewManager(time.Second, "", WithAuth(hosts)).Get(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cret", gotAuth)

	_, err = NewManager(time.Second, "").Get(context.Background(), u)
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestGet_FileURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirrorlist")
	require.NoError(t, os.WriteFile(path, []byte("https://mirror.example.org/\n"), 0o644))

	data, err := NewManager(time.Second, "").Get(context.Background(), &url.URL{Scheme: "file", Path: path})
	require.NoError(t, err)
	assert.Equal(t, "https://mirror.example.org/\n", string(data))
}

func TestVerifyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	ok, err := VerifyFile(path, "sha", "a9993e364706816aba3e25717850c26c9cd0d89d")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyFile(path, "sha256", "00")
	require.NoError(t, err)
	assert.False(t, ok)
}

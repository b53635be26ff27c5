// Package github implements the BackupStore port on top of GitHub Gists using
// the go-github library.
package github

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/tgvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BackupStore = (*GistBackup)(nil)

const (
	gistDescription = "tgvault encrypted backup"
	bundlePrefix    = "tgvault-export-"
)

// GistBackup stores encrypted export bundles as files of one secret gist.
// Each backup day gets its own file; Latest returns the newest by name.
type GistBackup struct {
	gh *gh.Client

	mu     sync.Mutex
	gistID string
}

// NewGistBackup creates a backup store with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
//
// gistID may be empty; the first Put then creates a secret gist.
func NewGistBackup(token, gistID string) *GistBackup {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &GistBackup{gh: client, gistID: gistID}
}

// NewGistBackupWithHTTPClient creates a GistBackup with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewGistBackupWithHTTPClient(httpClient *http.Client, baseURL, gistID string) (*GistBackup, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &GistBackup{gh: client, gistID: gistID}, nil
}

// GistID returns the gist in use, which is only known after the first Put
// when the store was created without one.
func (b *GistBackup) GistID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gistID
}

// Put uploads bundle as file name and returns the gist's web URL.
func (b *GistBackup) Put(ctx context.Context, name string, bundle []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	files := map[gh.GistFilename]gh.GistFile{
		gh.GistFilename(name): {Content: gh.Ptr(string(bundle))},
	}

	if b.gistID == "" {
		gist, resp, err := b.gh.Gists.Create(ctx, &gh.Gist{
			Description: gh.Ptr(gistDescription),
			Public:      gh.Ptr(false),
			Files:       files,
		})
		if err != nil {
			return "", fmt.Errorf("creating backup gist: %w", err)
		}
		logRateLimit(resp, "gists.create")
		b.gistID = gist.GetID()
		slog.Info("backup gist created", "gist_id", b.gistID)
		return gist.GetHTMLURL(), nil
	}

	gist, resp, err := b.gh.Gists.Edit(ctx, b.gistID, &gh.Gist{Files: files})
	if err != nil {
		return "", fmt.Errorf("updating backup gist %s: %w", b.gistID, err)
	}
	logRateLimit(resp, "gists.edit")
	return gist.GetHTMLURL(), nil
}

// Latest downloads the newest bundle file of the gist.
func (b *GistBackup) Latest(ctx context.Context) ([]byte, error) {
	id := b.GistID()
	if id == "" {
		return nil, driven.ErrBackupNotFound
	}

	gist, resp, err := b.gh.Gists.Get(ctx, id)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return nil, driven.ErrBackupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching backup gist %s: %w", id, err)
	}
	logRateLimit(resp, "gists.get")

	var names []string
	for name := range gist.Files {
		if strings.HasPrefix(string(name), bundlePrefix) {
			names = append(names, string(name))
		}
	}
	if len(names) == 0 {
		return nil, driven.ErrBackupNotFound
	}
	// Names embed an ISO date, so lexical order is chronological.
	sort.Strings(names)
	file := gist.Files[gh.GistFilename(names[len(names)-1])]

	// The API truncates large files; size is always the full length.
	content := file.GetContent()
	if file.GetSize() <= len(content) || file.GetRawURL() == "" {
		return []byte(content), nil
	}
	return b.fetchRaw(ctx, file.GetRawURL())
}

// fetchRaw downloads a file the gist API truncated.
func (b *GistBackup) fetchRaw(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := b.gh.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building raw request: %w", err)
	}
	var buf bytes.Buffer
	if _, err := b.gh.Do(ctx, req, &buf); err != nil {
		return nil, fmt.Errorf("downloading raw gist file: %w", err)
	}
	return buf.Bytes(), nil
}

func logRateLimit(resp *gh.Response, endpoint string) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 && resp.Rate.Limit > 0 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

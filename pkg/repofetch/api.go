// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package repofetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIService is the collaborator contract the Orchestrator depends on.
// Implementations are expected to internally call a RateLimiter and a
// Retryer; the Orchestrator never retries at its own level.
type APIService interface {
	GetRepositoryTree(ctx context.Context, owner, name string, ref GitRef) ([]FileEntry, error)
	GetFileContent(ctx context.Context, downloadURL string) ([]byte, error)
	ResolveReference(ctx context.Context, owner, name, refName string) (GitRef, error)
	GetRepositoryInfo(ctx context.Context, owner, name string) (RepositoryInfo, error)
}

// apiTreeNode mirrors the JSON shape of a GitHub-style recursive git-trees
// response entry.
type apiTreeNode struct {
	Path string `json:"path"`
	Type string `json:"type"` // "blob", "tree", "symlink" (via Mode 120000)
	Size int64  `json:"size"`
	SHA  string `json:"sha"`
	Mode string `json:"mode"`
	URL  string `json:"url"`
}

// apiTreeResponse mirrors GET /repos/{owner}/{repo}/git/trees/{ref}?recursive=1.
type apiTreeResponse struct {
	SHA       string        `json:"sha"`
	Tree      []apiTreeNode `json:"tree"`
	Truncated bool          `json:"truncated"`
}

// apiRefResponse mirrors GET /repos/{owner}/{repo}/git/ref/{ref}.
type apiRefResponse struct {
	Object struct {
		SHA  string `json:"sha"`
		Type string `json:"type"`
	} `json:"object"`
}

// apiRepoResponse mirrors GET /repos/{owner}/{repo}.
type apiRepoResponse struct {
	HTMLURL       string   `json:"html_url"`
	DefaultBranch string   `json:"default_branch"`
	Private       bool     `json:"private"`
	Fork          bool     `json:"fork"`
	Size          int64    `json:"size"`
	Language      string   `json:"language"`
	Description   string   `json:"description"`
	Topics        []string `json:"topics"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// httpAPIService is the concrete APIService talking to a GitHub-style REST
// API: git/trees for the recursive file listing, raw content for fetching
// individual blobs.
type httpAPIService struct {
	httpc      *http.Client
	baseURL    string // e.g. https://api.github.com
	rawBaseURL string // e.g. https://raw.githubusercontent.com
	token      string
	limiter    *RateLimiter
	retryer    *Retryer
}

// HTTPAPIServiceOption configures an httpAPIService beyond its defaults.
type HTTPAPIServiceOption func(*httpAPIService)

// WithBaseURL overrides the API base URL (default https://api.github.com),
// for GitHub Enterprise or compatible services.
func WithBaseURL(base string) HTTPAPIServiceOption {
	return func(s *httpAPIService) { s.baseURL = strings.TrimRight(base, "/") }
}

// WithRawBaseURL overrides the raw-content base URL.
func WithRawBaseURL(base string) HTTPAPIServiceOption {
	return func(s *httpAPIService) { s.rawBaseURL = strings.TrimRight(base, "/") }
}

// NewHTTPAPIService builds the default GitHub-style API Service. token may
// be empty for public repositories.
func NewHTTPAPIService(token string, limiter *RateLimiter, retryer *Retryer, opts ...HTTPAPIServiceOption) APIService {
	s := &httpAPIService{
		httpc:      buildHTTPClient(),
		baseURL:    "https://api.github.com",
		rawBaseURL: "https://raw.githubusercontent.com",
		token:      token,
		limiter:    limiter,
		retryer:    retryer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// buildHTTPClient creates an HTTP client with sensible connection-pooling
// defaults for repeated calls against one host.
func buildHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: tr}
}

func (s *httpAPIService) addAuth(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	req.Header.Set("User-Agent", "repofetch/1")
	req.Header.Set("Accept", "application/vnd.github+json")
}

// doJSON performs a rate-limited, retried GET request and decodes the JSON
// body into out. Non-2xx responses are classified into the error taxonomy.
func (s *httpAPIService) doJSON(ctx context.Context, repo RepositoryRef, ref, reqURL string, out any) error {
	_, err := s.retryer.Do(ctx, func(ctx context.Context, attempt int) (any, error) {
		if err := s.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, &DownloadError{Message: "building request", Cause: err}
		}
		s.addAuth(req)

		resp, err := s.httpc.Do(req)
		if err != nil {
			return nil, &TransportError{Op: "GET " + reqURL, Cause: err}
		}
		defer resp.Body.Close()
		s.limiter.UpdateFromHeaders(resp.Header)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			return nil, httpStatusError(resp.StatusCode, resp.Status, resp.Header, body, repo, ref)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, &DownloadError{Message: "decoding response", Cause: err}
		}
		return out, nil
	})
	return err
}

// GetRepositoryTree returns the full recursive listing for ref. It always
// makes a live request and keeps no counters; the Orchestrator wraps it with
// a ManifestCache and counts api_calls only for live fetches (see
// orchestrator.go).
func (s *httpAPIService) GetRepositoryTree(ctx context.Context, owner, name string, ref GitRef) ([]FileEntry, error) {
	sha := ref.SHA
	if sha == "" {
		sha = ref.Name
	}
	reqURL := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", s.baseURL, owner, name, url.PathEscape(sha))

	var tree apiTreeResponse
	repo := RepositoryRef{Owner: owner, Name: name}
	if err := s.doJSON(ctx, repo, ref.Name, reqURL, &tree); err != nil {
		return nil, err
	}

	files := make([]FileEntry, 0, len(tree.Tree))
	for _, n := range tree.Tree {
		kind := EntryTree
		switch {
		case n.Type == "blob" && n.Mode == "120000":
			kind = EntrySymlink
		case n.Type == "blob":
			kind = EntryBlob
		}
		entry := FileEntry{
			Path: n.Path,
			Kind: kind,
			Size: n.Size,
			SHA:  n.SHA,
		}
		if kind == EntryBlob {
			entry.DownloadURL = fmt.Sprintf("%s/%s/%s/%s", s.rawBaseURL, owner, name, joinRawPath(sha, n.Path))
		}
		files = append(files, entry)
	}
	return files, nil
}

func joinRawPath(ref, path string) string {
	return ref + "/" + pathEscapeAll(path)
}

func pathEscapeAll(p string) string {
	segs := strings.Split(p, "/")
	for i := range segs {
		segs[i] = url.PathEscape(segs[i])
	}
	return strings.Join(segs, "/")
}

// GetFileContent fetches raw file bytes from a download URL produced by
// GetRepositoryTree.
func (s *httpAPIService) GetFileContent(ctx context.Context, downloadURL string) ([]byte, error) {
	val, err := s.retryer.Do(ctx, func(ctx context.Context, attempt int) (any, error) {
		if err := s.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
		if err != nil {
			return nil, &DownloadError{Message: "building request", Cause: err}
		}
		s.addAuth(req)

		resp, err := s.httpc.Do(req)
		if err != nil {
			return nil, &TransportError{Op: "GET " + downloadURL, Cause: err}
		}
		defer resp.Body.Close()
		s.limiter.UpdateFromHeaders(resp.Header)

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &TransportError{Op: "reading body", Cause: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, httpStatusError(resp.StatusCode, resp.Status, resp.Header, body, RepositoryRef{}, "")
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]byte), nil
}

// ResolveReference disambiguates a user-supplied ref string against the
// remote service's refs endpoint.
func (s *httpAPIService) ResolveReference(ctx context.Context, owner, name, refName string) (GitRef, error) {
	reqURL := fmt.Sprintf("%s/repos/%s/%s/git/ref/heads/%s", s.baseURL, owner, name, url.PathEscape(refName))
	var ref apiRefResponse
	repo := RepositoryRef{Owner: owner, Name: name}
	err := s.doJSON(ctx, repo, refName, reqURL, &ref)
	if err == nil {
		return GitRef{Name: refName, Kind: RefBranch, SHA: ref.Object.SHA}, nil
	}

	// Not a branch; try as a tag.
	reqURL = fmt.Sprintf("%s/repos/%s/%s/git/ref/tags/%s", s.baseURL, owner, name, url.PathEscape(refName))
	var tagRef apiRefResponse
	if tagErr := s.doJSON(ctx, repo, refName, reqURL, &tagRef); tagErr == nil {
		return GitRef{Name: refName, Kind: RefTag, SHA: tagRef.Object.SHA}, nil
	}

	// Fall back to treating it as a literal commit SHA.
	if looksLikeSHA(refName) {
		return GitRef{Name: refName, Kind: RefCommit, SHA: refName}, nil
	}
	return GitRef{}, err
}

func looksLikeSHA(s string) bool {
	if len(s) < 7 || len(s) > 40 {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

// GetRepositoryInfo fetches repository metadata.
func (s *httpAPIService) GetRepositoryInfo(ctx context.Context, owner, name string) (RepositoryInfo, error) {
	reqURL := fmt.Sprintf("%s/repos/%s/%s", s.baseURL, owner, name)
	var resp apiRepoResponse
	repo := RepositoryRef{Owner: owner, Name: name}
	if err := s.doJSON(ctx, repo, "", reqURL, &resp); err != nil {
		return RepositoryInfo{}, err
	}

	repoType := RepoPublic
	if resp.Private {
		repoType = RepoPrivate
	}

	return RepositoryInfo{
		Ref:           repo,
		URL:           resp.HTMLURL,
		DefaultBranch: resp.DefaultBranch,
		Type:          repoType,
		SizeKB:        resp.Size,
		IsPrivate:     resp.Private,
		IsFork:        resp.Fork,
		Language:      resp.Language,
		Description:   resp.Description,
		Topics:        resp.Topics,
		CreatedAt:     resp.CreatedAt,
		UpdatedAt:     resp.UpdatedAt,
	}, nil
}

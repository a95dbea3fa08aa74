package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pagesforge/api/internal/config"
)

func testGitHubClient(baseURL string) *GitHubClient {
	return NewGitHubClient(&config.GitHubConfig{
		Token:   "test-token",
		Owner:   "owner",
		BaseURL: baseURL,
		Branch:  "main",
	})
}

func TestCreateRepo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/user/repos" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected auth header: %s", got)
		}

		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "demo-site" {
			t.Errorf("unexpected repo name: %v", body["name"])
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := testGitHubClient(srv.URL)
	if err := c.CreateRepo(context.Background(), "demo-site"); err != nil {
		t.Fatalf("create repo failed: %v", err)
	}
}

func TestCreateRepoAlreadyExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"message":"name already exists on this account"}]}`))
	}))
	defer srv.Close()

	c := testGitHubClient(srv.URL)
	// Update rounds hit the same repository name again; that is not a failure
	if err := c.CreateRepo(context.Background(), "demo-site"); err != nil {
		t.Fatalf("existing repo must be tolerated, got: %v", err)
	}
}

func TestCreateRepoOtherError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"rate limited"}`))
	}))
	defer srv.Close()

	c := testGitHubClient(srv.URL)
	if err := c.CreateRepo(context.Background(), "demo-site"); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestCreateOrUpdateFile_New(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			// No existing file, so no sha to carry
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			if r.URL.Path != "/repos/owner/demo-site/contents/index.html" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			if _, hasSHA := body["sha"]; hasSHA {
				t.Error("new file upload must not carry a sha")
			}
			decoded, _ := base64.StdEncoding.DecodeString(body["content"].(string))
			if string(decoded) != "<html></html>" {
				t.Errorf("unexpected content: %q", decoded)
			}
			if body["branch"] != "main" {
				t.Errorf("unexpected branch: %v", body["branch"])
			}
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	c := testGitHubClient(srv.URL)
	err := c.CreateOrUpdateFile(context.Background(), "demo-site", "index.html", []byte("<html></html>"), "Initial site")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
}

func TestCreateOrUpdateFile_Existing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]string{"sha": "oldsha123"})
		case http.MethodPut:
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			if body["sha"] != "oldsha123" {
				t.Errorf("update must carry the existing blob sha, got %v", body["sha"])
			}
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := testGitHubClient(srv.URL)
	err := c.CreateOrUpdateFile(context.Background(), "demo-site", "index.html", []byte("v2"), "Update index")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
}

func TestEnablePages(t *testing.T) {
	for _, status := range []int{http.StatusCreated, http.StatusConflict} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/repos/owner/demo-site/pages" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			w.WriteHeader(status)
		}))

		c := testGitHubClient(srv.URL)
		if err := c.EnablePages(context.Background(), "demo-site"); err != nil {
			t.Errorf("enable pages with status %d failed: %v", status, err)
		}
		srv.Close()
	}
}

func TestGetPublicEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/owner/demo-site":
			json.NewEncoder(w).Encode(map[string]string{"html_url": "https://github.com/owner/demo-site"})
		case "/repos/owner/demo-site/commits":
			json.NewEncoder(w).Encode([]map[string]string{{"sha": "abc123"}})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := testGitHubClient(srv.URL)
	endpoints, err := c.GetPublicEndpoints(context.Background(), "demo-site")
	if err != nil {
		t.Fatalf("endpoint lookup failed: %v", err)
	}

	if endpoints.RepoURL != "https://github.com/owner/demo-site" {
		t.Errorf("unexpected repo url: %s", endpoints.RepoURL)
	}
	if endpoints.PagesURL != "https://owner.github.io/demo-site/" {
		t.Errorf("unexpected pages url: %s", endpoints.PagesURL)
	}
	if endpoints.CommitSHA != "abc123" {
		t.Errorf("unexpected commit sha: %s", endpoints.CommitSHA)
	}
}

func TestResolveOwnerFromToken(t *testing.T) {
	var userCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user":
			userCalls++
			json.NewEncoder(w).Encode(map[string]string{"login": "tokenuser"})
		case "/repos/tokenuser/demo-site/pages":
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewGitHubClient(&config.GitHubConfig{Token: "t", BaseURL: srv.URL, Branch: "main"})
	if err := c.EnablePages(context.Background(), "demo-site"); err != nil {
		t.Fatalf("enable pages failed: %v", err)
	}
	if err := c.EnablePages(context.Background(), "demo-site"); err != nil {
		t.Fatalf("second enable pages failed: %v", err)
	}

	// The login lookup is cached after the first call
	if userCalls != 1 {
		t.Errorf("expected 1 /user call, got %d", userCalls)
	}
}

package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"pushgate/internal/auth"
)

// newTestClient points a client at a stub API server. WithEnterpriseURLs
// mounts the REST API under /api/v3/.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cred := auth.NewCredential(auth.SourceEnv, "test-token")
	client, err := NewClient(context.Background(), cred, server.URL, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, server
}

func TestClient_CurrentUser(t *testing.T) {
	var gotAuth, gotUA string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/user" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, `{"login": "octocat"}`)
	})

	client, _ := newTestClient(t, handler)

	login, err := client.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser failed: %v", err)
	}
	if login != "octocat" {
		t.Errorf("Expected octocat, got %q", login)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Expected bearer credential, got %q", gotAuth)
	}
	if gotUA != UserAgent {
		t.Errorf("Expected User-Agent %q, got %q", UserAgent, gotUA)
	}
}

func TestClient_RemoteErrorCarriesStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Bad credentials"}`)
	})

	client, _ := newTestClient(t, handler)

	_, err := client.CurrentUser(context.Background())
	if err == nil {
		t.Fatal("Expected error for 401")
	}

	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("Expected RemoteError, got %T: %v", err, err)
	}
	if remoteErr.Status != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", remoteErr.Status)
	}
	if remoteErr.Body != "Bad credentials" {
		t.Errorf("Expected body carried, got %q", remoteErr.Body)
	}
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	cred := auth.NewCredential(auth.SourceEnv, "test-token")
	client, err := NewClient(context.Background(), cred, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	server.Close()

	_, err = client.CurrentUser(context.Background())
	if err == nil {
		t.Fatal("Expected error against closed server")
	}

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Errorf("Expected NetworkError, got %T: %v", err, err)
	}
}

func TestClient_BranchProtectionAbsent(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Branch not protected"}`)
	})

	client, _ := newTestClient(t, handler)

	bp, err := client.GetBranchProtection(context.Background(), "acme", "widgets", "main")
	if err != nil {
		t.Fatalf("Absent protection should not be an error: %v", err)
	}
	if bp.Protected {
		t.Error("Expected Protected=false for 404")
	}
}

func TestClient_BranchProtectionPresent(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"required_pull_request_reviews": {"required_approving_review_count": 2},
			"required_status_checks": {"strict": true, "contexts": []},
			"enforce_admins": {"url": "", "enabled": true}
		}`)
	})

	client, _ := newTestClient(t, handler)

	bp, err := client.GetBranchProtection(context.Background(), "acme", "widgets", "main")
	if err != nil {
		t.Fatalf("GetBranchProtection failed: %v", err)
	}
	if !bp.Protected {
		t.Error("Expected Protected=true")
	}
	if bp.RequiredReviews != 2 {
		t.Errorf("Expected 2 required reviews, got %d", bp.RequiredReviews)
	}
	if !bp.RequireStatusChecks {
		t.Error("Expected status checks required")
	}
	if !bp.EnforceAdmins {
		t.Error("Expected admins enforced")
	}
}

func TestClient_CreateRelease(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"html_url": "https://github.com/acme/widgets/releases/tag/v1.2.3"}`)
	})

	client, _ := newTestClient(t, handler)

	url, err := client.CreateRelease(context.Background(), "acme", "widgets", ReleaseRequest{
		TagName: "v1.2.3",
		Name:    "v1.2.3",
		Body:    "notes",
	})
	if err != nil {
		t.Fatalf("CreateRelease failed: %v", err)
	}
	if url != "https://github.com/acme/widgets/releases/tag/v1.2.3" {
		t.Errorf("Unexpected release URL: %s", url)
	}
}

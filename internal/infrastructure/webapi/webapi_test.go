package webapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rnwood/alm4dataverse/internal/domain"
	"github.com/rnwood/alm4dataverse/internal/infrastructure/webapi"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *webapi.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &webapi.Client{
		BaseURL: srv.URL,
		Token:   webapi.StaticToken("test-token"),
	}
}

func writeValue(w http.ResponseWriter, rows ...any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"value": rows})
}

func TestResolveUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if !strings.Contains(r.URL.Path, "systemusers") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeValue(w, map[string]string{
			"systemuserid": "u1",
			"domainname":   "svc@example.com",
		})
	})

	user, err := client.ResolveUser(context.Background(), "svc@example.com")
	if err != nil {
		t.Fatalf("ResolveUser: %v", err)
	}
	if user.ID != "u1" || user.UPN != "svc@example.com" {
		t.Errorf("user = %+v", user)
	}
}

func TestResolveUserAmbiguityIsUnresolved(t *testing.T) {
	tests := []struct {
		name    string
		matches int
	}{
		{"NoMatch", 0},
		{"TwoMatches", 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				rows := make([]any, tc.matches)
				for i := range rows {
					rows[i] = map[string]string{"systemuserid": fmt.Sprintf("u%d", i)}
				}
				writeValue(w, rows...)
			})

			_, err := client.ResolveUser(context.Background(), "svc@example.com")
			if !errors.Is(err, domain.ErrIdentityUnresolved) {
				t.Fatalf("err = %v, want ErrIdentityUnresolved", err)
			}
		})
	}
}

func TestListProcesses(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "solutions"):
			writeValue(w, map[string]string{"solutionid": "sol-1"})
		case strings.Contains(r.URL.Path, "workflows"):
			if !strings.Contains(r.URL.RawQuery, "sol-1") {
				t.Errorf("workflow query missing solution id: %s", r.URL.RawQuery)
			}
			writeValue(w,
				map[string]any{"workflowid": "w1", "name": "Send welcome", "_ownerid_value": "u1", "statecode": 1},
				map[string]any{"workflowid": "w2", "name": "Escalate case", "_ownerid_value": "u2", "statecode": 0},
			)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	processes, err := client.ListProcesses(context.Background(), "core")
	if err != nil {
		t.Fatalf("ListProcesses: %v", err)
	}
	if len(processes) != 2 {
		t.Fatalf("got %d processes, want 2", len(processes))
	}
	if !processes[0].Active || processes[1].Active {
		t.Errorf("Active flags = %v/%v, want true/false", processes[0].Active, processes[1].Active)
	}
}

func TestListProcessesUnknownSolution(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeValue(w)
	})

	_, err := client.ListProcesses(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestActivateProcess(t *testing.T) {
	var gotBody map[string]int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		if !strings.Contains(r.URL.Path, "workflows(w1)") {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.ActivateProcess(context.Background(), "w1"); err != nil {
		t.Fatalf("ActivateProcess: %v", err)
	}
	if gotBody["statecode"] != 1 {
		t.Errorf("statecode = %d, want 1", gotBody["statecode"])
	}
}

func TestAssignProcessOwner(t *testing.T) {
	var gotBody map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.AssignProcessOwner(context.Background(), "w1", "u9"); err != nil {
		t.Fatalf("AssignProcessOwner: %v", err)
	}
	if gotBody["ownerid@odata.bind"] != "/systemusers(u9)" {
		t.Errorf("bind = %q", gotBody["ownerid@odata.bind"])
	}
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"no permission"}}`, http.StatusForbidden)
	})

	err := client.ActivateProcess(context.Background(), "w1")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("err = %v, want status 403 surfaced", err)
	}
}

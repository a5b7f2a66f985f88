package securonix

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

// TestListWorkflows verifies JSON unwrapping of the workflows listing.
func TestListWorkflows(t *testing.T) {
	t.Parallel()

	mux := tokenMux()
	mux.HandleFunc("/incident/get", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("type"); got != "workflows" {
			t.Errorf("type=%q, want workflows", got)
		}
		_, _ = w.Write([]byte(`{
			"result": {"workflows": [
				{"workflow": "SOCTeamReview", "type": "USER", "value": "admin"},
				{"workflow": "ActivityOutlierWorkflow", "type": "USER", "value": "admin"}
			]}
		}`))
	})

	c := newTestClient(t, mux)
	workflows, err := c.ListWorkflows(context.Background())
	if err != nil {
		t.Fatalf("ListWorkflows: %v", err)
	}
	if len(workflows) != 2 {
		t.Fatalf("workflows=%d, want 2", len(workflows))
	}
	if asString(workflows[0]["workflow"]) != "SOCTeamReview" {
		t.Fatalf("first workflow=%v", workflows[0])
	}
}

// TestListPolicies verifies the XML endpoint is transcoded, including the
// single-element collapse.
func TestListPolicies(t *testing.T) {
	t.Parallel()

	mux := tokenMux()
	mux.HandleFunc("/policy/getAllPolicies", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<policies>
			<policy><id>1</id><name>Email to self</name><criticality>Low</criticality></policy>
		</policies>`))
	})

	c := newTestClient(t, mux)
	policies, err := c.ListPolicies(context.Background())
	if err != nil {
		t.Fatalf("ListPolicies: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("policies=%d, want 1", len(policies))
	}
	if asString(policies[0]["name"]) != "Email to self" {
		t.Fatalf("policy=%v", policies[0])
	}
}

// TestSearchActivity verifies query composition and vendor-error surfacing.
func TestSearchActivity(t *testing.T) {
	t.Parallel()

	var gotQuery string
	mux := tokenMux()
	mux.HandleFunc("/spotter/index/search", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		_, _ = w.Write([]byte(`{"events": [], "totalDocuments": 0}`))
	})

	c := newTestClient(t, mux)
	if _, err := c.SearchActivity(context.Background(), "08/25/2026 00:00:00", "08/26/2026 00:00:00", `accountname="admin"`); err != nil {
		t.Fatalf("SearchActivity: %v", err)
	}
	if gotQuery != `index=activity AND accountname="admin"` {
		t.Fatalf("query=%q", gotQuery)
	}
}

func TestSearchActivity_VendorError(t *testing.T) {
	t.Parallel()

	mux := tokenMux()
	mux.HandleFunc("/spotter/index/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": true, "errorMessage": "Invalid query"}`))
	})

	c := newTestClient(t, mux)
	_, err := c.SearchActivity(context.Background(), "a", "b", "")
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatalf("err=%v, want *DomainError", err)
	}
	if de.Message != "Invalid query" {
		t.Fatalf("Message=%q", de.Message)
	}
}

// TestListIncidents verifies the typed incident mapping, including IDs that
// arrive as JSON numbers.
func TestListIncidents(t *testing.T) {
	t.Parallel()

	mux := tokenMux()
	mux.HandleFunc("/incident/get", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("type") != "list" || q.Get("rangeType") != "opened" {
			t.Errorf("unexpected query: %v", q)
		}
		_, _ = w.Write([]byte(`{
			"result": {"data": {
				"totalIncidents": 2,
				"incidentItems": [
					{"incidentId": 100, "priority": "Low", "lastUpdateDate": 1756164000000},
					{"incidentId": "101", "priority": "High", "lastUpdateDate": 1756167600000}
				]
			}}
		}`))
	})

	c := newTestClient(t, mux)
	list, err := c.ListIncidents(context.Background(), 0, 1, "opened")
	if err != nil {
		t.Fatalf("ListIncidents: %v", err)
	}
	if list.Total != 2 || len(list.Items) != 2 {
		t.Fatalf("list=%+v", list)
	}
	if list.Items[0].ID != "100" || list.Items[1].ID != "101" {
		t.Fatalf("ids=%q,%q", list.Items[0].ID, list.Items[1].ID)
	}
	if list.Items[1].Priority != "High" {
		t.Fatalf("priority=%q", list.Items[1].Priority)
	}
	if list.Items[0].LastUpdateDate != 1756164000000 {
		t.Fatalf("lastUpdateDate=%d", list.Items[0].LastUpdateDate)
	}
}

// TestGetIncident_NotFound verifies an empty meta-info answer becomes a
// domain error.
func TestGetIncident_NotFound(t *testing.T) {
	t.Parallel()

	mux := tokenMux()
	mux.HandleFunc("/incident/get", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": {"data": {"incidentItems": []}}}`))
	})

	c := newTestClient(t, mux)
	_, err := c.GetIncident(context.Background(), "12345")
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatalf("err=%v, want *DomainError", err)
	}
}

// TestPerformIncidentAction verifies the validate-then-submit dance.
func TestPerformIncidentAction(t *testing.T) {
	t.Parallel()

	var posted bool
	mux := tokenMux()
	mux.HandleFunc("/incident/get", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": "ok"}`))
	})
	mux.HandleFunc("/incident/actions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s, want POST", r.Method)
		}
		posted = true
		_, _ = w.Write([]byte(`{"result": "submitted"}`))
	})

	c := newTestClient(t, mux)
	if err := c.PerformIncidentAction(context.Background(), "7", "CLAIM"); err != nil {
		t.Fatalf("PerformIncidentAction: %v", err)
	}
	if !posted {
		t.Fatalf("action was never submitted")
	}
}

func TestPerformIncidentAction_Rejected(t *testing.T) {
	t.Parallel()

	mux := tokenMux()
	mux.HandleFunc("/incident/get", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "Action CLAIM is not possible in the current state"}`))
	})
	mux.HandleFunc("/incident/actions", func(w http.ResponseWriter, r *http.Request) {
		t.Error("submit reached despite failed validation")
	})

	c := newTestClient(t, mux)
	err := c.PerformIncidentAction(context.Background(), "7", "CLAIM")
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatalf("err=%v, want *DomainError", err)
	}
}

// TestAddEntityToWatchlist verifies the plain-text success contract.
func TestAddEntityToWatchlist(t *testing.T) {
	t.Parallel()

	mux := tokenMux()
	mux.HandleFunc("/incident/addToWatchlist", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Add to watchlist successfull"))
	})

	c := newTestClient(t, mux)
	if err := c.AddEntityToWatchlist(context.Background(), "test_watchlist", "Users", "jdoe", "30", ""); err != nil {
		t.Fatalf("AddEntityToWatchlist: %v", err)
	}
}

func TestAddEntityToWatchlist_Failure(t *testing.T) {
	t.Parallel()

	mux := tokenMux()
	mux.HandleFunc("/incident/addToWatchlist", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Entity not found"))
	})

	c := newTestClient(t, mux)
	err := c.AddEntityToWatchlist(context.Background(), "wl", "Users", "ghost", "30", "")
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatalf("err=%v, want *DomainError", err)
	}
}

// TestGetWatchlist_Empty verifies the empty-watchlist domain error.
func TestGetWatchlist_Empty(t *testing.T) {
	t.Parallel()

	mux := tokenMux()
	mux.HandleFunc("/spotter/index/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"events": []}`))
	})

	c := newTestClient(t, mux)
	_, err := c.GetWatchlist(context.Background(), "empty_one")
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatalf("err=%v, want *DomainError", err)
	}
}

// TestCheckEntityInWatchlist verifies both the single-scalar and empty
// shapes.
func TestCheckEntityInWatchlist(t *testing.T) {
	t.Parallel()

	mux := tokenMux()
	mux.HandleFunc("/incident/checkIfWatchlisted", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("entityid") {
		case "jdoe":
			_, _ = w.Write([]byte(`{"result": "flight_risk"}`))
		default:
			_, _ = w.Write([]byte(`{"result": []}`))
		}
	})

	c := newTestClient(t, mux)

	names, err := c.CheckEntityInWatchlist(context.Background(), "jdoe")
	if err != nil {
		t.Fatalf("CheckEntityInWatchlist: %v", err)
	}
	if len(names) != 1 || names[0] != "flight_risk" {
		t.Fatalf("names=%v", names)
	}

	names, err = c.CheckEntityInWatchlist(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("CheckEntityInWatchlist: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("names=%v, want empty", names)
	}
}

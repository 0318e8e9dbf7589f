package mirador

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/mirador/internal/ingest"
	"github.com/hazyhaar/mirador/internal/store"
)

func TestAPI_HealthAndStats(t *testing.T) {
	// WHAT: /health answers ok and /api/stats returns the aggregate shape.
	// WHY: These are the liveness and triage endpoints operators hit first.
	svc := newTestService(t, &fakeSource{name: "forum"})
	srv := httptest.NewServer(NewRouter(svc))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	defer resp.Body.Close()
	var st Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
}

func TestAPI_MentionsAndRuns(t *testing.T) {
	// WHAT: Stored mentions and run-log entries come back as JSON arrays,
	// filterable by source.
	// WHY: The read surface backs operator dashboards and the MCP tools.
	svc := newTestService(t, &fakeSource{
		name: "forum",
		collect: func(ctx context.Context, run *ingest.Run) error {
			_, err := run.Offer(ctx, &store.Mention{
				Source: "forum", ExternalID: "p1", Kind: "post",
				Title: "try acme.app", ItemDate: 100, Fingerprint: "fp1",
			})
			return err
		},
	})
	if err := svc.RunSource(context.Background(), "forum"); err != nil {
		t.Fatalf("RunSource: %v", err)
	}

	srv := httptest.NewServer(NewRouter(svc))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/mentions?source=forum")
	if err != nil {
		t.Fatalf("mentions: %v", err)
	}
	defer resp.Body.Close()
	var mentions []*Mention
	if err := json.NewDecoder(resp.Body).Decode(&mentions); err != nil {
		t.Fatalf("decode mentions: %v", err)
	}
	if len(mentions) != 1 || mentions[0].ExternalID != "p1" {
		t.Fatalf("mentions = %+v", mentions)
	}

	resp, err = http.Get(srv.URL + "/api/runs?limit=5")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	defer resp.Body.Close()
	var runs []*RunLogEntry
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != "ok" {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestAPI_TriggerStatusCodes(t *testing.T) {
	// WHAT: The trigger endpoint answers 404 for unknown sources, 202 for
	// accepted triggers, 409 while a run is underway.
	// WHY: Callers must distinguish "typo" from "busy" without parsing text.
	started := make(chan struct{})
	release := make(chan struct{})
	svc := newTestService(t, &fakeSource{
		name: "forum",
		collect: func(ctx context.Context, run *ingest.Run) error {
			close(started)
			<-release
			return nil
		},
	})
	srv := httptest.NewServer(NewRouter(svc))
	defer srv.Close()

	post := func(name string) int {
		resp, err := http.Post(srv.URL+"/api/sources/"+name+"/run", "application/json", strings.NewReader(""))
		if err != nil {
			t.Fatalf("post %s: %v", name, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := post("nope"); code != 404 {
		t.Errorf("unknown source code = %d, want 404", code)
	}
	if code := post("forum"); code != 202 {
		t.Errorf("trigger code = %d, want 202", code)
	}
	<-started
	if code := post("forum"); code != 409 {
		t.Errorf("busy code = %d, want 409", code)
	}
	close(release)
	svc.Wait()
}

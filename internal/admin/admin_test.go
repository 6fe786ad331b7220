package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lanhub/internal/registry"
)

func TestHealthAndStatus(t *testing.T) {
	reg := registry.New()
	uid, err := reg.Register("alice")
	if err != nil {
		t.Fatal(err)
	}

	srv := New(reg)
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	healthResp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer healthResp.Body.Close()
	if healthResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", healthResp.StatusCode)
	}

	statusResp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer statusResp.Body.Close()
	var got statusResponse
	if err := json.NewDecoder(statusResp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ParticipantCount != 1 || got.Participants[0].UID != uid {
		t.Fatalf("status = %+v", got)
	}
}

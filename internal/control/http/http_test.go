package http

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/pytrain/pytrain/internal/commbuffer"
	"github.com/pytrain/pytrain/internal/state"
	"github.com/pytrain/pytrain/internal/tmcc"
	"github.com/pytrain/pytrain/internal/tmcc/catalog"
	"github.com/pytrain/pytrain/internal/tmcc/request"
)

func TestHealthzReportsSyncPhase(t *testing.T) {
	store := state.New(nil)
	srv := New(store, commbuffer.NewSessionRegistry(), 0)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["sync"] != state.SyncUnknown.String() {
		t.Errorf("sync field = %v, want %s", body["sync"], state.SyncUnknown.String())
	}
}

func TestStateEndpointReflectsStoreContents(t *testing.T) {
	cat := catalog.NewDefault()
	store := state.New(nil)

	speed, err := request.New(cat, "ABSOLUTE_SPEED", tmcc.ScopeEngine, 12, 40)
	if err != nil {
		t.Fatal(err)
	}
	store.Apply(speed)

	thru, err := request.New(cat, "SWITCH_THRU", tmcc.ScopeSwitch, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	store.Apply(thru)

	srv := New(store, commbuffer.NewSessionRegistry(), 0)
	rr := httptest.NewRecorder()
	httpReq := httptest.NewRequest("GET", "/state", nil)
	srv.Handler().ServeHTTP(rr, httpReq)

	var body struct {
		Engines []struct {
			Address int `json:"address"`
			Speed   int `json:"speed"`
		} `json:"engines"`
		Switches []struct {
			Address  int    `json:"address"`
			Position string `json:"position"`
		} `json:"switches"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Engines) != 1 || body.Engines[0].Address != 12 || body.Engines[0].Speed != 40 {
		t.Errorf("engines = %+v, want one engine at address 12 speed 40", body.Engines)
	}
	if len(body.Switches) != 1 || body.Switches[0].Position != "THRU" {
		t.Errorf("switches = %+v, want one THRU switch", body.Switches)
	}
}

func TestClientsEndpointReflectsSessionRegistry(t *testing.T) {
	sessions := commbuffer.NewSessionRegistry()
	id := uuid.New()
	sessions.Register("192.168.1.10", 5112, id, [3]byte{1, 2, 3})

	srv := New(state.New(nil), sessions, 0)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/clients", nil)
	srv.Handler().ServeHTTP(rr, req)

	var out []struct {
		IP      string `json:"ip"`
		Port    int    `json:"port"`
		UUID    string `json:"uuid"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].IP != "192.168.1.10" || out[0].Port != 5112 || out[0].UUID != id.String() || out[0].Version != "1.2.3" {
		t.Errorf("clients = %+v, want one entry for 192.168.1.10:5112", out)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	srv := New(state.New(nil), commbuffer.NewSessionRegistry(), 0)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct == "" {
		t.Error("expected a Content-Type header from promhttp.Handler")
	}
}

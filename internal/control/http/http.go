// Package http implements the admin/observability HTTP surface (spec
// §6): /healthz, /metrics, a /state snapshot dump, and /clients, routed
// with chi the way the teacher routes its own API surface.
package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pytrain/pytrain/internal/commbuffer"
	"github.com/pytrain/pytrain/internal/log"
	"github.com/pytrain/pytrain/internal/state"
)

// Server is the admin/observability HTTP handler. It is read-only: every
// endpoint reports state, none of them mutate it.
type Server struct {
	store        *state.Store
	sessions     commbuffer.SessionBackend
	startedAt    time.Time
	rateLimitRPS int
}

// New builds a Server reporting on store and sessions, rate-limiting the
// admin surface to rateLimitRPS requests/second/IP (0 disables limiting).
func New(store *state.Store, sessions commbuffer.SessionBackend, rateLimitRPS int) *Server {
	return &Server{store: store, sessions: sessions, startedAt: time.Now(), rateLimitRPS: rateLimitRPS}
}

// Handler returns the routed http.Handler, ready to be served on
// config.AppConfig.ServerHTTPAddr.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(s.logRequest)
	if s.rateLimitRPS > 0 {
		r.Use(rateLimitMiddleware(s.rateLimitRPS))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/state", s.handleState)
	r.Get("/clients", s.handleClients)

	return r
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.WithContext(r.Context()).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("admin http request")
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime_s": int(time.Since(s.startedAt).Seconds()),
		"sync":     s.store.Sync().Get().String(),
	})
}

// engineView is the JSON projection of an EngineState: Base's fields are
// unexported, so this pulls them through its locked getters rather than
// relying on json.Marshal to see them.
type engineView struct {
	Address     int    `json:"address"`
	Scope       string `json:"scope"`
	Speed       int    `json:"speed"`
	Direction   int    `json:"direction"`
	Momentum    int    `json:"momentum"`
	EngineLabor int     `json:"engine_labor"`
	RPM         int    `json:"rpm"`
	RoadName    string `json:"road_name,omitempty"`
	Version     uint64 `json:"version"`
	LastCommand string `json:"last_command,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func engineViewOf(scope string, e *state.EngineState) engineView {
	speed, momentum, labor := e.Snapshot()
	direction, rpm, roadName := e.Fields()
	return engineView{
		Address:     e.Address,
		Scope:       scope,
		Speed:       speed,
		Direction:   int(direction),
		Momentum:    momentum,
		EngineLabor: labor,
		RPM:         rpm,
		RoadName:    roadName,
		Version:     e.Version(),
		LastCommand: e.LastCommand(),
		UpdatedAt:   e.UpdatedAt(),
	}
}

type switchView struct {
	Address  int    `json:"address"`
	Position string `json:"position"`
	Version  uint64 `json:"version"`
}

type accessoryView struct {
	Address     int  `json:"address"`
	Aux1Latched bool `json:"aux1_latched"`
	Aux2Latched bool `json:"aux2_latched"`
	AuxState    bool `json:"aux_state"`
	Version     uint64 `json:"version"`
}

type routeView struct {
	Address  int    `json:"address"`
	Active   bool   `json:"active"`
	Switches int    `json:"switch_count"`
	Version  uint64 `json:"version"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	out := struct {
		Sync       string          `json:"sync"`
		Engines    []engineView    `json:"engines"`
		Trains     []engineView    `json:"trains"`
		Switches   []switchView    `json:"switches"`
		Accessories []accessoryView `json:"accessories"`
		Routes     []routeView     `json:"routes"`
	}{
		Sync: s.store.Sync().Get().String(),
	}

	for _, e := range s.store.AllEngines() {
		out.Engines = append(out.Engines, engineViewOf("ENGINE", e))
	}
	for _, t := range s.store.AllTrains() {
		out.Trains = append(out.Trains, engineViewOf("TRAIN", t))
	}
	for _, sw := range s.store.AllSwitches() {
		pos := "UNKNOWN"
		switch {
		case sw.IsThru():
			pos = "THRU"
		case sw.IsOut():
			pos = "OUT"
		}
		out.Switches = append(out.Switches, switchView{Address: sw.Address, Position: pos, Version: sw.Version()})
	}
	for _, a := range s.store.AllAccessories() {
		aux1, aux2, auxState := a.Fields()
		out.Accessories = append(out.Accessories, accessoryView{
			Address:     a.Address,
			Aux1Latched: aux1,
			Aux2Latched: aux2,
			AuxState:    auxState,
			Version:     a.Version(),
		})
	}
	for _, rt := range s.store.AllRoutes() {
		active, switchCount := rt.Fields()
		out.Routes = append(out.Routes, routeView{Address: rt.Address, Active: active, Switches: switchCount, Version: rt.Version()})
	}

	writeJSON(w, http.StatusOK, out)
}

type clientView struct {
	IP       string    `json:"ip"`
	Port     int       `json:"port"`
	UUID     string    `json:"uuid"`
	Version  string    `json:"version"`
	LastSeen time.Time `json:"last_seen"`
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.All()
	out := make([]clientView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, clientView{
			IP:       sess.IP,
			Port:     sess.Port,
			UUID:     sess.UUID.String(),
			Version:  formatVersion(sess.Version),
			LastSeen: sess.LastSeen,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func formatVersion(v [3]byte) string {
	return strconv.Itoa(int(v[0])) + "." + strconv.Itoa(int(v[1])) + "." + strconv.Itoa(int(v[2]))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

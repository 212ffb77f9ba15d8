package api

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/obsidianstack/sensorsd/internal/engine"
	"github.com/obsidianstack/sensorsd/internal/sensor"
	"github.com/obsidianstack/sensorsd/internal/units"
)

const requestTimeout = 10 * time.Second

// Handler serves the read-only status API over a watch table.
type Handler struct {
	table *engine.Table
}

// New creates the status API router for table.
func New(table *engine.Table) http.Handler {
	h := &Handler{table: table}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/sensors", h.listSensors)
		r.Get("/sensors/{key}", h.getSensor)
	})
	r.Get("/metrics", h.metrics)

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	return r
}

// health returns GET /api/v1/health: the worst watched status and counts.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	records := h.table.Snapshot()
	resp := HealthResponse{SensorCount: len(records), State: "unknown"}

	worst := sensor.StatusUnspec
	for _, r := range records {
		if !r.Watched {
			continue
		}
		resp.WatchedCount++
		switch r.Visible {
		case sensor.StatusOK:
			resp.OKCount++
		case sensor.StatusWarn:
			resp.WarningCount++
		case sensor.StatusCrit:
			resp.CriticalCount++
		default:
			resp.UnevaluatedCount++
			continue
		}
		if severity(r.Visible) > severity(worst) {
			worst = r.Visible
		}
	}
	if worst != sensor.StatusUnspec {
		resp.State = worst.String()
	}
	jsonResp(w, http.StatusOK, resp)
}

// listSensors returns GET /api/v1/sensors: every known sensor in
// enumeration order.
func (h *Handler) listSensors(w http.ResponseWriter, _ *http.Request) {
	records := h.table.Snapshot()
	out := make([]SensorResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toSensorResponse(r))
	}
	jsonResp(w, http.StatusOK, out)
}

// getSensor returns GET /api/v1/sensors/{key}.
func (h *Handler) getSensor(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.table.Get(chi.URLParam(r, "key"))
	if !ok {
		jsonErr(w, http.StatusNotFound, "sensor not found")
		return
	}
	jsonResp(w, http.StatusOK, toSensorResponse(rec))
}

func toSensorResponse(r engine.Record) SensorResponse {
	out := SensorResponse{
		Sensor:       r.ID.Key(),
		Device:       r.ID.Device,
		Kind:         r.ID.Kind.String(),
		Index:        r.ID.Index,
		Watched:      r.Watched,
		Status:       r.Visible.String(),
		Raw:          r.LastValue,
		PendingCount: r.PendingCount,
	}
	// LastValue is meaningless until the sensor has been sampled.
	if r.Visible != sensor.StatusUnspec || r.Pending != sensor.StatusUnspec {
		out.Value = units.Format(r.ID.Kind, r.LastValue)
	}
	if r.Lower != math.MinInt64 {
		out.Lower = units.Format(r.ID.Kind, r.Lower)
	}
	if r.Upper != math.MaxInt64 {
		out.Upper = units.Format(r.ID.Kind, r.Upper)
	}
	if r.Pending != r.Visible && r.Pending != sensor.StatusUnspec {
		out.Pending = r.Pending.String()
	}
	if !r.ChangedAt.IsZero() {
		out.ChangedAt = r.ChangedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// severity orders visible statuses for the health summary.
func severity(s sensor.Status) int {
	switch s {
	case sensor.StatusOK:
		return 1
	case sensor.StatusWarn:
		return 2
	case sensor.StatusCrit:
		return 3
	default:
		return 0
	}
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

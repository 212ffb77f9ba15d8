package api

import (
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/sensorsd/internal/engine"
	"github.com/obsidianstack/sensorsd/internal/sensor"
)

// metrics returns GET /metrics: the watch table in the Prometheus text
// exposition format. Only sensors that have been sampled are exported.
func (h *Handler) metrics(w http.ResponseWriter, _ *http.Request) {
	families := buildFamilies(h.table.Snapshot())

	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	w.WriteHeader(http.StatusOK)
	for _, mf := range families {
		// The text encoder rejects empty families.
		if len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return
		}
	}
}

func buildFamilies(records []engine.Record) []*dto.MetricFamily {
	value := gaugeFamily("sensorsd_sensor_raw_value",
		"Last sampled raw value (µK, RPM, µV, µA, m%, µlx or count).")
	status := gaugeFamily("sensorsd_sensor_status",
		"Visible sensor status: 0 ok, 1 warning, 2 critical.")
	watched := gaugeFamily("sensorsd_watched_sensors",
		"Number of sensors with a configured watch.")

	n := 0
	for _, r := range records {
		if !r.Watched {
			continue
		}
		n++
		if r.Visible == sensor.StatusUnspec && r.Pending == sensor.StatusUnspec {
			continue
		}
		labels := sensorLabels(r.ID)
		value.Metric = append(value.Metric, gauge(float64(r.LastValue), labels))
		if code, ok := statusCode(r.Visible); ok {
			status.Metric = append(status.Metric, gauge(code, labels))
		}
	}
	watched.Metric = []*dto.Metric{gauge(float64(n), nil)}

	return []*dto.MetricFamily{value, status, watched}
}

func statusCode(s sensor.Status) (float64, bool) {
	switch s {
	case sensor.StatusOK:
		return 0, true
	case sensor.StatusWarn:
		return 1, true
	case sensor.StatusCrit:
		return 2, true
	default:
		return 0, false
	}
}

func sensorLabels(id sensor.ID) []*dto.LabelPair {
	return []*dto.LabelPair{
		{Name: ptr("device"), Value: ptr(id.Device)},
		{Name: ptr("kind"), Value: ptr(id.Kind.String())},
		{Name: ptr("sensor"), Value: ptr(id.Key())},
	}
}

func gaugeFamily(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: ptr(name),
		Help: ptr(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func gauge(v float64, labels []*dto.LabelPair) *dto.Metric {
	return &dto.Metric{
		Label: labels,
		Gauge: &dto.Gauge{Value: ptr(v)},
	}
}

func ptr[T any](v T) *T { return &v }

package sensor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/sensorsd/internal/config"
)

const defaultScrapeTimeout = 10 * time.Second

// promFamily describes one node_exporter hwmon metric family.
type promFamily struct {
	name      string
	kind      Kind
	critAlarm string
	alarm     string
	toRaw     func(float64) int64
}

// node_exporter hwmon families and how their values map to raw units.
var promFamilies = []promFamily{
	{
		name:      "node_hwmon_temp_celsius",
		kind:      KindTemp,
		critAlarm: "node_hwmon_temp_crit_alarm_celsius",
		alarm:     "node_hwmon_temp_alarm_celsius",
		toRaw:     func(v float64) int64 { return int64(math.Round(v*1e6)) + 273150000 },
	},
	{
		name:  "node_hwmon_fan_rpm",
		kind:  KindFan,
		alarm: "node_hwmon_fan_alarm",
		toRaw: func(v float64) int64 { return int64(math.Round(v)) },
	},
	{
		name:  "node_hwmon_in_volts",
		kind:  KindVoltsDC,
		alarm: "node_hwmon_in_alarm_volts",
		toRaw: func(v float64) int64 { return int64(math.Round(v * 1e6)) },
	},
	{
		name:  "node_hwmon_curr_amps",
		kind:  KindAmps,
		alarm: "node_hwmon_curr_alarm_amps",
		toRaw: func(v float64) int64 { return int64(math.Round(v * 1e6)) },
	},
}

var promChannelRe = regexp.MustCompile(`(\d+)$`)

type promSeries struct {
	family *promFamily
	chip   string
	sensor string
}

// PromSource reads hwmon sensors from a node_exporter metrics endpoint.
type PromSource struct {
	endpoint string
	maxAge   time.Duration
	client   *http.Client
	now      func() time.Time

	mu        sync.Mutex
	series    map[ID]promSeries
	cached    map[string]*dto.MetricFamily
	scrapedAt time.Time
}

// NewPromSource builds a source for src. It builds the HTTP client once and
// reuses it across scrapes.
func NewPromSource(src config.SourceConfig) (*PromSource, error) {
	client, err := buildHTTPClient(src)
	if err != nil {
		return nil, fmt.Errorf("sensor: build http client: %w", err)
	}
	return &PromSource{
		endpoint: src.Endpoint,
		maxAge:   src.MaxAge,
		client:   client,
		now:      time.Now,
		series:   make(map[ID]promSeries),
	}, nil
}

// New returns the Source selected by src.Type.
func New(src config.SourceConfig) (Source, error) {
	switch src.Type {
	case "hwmon", "":
		return NewHwmonSource(src.HwmonRoot), nil
	case "prometheus":
		return NewPromSource(src)
	default:
		return nil, fmt.Errorf("sensor: unsupported source type %q", src.Type)
	}
}

// Enumerate scrapes once and assigns IDs per chip and kind, ordered by the
// channel number in the sensor label (temp1, temp2, ...).
func (s *PromSource) Enumerate(ctx context.Context) ([]ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mfs, err := s.scrapeLocked(ctx, true)
	if err != nil {
		return nil, err
	}

	type entry struct {
		chip    string
		sensor  string
		channel int
	}
	s.series = make(map[ID]promSeries)
	var ids []ID

	for i := range promFamilies {
		fam := &promFamilies[i]
		mf := mfs[fam.name]
		if mf == nil {
			continue
		}
		byChip := make(map[string][]entry)
		for _, m := range mf.GetMetric() {
			chip, sensor := labelValue(m, "chip"), labelValue(m, "sensor")
			if chip == "" || sensor == "" {
				continue
			}
			byChip[chip] = append(byChip[chip], entry{chip: chip, sensor: sensor, channel: channelOf(sensor)})
		}
		chips := make([]string, 0, len(byChip))
		for c := range byChip {
			chips = append(chips, c)
		}
		sort.Strings(chips)

		for _, chip := range chips {
			entries := byChip[chip]
			sort.Slice(entries, func(a, b int) bool { return entries[a].channel < entries[b].channel })
			for idx, e := range entries {
				id := ID{Device: sanitizeDevice(chip), Kind: fam.kind, Index: idx}
				s.series[id] = promSeries{family: fam, chip: e.chip, sensor: e.sensor}
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// Read returns the value of id from the cached scrape, refreshing it first
// when it is older than MaxAge.
func (s *PromSource) Read(ctx context.Context, id ID) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ser, ok := s.series[id]
	if !ok {
		return Reading{}, fmt.Errorf("%w: %s", ErrUnknownSensor, id.Key())
	}
	mfs, err := s.scrapeLocked(ctx, false)
	if err != nil {
		return Reading{}, err
	}

	m := findSeries(mfs[ser.family.name], ser.chip, ser.sensor)
	if m == nil {
		return Reading{}, fmt.Errorf("sensor: %s missing from scrape", id.Key())
	}
	r := Reading{Value: ser.family.toRaw(metricValue(m)), Status: StatusUnspec}

	if a := findSeries(mfs[ser.family.critAlarm], ser.chip, ser.sensor); a != nil && metricValue(a) != 0 {
		r.Status = StatusCrit
	} else if a := findSeries(mfs[ser.family.alarm], ser.chip, ser.sensor); a != nil && metricValue(a) != 0 {
		r.Status = StatusWarn
	}
	return r, nil
}

// scrapeLocked returns the cached families or fetches new ones. s.mu must be
// held.
func (s *PromSource) scrapeLocked(ctx context.Context, force bool) (map[string]*dto.MetricFamily, error) {
	now := s.now()
	if !force && s.cached != nil && now.Sub(s.scrapedAt) < s.maxAge {
		return s.cached, nil
	}
	mfs, err := fetchMetrics(ctx, s.client, s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("sensor: scrape %s: %w", s.endpoint, err)
	}
	s.cached = mfs
	s.scrapedAt = now
	return mfs, nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

func findSeries(mf *dto.MetricFamily, chip, sensor string) *dto.Metric {
	if mf == nil {
		return nil
	}
	for _, m := range mf.GetMetric() {
		if labelValue(m, "chip") == chip && labelValue(m, "sensor") == sensor {
			return m
		}
	}
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}

func channelOf(sensor string) int {
	m := promChannelRe.FindStringSubmatch(sensor)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the source's auth and TLS settings.
func buildHTTPClient(src config.SourceConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if src.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(src.Auth.CertFile, src.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if src.Auth.CAFile != "" {
			caPEM, err := os.ReadFile(src.Auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no valid certs found in ca file %q", src.Auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: src.Auth,
		},
		Timeout: defaultScrapeTimeout,
	}, nil
}

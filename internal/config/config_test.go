package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
check_interval: 10s
report_interval: 30s
fail_on_read_error: true
source:
  type: prometheus
  endpoint: "http://localhost:9100/metrics"
  max_age: 2s
  auth:
    mode: bearer
    token_env: NODE_TOKEN
watches:
  coretemp0.temp0:
    high: 85C
    command: "logger -t sensorsd %x.%t%n %2"
  nct6775_0.fan1:
    low: "300"
notify:
  webhooks:
    - type: slack
      url_env: SLACK_URL
  mqtt:
    broker: "tcp://localhost:1883"
    qos: 1
  nats:
    url: "nats://localhost:4222"
status:
  listen: ":9110"
`
	cfg := loadFromString(t, yaml)

	if cfg.CheckInterval != 10*time.Second || cfg.ReportInterval != 30*time.Second {
		t.Errorf("intervals: got %v / %v", cfg.CheckInterval, cfg.ReportInterval)
	}
	if !cfg.FailOnReadError {
		t.Error("fail_on_read_error: got false")
	}
	if cfg.Source.Type != "prometheus" || cfg.Source.MaxAge != 2*time.Second {
		t.Errorf("source: got %+v", cfg.Source)
	}
	if len(cfg.Watches) != 2 {
		t.Fatalf("watches: got %d, want 2", len(cfg.Watches))
	}
	w, ok := cfg.Lookup("coretemp0.temp0")
	if !ok || w.High != "85C" || w.Low != "" || !strings.Contains(w.Command, "%x.%t%n") {
		t.Errorf("coretemp0.temp0: got %+v, %v", w, ok)
	}
	if _, ok := cfg.Lookup("coretemp0.temp1"); ok {
		t.Error("Lookup of an unconfigured key succeeded")
	}
	if cfg.Notify.MQTT.Topic != DefaultMQTTTopic || cfg.Notify.MQTT.ClientID != "sensorsd" || cfg.Notify.MQTT.QoS != 1 {
		t.Errorf("mqtt: got %+v", cfg.Notify.MQTT)
	}
	if cfg.Notify.NATS.Subject != DefaultNATSSubject {
		t.Errorf("nats subject: got %q", cfg.Notify.NATS.Subject)
	}
	if cfg.Status.Listen != ":9110" {
		t.Errorf("status listen: got %q", cfg.Status.Listen)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, `
watches:
  coretemp0.temp0: {high: 80C}
`)

	if cfg.CheckInterval != DefaultCheckInterval {
		t.Errorf("default check_interval: got %v, want %v", cfg.CheckInterval, DefaultCheckInterval)
	}
	if cfg.ReportInterval != DefaultReportInterval {
		t.Errorf("default report_interval: got %v, want %v", cfg.ReportInterval, DefaultReportInterval)
	}
	if cfg.Source.Type != DefaultSourceType || cfg.Source.MaxAge != DefaultMaxAge {
		t.Errorf("default source: got %+v", cfg.Source)
	}
	if cfg.Notify.MQTT.Enabled() || cfg.Notify.NATS.Enabled() {
		t.Error("notifiers enabled without configuration")
	}
	if cfg.FailOnReadError {
		t.Error("fail_on_read_error defaults to true")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative check interval", "check_interval: -1s\n"},
		{"zero report interval", "report_interval: 0s\n"},
		{"unknown source type", "source: {type: sysctl}\n"},
		{"prometheus without endpoint", "source: {type: prometheus}\n"},
		{"unknown auth mode", "source: {auth: {mode: magictoken}}\n"},
		{"key without dot", "watches: {coretemp0temp0: {high: 80C}}\n"},
		{"key with two dots", "watches: {hw.coretemp0.temp0: {high: 80C}}\n"},
		{"unknown webhook type", "notify: {webhooks: [{type: pagerduty, url_env: X}]}\n"},
		{"webhook without url_env", "notify: {webhooks: [{type: slack}]}\n"},
		{"qos out of range", "notify: {mqtt: {broker: 'tcp://x:1883', qos: 3}}\n"},
		{"bad yaml", "watches: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "sensorsd.env")
	if err := os.WriteFile(envPath, []byte("SENSORSD_TEST_HOOK=https://hooks.example.com/abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("SENSORSD_TEST_HOOK") })

	cfg := loadFromString(t, `
env_file: `+envPath+`
notify:
  webhooks:
    - type: http
      url_env: SENSORSD_TEST_HOOK
`)
	if got := cfg.Notify.Webhooks[0].URL(); got != "https://hooks.example.com/abc" {
		t.Errorf("URL(): got %q", got)
	}
}

func TestLoad_EnvFileMissing(t *testing.T) {
	_, err := loadStringErr(t, "env_file: "+filepath.Join(t.TempDir(), "missing.env")+"\n")
	if err == nil {
		t.Fatal("expected error for missing env file, got nil")
	}
}

func TestAuthConfig_Secrets(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	t.Setenv("TEST_BEARER_TOKEN", "mytoken")
	t.Setenv("TEST_PASSWORD", "hunter2")
	a := AuthConfig{KeyEnv: "TEST_API_KEY", TokenEnv: "TEST_BEARER_TOKEN", PasswordEnv: "TEST_PASSWORD"}
	if a.Key() != "supersecret" || a.Token() != "mytoken" || a.Password() != "hunter2" {
		t.Errorf("got key=%q token=%q password=%q", a.Key(), a.Token(), a.Password())
	}
	if got := (AuthConfig{}).Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestMQTTConfig_Password(t *testing.T) {
	t.Setenv("TEST_MQTT_PASSWORD", "broker-secret")
	m := MQTTConfig{Broker: "tcp://localhost:1883", PasswordEnv: "TEST_MQTT_PASSWORD"}
	if got := m.Password(); got != "broker-secret" {
		t.Errorf("Password(): got %q", got)
	}
}

func TestWatchFile_SignalsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensorsd.yaml")
	if err := os.WriteFile(path, []byte("check_interval: 20s\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- WatchFile(ctx, path, func() { changed <- struct{}{} })
	}()

	// The watcher registers asynchronously; keep writing until it notices.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for noticed := false; !noticed; {
		select {
		case <-changed:
			noticed = true
		case <-tick.C:
			_ = os.WriteFile(path, []byte("check_interval: 10s\n"), 0o600)
		case <-deadline:
			t.Fatal("no change signalled")
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("WatchFile() returned %v after cancel", err)
	}
}

func TestWatchFile_MissingFile(t *testing.T) {
	if err := WatchFile(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), func() {}); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensorsd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}

// Package config loads and watches the daemon configuration file
// (/etc/sensorsd.yaml by default).
//
// Top-level types:
//   - Config — check_interval, report_interval, fail_on_read_error, env_file,
//     source, watches, notify, status
//   - Watch — low, high, command for one sensor node key; Config.Lookup is
//     the threshold lookup used by the engine on startup and every reload
//   - SourceConfig, AuthConfig, TLSConfig — where readings come from
//   - NotifyConfig{Webhooks, MQTT, NATS} — optional alert fan-out
//   - StatusConfig — optional HTTP status listener
//
// Load(path) reads the YAML file, applies defaults (20s check, 60s report,
// hwmon source), validates structure and loads env_file with godotenv.
// Secrets are never stored in the file: *_env fields name environment
// variables that are resolved on use.
//
// WatchFile(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange so the daemon can schedule a reload. It handles the rename→create
// pattern used by atomic-save editors by re-adding the watch after each event.
package config

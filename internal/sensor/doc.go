// Package sensor defines the sensor identity model (ID, Kind, Status) and the
// Source interface the daemon samples from.
//
// Two sources are provided:
//   - HwmonSource reads the Linux hwmon sysfs tree (/sys/class/hwmon). Each
//     hwmon directory becomes a device named <chip><ordinal> (coretemp0,
//     nvme0, nvme1, ...). temp*, fan*, in*, curr* and humidity* inputs are
//     converted to the raw fixed-point units; *_crit_alarm and *_alarm files
//     map to a critical or warning raw status.
//   - PromSource scrapes a node_exporter /metrics endpoint and reads the
//     node_hwmon_* families. A scrape is cached for MaxAge so one check cycle
//     costs one HTTP request.
//
// Sources that cannot compute a status report StatusUnspec and leave the
// threshold comparison to the engine.
package sensor

// Package engine holds the watch table and the per-sensor status state
// machine.
//
// Every poll maps the raw status to a working status (unknown → warning,
// unspec → critical outside [Lower, Upper] else ok). A change to OK is
// promoted to the visible status at once; any other change has to be seen
// DebounceCount (3) polls in a row before it becomes visible, so one noisy
// reading never raises an alert and a flapping sensor never accumulates
// across different abnormal statuses.
//
// Table.Apply refreshes watches from a ThresholdProvider without touching
// status history. Table.ChangedSince feeds the report cycle.
package engine

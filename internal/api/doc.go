// Package api implements the read-only HTTP status endpoint of sensorsd.
//
// New(table) returns a chi router that serves:
//
//	GET /api/v1/health         worst watched status and per-status counts
//	GET /api/v1/sensors        every known sensor ([]SensorResponse)
//	GET /api/v1/sensors/{key}  one sensor by node key; 404 if unknown
//	GET /metrics               Prometheus text exposition of watched sensors
//
// JSON endpoints respond with Content-Type: application/json and return 405
// for non-GET methods. Nothing here mutates the table.
package api

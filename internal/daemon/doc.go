// Package daemon runs the sensor monitor loop.
//
// Two deadlines drive it: every check interval each watched sensor is
// sampled, and every report interval the changes promoted since the previous
// report are handed to the Reporter. A reload request is a flag consumed at
// the top of the next iteration, so configuration is only ever swapped
// between passes.
package daemon

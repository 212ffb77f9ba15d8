// Package alert turns status changes into log records, templated shell
// commands and notifier events.
//
// Commands are configured per sensor and expanded with Expand before being
// handed to a Launcher. The expanded command must be shorter than
// MaxCommandLen bytes; a longer one is logged and never run.
package alert

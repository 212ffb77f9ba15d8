// Package notify fans reported status changes out to external targets:
// Slack, Teams and plain HTTP webhooks, an MQTT broker and a NATS subject.
//
// Delivery is best effort. The alert dispatcher calls Fanout.Notify from
// its own goroutine, so a slow or failing target never delays sampling.
package notify

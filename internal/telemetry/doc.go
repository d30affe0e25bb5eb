// Package telemetry implements the event hub for the drone session.
//
// The hub fans out mode changes, navdata samples and faults to in-process
// subscribers and SSE clients, and keeps the last N events so that a
// reconnecting client can resume with a Last-Event-ID header.
package telemetry

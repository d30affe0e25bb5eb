// Package audit writes the session audit trail.
//
// Records are JSON lines appended to audit.jsonl in the configured
// directory: dropped commands, NAVDATA mode transitions and channel
// failures. The file is rotated by size.
package audit

package model

import "time"

// ConnectionStatus is the admin API's view of one ConnectionKind's socket,
// replacing the teacher's per-account BotStatus with a per-kind status of
// the chat connection manager.
type ConnectionStatus struct {
	Kind                   string `json:"kind"`
	VisibleState           string `json:"visible_state"`
	Deregistered           bool   `json:"deregistered"`
	PendingRequests        int    `json:"pending_requests"`
	HasEmptiedInitialQueue bool   `json:"has_emptied_initial_queue"`
}

// LogEntry is a single log record, tagged by connection kind rather than by
// account id (spec.md has no account concept).
type LogEntry struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Tag       string    `json:"tag"`
	Message   string    `json:"message"`
	Level     string    `json:"level"` // "info", "warn", "error"
	CreatedAt time.Time `json:"created_at"`
}

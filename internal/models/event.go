package models

import "time"

// ClusterEvent is an event as returned by the gateway, independent of which
// events API served it.
type ClusterEvent struct {
	UID          string
	Type         string // Normal, Warning
	Reason       string
	Message      string
	InvolvedKind string
	InvolvedName string
	Namespace    string
	Timestamp    time.Time
}

// EventRecord is an event as shown to viewers.
type EventRecord struct {
	Pod        string    `json:"pod"`
	Severity   string    `json:"severity"`
	Reason     string    `json:"reason"`
	Message    string    `json:"message"`
	AgeSeconds int64     `json:"ageSeconds"`
	TargetType string    `json:"targetType"`
	Timestamp  time.Time `json:"timestamp"`
}

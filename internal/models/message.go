package models

import "fmt"

// Server message types.
const (
	MessageAwaitingPattern = "awaitingPattern"
	MessagePods            = "pods"
	MessagePod             = "pod"
	MessageMetrics         = "metrics"
	MessageEvents          = "events"
	MessageEvent           = "event"
	MessageLog             = "log"
)

// Client actions and channels.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionFocus       = "focus"

	ChannelPod  = "pod"
	ChannelLogs = "logs"
)

// ServerMessage is every message the server sends except log lines.
type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// LogMessage is a single log line for one pod/container pair.
type LogMessage struct {
	Type      string `json:"type"`
	Pod       string `json:"pod"`
	Container string `json:"container"`
	Line      string `json:"line"`
}

// ClientMessage is a request sent by a viewer.
type ClientMessage struct {
	Action    string `json:"action"`
	Channel   string `json:"channel,omitempty"`
	Pod       string `json:"pod,omitempty"`
	Container string `json:"container,omitempty"`
}

// LogKey identifies a log stream.
type LogKey struct {
	Pod       string
	Container string
}

func (k LogKey) String() string {
	return fmt.Sprintf("%s::%s", k.Pod, k.Container)
}

// LogLine is a line read from a log stream.
type LogLine struct {
	Key  LogKey
	Line string
}

// Message returns the wire form of the line.
func (l LogLine) Message() LogMessage {
	return LogMessage{Type: MessageLog, Pod: l.Key.Pod, Container: l.Key.Container, Line: l.Line}
}

package core

import (
	"fmt"
	"time"
)

const (
	// MaxLogs bounds the retained system-monitor history.
	MaxLogs = 500
	// MonitorWindow is how many log lines the monitor panel shows.
	MonitorWindow = 50
	// MaxNotifications is the size of the recent-activity panel.
	MaxNotifications = 10
)

// LogLevel mirrors the severity of a monitor line
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is one line of the system monitor
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Emoji     string    `json:"emoji"`
	Message   string    `json:"message"`
}

func (e LogEntry) String() string {
	return fmt.Sprintf("[%s] %s %s", e.Timestamp.Format("15:04:05"), e.Emoji, e.Message)
}

// Notification is an entry of the recent-activity panel
type Notification struct {
	ID         string    `json:"id"`
	AgentName  string    `json:"agentName"`
	ActionType string    `json:"actionType"`
	Timestamp  time.Time `json:"timestamp"`
}

// Tail returns the last n monitor lines.
func Tail(logs []LogEntry, n int) []LogEntry {
	if len(logs) <= n {
		return logs
	}
	return logs[len(logs)-n:]
}

package wire

import (
	"encoding/json"
	"strconv"
	"time"
)

// ServiceName is the service identifier the Responder reports from /ping.
const ServiceName = "Eagle2Ae"

const logTimestampLayout = "2006-01-02 15:04:05"

// Envelope is the unit exchanged over the bus. It is never mutated after it
// has been queued.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewEnvelope marshals data into an envelope stamped with now in Unix millis.
func NewEnvelope(kind Kind, data any, clientID string, now time.Time) (Envelope, error) {
	env := Envelope{Type: string(kind), ClientID: clientID, Timestamp: now.UnixMilli()}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = raw
	return env, nil
}

// Identity is the dedup key for an envelope: type plus timestamp.
func (e Envelope) Identity() string {
	return e.Type + ":" + strconv.FormatInt(e.Timestamp, 10)
}

// PingResponse mirrors GET /ping.
type PingResponse struct {
	Pong      bool   `json:"pong"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
	Port      int    `json:"port,omitempty"`
}

// MessagesResponse mirrors GET /messages.
type MessagesResponse struct {
	Messages            []Envelope `json:"messages"`
	Logs                []LogEntry `json:"logs"`
	ClientID            string     `json:"clientId"`
	WebsocketCompatible bool       `json:"websocketCompatible"`
}

// Ack is the generic {success, error} reply shared by the POST channels.
type Ack struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	Message     string `json:"message,omitempty"`
	Received    int    `json:"received,omitempty"`
	PortChanged bool   `json:"portChanged,omitempty"`
}

// StatusResponse mirrors GET /ae-status.
type StatusResponse struct {
	Connected     bool     `json:"connected"`
	SelectedFiles []string `json:"selectedFiles"`
	EagleStatus   string   `json:"eagleStatus"`
	Clients       int      `json:"clients"`
	LastPollAt    int64    `json:"lastPollAt,omitempty"`
	PeerPort      int      `json:"peerPort,omitempty"`
}

// Preferences carries the communication port alongside a settings push.
type Preferences struct {
	CommunicationPort int `json:"communicationPort,omitempty"`
}

// SettingsUpdateType is the fixed type tag of a settings push.
const SettingsUpdateType = "settings_update"

// SettingsUpdate mirrors POST /settings-sync. Settings stays raw so the
// settings package can validate it against its schema before decoding.
type SettingsUpdate struct {
	Type        string          `json:"type"`
	Settings    json.RawMessage `json:"settings"`
	Preferences Preferences     `json:"preferences"`
}

// PortInfoSource identifies Initiator port broadcasts.
const PortInfoSource = "ae_extension"

// PortInfo mirrors POST /ae-port-info.
// LastUpdated is when the sender last chose AEPort, in Unix millis; zero
// means the port came from configuration.
type PortInfo struct {
	AEPort      int    `json:"aePort" binding:"required,min=1024,max=65535"`
	Source      string `json:"source"`
	Timestamp   int64  `json:"timestamp"`
	LastUpdated int64  `json:"lastUpdated,omitempty"`
}

// LogsPayload mirrors POST /eagle-logs.
type LogsPayload struct {
	Logs []LogEntry `json:"logs"`
}

// LogLevel is the severity of a shipped log line.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
	LevelDebug   LogLevel = "debug"
)

// LogSource names the side that produced a log line.
type LogSource string

const (
	SourceInitiator LogSource = "initiator"
	SourceResponder LogSource = "responder"
)

// LogEntry is a human-readable log line exchanged between the two sides.
type LogEntry struct {
	ID        string    `json:"id,omitempty"`
	Timestamp string    `json:"timestamp"`
	Message   string    `json:"message"`
	Level     LogLevel  `json:"level"`
	Source    LogSource `json:"source"`
}

// Identity returns the id, falling back to timestamp+message.
func (e LogEntry) Identity() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Timestamp + "|" + e.Message
}

// ParsedTime returns the timestamp as time.Time when possible.
func (e LogEntry) ParsedTime() time.Time {
	return parseTime(e.Timestamp)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	if t, err := time.ParseInLocation(logTimestampLayout, value, time.Local); err == nil {
		return t
	}
	return time.Time{}
}

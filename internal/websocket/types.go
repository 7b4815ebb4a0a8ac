package websocket

import (
	"time"

	"github.com/coder/websocket"
)

// Message types understood by the reload client.
const (
	TypeFullReload = "full_reload"
	TypeCSSUpdate  = "css_update"
	TypeBuildError = "build_error"
)

// Client represents a WebSocket client connection
type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OriginValidator decides whether a browser origin may open a reload socket.
type OriginValidator interface {
	IsAllowedOrigin(origin string) bool
}

// AllowedHosts accepts origins whose host:port is in the list.
type AllowedHosts []string

// IsAllowedOrigin implements OriginValidator.
func (a AllowedHosts) IsAllowedOrigin(origin string) bool {
	host, ok := originHost(origin)
	if !ok {
		return false
	}
	for _, allowed := range a {
		if host == allowed {
			return true
		}
	}
	return false
}

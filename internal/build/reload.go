package build

import (
	"path"
	"strings"

	"github.com/conneroisu/sitesmith/internal/taskgraph"
	"github.com/conneroisu/sitesmith/internal/websocket"
)

// ReloadMessages maps a finished task to what connected browsers should do.
// Pages and scripts force a full reload, stylesheets are swapped in place
// and images need nothing. A failure is reported with its error text.
func ReloadMessages(ev taskgraph.Event) []websocket.UpdateMessage {
	switch ev.Status {
	case taskgraph.StatusFailed:
		content := "build failed"
		if ev.Err != nil {
			content = ev.Err.Error()
		}
		return []websocket.UpdateMessage{{
			Type:    websocket.TypeBuildError,
			Target:  ev.Task,
			Content: content,
		}}

	case taskgraph.StatusSucceeded:
	default:
		return nil
	}

	var styles []websocket.UpdateMessage
	for _, out := range ev.Outputs {
		switch strings.ToLower(path.Ext(out)) {
		case ".html", ".htm", ".js", ".mjs":
			return []websocket.UpdateMessage{{Type: websocket.TypeFullReload, Target: ev.Task}}
		case ".css":
			styles = append(styles, websocket.UpdateMessage{Type: websocket.TypeCSSUpdate, Target: out})
		}
	}

	return styles
}

package server

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/a-h/templ"
)

// TaskResult is the last known outcome of one task.
type TaskResult struct {
	Task     string        `json:"task"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Outputs  int           `json:"outputs"`
	Error    string        `json:"error,omitempty"`
	Finished time.Time     `json:"finished"`
}

// RecordResult stores r as the latest result for its task.
func (s *Server) RecordResult(r TaskResult) {
	if r.Finished.IsZero() {
		r.Finished = time.Now()
	}

	s.resultsMutex.Lock()
	defer s.resultsMutex.Unlock()
	s.results[r.Task] = r
}

// Results returns the latest result of every task, sorted by name.
func (s *Server) Results() []TaskResult {
	s.resultsMutex.RLock()
	defer s.resultsMutex.RUnlock()

	out := make([]TaskResult, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Task < out[j].Task })
	return out
}

func statusPage(results []TaskResult, clients int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder

		b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>sitesmith status</title>`)
		b.WriteString(`<style>body{font:14px sans-serif;margin:2em}table{border-collapse:collapse}` +
			`td,th{padding:.3em .8em;border-bottom:1px solid #ddd;text-align:left}` +
			`.failed{color:#b00}.skipped{color:#888}.succeeded{color:#070}pre{margin:0;white-space:pre-wrap}</style>`)
		b.WriteString(`</head><body><h1>Tasks</h1>`)
		fmt.Fprintf(&b, `<p>%d reload client(s) connected</p>`, clients)

		if len(results) == 0 {
			b.WriteString(`<p>No task has finished yet.</p>`)
		} else {
			b.WriteString(`<table><tr><th>Task</th><th>Status</th><th>Outputs</th><th>Duration</th><th>Finished</th><th>Error</th></tr>`)
			for _, r := range results {
				fmt.Fprintf(&b, `<tr class="%s"><td>%s</td><td>%s</td><td>%d</td><td>%s</td><td>%s</td><td><pre>%s</pre></td></tr>`,
					templ.EscapeString(r.Status),
					templ.EscapeString(r.Task),
					templ.EscapeString(r.Status),
					r.Outputs,
					r.Duration.Round(time.Millisecond),
					r.Finished.Format(time.TimeOnly),
					templ.EscapeString(r.Error),
				)
			}
			b.WriteString(`</table>`)
		}

		b.WriteString(`</body></html>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

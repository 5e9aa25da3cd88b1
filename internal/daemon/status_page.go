package daemon

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"sort"

	"github.com/yuin/goldmark"

	"git.home.luguber.info/inful/buildflow/internal/logfields"
)

// handleStatusPage renders a small HTML overview of the engine. Job notes
// from the schedule configuration are Markdown and rendered with Goldmark.
func (s *HTTPServer) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Describe()

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html><head><title>buildflow</title></head><body>\n")
	buf.WriteString("<h1>buildflow</h1>\n")
	fmt.Fprintf(&buf, "<p>Mode: <strong>%s</strong></p>\n", html.EscapeString(string(snap.Mode)))
	buf.WriteString("<ul>\n")
	fmt.Fprintf(&buf, "<li>Queued jobs: %d</li>\n", snap.QueueLength)
	fmt.Fprintf(&buf, "<li>Active executions: %d</li>\n", snap.ActiveCount)
	fmt.Fprintf(&buf, "<li>Concurrency limit: %d</li>\n", snap.ConcurrencyLimit)
	buf.WriteString("</ul>\n")

	if len(s.notes) > 0 {
		buf.WriteString("<h2>Jobs</h2>\n")
		keys := make([]string, 0, len(s.notes))
		for k := range s.notes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(&buf, "<h3>%s</h3>\n", html.EscapeString(key))
			if err := goldmark.Convert([]byte(s.notes[key]), &buf); err != nil {
				slog.Error("Failed to render job notes", logfields.JobKey(key), logfields.Error(err))
				fmt.Fprintf(&buf, "<pre>%s</pre>\n", html.EscapeString(s.notes[key]))
			}
		}
	}

	buf.WriteString("</body></html>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("Failed to write status page", logfields.Error(err))
	}
}

package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghhtml "github.com/yuin/goldmark/renderer/html"

	"meetscribe/internal/contextutil"
	"meetscribe/internal/storage"
)

// MeetingPageHandler renders a meeting's extracted notes as an HTML page.
// The page is assembled as markdown from the stored fields and converted
// with goldmark, so the output stays consistent with exported notes.
type MeetingPageHandler struct {
	meetings storage.MeetingStore
	tasks    storage.TaskStore
	parser   goldmark.Markdown
	template *template.Template
}

// meetingPageData holds template data for rendered meeting pages.
type meetingPageData struct {
	Title   string
	Content template.HTML
}

// NewMeetingPageHandler creates a handler for serving meeting summary pages.
func NewMeetingPageHandler(meetings storage.MeetingStore, tasks storage.TaskStore) *MeetingPageHandler {
	tmpl := template.Must(template.New("meeting").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
      margin: 0 auto;
      padding: 2rem;
      max-width: 800px;
      line-height: 1.6;
      color: #1f2937;
    }
    h1 { font-size: 1.8rem; border-bottom: 1px solid #e5e7eb; padding-bottom: 0.5rem; }
    h2 { color: #374151; margin-top: 1.5rem; }
    ul { padding-left: 1.4rem; }
    li { margin: 0.3rem 0; }
    input[type=checkbox] { margin-right: 0.4rem; }
  </style>
</head>
<body>
  <article>{{.Content}}</article>
</body>
</html>`))

	return &MeetingPageHandler{
		meetings: meetings,
		tasks:    tasks,
		parser: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.TaskList,
			),
			goldmark.WithRendererOptions(
				ghhtml.WithHardWraps(),
			),
		),
		template: tmpl,
	}
}

// ServeHTTP handles GET /meetings/{sessionID}.
func (h *MeetingPageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	meeting, err := h.meetings.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "meeting not found", http.StatusNotFound)
			return
		}
		logger.ErrorContext(ctx, "failed to load meeting", "session_id", sessionID, "error", err)
		http.Error(w, "failed to load meeting", http.StatusInternalServerError)
		return
	}

	tasks, err := h.tasks.ListByMeeting(ctx, meeting.ID)
	if err != nil {
		logger.WarnContext(ctx, "failed to load meeting tasks", "meeting_id", meeting.ID, "error", err)
	}

	htmlContent, err := h.renderMarkdown(buildMeetingMarkdown(meeting, tasks))
	if err != nil {
		logger.ErrorContext(ctx, "failed to render meeting page", "meeting_id", meeting.ID, "error", err)
		http.Error(w, "failed to render meeting", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.template.Execute(w, meetingPageData{
		Title:   meeting.Title,
		Content: template.HTML(htmlContent),
	}); err != nil {
		logger.ErrorContext(ctx, "failed to execute meeting template", "meeting_id", meeting.ID, "error", err)
	}
}

func (h *MeetingPageHandler) renderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := h.parser.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}

// buildMeetingMarkdown assembles the notes document from the stored fields.
// Sections without content are omitted entirely.
func buildMeetingMarkdown(meeting *storage.Meeting, tasks []*storage.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", meeting.Title)

	if meeting.Summary != "" {
		fmt.Fprintf(&b, "## Summary\n\n%s\n\n", meeting.Summary)
	}
	if len(meeting.KeyPoints) > 0 {
		b.WriteString("## Key points\n\n")
		for _, point := range meeting.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", point)
		}
		b.WriteString("\n")
	}
	if len(meeting.ActionItems) > 0 {
		b.WriteString("## Action items\n\n")
		for _, item := range meeting.ActionItems {
			fmt.Fprintf(&b, "- [ ] %s\n", item)
		}
		b.WriteString("\n")
	}
	if len(tasks) > 0 {
		b.WriteString("## Tasks\n\n")
		for _, task := range tasks {
			fmt.Fprintf(&b, "- **%s** (%s, due %s)\n", task.Title, task.Priority, task.DueDate.Format("2006-01-02"))
		}
	}
	return b.String()
}

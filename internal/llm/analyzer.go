package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Analysis is the structured extraction from a meeting transcript.
type Analysis struct {
	Summary     string
	KeyPoints   []string
	ActionItems []string
	Tasks       []CandidateTask
}

// CandidateTask is one task proposed by the model. Fields the model omits are
// left zero; defaulting policy belongs to the materializer, not the parser.
type CandidateTask struct {
	Title         string
	Description   string
	Priority      string
	DueDate       string // ISO date, possibly empty
	EstimateHours float64
}

const titleSystemPrompt = `You title meeting recordings. Reply with a short descriptive title only, no quotes, no preamble.`

const analysisSystemPrompt = `You analyze meeting transcripts. Reply with ONLY a JSON object, no prose, shaped as:
{
  "summary": "...",
  "key_points": ["..."],
  "action_items": ["..."],
  "tasks": [{"title": "...", "description": "...", "priority": "low|medium|high", "due_date": "YYYY-MM-DD", "estimate_hours": 2}]
}
Omit due_date and estimate_hours when the transcript gives no basis for them.`

// Analyzer turns transcripts into titles and structured analyses via the
// chat completions API.
type Analyzer struct {
	client *Client
}

// NewAnalyzer creates a new Analyzer on top of an LLM client.
func NewAnalyzer(client *Client) *Analyzer {
	return &Analyzer{client: client}
}

// GenerateTitle asks the model for a short title for the transcript.
func (a *Analyzer) GenerateTitle(ctx context.Context, transcript string) (string, error) {
	reply, err := a.client.Chat(ctx, titleSystemPrompt, clip(transcript, 6000))
	if err != nil {
		return "", fmt.Errorf("failed to generate title: %w", err)
	}
	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(reply), `"`))
	if title == "" {
		return "", fmt.Errorf("model returned an empty title")
	}
	return title, nil
}

// Analyze asks the model for a structured summary and task list. The project
// name, when known, is passed as context so task phrasing matches the project,
// but the caller owns the project association regardless of what comes back.
func (a *Analyzer) Analyze(ctx context.Context, transcript, projectName string) (*Analysis, error) {
	user := clip(transcript, 24000)
	if projectName != "" {
		user = fmt.Sprintf("Project context: %s\n\nTranscript:\n%s", projectName, user)
	}

	reply, err := a.client.Chat(ctx, analysisSystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze transcript: %w", err)
	}
	return parseAnalysis(reply)
}

// parseAnalysis extracts the Analysis from a model reply. Models routinely
// wrap JSON in markdown fences or lead with prose, so gjson is pointed at the
// first object in the reply rather than strict-decoding the whole thing.
func parseAnalysis(reply string) (*Analysis, error) {
	raw := extractJSON(reply)
	if raw == "" || !gjson.Valid(raw) {
		return nil, fmt.Errorf("model reply contained no valid JSON object")
	}

	doc := gjson.Parse(raw)
	analysis := &Analysis{
		Summary: doc.Get("summary").String(),
	}
	if analysis.Summary == "" {
		return nil, fmt.Errorf("model reply missing summary")
	}

	for _, kp := range doc.Get("key_points").Array() {
		if s := kp.String(); s != "" {
			analysis.KeyPoints = append(analysis.KeyPoints, s)
		}
	}
	for _, ai := range doc.Get("action_items").Array() {
		if s := ai.String(); s != "" {
			analysis.ActionItems = append(analysis.ActionItems, s)
		}
	}
	for _, task := range doc.Get("tasks").Array() {
		title := task.Get("title").String()
		if title == "" {
			continue
		}
		analysis.Tasks = append(analysis.Tasks, CandidateTask{
			Title:         title,
			Description:   task.Get("description").String(),
			Priority:      task.Get("priority").String(),
			DueDate:       task.Get("due_date").String(),
			EstimateHours: task.Get("estimate_hours").Float(),
		})
	}
	return analysis, nil
}

// extractJSON returns the first top-level JSON object in the reply.
func extractJSON(reply string) string {
	s := strings.TrimSpace(reply)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// clip bounds prompt size without cutting mid-rune.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	clipped := s[:max]
	for len(clipped) > 0 && !utf8.ValidString(clipped) {
		clipped = clipped[:len(clipped)-1]
	}
	return clipped
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/quizsync-go/internal/metrics"
	"github.com/raphaelgruber/quizsync-go/internal/models"
	"github.com/raphaelgruber/quizsync-go/internal/parser"
)

// Generator turns source chunks into quiz tasks.
type Generator struct {
	model   *Model
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewGenerator creates a generator. m may be nil.
func NewGenerator(model *Model, m *metrics.Collector, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{model: model, metrics: m, logger: logger}
}

const generateSystemPrompt = `You are an expert teacher writing quiz questions from course material.
Write questions that test understanding of the given material, not trivia about its wording.
Never put the answer in the question text.
Respond with a single JSON object and nothing else.`

// Generate asks the model for up to n tasks of taskType about chunk.
// Drafts that violate the task invariants are dropped.
func (g *Generator) Generate(ctx context.Context, chunk parser.Chunk, n int, taskType models.TaskType) ([]models.Task, error) {
	start := time.Now()
	out, err := g.model.GenerateWithSystem(ctx, generateSystemPrompt, buildGeneratePrompt(chunk, n, taskType),
		llms.WithJSONMode(),
		llms.WithTemperature(0.4),
	)
	duration := time.Since(start)
	if err != nil {
		g.metrics.RecordTiming(metrics.OpLLMGenerate, duration, err)
		g.logger.Warn("task generation failed", "chunk_id", chunk.ID, "duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("generate tasks: %w", err)
	}
	g.metrics.RecordLLMUsage(metrics.OpLLMGenerate, duration, out.InputTokens, out.OutputTokens)

	tasks, err := parseTasks(out.Text, taskType)
	if err != nil {
		return nil, err
	}
	if len(tasks) > n {
		tasks = tasks[:n]
	}
	for i := range tasks {
		tasks[i].DocumentID = chunk.DocumentID
		tasks[i].ChunkID = chunk.ID
	}

	g.logger.Debug("tasks generated", "chunk_id", chunk.ID, "count", len(tasks), "duration_ms", duration.Milliseconds())
	return tasks, nil
}

func buildGeneratePrompt(chunk parser.Chunk, n int, taskType models.TaskType) string {
	var sb strings.Builder

	switch taskType {
	case models.TaskTypeFreeText:
		fmt.Fprintf(&sb, "Write %d open questions answered in one or two sentences.\n", n)
		sb.WriteString("Give each a concise reference answer.\n\n")
		sb.WriteString(`Format: {"tasks": [{"question": "...", "reference_answer": "..."}]}`)
	default:
		fmt.Fprintf(&sb, "Write %d multiple choice questions with exactly 4 options each.\n", n)
		sb.WriteString("Exactly one option is correct. Wrong options must be plausible.\n\n")
		sb.WriteString(`Format: {"tasks": [{"question": "...", "options": ["...", "...", "...", "..."], "correct_index": 0}]}`)
		sb.WriteString("\ncorrect_index is the 0-based index of the correct option.")
	}

	sb.WriteString("\n\n")
	if chunk.HeadingPath != "" {
		fmt.Fprintf(&sb, "Section: %s\n\n", chunk.HeadingPath)
	}
	sb.WriteString("Material:\n")
	sb.WriteString(chunk.Content)
	return sb.String()
}

type taskDraft struct {
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	CorrectIndex    *int     `json:"correct_index"`
	ReferenceAnswer string   `json:"reference_answer"`
}

// parseTasks decodes the model response into valid tasks. Invalid drafts are skipped.
func parseTasks(text string, taskType models.TaskType) ([]models.Task, error) {
	var resp struct {
		Tasks []taskDraft `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &resp); err != nil {
		return nil, fmt.Errorf("parse generated tasks: %w", err)
	}

	tasks := make([]models.Task, 0, len(resp.Tasks))
	for _, d := range resp.Tasks {
		if t, ok := d.task(taskType); ok {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (d taskDraft) task(taskType models.TaskType) (models.Task, bool) {
	question := strings.TrimSpace(d.Question)
	if question == "" {
		return models.Task{}, false
	}
	t := models.Task{Type: taskType, Question: question}

	switch taskType {
	case models.TaskTypeFreeText:
		ref := strings.TrimSpace(d.ReferenceAnswer)
		if ref == "" {
			return models.Task{}, false
		}
		t.Options = []models.Option{{Text: ref, IsCorrect: true}}
	case models.TaskTypeMultipleChoice:
		if len(d.Options) < 2 || d.CorrectIndex == nil || *d.CorrectIndex < 0 || *d.CorrectIndex >= len(d.Options) {
			return models.Task{}, false
		}
		for i, text := range d.Options {
			t.Options = append(t.Options, models.Option{Text: strings.TrimSpace(text), IsCorrect: i == *d.CorrectIndex})
		}
	default:
		return models.Task{}, false
	}
	return t, true
}

// extractJSON strips code fences and any prose around the outermost object.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return strings.TrimSpace(text)
	}
	return text[start : end+1]
}

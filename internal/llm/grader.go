package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/quizsync-go/internal/config"
	"github.com/raphaelgruber/quizsync-go/internal/metrics"
	"github.com/raphaelgruber/quizsync-go/internal/models"
)

// Grade is the evaluation of a free-text answer.
// Score: 0 correct, 1 partially correct, 2 contradictory, 3 irrelevant.
type Grade struct {
	Score    int
	Feedback string
}

// Grader evaluates student answers.
type Grader interface {
	// Grade scores a free-text answer against the task's reference answer.
	Grade(ctx context.Context, task models.Task, answer string) (Grade, error)
	// Explain says why a chosen multiple-choice option is wrong.
	Explain(ctx context.Context, task models.Task, chosen string) (string, error)
}

// NewGrader returns the OpenAI function-calling grader when an API key is
// configured, else a grader on the generation model. It returns nil when
// neither is available.
func NewGrader(cfg config.Config, model *Model, m *metrics.Collector, logger *slog.Logger) Grader {
	if cfg.OpenAIAPIKey != "" {
		return NewOpenAIGrader(openai.NewClient(cfg.OpenAIAPIKey), cfg.GraderModel, m, logger)
	}
	if model != nil {
		return NewModelGrader(model, m, logger)
	}
	return nil
}

const gradeSystemPrompt = `You are a fair teacher grading short student answers against a reference answer.
Judge meaning, not wording. Keep feedback to two sentences addressed to the student.`

const explainSystemPrompt = `You are a patient teacher. A student picked a wrong option in a multiple choice question.
Explain briefly why their choice is wrong and what the correct answer is. At most three sentences.`

func validScore(score int) error {
	if score < 0 || score > 3 {
		return fmt.Errorf("grader returned score %d outside 0-3", score)
	}
	return nil
}

func gradePrompt(task models.Task, answer string) string {
	ref, _ := task.CorrectOption()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n", task.Question)
	fmt.Fprintf(&sb, "Reference answer: %s\n", ref.Text)
	fmt.Fprintf(&sb, "Student answer: %s\n\n", answer)
	sb.WriteString("Scores:\n")
	sb.WriteString("0 = correct\n")
	sb.WriteString("1 = partially correct or incomplete\n")
	sb.WriteString("2 = contradicts the reference answer\n")
	sb.WriteString("3 = irrelevant to the question\n")
	return sb.String()
}

func explainPrompt(task models.Task, chosen string) string {
	correct, _ := task.CorrectOption()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nOptions:\n", task.Question)
	for i, o := range task.Options {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, o.Text)
	}
	fmt.Fprintf(&sb, "\nStudent chose: %s\n", chosen)
	fmt.Fprintf(&sb, "Correct answer: %s\n", correct.Text)
	return sb.String()
}

// =============================================================================
// OPENAI
// =============================================================================

// OpenAIGrader grades through OpenAI function calling, which forces a
// structured score instead of free prose.
type OpenAIGrader struct {
	client  *openai.Client
	model   string
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewOpenAIGrader creates a grader using client.
func NewOpenAIGrader(client *openai.Client, model string, m *metrics.Collector, logger *slog.Logger) *OpenAIGrader {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGrader{client: client, model: model, metrics: m, logger: logger}
}

var gradeTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        "grade_answer",
		Description: "Grade a student's answer against the reference answer",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"score": map[string]interface{}{
					"type":        "integer",
					"enum":        []int{0, 1, 2, 3},
					"description": "0 correct, 1 partially correct, 2 contradictory, 3 irrelevant",
				},
				"feedback": map[string]interface{}{
					"type":        "string",
					"description": "Short feedback for the student",
				},
			},
			"required": []string{"score", "feedback"},
		},
	},
}

// Grade implements Grader.
func (g *OpenAIGrader) Grade(ctx context.Context, task models.Task, answer string) (Grade, error) {
	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: gradeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: gradePrompt(task, answer)},
		},
		Tools: []openai.Tool{gradeTool},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: "grade_answer"},
		},
	})
	duration := time.Since(start)
	if err != nil {
		g.metrics.RecordTiming(metrics.OpLLMGrade, duration, err)
		return Grade{}, wrapFatalError(fmt.Errorf("grade answer: %w", err))
	}
	g.metrics.RecordLLMUsage(metrics.OpLLMGrade, duration, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))

	if len(resp.Choices) == 0 {
		return Grade{}, fmt.Errorf("no response from grader")
	}
	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) == 0 {
		return Grade{}, fmt.Errorf("no tool calls in grader response")
	}
	toolCall := choice.Message.ToolCalls[0]
	if toolCall.Function.Name != "grade_answer" {
		return Grade{}, fmt.Errorf("unexpected tool call: %s", toolCall.Function.Name)
	}

	var args struct {
		Score    int    `json:"score"`
		Feedback string `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return Grade{}, fmt.Errorf("parse grade arguments: %w", err)
	}
	if err := validScore(args.Score); err != nil {
		return Grade{}, err
	}

	g.logger.Debug("answer graded", "task_id", task.ID, "score", args.Score, "duration_ms", duration.Milliseconds())
	return Grade{Score: args.Score, Feedback: strings.TrimSpace(args.Feedback)}, nil
}

// Explain implements Grader.
func (g *OpenAIGrader) Explain(ctx context.Context, task models.Task, chosen string) (string, error) {
	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: explainSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: explainPrompt(task, chosen)},
		},
	})
	duration := time.Since(start)
	if err != nil {
		g.metrics.RecordTiming(metrics.OpLLMGrade, duration, err)
		return "", wrapFatalError(fmt.Errorf("explain answer: %w", err))
	}
	g.metrics.RecordLLMUsage(metrics.OpLLMGrade, duration, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from grader")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// =============================================================================
// LANGCHAINGO
// =============================================================================

// ModelGrader grades with the generation model, asking for a JSON verdict.
type ModelGrader struct {
	model   *Model
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewModelGrader creates a grader on model.
func NewModelGrader(model *Model, m *metrics.Collector, logger *slog.Logger) *ModelGrader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelGrader{model: model, metrics: m, logger: logger}
}

// Grade implements Grader.
func (g *ModelGrader) Grade(ctx context.Context, task models.Task, answer string) (Grade, error) {
	prompt := gradePrompt(task, answer) + `
Respond with a single JSON object: {"score": <0-3>, "feedback": "..."}`

	start := time.Now()
	out, err := g.model.GenerateWithSystem(ctx, gradeSystemPrompt, prompt, llms.WithJSONMode(), llms.WithTemperature(0))
	duration := time.Since(start)
	if err != nil {
		g.metrics.RecordTiming(metrics.OpLLMGrade, duration, err)
		return Grade{}, fmt.Errorf("grade answer: %w", err)
	}
	g.metrics.RecordLLMUsage(metrics.OpLLMGrade, duration, out.InputTokens, out.OutputTokens)

	var verdict struct {
		Score    *int   `json:"score"`
		Feedback string `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(extractJSON(out.Text)), &verdict); err != nil {
		return Grade{}, fmt.Errorf("parse grade: %w", err)
	}
	if verdict.Score == nil {
		return Grade{}, fmt.Errorf("grade is missing a score")
	}
	if err := validScore(*verdict.Score); err != nil {
		return Grade{}, err
	}
	return Grade{Score: *verdict.Score, Feedback: strings.TrimSpace(verdict.Feedback)}, nil
}

// Explain implements Grader.
func (g *ModelGrader) Explain(ctx context.Context, task models.Task, chosen string) (string, error) {
	start := time.Now()
	out, err := g.model.GenerateWithSystem(ctx, explainSystemPrompt, explainPrompt(task, chosen))
	duration := time.Since(start)
	if err != nil {
		g.metrics.RecordTiming(metrics.OpLLMGrade, duration, err)
		return "", fmt.Errorf("explain answer: %w", err)
	}
	g.metrics.RecordLLMUsage(metrics.OpLLMGrade, duration, out.InputTokens, out.OutputTokens)
	return strings.TrimSpace(out.Text), nil
}

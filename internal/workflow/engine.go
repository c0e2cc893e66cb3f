package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"findoc-backend/internal/llm"
	"findoc-backend/internal/shared/telemetry"
)

// ErrNotFinancial signals that triage rejected the document, aborting the
// pipeline before any deeper stage runs.
var ErrNotFinancial = errors.New("document is not a financial report")

// StageError wraps a failure with the stage it occurred in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Input identifies the document and the question driving the run.
// Progress, when set, is called with each stage name before it runs.
type Input struct {
	RequestID string
	FileName  string
	Query     string
	Progress  func(stage string)
}

// Tooling provides the side-effecting capabilities stages may request.
// ReadDocument is required; WebSearch may be nil when no search provider
// is configured.
type Tooling struct {
	ReadDocument func(ctx context.Context) (string, error)
	WebSearch    func(ctx context.Context, query string) (string, error)
}

// Engine runs the staged analysis pipeline over a single document.
type Engine struct {
	llm    llm.Client
	tools  Tooling
	stages []Stage
}

// NewEngine builds an engine with the default stage set.
func NewEngine(client llm.Client, tools Tooling) (*Engine, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	if tools.ReadDocument == nil {
		return nil, errors.New("read document tool is required")
	}
	return &Engine{llm: client, tools: tools, stages: Stages()}, nil
}

// Run executes every stage in order and returns the final report.
// The output of each stage becomes context for the next. A triage
// rejection aborts the run with ErrNotFinancial.
func (e *Engine) Run(ctx context.Context, in Input) (string, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		query = DefaultQuery
	}

	// The document is read once and shared across every stage that asks
	// for it, so a retrying stage never re-hits the object store.
	var documentText string
	var documentLoaded bool

	priorOutputs := make([]string, 0, len(e.stages))
	var lastOutput string

	for _, stage := range e.stages {
		if err := ctx.Err(); err != nil {
			return "", &StageError{Stage: stage.Name, Err: err}
		}
		if in.Progress != nil {
			in.Progress(stage.Name)
		}

		toolBlocks := make([]string, 0, len(stage.Tools))
		for _, tool := range stage.Tools {
			switch tool {
			case ToolReadDocument:
				if !documentLoaded {
					text, err := e.tools.ReadDocument(ctx)
					if err != nil {
						return "", &StageError{Stage: stage.Name, Err: fmt.Errorf("read document: %w", err)}
					}
					documentText = text
					documentLoaded = true
				}
				toolBlocks = append(toolBlocks, "Document content:\n"+documentText)
			case ToolWebSearch:
				if e.tools.WebSearch == nil {
					continue
				}
				results, err := e.tools.WebSearch(ctx, query)
				if err != nil {
					// Search enriches the analysis but is not load-bearing.
					telemetry.Warn("workflow.search_failed", map[string]any{
						"request_id": in.RequestID,
						"stage":      stage.Name,
						"error":      err.Error(),
					})
					continue
				}
				toolBlocks = append(toolBlocks, "Web search results:\n"+results)
			}
		}

		prompt := buildPrompt(stage, in.FileName, query, priorOutputs, toolBlocks)

		output, err := e.llm.Generate(ctx, llm.Request{
			System: stage.Agent.SystemPrompt(),
			Prompt: prompt,
		})
		if err != nil {
			return "", &StageError{Stage: stage.Name, Err: err}
		}
		output = strings.TrimSpace(output)
		if output == "" {
			return "", &StageError{Stage: stage.Name, Err: errors.New("empty model output")}
		}

		telemetry.Info("workflow.stage_done", map[string]any{
			"request_id": in.RequestID,
			"stage":      stage.Name,
			"output_len": len(output),
		})

		if stage.Name == "triage" && triageRejected(output) {
			return "", &StageError{Stage: stage.Name, Err: fmt.Errorf("%w: %s", ErrNotFinancial, firstLine(output))}
		}

		priorOutputs = append(priorOutputs, fmt.Sprintf("[%s]\n%s", stage.Name, output))
		lastOutput = output
	}

	return lastOutput, nil
}

func buildPrompt(stage Stage, fileName, query string, priorOutputs, toolBlocks []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Uploaded file: %s\nUser request: %s\n\n", fileName, query)
	b.WriteString(stage.Description)
	b.WriteString("\n\nExpected output: ")
	b.WriteString(stage.ExpectedOutput)
	if len(priorOutputs) > 0 {
		b.WriteString("\n\n--- Context from previous steps ---\n")
		b.WriteString(strings.Join(priorOutputs, "\n\n"))
	}
	for _, block := range toolBlocks {
		b.WriteString("\n\n--- ")
		b.WriteString(block)
	}
	return b.String()
}

// triageRejected reads the triage verdict. The triage prompt pins the
// rejection phrasing, so a substring check is sufficient.
func triageRejected(output string) bool {
	lowered := strings.ToLower(output)
	return strings.Contains(lowered, "not a financial report") ||
		strings.Contains(lowered, "is not a financial document")
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

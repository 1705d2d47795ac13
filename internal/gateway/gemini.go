package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/xeipuuv/gojsonschema"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jonathan/pr-reviewer/internal/review"
)

const defaultChunkSize = 30000

const analysisPrompt = `You are a code analysis expert reviewing a diff. Identify:
1. Specific code quality issues
2. Potential bugs or edge cases
3. Security considerations
4. Performance implications

Respond with ONLY a JSON array of findings. Each finding has these fields:
severity ("low", "medium" or "high"), category, title, message,
suggestion (optional, a specific actionable improvement),
filename (the changed file the finding applies to, if any),
line (the line number in the new version of that file, if known).

Changed files:
%s

Diff:
%s`

// findingsSchema validates the shape of the model's JSON response before any
// finding enters the pipeline.
const findingsSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["severity", "title", "message"],
		"properties": {
			"severity": {"type": "string", "enum": ["low", "medium", "high"]},
			"category": {"type": "string"},
			"title": {"type": "string"},
			"message": {"type": "string"},
			"suggestion": {"type": "string"},
			"filename": {"type": "string"},
			"line": {"type": "integer", "minimum": 0}
		}
	}
}`

// Gemini is an Analysis gateway backed by the Gemini API.
type Gemini struct {
	client    *genai.Client
	model     string
	chunkSize int
	schema    *gojsonschema.Schema
}

// NewGemini creates an analysis client for the given model.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(findingsSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile findings schema: %w", err)
	}

	return &Gemini{
		client:    client,
		model:     model,
		chunkSize: defaultChunkSize,
		schema:    schema,
	}, nil
}

// Close releases resources held by the client.
func (g *Gemini) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Analyze submits the diff to the model, chunking large diffs at file
// boundaries, and returns the deduplicated findings. Chunks whose responses
// fail schema validation are skipped; the call fails only when every chunk
// was unusable.
func (g *Gemini) Analyze(ctx context.Context, diff string, files []string) ([]review.Finding, error) {
	chunks := splitDiff(diff, g.chunkSize)

	var all []review.Finding
	var parsed int
	for i, chunk := range chunks {
		content := chunk
		if len(chunks) > 1 {
			content = fmt.Sprintf("CHUNK %d OF %d:\n\n%s", i+1, len(chunks), chunk)
		}

		text, err := g.generate(ctx, fmt.Sprintf(analysisPrompt, strings.Join(files, "\n"), content))
		if err != nil {
			return nil, err
		}

		findings, err := parseFindings(text, g.schema)
		if err != nil {
			log.Printf("[analysis] skipping chunk %d/%d: %v", i+1, len(chunks), err)
			continue
		}
		parsed++
		all = append(all, findings...)
	}

	if parsed == 0 {
		return nil, Permanent(ReasonAnalysis, "analysis model returned no parseable findings", nil)
	}
	return dedupeFindings(all), nil
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0.2)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyGeminiError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", Permanent(ReasonAnalysis, "no content in model response", nil)
	}
	var parts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", Permanent(ReasonAnalysis, "no text parts in model response", nil)
	}
	return strings.Join(parts, ""), nil
}

func classifyGeminiError(err error) *Error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return Transient(ReasonRateLimited, "analysis model rate limited", err)
		case apiErr.Code >= 500:
			return Transient(ReasonUnavailable, "analysis model unavailable", err)
		default:
			return Permanent(ReasonAnalysis, "analysis model rejected the request", err)
		}
	}
	// Network-level failures without an API status are worth retrying.
	return Transient(ReasonNetwork, "analysis request failed", err)
}

// parseFindings validates and decodes one model response.
func parseFindings(text string, schema *gojsonschema.Schema) ([]review.Finding, error) {
	cleaned := cleanJSONBlock(text)

	result, err := schema.Validate(gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if !result.Valid() {
		var reasons []string
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return nil, fmt.Errorf("response failed schema validation: %s", strings.Join(reasons, "; "))
	}

	var findings []review.Finding
	if err := json.Unmarshal([]byte(cleaned), &findings); err != nil {
		return nil, fmt.Errorf("decoding findings: %w", err)
	}
	return findings, nil
}

// dedupeFindings removes duplicates across chunks, keyed by file and title.
// Order of first occurrence is preserved.
func dedupeFindings(findings []review.Finding) []review.Finding {
	seen := make(map[string]bool, len(findings))
	out := make([]review.Finding, 0, len(findings))
	for _, f := range findings {
		key := f.Filename + "\x00" + f.Title
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

// cleanJSONBlock removes markdown code block wrappers from JSON responses.
// Models often wrap JSON in ```json ... ``` blocks even when instructed not to.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

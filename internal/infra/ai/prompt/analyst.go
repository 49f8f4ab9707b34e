package prompt

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/bryanwahyu/codesight/internal/domain/ai"
)

// GetSystemPrompt provides strict directions and schema for the analysis JSON output.
func GetSystemPrompt() string {
	return `You are an expert software engineer specializing in code analysis. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- explanation describes what the code does, pitched at the requested explanation level.
- timeComplexity and spaceComplexity use Big-O notation followed by a short justification.
- improvementSuggestions is optional; omit it or use an empty string when there is nothing worth changing.

Schema (example with empty values):
{
  "explanation": "<string>",
  "timeComplexity": "<string>",
  "spaceComplexity": "<string>",
  "improvementSuggestions": "<string>"
}`
}

var userTmpl = template.Must(template.New("analysis").Parse(`Analyze the following code snippet and respond with the JSON per schema.

Code Title: {{.Title}}
Code Language: {{.Language}}
Explanation Level: {{.ExplanationLevel}}
{{- if eq .ExplanationLevel "Basic"}}
Keep the explanation short and avoid jargon.
{{- else if eq .ExplanationLevel "Deep"}}
Walk through the control flow, edge cases and the reasoning behind each complexity bound.
{{- end}}
Code Snippet:
` + "```{{.Language}}\n{{.Code}}\n```"))

// GetUserPrompt fills the analysis template. A missing level means Intermediate.
func GetUserPrompt(req ai.AnalysisRequest) (string, error) {
	if req.ExplanationLevel == "" {
		req.ExplanationLevel = ai.LevelIntermediate
	}
	var buf bytes.Buffer
	if err := userTmpl.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("render analysis prompt: %w", err)
	}
	return buf.String(), nil
}

// Suggestion is the structure the analysis system prompt asks for.
type Suggestion struct {
	Explanation            string `json:"explanation"`
	TimeComplexity         string `json:"timeComplexity"`
	SpaceComplexity        string `json:"spaceComplexity"`
	ImprovementSuggestions string `json:"improvementSuggestions"`
}

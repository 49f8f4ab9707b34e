package prompt

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/bryanwahyu/codesight/internal/domain/ai"
)

// GetLanguageSystemPrompt pins the schema for the language check.
func GetLanguageSystemPrompt() string {
	return `You identify programming languages. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below.

Requirements:
- isValid is true when the snippet is plausibly written in the expected language.
- detectedLanguage names the language you believe the snippet is written in; leave it empty if unsure.
- reasoning is one or two sentences.

Schema (example with empty values):
{
  "isValid": false,
  "detectedLanguage": "<string>",
  "reasoning": "<string>"
}`
}

var languageTmpl = template.Must(template.New("language").Parse(`Expected language: {{.ExpectedLanguage}}
Code Snippet:
` + "```\n{{.Code}}\n```"))

// GetLanguagePrompt fills the language check template.
func GetLanguagePrompt(req ai.LanguageCheckRequest) (string, error) {
	var buf bytes.Buffer
	if err := languageTmpl.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("render language prompt: %w", err)
	}
	return buf.String(), nil
}

// LanguageVerdict is the structure the language system prompt asks for.
// IsValid is a pointer so a missing field can be told apart from false.
type LanguageVerdict struct {
	IsValid          *bool  `json:"isValid"`
	DetectedLanguage string `json:"detectedLanguage"`
	Reasoning        string `json:"reasoning"`
}

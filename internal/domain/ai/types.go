package ai

// ExplanationLevel controls how deep the explanation goes
type ExplanationLevel string

const (
	LevelBasic        ExplanationLevel = "Basic"
	LevelIntermediate ExplanationLevel = "Intermediate"
	LevelDeep         ExplanationLevel = "Deep"
)

var ExplanationLevels = []ExplanationLevel{LevelBasic, LevelIntermediate, LevelDeep}

// Code length bounds enforced before any model call.
const (
	MinCodeLength  = 10
	MaxCodeLength  = 5000
	MaxTitleLength = 100
)

// AnalysisRequest is what gets templated into the analysis prompt.
// Callers validate code length and language beforehand.
type AnalysisRequest struct {
	Title            string           `json:"title"`
	Language         string           `json:"language"`
	Code             string           `json:"code"`
	ExplanationLevel ExplanationLevel `json:"explanation_level,omitempty"`
}

// AnalysisResult is the model's answer. Contents are free text and not
// parsed further.
type AnalysisResult struct {
	Explanation            string `json:"explanation"`
	TimeComplexity         string `json:"timeComplexity"`
	SpaceComplexity        string `json:"spaceComplexity"`
	ImprovementSuggestions string `json:"improvementSuggestions,omitempty"`
}

// LanguageCheckRequest asks whether code plausibly is ExpectedLanguage.
type LanguageCheckRequest struct {
	ExpectedLanguage string `json:"expected_language"`
	Code             string `json:"code"`
}

// LanguageCheckResult is advisory only.
type LanguageCheckResult struct {
	IsValid          bool   `json:"isValid"`
	DetectedLanguage string `json:"detectedLanguage,omitempty"`
	Reasoning        string `json:"reasoning"`
}

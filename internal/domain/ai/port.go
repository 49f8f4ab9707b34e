package ai

import "context"

// Client is the generative-model boundary. Each call is one request/response,
// never retried.
type Client interface {
	Analyze(ctx context.Context, req AnalysisRequest) (AnalysisResult, error)
	CheckLanguage(ctx context.Context, req LanguageCheckRequest) (LanguageCheckResult, error)
}

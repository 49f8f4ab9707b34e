package ai

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bryanwahyu/codesight/internal/application"
	"github.com/bryanwahyu/codesight/internal/domain/ai"
	"github.com/bryanwahyu/codesight/internal/domain/auth"
	"github.com/bryanwahyu/codesight/internal/domain/history"
)

// Saver persists a finished analysis for the session owner.
type Saver interface {
	Insert(ctx context.Context, n history.NewItem) (*history.Item, error)
}

// Service runs the submit use case: validate -> check language -> analyze -> save.
// Service is safe for concurrent use; per-view state lives in Flow.
type Service struct {
	client   ai.Client
	saver    Saver
	clock    application.Clock
	log      *slog.Logger
	validate *validator.Validate

	// OnOutcome, when set, is called once per finished submit cycle.
	OnOutcome func(outcome Outcome, d time.Duration)
}

func NewService(client ai.Client, saver Saver, clock application.Clock, log *slog.Logger) *Service {
	if clock == nil {
		clock = application.SystemClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{client: client, saver: saver, clock: clock, log: log, validate: application.NewValidator()}
}

// SubmitCommand is the analyzer form.
type SubmitCommand struct {
	Title            string              `json:"title" validate:"max=100"`
	Language         string              `json:"language" validate:"required"`
	Code             string              `json:"code" validate:"min=10,max=5000"`
	ExplanationLevel ai.ExplanationLevel `json:"explanation_level" validate:"omitempty,oneof=Basic Intermediate Deep"`
}

// languageCheckForm is the standalone language check body.
type languageCheckForm struct {
	Language string `json:"language" validate:"required"`
	Code     string `json:"code" validate:"min=10,max=5000"`
}

// FailureError is a failed call to the model. Stage names the step.
type FailureError struct {
	Stage string
	Err   error
}

func (e *FailureError) Error() string { return e.Stage + " failed: " + e.Err.Error() }

func (e *FailureError) Unwrap() error { return e.Err }

// Outcome of one submit cycle
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeInvalidLanguage Outcome = "invalid_language"
	OutcomeInvalidInput    Outcome = "invalid_input"
	OutcomeFailed          Outcome = "failed"
)

// SubmitResult is returned for every cycle that got past validation.
// SaveError is set when the analysis succeeded but could not be stored;
// Analysis is still attached in that case.
type SubmitResult struct {
	Outcome       Outcome                 `json:"outcome"`
	Analysis      *ai.AnalysisResult      `json:"data,omitempty"`
	Item          *history.Item           `json:"item,omitempty"`
	LanguageCheck *ai.LanguageCheckResult `json:"language_check,omitempty"`
	Warning       string                  `json:"warning,omitempty"`
	SaveError     string                  `json:"error,omitempty"`
}

// Submit runs one cycle on a throwaway flow.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (SubmitResult, error) {
	return s.NewFlow(nil).Submit(ctx, cmd)
}

// CheckLanguage exposes the advisory language check on its own.
func (s *Service) CheckLanguage(ctx context.Context, req ai.LanguageCheckRequest) (ai.LanguageCheckResult, error) {
	if _, err := auth.RequireOwner(ctx); err != nil {
		return ai.LanguageCheckResult{}, err
	}
	req.ExpectedLanguage = strings.TrimSpace(req.ExpectedLanguage)
	form := languageCheckForm{Language: req.ExpectedLanguage, Code: req.Code}
	if err := application.ValidateStruct(s.validate, form); err != nil {
		return ai.LanguageCheckResult{}, err
	}
	res, err := s.client.CheckLanguage(ctx, req)
	if err != nil {
		return ai.LanguageCheckResult{}, &FailureError{Stage: "language validation", Err: err}
	}
	return res, nil
}

// Normalize trims the form and fills the default title.
func (c SubmitCommand) Normalize() SubmitCommand {
	c.Title = strings.TrimSpace(c.Title)
	c.Language = strings.TrimSpace(c.Language)
	if c.Title == "" && c.Language != "" {
		c.Title = application.DefaultTitle(c.Language)
	}
	if c.ExplanationLevel == "" {
		c.ExplanationLevel = ai.LevelIntermediate
	}
	return c
}

// Validate checks the form without any network call.
func (s *Service) Validate(cmd SubmitCommand) error {
	return application.ValidateStruct(s.validate, cmd)
}

func (s *Service) finish(outcome Outcome, start time.Time) {
	if s.OnOutcome != nil {
		s.OnOutcome(outcome, s.clock.Now().Sub(start))
	}
}

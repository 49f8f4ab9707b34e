package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/bryanwahyu/codesight/internal/domain/ai"
	"github.com/bryanwahyu/codesight/internal/domain/auth"
	"github.com/bryanwahyu/codesight/internal/domain/history"
)

// State of the analyzer form
type State string

const (
	StateIdle               State = "idle"
	StateValidatingLanguage State = "validating_language"
	StateAnalyzing          State = "analyzing"
)

// Flow is the form state machine of one mounted view:
//
//	Idle -> ValidatingLanguage -> Idle (invalid language)
//	                           -> Analyzing -> Idle (error | result)
//
// Only one cycle runs at a time. Nothing but the form values survives a
// failed cycle.
type Flow struct {
	svc      *Service
	observer func(State)

	mu    sync.Mutex
	state State
}

// NewFlow returns an idle flow. observer, if set, sees every transition.
func (s *Service) NewFlow(observer func(State)) *Flow {
	return &Flow{svc: s, observer: observer, state: StateIdle}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) set(st State) {
	f.mu.Lock()
	f.state = st
	f.mu.Unlock()
	if f.observer != nil {
		f.observer(st)
	}
}

func (f *Flow) begin() bool {
	f.mu.Lock()
	if f.state != StateIdle {
		f.mu.Unlock()
		return false
	}
	f.state = StateValidatingLanguage
	f.mu.Unlock()
	if f.observer != nil {
		f.observer(StateValidatingLanguage)
	}
	return true
}

// Submit runs one full cycle. A *ai.ValidationError means nothing left the
// process. An AI failure is returned as error. A save failure after a
// successful analysis is reported in SubmitResult.SaveError with the
// analysis attached.
func (f *Flow) Submit(ctx context.Context, cmd SubmitCommand) (SubmitResult, error) {
	s := f.svc
	start := s.clock.Now()

	if _, err := auth.RequireOwner(ctx); err != nil {
		return SubmitResult{}, err
	}
	cmd = cmd.Normalize()
	if err := s.Validate(cmd); err != nil {
		s.finish(OutcomeInvalidInput, start)
		return SubmitResult{Outcome: OutcomeInvalidInput}, err
	}
	if !f.begin() {
		return SubmitResult{}, ai.ErrBusy
	}
	defer f.set(StateIdle)

	check, err := s.client.CheckLanguage(ctx, ai.LanguageCheckRequest{ExpectedLanguage: cmd.Language, Code: cmd.Code})
	if err != nil {
		s.log.Warn("language check failed", "language", cmd.Language, "error", err)
		s.finish(OutcomeFailed, start)
		return SubmitResult{Outcome: OutcomeFailed}, &FailureError{Stage: "language validation", Err: err}
	}
	if !check.IsValid {
		s.finish(OutcomeInvalidLanguage, start)
		return SubmitResult{
			Outcome:       OutcomeInvalidLanguage,
			LanguageCheck: &check,
			Warning:       languageWarning(cmd.Language, check),
		}, nil
	}

	f.set(StateAnalyzing)
	res, err := s.client.Analyze(ctx, ai.AnalysisRequest{
		Title:            cmd.Title,
		Language:         cmd.Language,
		Code:             cmd.Code,
		ExplanationLevel: cmd.ExplanationLevel,
	})
	if err != nil {
		s.log.Warn("ai analysis failed", "language", cmd.Language, "error", err)
		s.finish(OutcomeFailed, start)
		return SubmitResult{Outcome: OutcomeFailed}, &FailureError{Stage: "AI analysis", Err: err}
	}

	out := SubmitResult{Outcome: OutcomeSuccess, Analysis: &res, LanguageCheck: &check}
	item, err := s.saver.Insert(ctx, history.NewItem{
		Title:                  cmd.Title,
		Language:               cmd.Language,
		Code:                   cmd.Code,
		TimeComplexity:         res.TimeComplexity,
		SpaceComplexity:        res.SpaceComplexity,
		Explanation:            res.Explanation,
		ImprovementSuggestions: res.ImprovementSuggestions,
	})
	if err != nil {
		s.log.Error("save analysis failed", "error", err)
		out.SaveError = "Failed to save analysis to history. " + err.Error()
	} else {
		out.Item = item
	}
	s.finish(OutcomeSuccess, start)
	return out, nil
}

func languageWarning(expected string, check ai.LanguageCheckResult) string {
	msg := fmt.Sprintf("The code does not look like %s.", history.LanguageLabel(expected))
	if check.DetectedLanguage != "" {
		msg += fmt.Sprintf(" Detected: %s.", check.DetectedLanguage)
	}
	if check.Reasoning != "" {
		msg += " " + check.Reasoning
	}
	return msg
}

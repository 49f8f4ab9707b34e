package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/codesight/internal/application"
	"github.com/bryanwahyu/codesight/internal/domain/ai"
	"github.com/bryanwahyu/codesight/internal/domain/auth"
	"github.com/bryanwahyu/codesight/internal/domain/history"
)

type stubClient struct {
	mu          sync.Mutex
	checkCalls  int
	analyzeCall int
	check       ai.LanguageCheckResult
	checkErr    error
	result      ai.AnalysisResult
	analyzeErr  error
	lastReq     ai.AnalysisRequest
	// block, when set, holds Analyze until closed.
	block chan struct{}
}

func (c *stubClient) CheckLanguage(_ context.Context, _ ai.LanguageCheckRequest) (ai.LanguageCheckResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkCalls++
	return c.check, c.checkErr
}

func (c *stubClient) Analyze(_ context.Context, req ai.AnalysisRequest) (ai.AnalysisResult, error) {
	c.mu.Lock()
	c.analyzeCall++
	c.lastReq = req
	block := c.block
	c.mu.Unlock()
	if block != nil {
		<-block
	}
	return c.result, c.analyzeErr
}

func (c *stubClient) calls() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkCalls, c.analyzeCall
}

type stubSaver struct {
	mu    sync.Mutex
	saved []history.NewItem
	err   error
}

func (s *stubSaver) Insert(ctx context.Context, n history.NewItem) (*history.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	owner, _ := auth.RequireOwner(ctx)
	s.saved = append(s.saved, n)
	return &history.Item{ID: "id-1", OwnerID: owner, Title: n.Title, Language: n.Language}, nil
}

func validClient() *stubClient {
	return &stubClient{
		check:  ai.LanguageCheckResult{IsValid: true, DetectedLanguage: "Python", Reasoning: "def keyword"},
		result: ai.AnalysisResult{Explanation: "Adds numbers.", TimeComplexity: "O(1)", SpaceComplexity: "O(1)"},
	}
}

func newTestService(c ai.Client, s Saver) *Service {
	return NewService(c, s, application.FixedClock{T: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}, nil)
}

func userCtx() context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{UserID: "u1"})
}

func TestSubmit_Success(t *testing.T) {
	client := validClient()
	saver := &stubSaver{}
	svc := newTestService(client, saver)

	var outcomes []Outcome
	svc.OnOutcome = func(o Outcome, _ time.Duration) { outcomes = append(outcomes, o) }

	res, err := svc.Submit(userCtx(), SubmitCommand{Language: "python", Code: "def add(a, b): return a + b"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	require.NotNil(t, res.Analysis)
	assert.Equal(t, "O(1)", res.Analysis.TimeComplexity)
	require.NotNil(t, res.Item)
	assert.Equal(t, "u1", res.Item.OwnerID)
	assert.Empty(t, res.SaveError)

	require.Len(t, saver.saved, 1)
	assert.Equal(t, "Analysis for python", saver.saved[0].Title)
	assert.Equal(t, "Adds numbers.", saver.saved[0].Explanation)
	assert.Equal(t, ai.LevelIntermediate, client.lastReq.ExplanationLevel)
	assert.Equal(t, []Outcome{OutcomeSuccess}, outcomes)
}

func TestSubmit_ShortCodeMakesNoCalls(t *testing.T) {
	client := validClient()
	saver := &stubSaver{}
	svc := newTestService(client, saver)

	res, err := svc.Submit(userCtx(), SubmitCommand{Language: "go", Code: "x := 1"})
	var verr *ai.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Code must be at least 10 characters.", verr.Fields["code"])
	assert.Equal(t, OutcomeInvalidInput, res.Outcome)

	checks, analyses := client.calls()
	assert.Zero(t, checks)
	assert.Zero(t, analyses)
	assert.Empty(t, saver.saved)
}

func TestSubmit_FieldValidation(t *testing.T) {
	svc := newTestService(validClient(), &stubSaver{})

	cases := []struct {
		name  string
		cmd   SubmitCommand
		field string
	}{
		{"missing language", SubmitCommand{Code: "print('hello')"}, "language"},
		{"code too long", SubmitCommand{Language: "go", Code: strings.Repeat("a", ai.MaxCodeLength+1)}, "code"},
		{"title too long", SubmitCommand{Title: strings.Repeat("t", 101), Language: "go", Code: "fmt.Println(1)"}, "title"},
		{"unknown level", SubmitCommand{Language: "go", Code: "fmt.Println(1)", ExplanationLevel: "Expert"}, "explanation_level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(userCtx(), tc.cmd)
			var verr *ai.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tc.field)
		})
	}
}

func TestSubmit_Unauthenticated(t *testing.T) {
	client := validClient()
	svc := newTestService(client, &stubSaver{})

	_, err := svc.Submit(context.Background(), SubmitCommand{Language: "go", Code: "fmt.Println(1)"})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	checks, _ := client.calls()
	assert.Zero(t, checks)
}

func TestSubmit_InvalidLanguage(t *testing.T) {
	client := validClient()
	client.check = ai.LanguageCheckResult{IsValid: false, DetectedLanguage: "JavaScript", Reasoning: "uses const and =>."}
	saver := &stubSaver{}
	svc := newTestService(client, saver)

	res, err := svc.Submit(userCtx(), SubmitCommand{Language: "python", Code: "const f = () => 42;"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidLanguage, res.Outcome)
	assert.Nil(t, res.Analysis)
	assert.Contains(t, res.Warning, "Python")
	assert.Contains(t, res.Warning, "JavaScript")

	_, analyses := client.calls()
	assert.Zero(t, analyses)
	assert.Empty(t, saver.saved)
}

func TestSubmit_AIFailure(t *testing.T) {
	client := validClient()
	client.analyzeErr = ai.ErrQuotaExceeded
	saver := &stubSaver{}
	svc := newTestService(client, saver)

	res, err := svc.Submit(userCtx(), SubmitCommand{Language: "go", Code: "fmt.Println(1)"})
	assert.ErrorIs(t, err, ai.ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "AI analysis failed")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Empty(t, saver.saved)
}

func TestSubmit_LanguageCheckFailure(t *testing.T) {
	client := validClient()
	client.checkErr = errors.New("connection reset")
	svc := newTestService(client, &stubSaver{})

	_, err := svc.Submit(userCtx(), SubmitCommand{Language: "go", Code: "fmt.Println(1)"})
	assert.ErrorContains(t, err, "language validation failed")
	_, analyses := client.calls()
	assert.Zero(t, analyses)
}

func TestSubmit_SaveFailureKeepsAnalysis(t *testing.T) {
	saver := &stubSaver{err: errors.New("disk full")}
	svc := newTestService(validClient(), saver)

	res, err := svc.Submit(userCtx(), SubmitCommand{Language: "go", Code: "fmt.Println(1)"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	require.NotNil(t, res.Analysis)
	assert.Nil(t, res.Item)
	assert.Contains(t, res.SaveError, "disk full")
}

func TestFlow_TransitionsAndBusy(t *testing.T) {
	client := validClient()
	client.block = make(chan struct{})
	svc := newTestService(client, &stubSaver{})

	var mu sync.Mutex
	var seen []State
	flow := svc.NewFlow(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	done := make(chan error, 1)
	go func() {
		_, err := flow.Submit(userCtx(), SubmitCommand{Language: "go", Code: "fmt.Println(1)"})
		done <- err
	}()

	require.Eventually(t, func() bool { return flow.State() == StateAnalyzing }, time.Second, time.Millisecond)

	_, err := flow.Submit(userCtx(), SubmitCommand{Language: "go", Code: "fmt.Println(2)"})
	assert.ErrorIs(t, err, ai.ErrBusy)

	close(client.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, flow.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateValidatingLanguage, StateAnalyzing, StateIdle}, seen)
}

func TestFlow_ReturnsToIdleAfterFailure(t *testing.T) {
	client := validClient()
	client.analyzeErr = errors.New("boom")
	flow := newTestService(client, &stubSaver{}).NewFlow(nil)

	_, err := flow.Submit(userCtx(), SubmitCommand{Language: "go", Code: "fmt.Println(1)"})
	require.Error(t, err)
	assert.Equal(t, StateIdle, flow.State())

	client.analyzeErr = nil
	res, err := flow.Submit(userCtx(), SubmitCommand{Language: "go", Code: "fmt.Println(1)"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestCheckLanguage(t *testing.T) {
	client := validClient()
	svc := newTestService(client, &stubSaver{})

	_, err := svc.CheckLanguage(context.Background(), ai.LanguageCheckRequest{ExpectedLanguage: "python", Code: "print('hello')"})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = svc.CheckLanguage(userCtx(), ai.LanguageCheckRequest{ExpectedLanguage: " ", Code: "short"})
	var verr *ai.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
	assert.Equal(t, "Please select a language.", verr.Fields["language"])

	res, err := svc.CheckLanguage(userCtx(), ai.LanguageCheckRequest{ExpectedLanguage: "python", Code: "print('hello')"})
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	checks, _ := client.calls()
	assert.Equal(t, 1, checks)
}

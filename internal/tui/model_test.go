package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"quiz-attempt-service/internal/domain"
	transport "quiz-attempt-service/internal/transport/http"
)

type fakeAPI struct {
	mu        sync.Mutex
	deadline  time.Time
	submitted []bool
	submitErr error
}

func (f *fakeAPI) Quiz(context.Context, string) (domain.Quiz, error) {
	return domain.Quiz{
		Code:            "ABC123",
		Title:           "Arithmetic",
		DurationMinutes: 1,
		Questions: []domain.Question{
			{Text: "2 + 2?", Options: []string{"3", "4"}},
			{Text: "3 + 3?", Options: []string{"6", "7"}},
		},
	}, nil
}

func (f *fakeAPI) Start(context.Context, string) (transport.StartResponse, time.Time, error) {
	return transport.StartResponse{Deadline: f.deadline, ServerTime: f.deadline.Add(-time.Minute)}, time.Now(), nil
}

func (f *fakeAPI) Submit(_ context.Context, _ string, answers []*string, auto bool) (transport.SubmissionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, auto)
	if f.submitErr != nil {
		return transport.SubmissionResponse{}, f.submitErr
	}
	score := 0
	if len(answers) > 0 && answers[0] != nil && *answers[0] == "4" {
		score = 1
	}
	return transport.SubmissionResponse{Score: score, Total: 2, Auto: auto}, nil
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// drive runs the model's Init command and feeds its result back in.
func drive(t *testing.T, api *fakeAPI, clock *manualClock) Model {
	t.Helper()
	m := NewModel(context.Background(), api, "abc123", Options{Now: clock.Now, TickInterval: time.Millisecond})
	next, _ := m.Update(m.Init()())
	return next.(Model)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelAutoSubmitsOnceAtDeadline(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := &manualClock{now: start}
	api := &fakeAPI{deadline: start.Add(time.Minute)}

	m := drive(t, api, clock)
	if m.phase != phaseAnswering || m.remaining != time.Minute {
		t.Fatalf("expected answering with 1m left, got phase=%d remaining=%s", m.phase, m.remaining)
	}

	next, _ := m.Update(key("2"))
	m = next.(Model)
	if m.answers[0] == nil || *m.answers[0] != "4" {
		t.Fatalf("expected option 4 selected, got %v", m.answers[0])
	}

	clock.Advance(61 * time.Second)
	next, cmd := m.Update(tickMsg(clock.Now()))
	m = next.(Model)
	if m.phase != phaseSubmitting || cmd == nil {
		t.Fatalf("expected auto submit, got phase=%d", m.phase)
	}

	// Further ticks while submitting never fire a second submit.
	next, again := m.Update(tickMsg(clock.Now()))
	if again != nil {
		t.Fatalf("unexpected second command")
	}
	m = next.(Model)

	next, _ = m.Update(cmd())
	m = next.(Model)
	if m.phase != phaseDone || m.result == nil || !m.result.Auto || m.result.Score != 1 {
		t.Fatalf("unexpected result %+v", m.result)
	}
	if len(api.submitted) != 1 || !api.submitted[0] {
		t.Fatalf("expected exactly one auto submit, got %v", api.submitted)
	}
	if !strings.Contains(m.View(), "Score: 1/2") {
		t.Fatalf("result view missing score:\n%s", m.View())
	}
}

func TestModelManualSubmitDisarmsTimer(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := &manualClock{now: start}
	api := &fakeAPI{deadline: start.Add(time.Minute)}

	m := drive(t, api, clock)
	next, cmd := m.Update(key("ctrl+s"))
	m = next.(Model)
	if cmd == nil || m.phase != phaseSubmitting {
		t.Fatalf("expected manual submit command")
	}
	next, _ = m.Update(cmd())
	m = next.(Model)

	clock.Advance(2 * time.Minute)
	if _, expired := m.countdown.Step(clock.Now()); expired {
		t.Fatalf("timer fired after manual submit")
	}
	if len(api.submitted) != 1 || api.submitted[0] {
		t.Fatalf("expected one manual submit, got %v", api.submitted)
	}
}

func TestModelShowsAlreadySubmitted(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := &manualClock{now: start}
	api := &fakeAPI{deadline: start.Add(time.Minute), submitErr: domain.ErrAlreadySubmitted}

	m := drive(t, api, clock)
	next, cmd := m.Update(key("ctrl+s"))
	next, _ = next.(Model).Update(cmd())
	m = next.(Model)
	if m.phase != phaseDone || !m.already {
		t.Fatalf("expected already-submitted state, got phase=%d", m.phase)
	}
	if !strings.Contains(m.View(), "already submitted") {
		t.Fatalf("view missing notice:\n%s", m.View())
	}
}

func TestModelNavigatesQuestions(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := &manualClock{now: start}
	m := drive(t, &fakeAPI{deadline: start.Add(time.Minute)}, clock)

	next, _ := m.Update(key("right"))
	m = next.(Model)
	next, _ = m.Update(key("1"))
	m = next.(Model)
	if m.current != 1 || m.answers[1] == nil || *m.answers[1] != "6" || m.answers[0] != nil {
		t.Fatalf("unexpected answers %v current=%d", m.answers, m.current)
	}
}

func TestModelResultsTableListsEveryQuestion(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := &manualClock{now: start}
	m := drive(t, &fakeAPI{deadline: start.Add(time.Minute)}, clock)

	four := "4"
	next, _ := m.Update(submittedMsg{result: transport.SubmissionResponse{
		Score: 1,
		Total: 2,
		Detail: []domain.AnswerDetail{
			{QuestionText: "2 + 2?", SelectedOption: &four, CorrectAnswer: "4", Correct: true},
			{QuestionText: "3 + 3?", CorrectAnswer: "6"},
		},
	}})
	m = next.(Model)

	if rows := m.results.Rows(); len(rows) != 2 || rows[1][3] != "-" || rows[1][4] != "6" {
		t.Fatalf("unexpected rows %v", rows)
	}
	view := m.View()
	for _, want := range []string{"Score: 1/2", "2 + 2?", "3 + 3?", "Answer"} {
		if !strings.Contains(view, want) {
			t.Fatalf("result view missing %q:\n%s", want, view)
		}
	}
}

func TestModelHandlesQuizWithoutQuestions(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := &manualClock{now: start}
	m := NewModel(context.Background(), &fakeAPI{}, "EMPTY1", Options{Now: clock.Now})

	next, _ := m.Update(startedMsg{
		quiz:  domain.Quiz{Code: "EMPTY1", Title: "Empty"},
		start: transport.StartResponse{Deadline: start.Add(time.Minute), ServerTime: start},
	})
	m = next.(Model)
	if m.phase != phaseAnswering {
		t.Fatalf("expected answering phase, got %d", m.phase)
	}
	if !strings.Contains(m.View(), "no questions") {
		t.Fatalf("view missing empty notice:\n%s", m.View())
	}
	next, _ = m.Update(key("1"))
	if next.(Model).phase != phaseAnswering {
		t.Fatalf("key press changed phase")
	}
}

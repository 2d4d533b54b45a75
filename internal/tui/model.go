// Package tui is the terminal attempt client: it shows the questions under a
// countdown aligned to the server clock and submits exactly once.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/timer"
	transport "quiz-attempt-service/internal/transport/http"
)

// API is the subset of the HTTP client the model needs.
type API interface {
	Quiz(ctx context.Context, code string) (domain.Quiz, error)
	Start(ctx context.Context, code string) (transport.StartResponse, time.Time, error)
	Submit(ctx context.Context, code string, answers []*string, auto bool) (transport.SubmissionResponse, error)
}

type phase int

const (
	phaseLoading phase = iota
	phaseAnswering
	phaseSubmitting
	phaseDone
	phaseFailed
)

type Options struct {
	TickInterval time.Duration
	// Now overrides the server-aligned clock (tests).
	Now func() time.Time
}

type Model struct {
	ctx      context.Context
	api      API
	code     string
	interval time.Duration
	nowOpt   func() time.Time

	phase     phase
	quiz      domain.Quiz
	countdown *timer.Timer
	now       func() time.Time
	remaining time.Duration
	current   int
	cursor    int
	answers   []*string

	result  *transport.SubmissionResponse
	results table.Model
	already bool
	err     error
}

func NewModel(ctx context.Context, api API, code string, opts Options) Model {
	interval := opts.TickInterval
	if interval <= 0 {
		interval = timer.DefaultInterval
	}
	return Model{
		ctx:      ctx,
		api:      api,
		code:     domain.NormalizeCode(code),
		interval: interval,
		nowOpt:   opts.Now,
	}
}

type startedMsg struct {
	quiz    domain.Quiz
	start   transport.StartResponse
	localAt time.Time
}

type submittedMsg struct {
	result transport.SubmissionResponse
}

type errMsg struct{ err error }

type tickMsg time.Time

func (m Model) Init() tea.Cmd {
	return m.startCmd()
}

func (m Model) startCmd() tea.Cmd {
	return func() tea.Msg {
		quiz, err := m.api.Quiz(m.ctx, m.code)
		if err != nil {
			return errMsg{err}
		}
		start, localAt, err := m.api.Start(m.ctx, m.code)
		if err != nil {
			return errMsg{err}
		}
		return startedMsg{quiz: quiz, start: start, localAt: localAt}
	}
}

func (m Model) submitCmd(auto bool) tea.Cmd {
	answers := append([]*string(nil), m.answers...)
	return func() tea.Msg {
		result, err := m.api.Submit(m.ctx, m.code, answers, auto)
		if err != nil {
			return errMsg{err}
		}
		return submittedMsg{result}
	}
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case startedMsg:
		m.quiz = typed.quiz
		m.answers = make([]*string, len(typed.quiz.Questions))
		m.now = m.nowOpt
		if m.now == nil {
			m.now = timer.ServerClock(typed.start.ServerTime, typed.localAt)
		}
		m.countdown = timer.New(typed.start.Deadline, timer.WithClock(m.now))
		m.phase = phaseAnswering
		return m.step()
	case tickMsg:
		if m.phase != phaseAnswering {
			return m, nil
		}
		return m.step()
	case submittedMsg:
		m.result = &typed.result
		m.results = resultsTable(typed.result.Detail)
		m.phase = phaseDone
		return m, nil
	case errMsg:
		if errors.Is(typed.err, domain.ErrAlreadySubmitted) || errors.Is(typed.err, domain.ErrForbidden) {
			m.already = true
			m.phase = phaseDone
			return m, nil
		}
		m.err = typed.err
		m.phase = phaseFailed
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(typed)
	}
	return m, nil
}

// step recomputes the countdown from the deadline and fires the single auto-submit.
func (m Model) step() (tea.Model, tea.Cmd) {
	remaining, expired := m.countdown.Step(m.now())
	m.remaining = remaining
	if expired {
		m.phase = phaseSubmitting
		return m, m.submitCmd(true)
	}
	return m, tick(m.interval)
}

func (m Model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "q":
		if m.phase != phaseAnswering {
			return m, tea.Quit
		}
	}
	if m.phase != phaseAnswering || len(m.quiz.Questions) == 0 {
		return m, nil
	}

	question := m.quiz.Questions[m.current]
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(question.Options)-1 {
			m.cursor++
		}
	case "left", "h":
		m = m.moveTo(m.current - 1)
	case "right", "l", "tab":
		m = m.moveTo(m.current + 1)
	case " ", "enter":
		m = m.choose(m.cursor)
		if key.String() == "enter" && m.current < len(m.quiz.Questions)-1 {
			m = m.moveTo(m.current + 1)
		}
	case "ctrl+s":
		if !m.countdown.Disarm() {
			return m, nil
		}
		m.phase = phaseSubmitting
		return m, m.submitCmd(false)
	default:
		if r := key.Runes; len(r) == 1 && r[0] >= '1' && r[0] <= '9' {
			idx := int(r[0] - '1')
			if idx < len(question.Options) {
				m.cursor = idx
				m = m.choose(idx)
			}
		}
	}
	return m, nil
}

func (m Model) moveTo(index int) Model {
	if index < 0 || index >= len(m.quiz.Questions) {
		return m
	}
	m.current = index
	m.cursor = 0
	if selected := m.answers[index]; selected != nil {
		for i, option := range m.quiz.Questions[index].Options {
			if option == *selected {
				m.cursor = i
			}
		}
	}
	return m
}

func (m Model) choose(option int) Model {
	selected := m.quiz.Questions[m.current].Options[option]
	answers := append([]*string(nil), m.answers...)
	answers[m.current] = &selected
	m.answers = answers
	return m
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	timerStyle    = lipgloss.NewStyle().Bold(true)
	urgentStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cursorStyle   = lipgloss.NewStyle().Bold(true)
	helpStyle     = lipgloss.NewStyle().Faint(true)
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func (m Model) View() string {
	switch m.phase {
	case phaseLoading:
		return "Starting quiz " + m.code + "...\n"
	case phaseFailed:
		return urgentStyle.Render("Error: "+m.err.Error()) + "\n" + helpStyle.Render("press q to quit") + "\n"
	case phaseDone:
		return m.resultView()
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render(m.quiz.Title),
		"  ",
		m.timerView(),
	)
	if m.phase == phaseSubmitting {
		return lipgloss.JoinVertical(lipgloss.Left, header, "Submitting...") + "\n"
	}

	if len(m.quiz.Questions) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, "This quiz has no questions.", helpStyle.Render("esc quit")) + "\n"
	}

	question := m.quiz.Questions[m.current]
	var b strings.Builder
	fmt.Fprintf(&b, "Question %d/%d\n%s\n\n", m.current+1, len(m.quiz.Questions), question.Text)
	for i, option := range question.Options {
		pointer := "  "
		if i == m.cursor {
			pointer = cursorStyle.Render("> ")
		}
		line := fmt.Sprintf("%d. %s", i+1, option)
		if selected := m.answers[m.current]; selected != nil && *selected == option {
			line = selectedStyle.Render(line + " *")
		}
		b.WriteString(pointer + line + "\n")
	}

	help := helpStyle.Render("↑/↓ move  1-9/space select  ←/→ question  ctrl+s submit  esc quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, boxStyle.Render(strings.TrimRight(b.String(), "\n")), help) + "\n"
}

func (m Model) timerView() string {
	left := m.remaining.Round(time.Second)
	text := fmt.Sprintf("%02d:%02d", int(left.Minutes()), int(left.Seconds())%60)
	if left <= 30*time.Second {
		return urgentStyle.Render(text)
	}
	return timerStyle.Render(text)
}

func (m Model) resultView() string {
	if m.already {
		return titleStyle.Render("This attempt was already submitted.") + "\n" + helpStyle.Render("press q to quit") + "\n"
	}
	r := m.result
	how := "submitted"
	if r.Auto {
		how = "auto-submitted at the deadline"
	}
	summary := fmt.Sprintf("Score: %d/%d (%s)", r.Score, r.Total, how)
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(m.quiz.Title),
		summary,
		"",
		m.results.View(),
		helpStyle.Render("press q to quit"),
	) + "\n"
}

// Run starts the program on the terminal and blocks until it exits.
func Run(ctx context.Context, api API, code string) error {
	_, err := tea.NewProgram(NewModel(ctx, api, code, Options{}), tea.WithContext(ctx)).Run()
	return err
}

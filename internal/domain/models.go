package domain

import (
	"crypto/rand"
	"strings"
	"time"
)

// Question is a multiple-choice question. CorrectAnswer is one of Options.
type Question struct {
	Text          string   `json:"text" yaml:"text"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer string   `json:"correctAnswer,omitempty" yaml:"correct_answer"`
}

// HasOption reports whether option is one of the question's choices.
func (q Question) HasOption(option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Quiz is an organizer-authored set of questions published under a short code.
type Quiz struct {
	Code            string     `json:"code" yaml:"code"`
	Title           string     `json:"title" yaml:"title"`
	Questions       []Question `json:"questions" yaml:"questions"`
	DurationMinutes int        `json:"durationMinutes" yaml:"duration_minutes"`
}

// Duration is the answering window granted to each participant.
func (q Quiz) Duration() time.Duration {
	return time.Duration(q.DurationMinutes) * time.Minute
}

// PublicView returns a copy safe to hand to participants (no correct answers).
func (q Quiz) PublicView() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		out.Questions[i] = Question{
			Text:    question.Text,
			Options: append([]string(nil), question.Options...),
		}
	}
	return out
}

// SessionKey identifies one participant's attempt at one quiz.
type SessionKey struct {
	QuizCode      string `json:"quizCode"`
	ParticipantID string `json:"participantId"`
}

func (k SessionKey) String() string {
	return k.QuizCode + "/" + k.ParticipantID
}

// SessionStatus is the attempt state machine: started -> submitted, or
// started -> stalled when an expired attempt cannot be finalized.
type SessionStatus string

const (
	SessionStarted   SessionStatus = "started"
	SessionSubmitted SessionStatus = "submitted"
	SessionStalled   SessionStatus = "stalled"
)

// AttemptSession is the server-side record of an attempt. StartedAt and
// Deadline never change after creation.
type AttemptSession struct {
	Key         SessionKey    `json:"key"`
	StartedAt   time.Time     `json:"startedAt"`
	Deadline    time.Time     `json:"deadline"`
	Status      SessionStatus `json:"status"`
	SubmittedAt *time.Time    `json:"submittedAt,omitempty"`
}

// Remaining is max(0, deadline - now).
func (s AttemptSession) Remaining(now time.Time) time.Duration {
	left := s.Deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Answers maps a question index to the selected option. Missing indexes are unanswered.
type Answers map[int]string

// AnswersFromList converts the wire form (ordered, nil for unanswered) to Answers.
func AnswersFromList(list []*string) Answers {
	answers := make(Answers, len(list))
	for i, selected := range list {
		if selected != nil {
			answers[i] = *selected
		}
	}
	return answers
}

// AnswerDetail is the per-question outcome stored with a submission.
type AnswerDetail struct {
	QuestionText   string  `json:"questionText"`
	SelectedOption *string `json:"selectedOption"`
	CorrectAnswer  string  `json:"correctAnswer"`
	Correct        bool    `json:"correct"`
}

// Submission is the final scored record of an attempt. At most one exists per SessionKey.
type Submission struct {
	ID              string         `json:"id"`
	Key             SessionKey     `json:"key"`
	Score           int            `json:"score"`
	Total           int            `json:"total"`
	SelectedAnswers []AnswerDetail `json:"selectedAnswers"`
	SubmittedAt     time.Time      `json:"submittedAt"`
	Auto            bool           `json:"auto"`
}

const quizCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// QuizCodeLength is the length of generated quiz codes.
const QuizCodeLength = 6

// NormalizeCode canonicalizes a caller-supplied quiz code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GenerateQuizCode returns a random short public code.
func GenerateQuizCode() (string, error) {
	buf := make([]byte, QuizCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = quizCodeAlphabet[int(b)%len(quizCodeAlphabet)]
	}
	return string(buf), nil
}

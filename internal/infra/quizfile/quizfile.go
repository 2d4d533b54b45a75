// Package quizfile reads published quizzes from a YAML document, standing in
// for the authoring collaborator in development and seeding.
package quizfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"quiz-attempt-service/internal/domain"
)

type document struct {
	Quizzes []quizEntry `yaml:"quizzes" validate:"dive"`
}

type quizEntry struct {
	Code            string          `yaml:"code" validate:"omitempty,alphanum,max=16"`
	Title           string          `yaml:"title" validate:"required"`
	DurationMinutes int             `yaml:"duration_minutes" validate:"gt=0"`
	Questions       []questionEntry `yaml:"questions" validate:"required,min=1,dive"`
}

type questionEntry struct {
	Text          string   `yaml:"text" validate:"required"`
	Options       []string `yaml:"options" validate:"required,min=2,unique,dive,required"`
	CorrectAnswer string   `yaml:"correct_answer" validate:"required"`
}

// Load parses and validates path. Quizzes without a code get a generated one.
func Load(path string) ([]domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) ([]domain.Quiz, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse quizzes: %w", err)
	}
	if err := validator.New().Struct(doc); err != nil {
		return nil, describe(err)
	}

	seen := make(map[string]bool, len(doc.Quizzes))
	quizzes := make([]domain.Quiz, 0, len(doc.Quizzes))
	for i, entry := range doc.Quizzes {
		quiz, err := entry.toDomain()
		if err != nil {
			return nil, fmt.Errorf("quiz %d: %w", i, err)
		}
		if seen[quiz.Code] {
			return nil, fmt.Errorf("quiz %d: duplicate code %s", i, quiz.Code)
		}
		seen[quiz.Code] = true
		quizzes = append(quizzes, quiz)
	}
	return quizzes, nil
}

func (e quizEntry) toDomain() (domain.Quiz, error) {
	code := domain.NormalizeCode(e.Code)
	if code == "" {
		generated, err := domain.GenerateQuizCode()
		if err != nil {
			return domain.Quiz{}, err
		}
		code = generated
	}
	quiz := domain.Quiz{
		Code:            code,
		Title:           e.Title,
		DurationMinutes: e.DurationMinutes,
		Questions:       make([]domain.Question, len(e.Questions)),
	}
	for i, q := range e.Questions {
		question := domain.Question{Text: q.Text, Options: q.Options, CorrectAnswer: q.CorrectAnswer}
		if !question.HasOption(q.CorrectAnswer) {
			return domain.Quiz{}, domain.NewValidationError(fmt.Sprintf("questions[%d].correct_answer", i), "must be one of the options")
		}
		quiz.Questions[i] = question
	}
	return quiz, nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return domain.NewValidationError(verrs[0].Namespace(), "failed "+verrs[0].Tag())
	}
	return err
}

// Map indexes quizzes by code for the static loader.
func Map(quizzes []domain.Quiz) map[string]domain.Quiz {
	out := make(map[string]domain.Quiz, len(quizzes))
	for _, q := range quizzes {
		out[q.Code] = q
	}
	return out
}

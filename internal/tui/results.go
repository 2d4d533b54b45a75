package tui

import (
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"quiz-attempt-service/internal/domain"
)

const maxColumnWidth = 40

// resultsTable lists each question with the chosen and the correct option.
func resultsTable(detail []domain.AnswerDetail) table.Model {
	columns := []table.Column{
		{Title: "#", Width: 3},
		{Title: "", Width: 1},
		{Title: "Question", Width: len("Question")},
		{Title: "You", Width: len("You")},
		{Title: "Answer", Width: len("Answer")},
	}
	rows := make([]table.Row, 0, len(detail))
	for i, d := range detail {
		mark := "x"
		if d.Correct {
			mark = "✓"
		}
		chosen := "-"
		if d.SelectedOption != nil {
			chosen = *d.SelectedOption
		}
		row := table.Row{strconv.Itoa(i + 1), mark, d.QuestionText, chosen, d.CorrectAnswer}
		for c := 2; c < len(row); c++ {
			columns[c].Width = min(max(columns[c].Width, lipgloss.Width(row[c])), maxColumnWidth)
		}
		rows = append(rows, row)
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(max(len(rows), 1)),
	)
	t.SetStyles(resultsTableStyles())
	return t
}

func resultsTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(lipgloss.Color("252"))
	// Unfocused table: no row highlight.
	styles.Selected = lipgloss.NewStyle()
	return styles
}

package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
	"docrag/internal/pipeline"
)

type fakeClassifier struct {
	res     pipeline.Result
	err     error
	summary string
}

func (f *fakeClassifier) Run(_ context.Context, summary string, _ *domain.Decision) (pipeline.Result, error) {
	f.summary = summary
	return f.res, f.err
}

var invoiceResult = pipeline.Result{
	SummaryType: "INVOICE",
	DocCode:     "INV001",
	Matches: []domain.TripletResult{
		{
			Text:     "invoice issued_by organization",
			Decision: domain.Decision{DocType: "INVOICE", DocCode: "INV001"},
			Hits: []domain.Hit{
				{Text: "invoice issued_by organization", Score: 0.97, Metadata: domain.Metadata{"doc_type": "INVOICE", "doc_code": "INV001"}},
			},
		},
		{
			Text:     "invoice has_amount <AMOUNT>",
			Decision: domain.Decision{DocType: "INVOICE", DocCode: "INV002"},
		},
	},
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func typed(t *testing.T, m Model, s string) Model {
	t.Helper()
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
}

func TestView_LoadingUntilSized(t *testing.T) {
	m := New(&fakeClassifier{}, "tfidf")
	assert.Equal(t, "Loading...", m.View())

	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	assert.Contains(t, m.View(), "docrag classifier")
	assert.Contains(t, m.View(), "No classification yet.")
}

func TestEnter_ClassifiesSummary(t *testing.T) {
	fc := &fakeClassifier{res: invoiceResult}
	m := update(t, New(fc, "tfidf"), tea.WindowSizeMsg{Width: 100, Height: 40})

	m = typed(t, m, "The invoice was issued by Acme Corp.")

	assert.Equal(t, "The invoice was issued by Acme Corp.", fc.summary)
	view := m.View()
	assert.Contains(t, view, "Decision: INVOICE/INV001")
	assert.Contains(t, view, "Triplet 1/2")
	assert.Contains(t, view, "Classified 2 triplet(s)")
}

func TestArrows_CycleTriplets(t *testing.T) {
	m := update(t, New(&fakeClassifier{res: invoiceResult}, ""), tea.WindowSizeMsg{Width: 100, Height: 40})
	m = typed(t, m, "invoice")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Contains(t, m.View(), "Triplet 2/2")
	assert.Contains(t, m.View(), "No hits.")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Contains(t, m.View(), "Triplet 1/2")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Contains(t, m.View(), "Triplet 2/2")
}

func TestEnter_ShowsErrors(t *testing.T) {
	m := update(t, New(&fakeClassifier{err: errors.New("boom")}, ""), tea.WindowSizeMsg{Width: 100, Height: 40})
	m = typed(t, m, "anything")
	assert.Contains(t, m.View(), "Error: boom")

	degraded := pipeline.Result{Error: "embedding backend down"}
	m = update(t, New(&fakeClassifier{res: degraded}, ""), tea.WindowSizeMsg{Width: 100, Height: 40})
	m = typed(t, m, "anything")
	assert.Contains(t, m.View(), "Decision: none")
	assert.Contains(t, m.View(), "No triplets extracted.")
}

func TestEnter_IgnoresBlankInput(t *testing.T) {
	fc := &fakeClassifier{res: invoiceResult}
	m := update(t, New(fc, ""), tea.WindowSizeMsg{Width: 100, Height: 40})

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Empty(t, fc.summary)
	assert.Contains(t, m.View(), "No classification yet.")
}

func TestCtrlC_Quits(t *testing.T) {
	_, cmd := New(&fakeClassifier{}, "").Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docrag/internal/domain"
	"docrag/internal/pipeline"
)

// Classifier is the TUI-facing subset of the pipeline.
type Classifier interface {
	Run(ctx context.Context, summary string, truth *domain.Decision) (pipeline.Result, error)
}

// Model is the Bubble Tea model for the interactive classifier.
type Model struct {
	classifier Classifier
	input      textinput.Model
	viewport   viewport.Model
	result     *pipeline.Result
	info       string
	status     string
	cursor     int
	ready      bool
}

// New creates a new TUI model. info is shown under the title.
func New(classifier Classifier, info string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Paste a document summary and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{classifier: classifier, input: ti, viewport: vp, info: info, status: "Ready. Type a summary to classify."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // title + info, status, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			summary := strings.TrimSpace(m.input.Value())
			if summary != "" {
				res, err := m.classifier.Run(context.Background(), summary, nil)
				switch {
				case err != nil:
					m.status = "Error: " + err.Error()
					m.result = nil
				case res.Error != "":
					m.status = "Classification failed: " + res.Error
					m.result = &res
				default:
					m.status = fmt.Sprintf("Classified %d triplet(s)", len(res.Matches))
					m.result = &res
				}
				m.cursor = 0
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "down":
			if n := m.matchCount(); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "up":
			if n := m.matchCount(); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and the current triplet.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := lipgloss.NewStyle().Bold(true).Render("docrag classifier")
	info := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.info)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	body := resultBoxStyle.Render(m.viewport.View())
	return title + "\n" + info + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) matchCount() int {
	if m.result == nil {
		return 0
	}
	return len(m.result.Matches)
}

func (m Model) renderCurrent() string {
	if m.result == nil {
		return "No classification yet."
	}
	decision := m.result.Decision()
	var b strings.Builder
	b.WriteString(decisionStyle.Render("Decision: " + formatDecision(decision)))
	b.WriteString("\n\n")
	if len(m.result.Matches) == 0 {
		b.WriteString("No triplets extracted.")
		return b.String()
	}

	tr := m.result.Matches[m.cursor]
	fmt.Fprintf(&b, "Triplet %d/%d  %s\n", m.cursor+1, len(m.result.Matches), tr.Text)
	fmt.Fprintf(&b, "Vote: %s\n\n", formatDecision(tr.Decision))
	if len(tr.Hits) == 0 {
		b.WriteString("No hits.")
		return b.String()
	}
	for _, h := range tr.Hits {
		line := fmt.Sprintf("%.3f  %s  [%s]", h.Score, h.Text, formatLabel(h.Metadata.DocType(), h.Metadata.DocCode()))
		if !decision.Empty() && h.Metadata.DocType() == decision.DocType {
			line = highlightStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDecision(d domain.Decision) string {
	if d.Empty() {
		return "none"
	}
	return formatLabel(d.DocType, d.DocCode)
}

func formatLabel(docType, docCode string) string {
	if docCode == "" {
		return docType
	}
	return docType + "/" + docCode
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	decisionStyle  = lipgloss.NewStyle().Bold(true)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

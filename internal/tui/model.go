// Package tui is a terminal chat interface over the answering pipeline.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragpipe/internal/domain"
	"ragpipe/internal/service"
)

// AnswerPort is the TUI-facing subset of the pipeline.
type AnswerPort interface {
	RetrieveAndAnswer(ctx context.Context, query, ownerID string, opts service.AnswerOptions) (*domain.Answer, error)
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	pipeline AnswerPort
	ownerID  string
	input    textinput.Model
	viewport viewport.Model
	history  []domain.Message
	lines    []string
	summary  string
	status   string
	ready    bool
}

// New creates a new chat model. The summary line describes what was ingested
// at startup.
func New(pipeline AnswerPort, ownerID, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		pipeline: pipeline,
		ownerID:  ownerID,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Ready.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around transcript and query boxes
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2 // header + summary
		totalFooterLines := 1 // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-th)
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.String() == "enter" {
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				m = m.ask(q)
				m.input.SetValue("")
				m.viewport.SetContent(strings.Join(m.lines, "\n"))
				m.viewport.GotoBottom()
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(query string) Model {
	m.lines = append(m.lines, userStyle.Render("you: ")+query)
	ans, err := m.pipeline.RetrieveAndAnswer(context.Background(), query, m.ownerID, service.AnswerOptions{
		History: m.history,
	})
	if err != nil {
		m.status = "Error: " + err.Error()
		m.lines = append(m.lines, errorStyle.Render("error: "+err.Error()))
		return m
	}
	m.history = append(m.history,
		domain.Message{Role: domain.RoleUser, Content: query},
		domain.Message{Role: domain.RoleAssistant, Content: ans.Answer},
	)
	m.lines = append(m.lines, assistantStyle.Render("assistant: ")+ans.Answer)
	if note := verdictNote(ans.Verdict); note != "" {
		m.lines = append(m.lines, warnStyle.Render(note))
	}
	if len(ans.ContextUsed) > 0 {
		srcs := make([]string, 0, len(ans.ContextUsed))
		for _, r := range ans.ContextUsed {
			srcs = append(srcs, fmt.Sprintf("%s#%d (%.2f)", r.Chunk.SourceID, r.Chunk.Index, r.Score))
		}
		m.lines = append(m.lines, dimStyle.Render("sources: "+strings.Join(srcs, ", ")))
	}
	m.status = fmt.Sprintf("%s/%s in %dms", ans.Provider, ans.Model, ans.LatencyMs)
	return m
}

func verdictNote(v domain.ScreeningVerdict) string {
	switch {
	case !v.Safe:
		return "blocked: " + strings.Join(v.Issues, "; ")
	case v.Hallucination:
		return "warning: answer may not be grounded in the sources"
	case v.Unknown:
		return "note: " + strings.Join(v.Issues, "; ")
	default:
		return ""
	}
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("ragpipe chat")
	summary := dimStyle.Render(m.summary)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + status
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

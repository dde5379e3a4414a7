package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kbqa/internal/domain"
)

// Port is the TUI-facing subset of the RAG service.
type Port interface {
	QueryK(ctx context.Context, question string, k int) ([]domain.Result, error)
	Ask(ctx context.Context, question string) (domain.Answer, error)
	Generation() string
}

type mode int

const (
	modeAsk mode = iota
	modeSearch
)

func (m mode) String() string {
	if m == modeSearch {
		return "search"
	}
	return "ask"
}

// searchTopK is how many results search mode lists.
const searchTopK = 10

// requestTimeout bounds one question round trip from the TUI.
const requestTimeout = 2 * time.Minute

type answerMsg struct {
	answer domain.Answer
	err    error
}

type resultsMsg struct {
	question string
	results  []domain.Result
	err      error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	service   Port
	input     textinput.Model
	viewport  viewport.Model
	mode      mode
	answer    string
	results   []domain.Result
	status    string
	cursor    int
	ready     bool
	busy      bool
	lastQuery string
}

// New creates a new TUI model instance.
func New(service Port) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter (Tab switches ask/search)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{service: service, input: ti, viewport: vp, status: "Ready."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 1                                    // header
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.render())
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.answer, m.results = "", nil
		} else {
			m.status = fmt.Sprintf("Answered from %d chunks", len(msg.answer.Sources))
			m.answer, m.results = msg.answer.Text, msg.answer.Sources
			m.lastQuery = msg.answer.Question
		}
		m.cursor = 0
		m.viewport.SetContent(m.render())
		return m, nil
	case resultsMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.results = nil
		} else {
			m.status = fmt.Sprintf("%d results for %q", len(msg.results), msg.question)
			m.results = msg.results
			m.lastQuery = msg.question
		}
		m.answer = ""
		m.cursor = 0
		m.viewport.SetContent(m.render())
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Thinking..."
			if m.mode == modeSearch {
				return m, m.search(q)
			}
			return m, m.ask(q)
		case "tab":
			m.mode = (m.mode + 1) % 2
			m.status = "Mode: " + m.mode.String()
			return m, nil
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(q string) tea.Cmd {
	svc := m.service
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		ans, err := svc.Ask(ctx, q)
		return answerMsg{answer: ans, err: err}
	}
}

func (m Model) search(q string) tea.Cmd {
	svc := m.service
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := svc.QueryK(ctx, q, searchTopK)
		return resultsMsg{question: q, results: res, err: err}
	}
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := "Knowledge Base Q&A"
	if g := m.service.Generation(); g != "" {
		title += "  " + dimStyle.Render("generation "+g)
	}
	header := lipgloss.NewStyle().Bold(true).Render(title) + "  " + dimStyle.Render("["+m.mode.String()+"]")
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) render() string {
	var b strings.Builder
	if m.answer != "" {
		b.WriteString(answerStyle.Render(m.answer))
		b.WriteString("\n\n")
	}
	if len(m.results) == 0 {
		if m.answer == "" {
			b.WriteString("No results yet.")
		}
		return b.String()
	}
	r := m.results[m.cursor]
	fmt.Fprintf(&b, "Source %d/%d  %s  distance=%.4f\n\n", m.cursor+1, len(m.results), sourceStyle.Render(r.Source), r.Distance)
	b.WriteString(highlightBestSentence(r.Text, m.lastQuery))
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Underline(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)[^.!?\n]+(?:[.!?]+|$)`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}

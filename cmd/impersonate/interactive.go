package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	impersonate "github.com/wippyai/impersonate-engine"
	"github.com/wippyai/impersonate-engine/client"
	"github.com/wippyai/impersonate-engine/request"
	"github.com/wippyai/impersonate-engine/tlsprofile"
)

const previewBytes = 2048

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	profileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// interactiveCmd runs the fetch TUI
var interactiveCmd = &cobra.Command{
	Use:     "interactive",
	Aliases: []string{"i"},
	Short:   "Fetch URLs from an interactive terminal UI",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("interactive mode requires a terminal")
		}
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		cfg.Verbose = cfg.Verbose || verbose

		eng, shutdown, err := startEngine(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer shutdown()

		p := tea.NewProgram(newInteractiveModel(eng, cfg.Client), tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

type modelState int

const (
	stateInput modelState = iota
	stateLoading
	stateShowResult
)

type interactiveModel struct {
	err      error
	eng      *impersonate.Engine
	result   *fetchResult
	base     client.Config
	clients  map[string]client.Handle
	profiles []string
	input    textinput.Model
	spinner  spinner.Model
	selected int
	state    modelState
}

type fetchResult struct {
	resp    *request.Response
	preview string
	size    int64
}

type fetchedMsg struct {
	err    error
	result *fetchResult
}

func newInteractiveModel(eng *impersonate.Engine, base client.Config) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "https://example.com"
	ti.Prompt = "url: "
	ti.Width = 60
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = profileStyle

	profiles := tlsprofile.Names()
	selected := 0
	for i, name := range profiles {
		if name == base.Profile {
			selected = i
		}
	}

	return &interactiveModel{
		eng:      eng,
		base:     base,
		clients:  make(map[string]client.Handle),
		profiles: profiles,
		input:    ti,
		spinner:  sp,
		selected: selected,
		state:    stateInput,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "tab", "shift+tab":
			if m.state == stateInput && len(m.profiles) > 0 {
				step := 1
				if msg.String() == "shift+tab" {
					step = len(m.profiles) - 1
				}
				m.selected = (m.selected + step) % len(m.profiles)
			}
			return m, nil

		case "enter":
			switch m.state {
			case stateInput:
				url := strings.TrimSpace(m.input.Value())
				if url == "" {
					return m, nil
				}
				m.state = stateLoading
				m.err = nil
				return m, tea.Batch(m.spinner.Tick, m.fetch(url))
			case stateShowResult:
				m.state = stateInput
				m.result = nil
				m.err = nil
				return m, nil
			}

		case "esc":
			if m.state == stateShowResult {
				m.state = stateInput
				m.result = nil
				m.err = nil
				return m, nil
			}
		}

	case spinner.TickMsg:
		if m.state != stateLoading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case fetchedMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
		return m, nil
	}

	if m.state == stateInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handle returns a client for the selected profile, creating it on first use.
func (m *interactiveModel) handle() (client.Handle, error) {
	profile := m.profiles[m.selected]
	if h, ok := m.clients[profile]; ok {
		return h, nil
	}
	cfg := m.base
	cfg.Profile = profile
	h, err := m.eng.CreateClient(cfg)
	if err != nil {
		return 0, err
	}
	m.clients[profile] = h
	return h, nil
}

func (m *interactiveModel) fetch(url string) tea.Cmd {
	h, err := m.handle()
	if err != nil {
		return func() tea.Msg { return fetchedMsg{err: err} }
	}
	eng := m.eng
	return func() tea.Msg {
		res, err := eng.Do(context.Background(), h, request.Spec{URL: url, Method: "GET"})
		if err != nil {
			return fetchedMsg{err: err}
		}
		defer res.Body.Close()

		var preview strings.Builder
		n, err := io.Copy(&preview, io.LimitReader(res.Body, previewBytes))
		if err != nil {
			return fetchedMsg{err: err}
		}
		rest, err := io.Copy(io.Discard, res.Body)
		if err != nil {
			return fetchedMsg{err: err}
		}
		return fetchedMsg{result: &fetchResult{resp: res.Response, preview: preview.String(), size: n + rest}}
	}
}

func (m *interactiveModel) close() {
	for _, h := range m.clients {
		m.eng.DestroyClient(h)
	}
	m.clients = nil
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Impersonate"))
	b.WriteString(" ")
	if len(m.profiles) > 0 {
		b.WriteString(profileStyle.Render(m.profiles[m.selected]))
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateInput:
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n\n")
		}
		b.WriteString(helpStyle.Render("tab next profile • enter fetch • ctrl+c quit"))

	case stateLoading:
		b.WriteString(m.spinner.View())
		b.WriteString(" Fetching ")
		b.WriteString(m.input.Value())

	case stateShowResult:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			m.viewResult(&b)
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • ctrl+c quit"))
	}

	return b.String()
}

func (m *interactiveModel) viewResult(b *strings.Builder) {
	resp := m.result.resp
	b.WriteString(statusStyle.Render(fmt.Sprintf("%s %d", resp.Version, resp.Status)))
	b.WriteString("\n")
	for _, f := range resp.Headers.Fields() {
		for _, v := range f.Values {
			b.WriteString(headerStyle.Render(f.Name))
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(m.result.preview)
	if m.result.size > int64(len(m.result.preview)) {
		b.WriteString(helpStyle.Render(fmt.Sprintf("\n... %d bytes total", m.result.size)))
	}
}

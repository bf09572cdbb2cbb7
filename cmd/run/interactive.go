package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/iota-runtime/ops"
	"github.com/wippyai/iota-runtime/payload"
	"github.com/wippyai/iota-runtime/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	opStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#98FB98"))

	shapeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err       error
	rt        *runtime.Runtime
	instance  *runtime.Instance
	bundleDir string
	wasmFile  string
	title     string
	result    string
	exports   []ops.Operation
	argsInput textinput.Model
	inInput   textinput.Model
	selected  int
	focusIdx  int
	state     modelState
}

type modelState int

const (
	stateSelectOp modelState = iota
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(bundleDir, wasmFile string) *interactiveModel {
	title := bundleDir
	if title == "" {
		title = wasmFile
	}
	return &interactiveModel{
		bundleDir: bundleDir,
		wasmFile:  wasmFile,
		title:     title,
		state:     stateSelectOp,
	}
}

type loadedMsg struct {
	err     error
	rt      *runtime.Runtime
	inst    *runtime.Instance
	exports []ops.Operation
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadInstance
}

func (m *interactiveModel) loadInstance() tea.Msg {
	ctx := context.Background()

	rt, err := runtime.New(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	mod, err := loadModule(ctx, rt, m.bundleDir, m.wasmFile)
	if err != nil {
		rt.Close(ctx)
		return loadedMsg{err: err}
	}
	inst, err := mod.Instantiate(ctx, nil)
	if err != nil {
		rt.Close(ctx)
		return loadedMsg{err: err}
	}
	if err := inst.Health(ctx); err != nil {
		inst.Close(ctx)
		rt.Close(ctx)
		return loadedMsg{err: err}
	}

	exports := inst.Registry().Exports()
	sort.Slice(exports, func(i, j int) bool {
		if exports[i].Namespace != exports[j].Namespace {
			return exports[i].Namespace < exports[j].Namespace
		}
		return exports[i].Name < exports[j].Name
	})

	return loadedMsg{rt: rt, inst: inst, exports: exports}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateInputArgs && msg.String() == "q" {
				break
			}
			ctx := context.Background()
			if m.instance != nil {
				m.instance.Close(ctx)
			}
			if m.rt != nil {
				m.rt.Close(ctx)
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectOp && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectOp && m.selected < len(m.exports)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectOp:
				if len(m.exports) == 0 {
					break
				}
				m.prepareInputs()
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callOperation

			case stateShowResult:
				m.state = stateSelectOp
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && m.channelSelected() {
				if m.focusIdx == 0 {
					m.argsInput.Blur()
					m.inInput.Focus()
					m.focusIdx = 1
				} else {
					m.inInput.Blur()
					m.argsInput.Focus()
					m.focusIdx = 0
				}
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectOp
			case stateShowResult:
				m.state = stateSelectOp
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		m.instance = msg.inst
		m.exports = msg.exports

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		var cmd tea.Cmd
		m.argsInput, cmd = m.argsInput.Update(msg)
		cmds = append(cmds, cmd)
		m.inInput, cmd = m.inInput.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) channelSelected() bool {
	return m.exports[m.selected].Shape == ops.ShapeRequestChannel
}

func (m *interactiveModel) prepareInputs() {
	m.argsInput = textinput.New()
	m.argsInput.Placeholder = `{"key": "value"}`
	m.argsInput.Prompt = "args: "
	m.argsInput.Width = 50
	m.argsInput.Focus()

	m.inInput = textinput.New()
	m.inInput.Placeholder = `["element", ...]`
	m.inInput.Prompt = "input: "
	m.inInput.Width = 50

	m.focusIdx = 0
}

func (m *interactiveModel) callOperation() tea.Msg {
	ctx := context.Background()
	op := m.exports[m.selected]

	args, err := parseArgs(m.argsInput.Value())
	if err != nil {
		return callResultMsg{err: err}
	}

	switch op.Shape {
	case ops.ShapeRequestResponse:
		res, err := m.instance.RequestResponse(ctx, op.Namespace, op.Name, args)
		if err != nil {
			return callResultMsg{err: err}
		}
		s, err := formatResult(res)
		return callResultMsg{result: s, err: err}

	case ops.ShapeFireAndForget:
		if err := m.instance.FireAndForget(ctx, op.Namespace, op.Name, args); err != nil {
			return callResultMsg{err: err}
		}
		return callResultMsg{result: "sent"}

	case ops.ShapeRequestStream:
		out, err := m.instance.RequestStream(ctx, op.Namespace, op.Name, args)
		if err != nil {
			return callResultMsg{err: err}
		}
		return collectStream(out)

	case ops.ShapeRequestChannel:
		in, err := parseChannelInput(m.inInput.Value())
		if err != nil {
			return callResultMsg{err: err}
		}
		out, err := m.instance.Channel(ctx, op.Namespace, op.Name, in)
		if err != nil {
			return callResultMsg{err: err}
		}
		return collectStream(out)
	}
	return callResultMsg{err: fmt.Errorf("operation %s has unknown shape", op)}
}

func collectStream(out <-chan payload.Result) tea.Msg {
	var lines []string
	for res := range out {
		s, err := formatResult(res)
		if err != nil {
			return callResultMsg{err: err}
		}
		lines = append(lines, s)
	}
	if len(lines) == 0 {
		return callResultMsg{result: "(empty stream)"}
	}
	return callResultMsg{result: strings.Join(lines, "\n")}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.instance == nil {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("iota run"))
	b.WriteString(" ")
	b.WriteString(m.title)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectOp:
		b.WriteString("Select an operation to invoke:\n\n")
		for i, op := range m.exports {
			line := formatOp(op)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter invoke • q quit"))

	case stateInputArgs:
		op := m.exports[m.selected]
		b.WriteString(fmt.Sprintf("Invoking %s\n\n", opStyle.Render(op.Namespace+"/"+op.Name)))
		b.WriteString(m.argsInput.View())
		b.WriteString("\n")
		if m.channelSelected() {
			b.WriteString(m.inInput.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.channelSelected() {
			b.WriteString(helpStyle.Render("tab next field • enter invoke • esc back"))
		} else {
			b.WriteString(helpStyle.Render("enter invoke • esc back"))
		}

	case stateShowResult:
		op := m.exports[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", opStyle.Render(op.Namespace+"/"+op.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatOp(op ops.Operation) string {
	return opStyle.Render(op.Namespace+"/"+op.Name) + " " + shapeStyle.Render("["+op.Shape.String()+"]")
}

func runInteractive(bundleDir, wasmFile string) error {
	p := tea.NewProgram(newInteractiveModel(bundleDir, wasmFile), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

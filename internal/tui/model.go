// Package tui is the interactive shell: scan for lighthouses, toggle their
// power, copy addresses, and generate launcher scripts.
package tui

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kliden/Lighthouse-Control/internal/clipboard"
	"github.com/kliden/Lighthouse-Control/internal/launcher"
	"github.com/kliden/Lighthouse-Control/internal/lighthouse"
)

// Options configures the TUI shell.
type Options struct {
	Controller     *lighthouse.Controller
	LauncherFolder string // empty = desktop
	NoWindow       bool
}

type phase int

const (
	phaseIdle phase = iota
	phaseScanning
	phaseWorking // power writes in flight
)

// Model is the bubbletea model for the lighthouse shell.
type Model struct {
	ctx  context.Context
	opts Options

	phase   phase
	spinner spinner.Model
	cursor  int
	found   []lighthouse.Lighthouse
	status  string
	failed  bool
}

type scanFinishedMsg struct {
	found []lighthouse.Lighthouse
	err   error
}

type powerDoneMsg struct {
	on      bool
	results []lighthouse.Result
}

type copiedMsg struct{ err error }

type launchersMsg struct {
	pair launcher.Pair
	err  error
}

// New creates the shell model.
func New(ctx context.Context, opts Options) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:     ctx,
		opts:    opts,
		spinner: sp,
		status:  "Press s to scan for lighthouses.",
	}
}

// Init starts with a scan straight away, like the original shell.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.scanCmd())
}

func (m Model) scanCmd() tea.Cmd {
	return func() tea.Msg {
		found, err := m.opts.Controller.Scan(m.ctx, nil)
		return scanFinishedMsg{found: found, err: err}
	}
}

func (m Model) powerCmd(targets []lighthouse.Lighthouse, on bool) tea.Cmd {
	return func() tea.Msg {
		return powerDoneMsg{on: on, results: m.opts.Controller.SetPowerAll(m.ctx, targets, on)}
	}
}

func (m Model) copyCmd() tea.Cmd {
	addrs := m.addresses()
	return func() tea.Msg {
		return copiedMsg{err: clipboard.CopyAddresses(addrs)}
	}
}

func (m Model) launchersCmd() tea.Cmd {
	folder := m.opts.LauncherFolder
	if folder == "" {
		folder = launcher.DefaultFolder()
	}
	addrs := m.addresses()
	noWindow := m.opts.NoWindow
	return func() tea.Msg {
		exe, err := os.Executable()
		if err != nil {
			return launchersMsg{err: err}
		}
		pair, err := launcher.Create(folder, exe, addrs, noWindow)
		return launchersMsg{pair: pair, err: err}
	}
}

func (m Model) addresses() []string {
	addrs := make([]string, 0, len(m.found))
	for _, lh := range m.found {
		addrs = append(addrs, lh.Address)
	}
	return addrs
}

// Update handles key presses and operation results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKeys(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case scanFinishedMsg:
		m.phase = phaseIdle
		m.found = msg.found
		if m.cursor >= len(m.found) {
			m.cursor = 0
		}
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Scan failed: %v", msg.err), true)
		} else {
			m.setStatus(fmt.Sprintf("Scan finished, %d lighthouse(s) found.", len(m.found)), false)
		}
		return m, nil

	case powerDoneMsg:
		m.phase = phaseIdle
		var failed []string
		for _, res := range msg.results {
			if res.Err != nil {
				failed = append(failed, res.Lighthouse.Address)
			}
		}
		verb := "off"
		if msg.on {
			verb = "on"
		}
		if len(failed) > 0 {
			m.setStatus(fmt.Sprintf("Not turned %s: %s", verb, strings.Join(failed, ", ")), true)
		} else {
			m.setStatus(fmt.Sprintf("Turned %s %d lighthouse(s).", verb, len(msg.results)), false)
		}
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Clipboard copy failed: %v", msg.err), true)
		} else {
			m.setStatus("Lighthouse MAC addresses copied to clipboard.", false)
		}
		return m, nil

	case launchersMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Launcher creation failed: %v", msg.err), true)
		} else {
			m.setStatus(fmt.Sprintf("Launchers written: %s, %s", msg.pair.On, msg.pair.Off), false)
		}
		return m, nil
	}

	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.found)-1 {
			m.cursor++
		}
		return m, nil
	}

	// Everything below starts an operation; refuse while one is running.
	if m.phase != phaseIdle {
		return m, nil
	}

	switch msg.String() {
	case "s":
		m.phase = phaseScanning
		m.setStatus("Scanning...", false)
		return m, tea.Batch(m.spinner.Tick, m.scanCmd())

	case "o", "x":
		if len(m.found) == 0 {
			return m, nil
		}
		target := m.found[m.cursor]
		m.phase = phaseWorking
		m.setStatus(fmt.Sprintf("%s: turning %s...", target.Address, onOff(msg.String() == "o")), false)
		return m, tea.Batch(m.spinner.Tick, m.powerCmd([]lighthouse.Lighthouse{target}, msg.String() == "o"))

	case "O", "X":
		if len(m.found) == 0 {
			return m, nil
		}
		m.phase = phaseWorking
		m.setStatus(fmt.Sprintf("Turning all %s...", onOff(msg.String() == "O")), false)
		return m, tea.Batch(m.spinner.Tick, m.powerCmd(m.found, msg.String() == "O"))

	case "c":
		if len(m.found) == 0 {
			return m, nil
		}
		return m, m.copyCmd()

	case "l":
		if len(m.found) == 0 {
			return m, nil
		}
		return m, m.launchersCmd()
	}

	return m, nil
}

func (m *Model) setStatus(s string, failed bool) {
	m.status = s
	m.failed = failed
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// View renders the shell.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Lighthouse Control"))
	b.WriteString("\n\n")

	if len(m.found) == 0 && m.phase != phaseScanning {
		b.WriteString(dimStyle.Render("No lighthouses found yet."))
		b.WriteString("\n")
	}

	for i, lh := range m.found {
		line := fmt.Sprintf("%s  %-18s  v%d  %4d dBm", lh.Name, lh.Address, int(lh.Version), lh.RSSI)
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.phase != phaseIdle {
		b.WriteString(m.spinner.View() + " ")
	}
	if m.failed {
		b.WriteString(errStyle.Render(m.status))
	} else {
		b.WriteString(okStyle.Render(m.status))
	}
	b.WriteString("\n")

	b.WriteString(helpStyle.Render(
		"s scan • o/x on/off selected • O/X on/off all • c copy MACs • l launchers • q quit"))
	b.WriteString("\n")

	return b.String()
}

// Run starts the interactive shell and blocks until it exits.
func Run(ctx context.Context, opts Options) error {
	_, err := tea.NewProgram(New(ctx, opts), tea.WithContext(ctx)).Run()
	return err
}

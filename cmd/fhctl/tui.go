// go-fhmac
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-fhmac.
//
// go-fhmac is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-fhmac is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-fhmac; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	fhmac "github.com/ZaparooProject/go-fhmac"
	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/polling"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	maxLogLines  = 100
	shownLogRows = 8
	refreshEvery = time.Second
)

// logBuffer keeps the last lines written to it for the TUI log pane.
type logBuffer struct {
	lines []string
	max   int
	mu    sync.Mutex
}

func newLogBuffer(n int) *logBuffer {
	return &logBuffer{max: n}
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		b.lines = append(b.lines, line)
	}
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
	return len(p), nil
}

// Tail returns up to n of the most recent lines.
func (b *logBuffer) Tail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) < n {
		n = len(b.lines)
	}
	return append([]string(nil), b.lines[len(b.lines)-n:]...)
}

// nodeView is what the TUI reads from a running node.
type nodeView interface {
	neighbors() []polling.NeighborState
	engineMetrics() fhmac.Metrics
	monitorMetrics() polling.Metrics
	state() fhmac.State
}

func (n *node) neighbors() []polling.NeighborState { return n.monitor.Neighbors() }
func (n *node) engineMetrics() fhmac.Metrics { return n.engine.Metrics() }
func (n *node) monitorMetrics() polling.Metrics { return n.monitor.Metrics() }
func (n *node) state() fhmac.State { return n.engine.State() }

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type monitorModel struct {
	node     nodeView
	logs     *logBuffer
	title    string
	table    table.Model
	metrics  fhmac.Metrics
	mon      polling.Metrics
	state    fhmac.State
	width    int
	height   int
	quitting bool
}

var neighborColumns = []table.Column{
	{Title: "Neighbor", Width: 23},
	{Title: "Kind", Width: 8},
	{Title: "Schedule", Width: 18},
	{Title: "Presence", Width: 9},
	{Title: "Last update", Width: 12},
}

func newMonitorModel(title string, n nodeView, logs *logBuffer) monitorModel {
	t := table.New(
		table.WithColumns(neighborColumns),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	m := monitorModel{
		node:   n,
		logs:   logs,
		title:  title,
		table:  t,
		width:  80,
		height: 24,
	}
	m.refresh(time.Now())
	return m
}

func scheduleText(s polling.NeighborState) string {
	nb := s.Neighbor
	if nb.ChannelFunc == dh1cf.FunctionFixed {
		return fmt.Sprintf("fixed ch %d", nb.FixedChannel)
	}
	return fmt.Sprintf("%s %dch %dms", nb.ChannelFunc, nb.NumChannels, nb.Dwell)
}

func (m *monitorModel) refresh(now time.Time) {
	states := m.node.neighbors()
	rows := make([]table.Row, 0, len(states))
	for _, s := range states {
		rows = append(rows, table.Row{
			s.Neighbor.EUI.String(),
			s.Neighbor.Kind.String(),
			scheduleText(s),
			s.Presence.String(),
			now.Sub(s.LastUpdate).Round(time.Second).String(),
		})
	}
	m.table.SetRows(rows)
	m.metrics = m.node.engineMetrics()
	m.mon = m.node.monitorMetrics()
	m.state = m.node.state()
}

func (m monitorModel) Init() tea.Cmd {
	return tickCmd()
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(3, m.height-shownLogRows-12))

	case tickMsg:
		m.refresh(time.Time(msg))
		return m, tickCmd()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func counter(label string, v int64, style lipgloss.Style) string {
	return labelStyle.Render(label+":") + " " + style.Render(fmt.Sprintf("%d", v))
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("FHCTL - " + m.title))
	s.WriteString("\n")
	s.WriteString(dimStyle.Render(fmt.Sprintf("State: %s | Neighbors: %d | Press 'q' to quit",
		m.state, len(m.table.Rows()))))
	s.WriteString("\n\n")

	failStyle := valueStyle
	if m.metrics.TxFailed > 0 || m.metrics.TxOverflow > 0 {
		failStyle = errorStyle
	}
	stats := strings.Join([]string{
		counter("Hops uc", m.metrics.UnicastHops, valueStyle) + "   " +
			counter("bc", m.metrics.BroadcastHops, valueStyle) + "   " +
			counter("Rx", m.metrics.RxFrames, valueStyle) + "   " +
			counter("Rx dropped", m.metrics.RxDropped, warningStyle),
		counter("Tx", m.metrics.TxFrames, valueStyle) + "   " +
			counter("confirmed", m.metrics.TxConfirmed, valueStyle) + "   " +
			counter("failed", m.metrics.TxFailed, failStyle) + "   " +
			counter("overflow", m.metrics.TxOverflow, failStyle),
		counter("Polls", m.mon.PollCycles, valueStyle) + "   " +
			counter("joined", m.mon.Joined, valueStyle) + "   " +
			counter("left", m.mon.Left, valueStyle) + "   " +
			counter("saves", m.mon.Saves, valueStyle) + "   " +
			counter("save errors", m.mon.SaveErrors, failStyle),
	}, "\n")
	s.WriteString(boxStyle.Render(stats))
	s.WriteString("\n")

	s.WriteString(boxStyle.Render(m.table.View()))
	s.WriteString("\n")

	if m.logs != nil {
		lines := m.logs.Tail(shownLogRows)
		if len(lines) == 0 {
			lines = []string{dimStyle.Render("No log output yet")}
		}
		width := max(20, m.width-4)
		for i, line := range lines {
			if len(line) > width {
				lines[i] = line[:width]
			}
		}
		s.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
		s.WriteString("\n")
	}
	return s.String()
}

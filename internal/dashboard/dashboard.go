// Package dashboard is the terminal operator console: a live table of running auctions and a
// colourised view of the server logs.
package dashboard

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Martin-Hayot/live-auction-server/pkg/types"
	"github.com/Martin-Hayot/live-auction-server/pkg/utils"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

var (
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))
)

const logLines = 15

// AuctionLister is the Store query the console polls.
type AuctionLister interface {
	ListActiveAuctions(ctx context.Context) ([]types.Auction, error)
}

// LogBuffer collects log output for the console. It is safe for concurrent writers.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Lines returns the last n complete log lines.
func (b *LogBuffer) Lines(n int) []string {
	b.mu.Lock()
	text := strings.TrimRight(b.buf.String(), "\n")
	b.mu.Unlock()
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

type tickMsg time.Time

func tick(every time.Duration) tea.Cmd {
	return tea.Every(every, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model is the bubbletea model of the console.
type Model struct {
	table     table.Model
	viewport  viewport.Model
	store     AuctionLister
	logBuffer *LogBuffer
	logs      []string
	refresh   time.Duration
	now       func() time.Time
	showTable bool
	quitting  bool
}

func New(store AuctionLister, logBuffer *LogBuffer, refresh time.Duration) Model {
	columns := []table.Column{
		{Title: "AUCTION ID", Width: 10},
		{Title: "ITEM", Width: 24},
		{Title: "HIGHEST BID", Width: 12},
		{Title: "LEADER", Width: 16},
		{Title: "TIME LEFT", Width: 14},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows([]table.Row{}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	vp := viewport.New(100, logLines)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)

	m := Model{
		table:     t,
		viewport:  vp,
		store:     store,
		logBuffer: logBuffer,
		refresh:   refresh,
		now:       time.Now,
		showTable: true,
	}
	m.table = m.updateTableRows(m.table)
	return m
}

func (m Model) Init() tea.Cmd {
	return tick(m.refresh)
}

// Rows renders the active auctions as table rows.
func Rows(auctions []types.Auction, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(auctions))
	for _, a := range auctions {
		leader := "-"
		if a.WinningBidderID != nil {
			leader = a.WinningBidderName
		}

		timeLeft := a.EndTime.Sub(now).Truncate(time.Second)
		timeLeftStr := timeLeft.String()
		if timeLeft <= 0 {
			timeLeftStr = "Ending"
		}

		rows = append(rows, table.Row{
			fmt.Sprint(a.ID),
			a.Item.Name,
			fmt.Sprint(a.CurrentHighestBid),
			leader,
			timeLeftStr,
		})
	}
	return rows
}

func (m Model) updateTableRows(t table.Model) table.Model {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	auctions, err := m.store.ListActiveAuctions(ctx)
	if err != nil {
		log.Error("Error getting auctions", "err", err)
		return t
	}
	t.SetRows(Rows(auctions, m.now()))
	return t
}

func (m Model) loadLogs() []string {
	return utils.ColorizeLogs(m.logBuffer.Lines(logLines))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)
	switch msg := msg.(type) {
	case tickMsg:
		if m.showTable {
			m.table = m.updateTableRows(m.table)
		} else {
			m.logs = m.loadLogs()
		}
		cmds = append(cmds, tick(m.refresh))

	case tea.KeyMsg:
		switch msg.String() {
		case "tab":
			m.showTable = !m.showTable
			if !m.showTable {
				m.logs = m.loadLogs()
			}
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	}

	if m.showTable {
		m.table, cmd = m.table.Update(msg)
	} else {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View renders the current state of the model.
func (m Model) View() string {
	if m.quitting {
		return "Bye!\n"
	}
	if m.showTable {
		return baseStyle.Render(m.table.View()) + "\n" + helpStyle.Render("• tab: switch modes • q: exit\n")
	}
	m.viewport.SetContent(strings.Join(m.logs, "\n"))
	return m.viewport.View() + "\n" + helpStyle.Render("• tab: switch modes • q: exit\n")
}

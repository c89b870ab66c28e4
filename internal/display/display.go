// Package display renders simulation snapshots for the terminal.
package display

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/omkale/finpup/internal/market"
	"github.com/omkale/finpup/internal/memory"
	"github.com/omkale/finpup/internal/sim"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#3B82F6"))

	openStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)

	closedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280"))

	gainStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981"))

	lossStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444"))

	dimStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#9CA3AF"))
)

// Renderer writes snapshot summaries to stdout.
type Renderer struct {
	verbose bool
}

func NewRenderer(verbose bool) *Renderer {
	return &Renderer{verbose: verbose}
}

// Banner prints the startup banner.
func Banner() {
	fmt.Println(titleStyle.Render("finpup"))
	fmt.Println(dimStyle.Render("autonomous paper-trading agent for NSE equities"))
	fmt.Println()
}

// Render prints a full snapshot: market status, portfolio summary,
// open positions, recent memory highlights.
func (r *Renderer) Render(snap sim.Snapshot) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("── step %d · %s · %s mode ──",
		snap.Step, snap.Time.In(market.IST()).Format("2006-01-02 15:04"), snap.Mode)))

	r.renderMarket(snap.MarketStatus)
	r.renderPortfolio(snap)
	if r.verbose {
		r.renderMemory(snap.MemoryHighlights)
	}
	fmt.Println()
}

func (r *Renderer) renderMarket(st market.Status) {
	label := closedStyle.Render(strings.ToUpper(string(st.State)))
	if st.Open() {
		label = openStyle.Render("OPEN")
	}
	fmt.Printf("market: %s (%s)\n", label, st.Reason)
}

func (r *Renderer) renderPortfolio(snap sim.Snapshot) {
	p := snap.Portfolio
	ret := fmt.Sprintf("%+.2f%%", p.Returns*100)
	if p.Returns >= 0 {
		ret = gainStyle.Render(ret)
	} else {
		ret = lossStyle.Render(ret)
	}
	fmt.Printf("cash ₹%.2f · total ₹%.2f · return %s\n", p.Cash, p.TotalValue, ret)

	if len(p.Positions) == 0 {
		fmt.Println(dimStyle.Render("no open positions"))
		return
	}

	symbols := make([]string, 0, len(p.Positions))
	for sym := range p.Positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	fmt.Printf("%-12s %8s %12s %12s %10s\n", "SYMBOL", "QTY", "AVG COST", "PRICE", "P/L")
	for _, sym := range symbols {
		pos := p.Positions[sym]
		unrealized := pos.MarketValue - pos.AvgCost*float64(pos.Quantity)
		pnl := fmt.Sprintf("%+.2f", unrealized)
		if unrealized >= 0 {
			pnl = gainStyle.Render(pnl)
		} else {
			pnl = lossStyle.Render(pnl)
		}
		fmt.Printf("%-12s %8d %12.2f %12.2f %10s\n",
			sym, pos.Quantity, pos.AvgCost, pos.CurrentPrice, pnl)
	}
}

func (r *Renderer) renderMemory(entries []memory.Entry) {
	if len(entries) == 0 {
		return
	}
	fmt.Println(dimStyle.Render("recent signals:"))
	for _, e := range entries {
		fmt.Printf("  %s %-10s %-9s importance %.2f\n",
			e.Timestamp.In(market.IST()).Format("15:04"), e.Symbol, e.Kind, e.Importance)
	}
}

// Summary prints the end-of-run report used by backtests.
func (r *Renderer) Summary(snap sim.Snapshot, elapsed time.Duration) {
	fmt.Println(headerStyle.Render("── run summary ──"))
	p := snap.Portfolio
	fmt.Printf("steps:          %d\n", snap.Step)
	fmt.Printf("elapsed:        %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("initial:        ₹%.2f\n", p.InitialCapital)
	fmt.Printf("final value:    ₹%.2f\n", p.TotalValue)
	ret := fmt.Sprintf("%+.2f%%", p.Returns*100)
	if p.Returns >= 0 {
		ret = gainStyle.Render(ret)
	} else {
		ret = lossStyle.Render(ret)
	}
	fmt.Printf("return:         %s\n", ret)
	fmt.Printf("trades:         %d\n", len(p.Trades))
}

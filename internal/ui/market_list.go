package ui

import (
	"fmt"

	"github.com/polywatch/engine/internal/metrics"
	"github.com/rivo/tview"
)

// MarketListView shows the top markets covered by the last scan.
type MarketListView struct {
	table *tview.Table
}

// NewMarketListView creates the market panel.
func NewMarketListView() *MarketListView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Scanned Markets ").SetBorder(true)

	return &MarketListView{table: table}
}

// Widget returns the tview primitive.
func (v *MarketListView) Widget() tview.Primitive {
	return v.table
}

// Update redraws the table from the last cycle's market list.
func (v *MarketListView) Update(snapshot metrics.Snapshot) {
	v.table.Clear()

	headers := []string{"#", "Market", "Volume"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false).
			SetExpansion(1)
		v.table.SetCell(0, col, cell)
	}

	limit := 12
	if len(snapshot.TopMarkets) < limit {
		limit = len(snapshot.TopMarkets)
	}

	for i, market := range snapshot.TopMarkets[:limit] {
		question := market.Question
		if len(question) > 42 {
			question = question[:39] + "..."
		}

		cells := []string{
			fmt.Sprintf("%d", i+1),
			question,
			fmt.Sprintf("$%.0f", market.VolumeUSD),
		}

		for col, text := range cells {
			cell := tview.NewTableCell(text).
				SetAlign(tview.AlignLeft).
				SetExpansion(1)
			v.table.SetCell(i+1, col, cell)
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Scanned Markets (%d) ", len(snapshot.TopMarkets)))
}

package receipt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nixxel-company-limited/todo-receipts/config"
	"github.com/nixxel-company-limited/todo-receipts/escpos"
	"github.com/nixxel-company-limited/todo-receipts/raster"
)

const (
	// LeftMarginDots is one character width at 203 dpi.
	LeftMarginDots = 12

	// QRCellSize is the module size used for the share code.
	QRCellSize = 6

	defaultTitle        = "ASHNI OPS TERMINAL"
	defaultTerminalName = "Marlboro"

	titleLimit   = 24
	titleKeep    = 21
	noEstimate   = "TBD"
	itemCheckbox = "[ ] "
)

// terminalEpoch is the day the terminal counter starts from.
var terminalEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

var supplements = []string{
	"SUPPLEMENTS TAKEN",
	"[ ] IRON 1    [ ] IRON 2    [ ] VIT C",
	"[ ] VIT D     [ ] WATER 1   [ ] WATER 2",
	"[ ] SEEDS     [ ] HAIR MASS [ ] CARDIO",
}

// Layout produces the full command sequence for a receipt. logo may be nil.
func Layout(data Data, logo *escpos.Bitmap) (escpos.Document, error) {
	title, terminal := defaultTitle, defaultTerminalName
	if cfg := data.Config; cfg != nil {
		if cfg.Title != "" {
			title = cfg.Title
		}
		if cfg.TerminalName != "" {
			terminal = cfg.TerminalName
		}
	}

	ts := data.Timestamp
	doc := escpos.NewDocument(
		escpos.Initialize{},
		escpos.LeftMargin{Dots: LeftMarginDots},
	)

	if logo != nil {
		doc = doc.Append(
			escpos.Align{Mode: escpos.AlignCenter},
			escpos.Raster{Image: logo},
		)
	}

	doc = doc.Append(
		escpos.Align{Mode: escpos.AlignCenter},
		escpos.Rule{Char: '='},
		escpos.Bold{On: true},
		escpos.Line{Text: title},
		escpos.Bold{On: false},
		escpos.Line{},
		escpos.Align{Mode: escpos.AlignLeft},
		escpos.Line{Text: fmt.Sprintf("Terminal: %s    #%s", terminal, TerminalID(ts))},
		escpos.Line{Text: fmt.Sprintf("Date: %02d/%02d/%02d    Time: %02d:%02d",
			int(ts.Month()), ts.Day(), ts.Year()%100, ts.Hour(), ts.Minute())},
		escpos.Rule{Char: '-'},
		escpos.TwoColumn{Left: "ITEM", Right: "SCHED"},
		escpos.Rule{Char: '-'},
	)

	if len(data.Todos) == 0 {
		doc = doc.Append(
			escpos.Align{Mode: escpos.AlignCenter},
			escpos.Line{Text: "No tasks!"},
			escpos.Align{Mode: escpos.AlignLeft},
		)
	}
	for _, todo := range data.Todos {
		doc = doc.Append(ItemRow(todo))
	}

	doc = doc.Append(
		escpos.Rule{Char: '-'},
		escpos.TwoColumn{Left: "ITEM COUNT", Right: strconv.Itoa(len(data.Todos))},
		escpos.Rule{Char: '-'},
	)
	for _, s := range supplements {
		doc = doc.Append(escpos.Line{Text: s})
	}
	doc = doc.Append(
		escpos.Rule{Char: '-'},
		escpos.Line{Text: "MANUAL ENTRIES"},
		escpos.Rule{Char: '-'},
		escpos.Line{Text: entryRow("NOTES: ")},
		escpos.Line{Text: entryRow("UNEXPECTED: ")},
		escpos.Rule{Char: '-'},
		escpos.Line{},
	)

	if data.ShareURL != "" {
		share, err := shareCode(data)
		if err != nil {
			return escpos.Document{}, err
		}
		doc = doc.Append(escpos.Align{Mode: escpos.AlignCenter}, share, escpos.Line{})
	}

	doc = doc.Append(
		escpos.Align{Mode: escpos.AlignCenter},
		escpos.Line{Text: "PROCESS COMPLETE"},
		escpos.Line{},
		escpos.Cut{},
	)
	return doc, nil
}

// ItemRow renders one to-do item as a two-column row.
func ItemRow(todo TodoItem) escpos.TwoColumn {
	sched := todo.TimeEstimate
	if sched == "" {
		sched = noEstimate
	}
	return escpos.TwoColumn{Left: itemCheckbox + ItemName(todo.Title), Right: sched}
}

// ItemName upper-cases title and shortens it to fit the item column.
func ItemName(title string) string {
	upper := strings.ToUpper(title)
	if utf8.RuneCountInString(upper) <= titleLimit {
		return upper
	}
	return string([]rune(upper)[:titleKeep]) + "..."
}

// TerminalID returns the number of whole days between the terminal epoch and
// ts, zero padded to six digits.
func TerminalID(ts time.Time) string {
	days := math.Floor(float64(ts.Sub(terminalEpoch).Milliseconds()) / float64(24*time.Hour/time.Millisecond))
	return fmt.Sprintf("%06d", int64(days))
}

func entryRow(label string) string {
	return label + strings.Repeat("_", escpos.Width-len(label))
}

func shareCode(data Data) (escpos.Command, error) {
	if data.Config == nil || data.Config.QRMode != config.QRModeRaster {
		return escpos.QRCode{Data: data.ShareURL, CellSize: QRCellSize}, nil
	}
	bm, err := raster.QRCode(data.ShareURL, QRCellSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render share code: %w", err)
	}
	return escpos.Raster{Image: bm}, nil
}

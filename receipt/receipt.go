package receipt

import (
	"time"

	"github.com/nixxel-company-limited/todo-receipts/config"
)

// Priority ranks a to-do item.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority maps a stored value to a Priority, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityHigh, PriorityLow:
		return Priority(s)
	default:
		return PriorityMedium
	}
}

// TodoItem is one entry of the to-do list. Timestamps are unix milliseconds.
type TodoItem struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	Completed     bool     `json:"completed"`
	Category      string   `json:"category"`
	Priority      Priority `json:"priority"`
	TimeEstimate  string   `json:"time_estimate"`
	Order         int      `json:"order"`
	CreatedAt     int64    `json:"created_at"`
	UpdatedAt     int64    `json:"updated_at"`
	ScheduledDate string   `json:"scheduled_date,omitempty"`
}

// Data is the snapshot printed by one call.
type Data struct {
	Todos          []TodoItem
	TotalCount     int
	CompletedCount int
	Timestamp      time.Time
	Config         *config.Config

	// ShareURL, when set, is printed as a QR code above the footer.
	ShareURL string
}

// NewData builds a snapshot of todos taken at ts.
func NewData(todos []TodoItem, ts time.Time, cfg *config.Config) Data {
	items := make([]TodoItem, len(todos))
	copy(items, todos)

	completed := 0
	for _, t := range items {
		if t.Completed {
			completed++
		}
	}

	return Data{
		Todos:          items,
		TotalCount:     len(items),
		CompletedCount: completed,
		Timestamp:      ts,
		Config:         cfg,
	}
}

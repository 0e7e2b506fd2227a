package history

import "errors"

// Filter narrows List. Zero fields match everything; From and To bound
// StartAt inclusively, in epoch milliseconds.
type Filter struct {
	Type  string
	Query string
	From  int64
	To    int64
}

type Summary struct {
	Count          int            `json:"count"`
	DistanceMeters float64        `json:"distance_m"`
	DurationMs     int64          `json:"duration_ms"`
	ByType         map[string]int `json:"by_type"`
}

var (
	ErrNotFound      = errors.New("route not found")
	ErrNoDraft       = errors.New("no pending edit for route")
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

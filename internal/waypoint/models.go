package waypoint

import (
	"errors"

	"backend-triplog/internal/route"
)

// Kind classifies a waypoint logged during a delivery trip.
type Kind string

const (
	KindLoading   Kind = "loading"
	KindUnloading Kind = "unloading"
	KindBreak     Kind = "break"
	KindRefuel    Kind = "refuel"
	KindNote      Kind = "note"
	KindStart     Kind = "start"
)

type KindInfo struct {
	Kind  Kind   `json:"kind"`
	Label string `json:"label"`
}

var kinds = []KindInfo{
	{KindLoading, "Loading"},
	{KindUnloading, "Unloading"},
	{KindBreak, "Break"},
	{KindRefuel, "Refuel"},
	{KindNote, "Note"},
}

type Event struct {
	Kind     Kind           `json:"kind"`
	Note     string         `json:"note"`
	Waypoint route.Waypoint `json:"waypoint"`
}

type LogRequest struct {
	Kind Kind   `json:"kind"`
	Note string `json:"note"`
}

var ErrUnknownKind = errors.New("unknown waypoint kind")

package waypoint

import (
	"strings"

	"backend-triplog/internal/recorder"
	"backend-triplog/internal/route"
)

// Recorder is the part of the route recorder trip events are logged through.
type Recorder interface {
	AddWaypoint(memo string) (route.Waypoint, error)
	Active() *route.Route
}

type Service struct {
	rec Recorder
}

func NewService(rec Recorder) *Service {
	return &Service{rec: rec}
}

func (s *Service) Kinds() []KindInfo {
	return append([]KindInfo(nil), kinds...)
}

// LogEvent records a waypoint of the given kind at the last fix. The memo is
// the kind label, followed by the note when one is given.
func (s *Service) LogEvent(kind Kind, note string) (Event, error) {
	label, ok := labelFor(kind)
	if !ok {
		return Event{}, ErrUnknownKind
	}
	note = strings.TrimSpace(note)
	memo := label
	if note != "" {
		memo = label + ": " + note
	}
	wp, err := s.rec.AddWaypoint(memo)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: kind, Note: note, Waypoint: wp}, nil
}

// Events classifies the waypoints of the active route.
func (s *Service) Events() ([]Event, error) {
	active := s.rec.Active()
	if active == nil {
		return nil, recorder.ErrNoActiveRoute
	}
	out := make([]Event, 0, len(active.Waypoints))
	for _, wp := range active.Waypoints {
		kind, note := Classify(wp.Memo)
		out = append(out, Event{Kind: kind, Note: note, Waypoint: wp})
	}
	return out, nil
}

// Classify splits a waypoint memo back into its kind and note. Memos that do
// not start with a known label are notes.
func Classify(memo string) (Kind, string) {
	if memo == recorder.StartPointMemo {
		return KindStart, ""
	}
	for _, k := range kinds {
		if memo == k.Label {
			return k.Kind, ""
		}
		if rest, ok := strings.CutPrefix(memo, k.Label+": "); ok {
			return k.Kind, rest
		}
	}
	return KindNote, memo
}

func labelFor(kind Kind) (string, bool) {
	for _, k := range kinds {
		if k.Kind == kind {
			return k.Label, true
		}
	}
	return "", false
}

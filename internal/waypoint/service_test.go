package waypoint

import (
	"errors"
	"testing"

	"backend-triplog/internal/recorder"
	"backend-triplog/internal/route"
)

type fakeRecorder struct {
	active *route.Route
	err    error
}

func (f *fakeRecorder) AddWaypoint(memo string) (route.Waypoint, error) {
	if f.err != nil {
		return route.Waypoint{}, f.err
	}
	if f.active == nil {
		return route.Waypoint{}, recorder.ErrNoActiveRoute
	}
	wp := route.Waypoint{ID: "wp", Lat: 35, Lon: 139, Memo: memo}
	f.active.Waypoints = append(f.active.Waypoints, wp)
	return wp, nil
}

func (f *fakeRecorder) Active() *route.Route {
	return f.active.Clone()
}

func activeRecorder() *fakeRecorder {
	return &fakeRecorder{active: &route.Route{
		ID:        "r1",
		Status:    route.StatusRecording,
		Waypoints: []route.Waypoint{{ID: "start", Memo: recorder.StartPointMemo}},
	}}
}

func TestLogEvent(t *testing.T) {
	rec := activeRecorder()
	svc := NewService(rec)

	event, err := svc.LogEvent(KindUnloading, "  pallet 3 ")
	if err != nil {
		t.Fatalf("log event: %v", err)
	}
	if event.Waypoint.Memo != "Unloading: pallet 3" || event.Note != "pallet 3" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event, _ := svc.LogEvent(KindBreak, ""); event.Waypoint.Memo != "Break" {
		t.Fatalf("expected bare label, got %q", event.Waypoint.Memo)
	}
	if _, err := svc.LogEvent("teleport", ""); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestLogEventPropagatesRecorderErrors(t *testing.T) {
	svc := NewService(&fakeRecorder{err: recorder.ErrNoFix})
	if _, err := svc.LogEvent(KindRefuel, ""); !errors.Is(err, recorder.ErrNoFix) {
		t.Fatalf("expected ErrNoFix, got %v", err)
	}
}

func TestEventsClassifyMemos(t *testing.T) {
	rec := activeRecorder()
	svc := NewService(rec)
	svc.LogEvent(KindLoading, "dock 4")
	rec.active.Waypoints = append(rec.active.Waypoints, route.Waypoint{ID: "free", Memo: "gate closed"})

	events, err := svc.Events()
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	want := []struct {
		kind Kind
		note string
	}{{KindStart, ""}, {KindLoading, "dock 4"}, {KindNote, "gate closed"}}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, w := range want {
		if events[i].Kind != w.kind || events[i].Note != w.note {
			t.Fatalf("event %d: got %s %q", i, events[i].Kind, events[i].Note)
		}
	}

	if _, err := NewService(&fakeRecorder{}).Events(); !errors.Is(err, recorder.ErrNoActiveRoute) {
		t.Fatalf("expected ErrNoActiveRoute, got %v", err)
	}
}

func TestKindsAreCopies(t *testing.T) {
	svc := NewService(activeRecorder())
	k := svc.Kinds()
	k[0].Label = "changed"
	if svc.Kinds()[0].Label != "Loading" {
		t.Fatalf("Kinds exposed internal slice")
	}
}

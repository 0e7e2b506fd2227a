package route

import "testing"

func TestCloneIsDeep(t *testing.T) {
	speed := 3.5
	end := int64(1000)
	r := &Route{
		ID:        "r1",
		EndAt:     &end,
		Track:     []TrackPoint{{Lat: 1, Lon: 2, Speed: &speed, Source: SourceGPS}},
		Waypoints: []Waypoint{{ID: "w1", Memo: "start point"}},
	}
	c := r.Clone()
	*c.Track[0].Speed = 9
	*c.EndAt = 5
	c.Waypoints[0].Memo = "changed"
	c.Track = append(c.Track, TrackPoint{})

	if *r.Track[0].Speed != 3.5 || *r.EndAt != 1000 || r.Waypoints[0].Memo != "start point" || len(r.Track) != 1 {
		t.Fatalf("clone shares memory with original")
	}
}

func TestPatchApplyAndSnapshot(t *testing.T) {
	name := "Morning run"
	m := MetadataPatch{Name: &name}.Apply(Metadata{Type: "delivery", Name: "old"})
	if m.Name != "Morning run" || m.Type != "delivery" {
		t.Fatalf("unexpected metadata: %+v", m)
	}

	snap := SnapshotOf(m)
	restored := snap.Apply(Metadata{})
	if restored != m {
		t.Fatalf("snapshot did not restore metadata: %+v", restored)
	}
	if !(MetadataPatch{}).IsEmpty() || snap.IsEmpty() {
		t.Fatalf("unexpected IsEmpty result")
	}
}

func TestUndoTrimKeepsMostRecent(t *testing.T) {
	var u UndoState
	for i := 0; i < 25; i++ {
		name := string(rune('a' + i))
		u.Undo = append(u.Undo, MetadataPatch{Name: &name})
	}
	u = u.Trim()
	if len(u.Undo) != MaxUndoDepth {
		t.Fatalf("expected %d entries, got %d", MaxUndoDepth, len(u.Undo))
	}
	if *u.Undo[0].Name != string(rune('a'+5)) || *u.Undo[MaxUndoDepth-1].Name != string(rune('a'+24)) {
		t.Fatalf("trim dropped the wrong entries")
	}
}

func TestStateIsEmpty(t *testing.T) {
	if !(State{}).IsEmpty() {
		t.Fatalf("expected empty state")
	}
	if (State{Routes: []Route{{ID: "r1"}}}).IsEmpty() {
		t.Fatalf("expected non-empty state")
	}
}

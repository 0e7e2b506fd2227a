package route

// IsActive reports whether s belongs to a route still being recorded.
func (s Status) IsActive() bool {
	return s == StatusRecording || s == StatusPaused
}

func (r *Route) IsActive() bool {
	return r != nil && r.Status.IsActive()
}

// LastPoint returns nil for an empty track.
func (r *Route) LastPoint() *TrackPoint {
	if r == nil || len(r.Track) == 0 {
		return nil
	}
	return &r.Track[len(r.Track)-1]
}

func (r *Route) FirstPoint() *TrackPoint {
	if r == nil || len(r.Track) == 0 {
		return nil
	}
	return &r.Track[0]
}

// Clone returns a deep copy of r.
func (r *Route) Clone() *Route {
	if r == nil {
		return nil
	}
	out := *r
	out.EndAt = clonePtr(r.EndAt)
	if r.Track != nil {
		out.Track = make([]TrackPoint, len(r.Track))
		for i, p := range r.Track {
			out.Track[i] = p.Clone()
		}
	}
	if r.Waypoints != nil {
		out.Waypoints = append([]Waypoint(nil), r.Waypoints...)
	}
	return &out
}

func (p TrackPoint) Clone() TrackPoint {
	p.Speed = clonePtr(p.Speed)
	p.Bearing = clonePtr(p.Bearing)
	p.Accuracy = clonePtr(p.Accuracy)
	return p
}

func (t SyncTask) Clone() SyncTask {
	t.Route = t.Route.Clone()
	if t.RouteIDs != nil {
		t.RouteIDs = append([]string(nil), t.RouteIDs...)
	}
	return t
}

func CloneRoutes(routes []Route) []Route {
	if routes == nil {
		return nil
	}
	out := make([]Route, len(routes))
	for i := range routes {
		out[i] = *routes[i].Clone()
	}
	return out
}

func (s State) Clone() State {
	out := State{
		Routes:      CloneRoutes(s.Routes),
		ActiveDraft: s.ActiveDraft.Clone(),
	}
	if s.EditDrafts != nil {
		out.EditDrafts = make(map[string]MetadataPatch, len(s.EditDrafts))
		for id, p := range s.EditDrafts {
			out.EditDrafts[id] = p.Clone()
		}
	}
	if s.Undo != nil {
		out.Undo = make(map[string]UndoState, len(s.Undo))
		for id, u := range s.Undo {
			out.Undo[id] = u.Clone()
		}
	}
	if s.SyncQueue != nil {
		out.SyncQueue = make([]SyncTask, len(s.SyncQueue))
		for i, t := range s.SyncQueue {
			out.SyncQueue[i] = t.Clone()
		}
	}
	return out
}

func (s State) IsEmpty() bool {
	return len(s.Routes) == 0 && s.ActiveDraft == nil && len(s.EditDrafts) == 0 &&
		len(s.Undo) == 0 && len(s.SyncQueue) == 0
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

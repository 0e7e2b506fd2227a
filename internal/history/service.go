package history

import (
	"context"
	"strings"
	"time"

	"backend-triplog/internal/route"
	"backend-triplog/internal/routestore"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type Service struct {
	store *routestore.Store
	now   func() time.Time
}

func NewService(store *routestore.Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) List(f Filter) []route.Route {
	all := s.store.Routes()
	out := make([]route.Route, 0, len(all))
	for _, r := range all {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Service) Get(id string) (route.Route, error) {
	r, ok := s.store.Route(id)
	if !ok || r.IsActive() {
		return route.Route{}, ErrNotFound
	}
	return r, nil
}

func (s *Service) Summary(f Filter) Summary {
	sum := Summary{ByType: map[string]int{}}
	for _, r := range s.List(f) {
		sum.Count++
		sum.DistanceMeters += r.Distance
		sum.DurationMs += r.DurationMs
		sum.ByType[r.Metadata.Type]++
	}
	return sum
}

func (s *Service) EditDraft(id string) (route.MetadataPatch, bool) {
	return s.store.EditDraft(id)
}

// SetEditDraft stores an uncommitted patch. An empty patch discards the
// pending edit.
func (s *Service) SetEditDraft(id string, patch route.MetadataPatch) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	if patch.IsEmpty() {
		s.store.SetEditDraft(id, nil)
		return nil
	}
	s.store.SetEditDraft(id, &patch)
	return nil
}

// Commit applies the pending edit, saving the previous metadata for undo and
// clearing redo.
func (s *Service) Commit(id string) (route.Route, error) {
	r, err := s.Get(id)
	if err != nil {
		return route.Route{}, err
	}
	patch, ok := s.store.EditDraft(id)
	if !ok {
		return route.Route{}, ErrNoDraft
	}

	undo := s.store.UndoState(id)
	undo.Undo = append(undo.Undo, route.SnapshotOf(r.Metadata))
	undo.Redo = nil
	r.Metadata = patch.Apply(r.Metadata)

	s.store.SaveUndoState(id, undo)
	s.store.SetEditDraft(id, nil)
	return s.save(r), nil
}

func (s *Service) Undo(id string) (route.Route, error) {
	r, err := s.Get(id)
	if err != nil {
		return route.Route{}, err
	}
	state := s.store.UndoState(id)
	if len(state.Undo) == 0 {
		return route.Route{}, ErrNothingToUndo
	}
	prev := state.Undo[len(state.Undo)-1]
	state.Undo = state.Undo[:len(state.Undo)-1]
	state.Redo = append(state.Redo, route.SnapshotOf(r.Metadata))
	r.Metadata = prev.Apply(r.Metadata)

	s.store.SaveUndoState(id, state)
	return s.save(r), nil
}

func (s *Service) Redo(id string) (route.Route, error) {
	r, err := s.Get(id)
	if err != nil {
		return route.Route{}, err
	}
	state := s.store.UndoState(id)
	if len(state.Redo) == 0 {
		return route.Route{}, ErrNothingToRedo
	}
	next := state.Redo[len(state.Redo)-1]
	state.Redo = state.Redo[:len(state.Redo)-1]
	state.Undo = append(state.Undo, route.SnapshotOf(r.Metadata))
	r.Metadata = next.Apply(r.Metadata)

	s.store.SaveUndoState(id, state)
	return s.save(r), nil
}

func (s *Service) Delete(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	s.store.RemoveRoute(id)
	if _, ok := s.store.EditDraft(id); ok {
		s.store.SetEditDraft(id, nil)
	}
	return nil
}

// GeoJSON renders the route as a track LineString plus one Point per
// waypoint.
func (s *Service) GeoJSON(id string) (*geojson.FeatureCollection, error) {
	r, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	if len(r.Track) >= 2 {
		line := make(orb.LineString, 0, len(r.Track))
		for _, p := range r.Track {
			line = append(line, orb.Point{p.Lon, p.Lat})
		}
		f := geojson.NewFeature(line)
		f.ID = r.ID
		f.Properties["kind"] = "track"
		f.Properties["name"] = r.Metadata.Name
		f.Properties["type"] = r.Metadata.Type
		f.Properties["distance_m"] = r.Distance
		f.Properties["start_at"] = r.StartAt
		fc.Append(f)
	}
	for _, w := range r.Waypoints {
		f := geojson.NewFeature(orb.Point{w.Lon, w.Lat})
		f.ID = w.ID
		f.Properties["kind"] = "waypoint"
		f.Properties["memo"] = w.Memo
		f.Properties["time"] = w.Time
		fc.Append(f)
	}
	return fc, nil
}

func (s *Service) SyncQueue() []route.SyncTask {
	return s.store.SyncQueue()
}

func (s *Service) Reconnect(ctx context.Context) int {
	return s.store.Reconnect(ctx)
}

func (s *Service) save(r route.Route) route.Route {
	r.UpdatedAt = s.now().UnixMilli()
	s.store.UpsertRoute(r)
	return r
}

func (f Filter) matches(r route.Route) bool {
	if f.Type != "" && !strings.EqualFold(f.Type, r.Metadata.Type) {
		return false
	}
	if f.From > 0 && r.StartAt < f.From {
		return false
	}
	if f.To > 0 && r.StartAt > f.To {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		m := r.Metadata
		text := strings.ToLower(strings.Join([]string{m.Name, m.Memo, m.StartNote, m.EndNote}, "\n"))
		if !strings.Contains(text, q) {
			return false
		}
	}
	return true
}

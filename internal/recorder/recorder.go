package recorder

import (
	"context"
	"log"
	"sync"
	"time"

	"backend-triplog/internal/geocode"
	"backend-triplog/internal/route"
	"backend-triplog/internal/shared/geo"

	"github.com/google/uuid"
)

const (
	DefaultRouteType = "delivery"
	StartPointMemo   = "start point"
)

// Store is the persistence the recorder needs from the route store.
type Store interface {
	ActiveDraft() *route.Route
	SaveActiveDraft(r *route.Route)
	UpsertRoute(r route.Route)
}

// Deps are the optional collaborators. A nil Geolocation makes Start fail;
// every other nil collaborator disables its behaviour.
type Deps struct {
	Geolocation Geolocation
	Permissions Permissions
	WakeLock    WakeLock
	Crash       CrashReporter
	Geocoder    Geocoder
	Prompt      NamePrompt
	Policy      *Policy
	Watch       WatchOptions
	Clock       func() time.Time
}

type Recorder struct {
	store  Store
	deps   Deps
	policy Policy
	now    func() time.Time

	mu       sync.Mutex
	status   route.Status
	active   *route.Route
	watchID  WatchID
	watching bool
	gen      uint64
	restored bool

	wakeWanted bool
	sentinel   Sentinel

	pending sync.WaitGroup
}

func New(store Store, deps Deps) *Recorder {
	r := &Recorder{
		store:  store,
		deps:   deps,
		policy: DefaultPolicy(),
		now:    time.Now,
		status: route.StatusIdle,
	}
	if deps.Policy != nil {
		r.policy = *deps.Policy
	}
	if deps.Clock != nil {
		r.now = deps.Clock
	}
	if r.deps.Watch == (WatchOptions{}) {
		r.deps.Watch = DefaultWatchOptions
	}
	return r
}

func (r *Recorder) State() route.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Active returns a copy of the route being recorded, or nil.
func (r *Recorder) Active() *route.Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active.Clone()
}

// Start begins a new route. A denied permission returns ErrPermissionDenied
// and leaves the recorder idle; show PermissionHelp to the user.
func (r *Recorder) Start(ctx context.Context) (route.Route, error) {
	if err := r.checkIdle(); err != nil {
		return route.Route{}, err
	}
	if r.deps.Geolocation == nil {
		return route.Route{}, ErrGeolocationUnavailable
	}
	if r.deps.Permissions != nil {
		state, err := r.deps.Permissions.Query(ctx, "geolocation")
		if err != nil {
			log.Printf("recorder: permission query failed, continuing: %v", err)
		} else if state == PermissionDenied {
			return route.Route{}, ErrPermissionDenied
		}
	}

	r.mu.Lock()
	if err := r.idleErrLocked(); err != nil {
		r.mu.Unlock()
		return route.Route{}, err
	}
	now := r.now()
	ms := now.UnixMilli()
	r.active = &route.Route{
		ID:        uuid.NewString(),
		Status:    route.StatusRecording,
		StartAt:   ms,
		CreatedAt: ms,
		UpdatedAt: ms,
		Track:     []route.TrackPoint{},
		Waypoints: []route.Waypoint{},
		Metadata: route.Metadata{
			Type: DefaultRouteType,
			Name: "Trip " + now.Format("2006-01-02 15:04"),
		},
	}
	r.status = route.StatusRecording
	r.restored = true
	r.store.SaveActiveDraft(r.active)
	r.armWatchLocked()
	r.wakeWanted = true
	started := *r.active.Clone()
	r.mu.Unlock()

	r.acquireWakeLock(ctx)
	log.Printf("recorder: started route %s", started.ID)
	return started, nil
}

func (r *Recorder) Pause() error {
	r.mu.Lock()
	if r.status != route.StatusRecording {
		r.mu.Unlock()
		return ErrNotRecording
	}
	r.disarmWatchLocked()
	r.status = route.StatusPaused
	r.active.Status = route.StatusPaused
	r.active.UpdatedAt = r.now().UnixMilli()
	r.store.SaveActiveDraft(r.active)
	r.mu.Unlock()

	r.releaseWakeLock()
	return nil
}

func (r *Recorder) Resume(ctx context.Context) error {
	r.mu.Lock()
	if r.status != route.StatusPaused {
		r.mu.Unlock()
		return ErrNotPaused
	}
	r.status = route.StatusRecording
	r.active.Status = route.StatusRecording
	r.active.UpdatedAt = r.now().UnixMilli()
	r.store.SaveActiveDraft(r.active)
	r.armWatchLocked()
	r.wakeWanted = true
	r.mu.Unlock()

	r.acquireWakeLock(ctx)
	return nil
}

// Stop finalizes the active route, commits it to the store and returns the
// recorder to idle. An empty name falls back to the prompt, then to the
// generated default.
func (r *Recorder) Stop(ctx context.Context, name string) (route.Route, error) {
	r.mu.Lock()
	switch {
	case r.status == route.StatusCompleted:
		r.mu.Unlock()
		return route.Route{}, ErrBusy
	case !r.status.IsActive() || r.active == nil:
		r.mu.Unlock()
		return route.Route{}, ErrNoActiveRoute
	}
	r.disarmWatchLocked()
	r.status = route.StatusCompleted
	final := *r.active.Clone()
	r.mu.Unlock()

	r.releaseWakeLock()

	end := r.now().UnixMilli()
	final.EndAt = &end
	final.DurationMs = max(0, end-final.StartAt)
	if first := final.FirstPoint(); first != nil && final.Metadata.StartNote == "" {
		final.Metadata.StartNote = r.placeLabel(ctx, first.Lat, first.Lon)
	}
	if last := final.LastPoint(); last != nil && final.Metadata.EndNote == "" {
		final.Metadata.EndNote = r.placeLabel(ctx, last.Lat, last.Lon)
	}
	if name == "" && r.deps.Prompt != nil {
		name = r.deps.Prompt(ctx, final.Metadata.Name)
	}
	if name != "" {
		final.Metadata.Name = name
	}
	final.Status = route.StatusCompleted
	final.UpdatedAt = end

	r.store.UpsertRoute(final)
	routesCompletedTotal.Inc()

	r.mu.Lock()
	if r.active != nil && r.active.ID == final.ID {
		r.store.SaveActiveDraft(nil)
		r.active = nil
		r.status = route.StatusIdle
	}
	r.mu.Unlock()

	log.Printf("recorder: completed route %s (%d points, %.0f m)", final.ID, len(final.Track), final.Distance)
	return final, nil
}

// RestoreDraft resumes a persisted draft after a restart. It runs at most
// once per recorder and reports whether a draft was adopted.
func (r *Recorder) RestoreDraft(ctx context.Context) bool {
	r.mu.Lock()
	if r.restored || r.status != route.StatusIdle {
		r.mu.Unlock()
		return false
	}
	draft := r.store.ActiveDraft()
	if draft == nil || !draft.IsActive() {
		r.mu.Unlock()
		return false
	}
	r.restored = true
	r.active = draft
	r.status = draft.Status
	recording := r.status == route.StatusRecording
	if recording {
		r.armWatchLocked()
		r.wakeWanted = true
	}
	r.mu.Unlock()

	if recording {
		r.acquireWakeLock(ctx)
	}
	log.Printf("recorder: restored %s route %s with %d points", draft.Status, draft.ID, len(draft.Track))
	return true
}

// AddWaypoint drops a waypoint at the last recorded fix.
func (r *Recorder) AddWaypoint(memo string) (route.Waypoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || !r.status.IsActive() {
		return route.Waypoint{}, ErrNoActiveRoute
	}
	last := r.active.LastPoint()
	if last == nil {
		return route.Waypoint{}, ErrNoFix
	}
	now := r.now().UnixMilli()
	wp := route.Waypoint{ID: uuid.NewString(), Lat: last.Lat, Lon: last.Lon, Time: now, Memo: memo}
	r.active.Waypoints = append(r.active.Waypoints, wp)
	r.active.UpdatedAt = now
	r.store.SaveActiveDraft(r.active)
	return wp, nil
}

// Wait blocks until background lookups and wake lock reacquisition finish.
func (r *Recorder) Wait() {
	r.pending.Wait()
}

func (r *Recorder) checkIdle() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idleErrLocked()
}

func (r *Recorder) idleErrLocked() error {
	switch r.status {
	case route.StatusIdle:
		return nil
	case route.StatusCompleted:
		return ErrBusy
	default:
		return ErrAlreadyActive
	}
}

func (r *Recorder) armWatchLocked() {
	r.disarmWatchLocked()
	gen := r.gen
	id, err := r.deps.Geolocation.Watch(
		func(p Position) { r.onPosition(gen, p) },
		func(err error) { r.onWatchError(gen, err) },
		r.deps.Watch,
	)
	if err != nil {
		r.capture(err, map[string]any{"stage": "watch"})
		return
	}
	r.watchID = id
	r.watching = true
}

// disarmWatchLocked bumps the generation so callbacks from the cleared watch
// are dropped.
func (r *Recorder) disarmWatchLocked() {
	r.gen++
	if r.watching && r.deps.Geolocation != nil {
		r.deps.Geolocation.ClearWatch(r.watchID)
	}
	r.watching = false
}

func (r *Recorder) onPosition(gen uint64, p Position) {
	r.mu.Lock()
	if gen != r.gen || r.status != route.StatusRecording || r.active == nil {
		r.mu.Unlock()
		fixesTotal.WithLabelValues("stale").Inc()
		return
	}
	last := r.active.LastPoint()
	if !r.policy.ShouldRecord(last, p) {
		r.mu.Unlock()
		fixesTotal.WithLabelValues("rejected").Inc()
		return
	}
	first := last == nil
	r.commitLocked(last, p)
	id := r.active.ID
	lookup := first && r.active.Metadata.StartNote == "" && r.deps.Geocoder != nil
	r.store.SaveActiveDraft(r.active)
	r.mu.Unlock()

	fixesTotal.WithLabelValues("accepted").Inc()
	if lookup {
		r.pending.Add(1)
		go r.lookupStart(id, p.Lat, p.Lon)
	}
}

func (r *Recorder) commitLocked(last *route.TrackPoint, p Position) {
	point := route.TrackPoint{
		Lat:      p.Lat,
		Lon:      p.Lon,
		Time:     p.Time,
		Speed:    p.Speed,
		Accuracy: p.Accuracy,
		Source:   route.SourceGPS,
	}
	var d float64
	if last != nil {
		d = geo.DistanceMeters(last.Lat, last.Lon, p.Lat, p.Lon)
	}
	if b, ok := fixBearing(last, p, d); ok {
		point.Bearing = &b
	}

	var points []route.TrackPoint
	if last != nil {
		points = r.policy.Interpolate(*last, point)
		interpolatedPointsTotal.Add(float64(len(points)))
	}
	points = append(points, point)
	for _, tp := range points {
		r.appendPointLocked(tp)
	}

	if len(r.active.Waypoints) == 0 {
		r.active.Waypoints = append(r.active.Waypoints, route.Waypoint{
			ID:   uuid.NewString(),
			Lat:  point.Lat,
			Lon:  point.Lon,
			Time: point.Time,
			Memo: StartPointMemo,
		})
	}
	now := r.now().UnixMilli()
	r.active.UpdatedAt = now
	r.active.DurationMs = max(0, now-r.active.StartAt)
}

func (r *Recorder) appendPointLocked(tp route.TrackPoint) {
	if prev := r.active.LastPoint(); prev != nil {
		if d := geo.DistanceMeters(prev.Lat, prev.Lon, tp.Lat, tp.Lon); d > 0 {
			r.active.Distance += d
		}
	}
	r.active.Track = append(r.active.Track, tp)
}

func (r *Recorder) onWatchError(gen uint64, err error) {
	watchErrorsTotal.Inc()
	r.capture(err, map[string]any{"stage": "position", "generation": gen})
}

// lookupStart fills the start note unless the route moved on meanwhile.
func (r *Recorder) lookupStart(id string, lat, lon float64) {
	defer r.pending.Done()
	label, err := r.deps.Geocoder.Reverse(context.Background(), lat, lon)
	if err != nil || label == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || r.active.ID != id || !r.status.IsActive() || r.active.Metadata.StartNote != "" {
		return
	}
	r.active.Metadata.StartNote = label
	r.store.SaveActiveDraft(r.active)
}

func (r *Recorder) placeLabel(ctx context.Context, lat, lon float64) string {
	if r.deps.Geocoder != nil {
		if label, err := r.deps.Geocoder.Reverse(ctx, lat, lon); err == nil && label != "" {
			return label
		}
	}
	return geocode.Label(lat, lon)
}

func (r *Recorder) capture(err error, ctx map[string]any) {
	if r.deps.Crash == nil {
		log.Printf("recorder: %v", err)
		return
	}
	r.deps.Crash.Capture(err, ctx)
}

func (r *Recorder) acquireWakeLock(ctx context.Context) {
	if r.deps.WakeLock == nil {
		return
	}
	r.mu.Lock()
	if !r.wakeWanted || r.sentinel != nil {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	s, err := r.deps.WakeLock.Request(ctx, "screen")
	if err != nil {
		log.Printf("recorder: wake lock unavailable: %v", err)
		return
	}

	r.mu.Lock()
	if !r.wakeWanted || r.sentinel != nil {
		r.mu.Unlock()
		_ = s.Release()
		return
	}
	r.sentinel = s
	r.mu.Unlock()

	s.OnRelease(func() { r.onWakeReleased(s) })
}

// onWakeReleased reacquires the lock when it was dropped externally while
// the recorder still wants it.
func (r *Recorder) onWakeReleased(s Sentinel) {
	r.mu.Lock()
	if r.sentinel == s {
		r.sentinel = nil
	}
	again := r.wakeWanted && r.sentinel == nil
	r.mu.Unlock()

	if again {
		r.pending.Add(1)
		go func() {
			defer r.pending.Done()
			r.acquireWakeLock(context.Background())
		}()
	}
}

func (r *Recorder) releaseWakeLock() {
	r.mu.Lock()
	s := r.sentinel
	r.sentinel = nil
	r.wakeWanted = false
	r.mu.Unlock()

	if s != nil {
		if err := s.Release(); err != nil {
			log.Printf("recorder: wake lock release: %v", err)
		}
	}
}

package route

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRecording Status = "recording"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

type Source string

const (
	SourceGPS          Source = "gps"
	SourceInterpolated Source = "interpolated"
)

// TrackPoint times are epoch milliseconds.
type TrackPoint struct {
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Time     int64    `json:"time"`
	Speed    *float64 `json:"speed"`
	Bearing  *float64 `json:"bearing"`
	Accuracy *float64 `json:"accuracy"`
	Source   Source   `json:"source"`
}

type Waypoint struct {
	ID   string  `json:"id"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Time int64   `json:"time"`
	Memo string  `json:"memo"`
}

type Metadata struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	Memo      string `json:"memo"`
	StartNote string `json:"startNote"`
	EndNote   string `json:"endNote"`
}

type Route struct {
	ID         string       `json:"id"`
	Status     Status       `json:"status"`
	StartAt    int64        `json:"startAt"`
	EndAt      *int64       `json:"endAt"`
	DurationMs int64        `json:"durationMs"`
	CreatedAt  int64        `json:"createdAt"`
	UpdatedAt  int64        `json:"updatedAt"`
	Distance   float64      `json:"distance"`
	Track      []TrackPoint `json:"track"`
	Waypoints  []Waypoint   `json:"waypoints"`
	Metadata   Metadata     `json:"metadata"`
}

type SyncType string

const (
	SyncUpsert  SyncType = "upsert"
	SyncReplace SyncType = "replace"
	SyncDelete  SyncType = "delete"
)

type SyncTask struct {
	Type     SyncType `json:"type"`
	RouteID  string   `json:"routeId,omitempty"`
	RouteIDs []string `json:"routeIds,omitempty"`
	Route    *Route   `json:"route,omitempty"`
	QueuedAt int64    `json:"queuedAt"`
}

// State is the snapshot mirrored to the background agent.
type State struct {
	Routes      []Route                  `json:"routes"`
	ActiveDraft *Route                   `json:"activeDraft"`
	EditDrafts  map[string]MetadataPatch `json:"editDrafts"`
	Undo        map[string]UndoState     `json:"undo"`
	SyncQueue   []SyncTask               `json:"syncQueue"`
}

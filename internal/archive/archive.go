// Package archive keeps the server-side copy of completed routes in
// Postgres/PostGIS. The background agent writes to it when it drains the
// sync queue.
package archive

import (
	"context"
	"fmt"
	"time"

	"backend-triplog/internal/db"
	"backend-triplog/internal/route"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

const Schema = `
CREATE EXTENSION IF NOT EXISTS postgis;
CREATE TABLE IF NOT EXISTS routes (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	route_type  TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL DEFAULT '',
	memo        TEXT NOT NULL DEFAULT '',
	start_note  TEXT NOT NULL DEFAULT '',
	end_note    TEXT NOT NULL DEFAULT '',
	start_at    TIMESTAMPTZ NOT NULL,
	end_at      TIMESTAMPTZ,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	distance_m  DOUBLE PRECISION NOT NULL DEFAULT 0,
	track       GEOGRAPHY(LINESTRING, 4326),
	payload     JSONB NOT NULL,
	synced_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`

type Archive struct {
	db db.Querier
}

func New(q db.Querier) *Archive {
	return &Archive{db: q}
}

func (a *Archive) Migrate(ctx context.Context) error {
	_, err := a.db.Exec(ctx, Schema)
	return err
}

// SaveRoute upserts r. Routes with fewer than two points are stored without
// a track geometry.
func (a *Archive) SaveRoute(ctx context.Context, r route.Route) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode route %s: %w", r.ID, err)
	}
	var endAt *time.Time
	if r.EndAt != nil {
		t := time.UnixMilli(*r.EndAt).UTC()
		endAt = &t
	}
	m := r.Metadata

	_, err = a.db.Exec(ctx, `
		INSERT INTO routes (id, status, route_type, name, memo, start_note, end_note, start_at, end_at, duration_ms, distance_m, track, payload, synced_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, ST_GeogFromText($12), $13, now())
		ON CONFLICT (id) DO UPDATE SET
			status=EXCLUDED.status, route_type=EXCLUDED.route_type, name=EXCLUDED.name, memo=EXCLUDED.memo,
			start_note=EXCLUDED.start_note, end_note=EXCLUDED.end_note, start_at=EXCLUDED.start_at,
			end_at=EXCLUDED.end_at, duration_ms=EXCLUDED.duration_ms, distance_m=EXCLUDED.distance_m,
			track=EXCLUDED.track, payload=EXCLUDED.payload, synced_at=now()
	`, r.ID, string(r.Status), m.Type, m.Name, m.Memo, m.StartNote, m.EndNote,
		time.UnixMilli(r.StartAt).UTC(), endAt, r.DurationMs, r.Distance, TrackWKT(r.Track), payload)
	if err != nil {
		return fmt.Errorf("save route %s: %w", r.ID, err)
	}
	return nil
}

func (a *Archive) DeleteRoute(ctx context.Context, id string) error {
	if _, err := a.db.Exec(ctx, `DELETE FROM routes WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete route %s: %w", id, err)
	}
	return nil
}

// ReplaceRoutes drops every archived route not listed in ids, then upserts
// the given routes.
func (a *Archive) ReplaceRoutes(ctx context.Context, ids []string, routes []route.Route) error {
	if ids == nil {
		ids = []string{}
	}
	if _, err := a.db.Exec(ctx, `DELETE FROM routes WHERE NOT (id = ANY($1))`, ids); err != nil {
		return fmt.Errorf("replace routes: %w", err)
	}
	for _, r := range routes {
		if err := a.SaveRoute(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Count returns how many routes are archived.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRow(ctx, `SELECT COUNT(*) FROM routes`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// TrackWKT encodes the track as a WKT LineString, or nil when it has fewer
// than two points.
func TrackWKT(track []route.TrackPoint) *string {
	if len(track) < 2 {
		return nil
	}
	line := make(orb.LineString, 0, len(track))
	for _, p := range track {
		line = append(line, orb.Point{p.Lon, p.Lat})
	}
	s := wkt.MarshalString(line)
	return &s
}

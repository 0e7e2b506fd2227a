package recorder

import (
	"math"
	"testing"

	"backend-triplog/internal/route"
	"backend-triplog/internal/shared/geo"

	"pgregory.net/rapid"
)

// north returns lat moved the given meters along its meridian.
func north(lat, meters float64) float64 {
	return lat + meters/geo.EarthRadiusMeters*180/math.Pi
}

func ptr(v float64) *float64 { return &v }

func TestShouldRecordThresholds(t *testing.T) {
	p := DefaultPolicy()
	last := &route.TrackPoint{Lat: 35, Lon: 139, Time: 1000, Bearing: ptr(0), Source: route.SourceGPS}

	cases := []struct {
		name string
		fix  Position
		want bool
	}{
		{"same place same time", Position{Lat: 35, Lon: 139, Time: 1000}, false},
		{"far enough", Position{Lat: north(35, 40), Lon: 139, Time: 1000}, true},
		{"late enough", Position{Lat: north(35, 10), Lon: 139, Time: 13000}, true},
		{"turned by heading", Position{Lat: north(35, 5), Lon: 139, Time: 2000, Heading: ptr(20)}, true},
		{"small turn", Position{Lat: north(35, 5), Lon: 139, Time: 2000, Heading: ptr(10)}, false},
		{"turn across north", Position{Lat: 35, Lon: 139, Time: 2000, Heading: ptr(350)}, false},
		{"computed bearing", Position{Lat: 35, Lon: 139.0002, Time: 2000}, true},
		{"earlier timestamp", Position{Lat: 35, Lon: 139, Time: 500}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.ShouldRecord(last, tc.fix); got != tc.want {
				t.Fatalf("ShouldRecord = %v, want %v", got, tc.want)
			}
		})
	}

	if !p.ShouldRecord(nil, Position{Lat: 35, Lon: 139}) {
		t.Fatalf("first fix must be accepted")
	}
	noBearing := &route.TrackPoint{Lat: 35, Lon: 139, Time: 1000}
	if p.ShouldRecord(noBearing, Position{Lat: 35, Lon: 139, Time: 2000, Heading: ptr(90)}) {
		t.Fatalf("turn without a previous bearing must not count")
	}
}

func TestInterpolateMidpoint(t *testing.T) {
	p := DefaultPolicy()
	prev := route.TrackPoint{Lat: 35, Lon: 139, Time: 0, Source: route.SourceGPS}
	next := route.TrackPoint{Lat: north(35, 1000), Lon: 139, Time: 70000, Source: route.SourceGPS}

	points := p.Interpolate(prev, next)
	if len(points) != 1 {
		t.Fatalf("expected one synthetic point, got %d", len(points))
	}
	mid := points[0]
	if math.Abs(mid.Lat-north(35, 500)) > 1e-9 || mid.Lon != 139 || mid.Time != 35000 {
		t.Fatalf("unexpected midpoint %+v", mid)
	}
	if mid.Source != route.SourceInterpolated || mid.Speed != nil || mid.Accuracy != nil {
		t.Fatalf("synthetic point carries real-fix fields: %+v", mid)
	}
	if mid.Bearing == nil || geo.AngleDelta(*mid.Bearing, 0) > 1e-6 {
		t.Fatalf("expected northbound bearing")
	}
}

func TestInterpolateSkipsShortOrFastHops(t *testing.T) {
	p := DefaultPolicy()
	prev := route.TrackPoint{Lat: 35, Lon: 139, Time: 0}

	if got := p.Interpolate(prev, route.TrackPoint{Lat: north(35, 400), Lon: 139, Time: 70000}); got != nil {
		t.Fatalf("400 m hop must not interpolate: %+v", got)
	}
	if got := p.Interpolate(prev, route.TrackPoint{Lat: north(35, 5000), Lon: 139, Time: 30000}); got != nil {
		t.Fatalf("fast hop must not interpolate: %+v", got)
	}
	if got := p.Interpolate(prev, route.TrackPoint{Lat: north(35, 600), Lon: 139, Time: 70000}); got != nil {
		t.Fatalf("single segment gap must not interpolate: %+v", got)
	}
	if got := p.Interpolate(prev, route.TrackPoint{Lat: north(35, 9000), Lon: 139, Time: 70000}); len(got) != 2 {
		t.Fatalf("long gap must be capped at two points, got %d", len(got))
	}
}

func TestInterpolateProperties(t *testing.T) {
	p := DefaultPolicy()
	rapid.Check(t, func(t *rapid.T) {
		prev := route.TrackPoint{
			Lat:  rapid.Float64Range(-60, 60).Draw(t, "lat"),
			Lon:  rapid.Float64Range(-170, 170).Draw(t, "lon"),
			Time: rapid.Int64Range(0, 1e12).Draw(t, "time"),
		}
		next := route.TrackPoint{
			Lat:  prev.Lat + rapid.Float64Range(-0.05, 0.05).Draw(t, "dlat"),
			Lon:  prev.Lon + rapid.Float64Range(-0.05, 0.05).Draw(t, "dlon"),
			Time: prev.Time + rapid.Int64Range(-1000, 600000).Draw(t, "dt"),
		}

		points := p.Interpolate(prev, next)
		if len(points) > p.MaxGapSegments-1 {
			t.Fatalf("too many synthetic points: %d", len(points))
		}
		at := prev.Time
		for _, pt := range points {
			if pt.Time < at || pt.Time > next.Time {
				t.Fatalf("synthetic time %d outside gap [%d, %d]", pt.Time, prev.Time, next.Time)
			}
			at = pt.Time
		}
	})
}

package recorder

import (
	"math"

	"backend-triplog/internal/route"
	"backend-triplog/internal/shared/geo"
)

// Policy decides which raw fixes become track points and how long gaps are
// filled.
type Policy struct {
	MinDistanceMeters float64
	MinIntervalMs     int64
	MinBearingDelta   float64
	GapDistanceMeters float64
	GapIntervalMs     int64
	MaxGapSegments    int
}

func DefaultPolicy() Policy {
	return Policy{
		MinDistanceMeters: 35,
		MinIntervalMs:     12000,
		MinBearingDelta:   15,
		GapDistanceMeters: 500,
		GapIntervalMs:     60000,
		MaxGapSegments:    3,
	}
}

// ShouldRecord reports whether p is far enough, late enough or turned enough
// from last. The first fix of a route is always accepted.
func (p Policy) ShouldRecord(last *route.TrackPoint, fix Position) bool {
	if last == nil {
		return true
	}
	d := geo.DistanceMeters(last.Lat, last.Lon, fix.Lat, fix.Lon)
	if d >= p.MinDistanceMeters {
		return true
	}
	if fix.Time-last.Time >= p.MinIntervalMs {
		return true
	}
	if last.Bearing == nil {
		return false
	}
	bearing, ok := fixBearing(last, fix, d)
	if !ok {
		return false
	}
	return geo.AngleDelta(*last.Bearing, bearing) >= p.MinBearingDelta
}

// Interpolate returns the synthetic points to insert between prev and next,
// or nil when the hop is not a gap.
func (p Policy) Interpolate(prev, next route.TrackPoint) []route.TrackPoint {
	d := geo.DistanceMeters(prev.Lat, prev.Lon, next.Lat, next.Lon)
	dt := next.Time - prev.Time
	if d < p.GapDistanceMeters || dt < p.GapIntervalMs {
		return nil
	}
	segments := int(math.Round(d / p.GapDistanceMeters))
	segments = max(1, min(segments, p.MaxGapSegments))
	if segments < 2 {
		return nil
	}

	bearing := geo.BearingDegrees(prev.Lat, prev.Lon, next.Lat, next.Lon)
	out := make([]route.TrackPoint, 0, segments-1)
	for i := 1; i < segments; i++ {
		f := float64(i) / float64(segments)
		b := bearing
		out = append(out, route.TrackPoint{
			Lat:     geo.Lerp(prev.Lat, next.Lat, f),
			Lon:     geo.Lerp(prev.Lon, next.Lon, f),
			Time:    prev.Time + int64(math.Round(f*float64(dt))),
			Bearing: &b,
			Source:  route.SourceInterpolated,
		})
	}
	return out
}

// fixBearing prefers the reported heading and falls back to the bearing from
// last when the fix has moved.
func fixBearing(last *route.TrackPoint, fix Position, d float64) (float64, bool) {
	if fix.Heading != nil && !math.IsNaN(*fix.Heading) {
		return *fix.Heading, true
	}
	if last == nil || d <= 0 {
		return 0, false
	}
	return geo.BearingDegrees(last.Lat, last.Lon, fix.Lat, fix.Lon), true
}

package recorder

import (
	"context"
	"errors"
)

// Position is one raw fix reported by the device.
type Position struct {
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Time     int64    `json:"time"`
	Speed    *float64 `json:"speed,omitempty"`
	Heading  *float64 `json:"heading,omitempty"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

type WatchOptions struct {
	EnableHighAccuracy bool
	MaximumAge         int64
	Timeout            int64
}

var DefaultWatchOptions = WatchOptions{EnableHighAccuracy: true, MaximumAge: 0, Timeout: 20000}

type WatchID int64

// Geolocation delivers fixes asynchronously. Watch must not invoke either
// callback before it returns. ClearWatch is safe to call more than once.
type Geolocation interface {
	Watch(onPosition func(Position), onError func(error), opts WatchOptions) (WatchID, error)
	ClearWatch(id WatchID)
}

type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
)

type Permissions interface {
	Query(ctx context.Context, name string) (PermissionState, error)
}

// Sentinel is a held wake lock. OnRelease fires when the lock is dropped,
// whether by Release or externally.
type Sentinel interface {
	Release() error
	OnRelease(fn func())
}

type WakeLock interface {
	Request(ctx context.Context, kind string) (Sentinel, error)
}

type CrashReporter interface {
	Capture(err error, fields map[string]any)
}

type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// NamePrompt asks for the final route name. An empty answer keeps suggested.
type NamePrompt func(ctx context.Context, suggested string) string

const PermissionHelp = "Location access is blocked. Allow location for this app in the device settings, then start the trip again."

var (
	ErrGeolocationUnavailable = errors.New("geolocation is not available on this device")
	ErrPermissionDenied       = errors.New("location permission denied")
	ErrAlreadyActive          = errors.New("a route is already being recorded")
	ErrBusy                   = errors.New("previous route is still being saved")
	ErrNotRecording           = errors.New("recorder is not recording")
	ErrNotPaused              = errors.New("recorder is not paused")
	ErrNoActiveRoute          = errors.New("no active route")
	ErrNoFix                  = errors.New("no position recorded yet")
)

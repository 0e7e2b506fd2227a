package device

import (
	"context"

	"backend-triplog/internal/recorder"
)

// StaticPermissions answers every query with the configured state.
type StaticPermissions struct {
	State recorder.PermissionState
	Err   error
}

func (p StaticPermissions) Query(context.Context, string) (recorder.PermissionState, error) {
	if p.Err != nil {
		return "", p.Err
	}
	if p.State == "" {
		return recorder.PermissionPrompt, nil
	}
	return p.State, nil
}

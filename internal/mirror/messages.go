package mirror

import (
	"errors"
	"fmt"

	"backend-triplog/internal/route"

	"github.com/goccy/go-json"
)

const DefaultNamespace = "triplog-sync"

type MessageType string

const (
	TypeStateUpdate   MessageType = "STATE_UPDATE"
	TypeStateRequest  MessageType = "STATE_REQUEST"
	TypeStateResponse MessageType = "STATE_RESPONSE"
	TypeSyncError     MessageType = "SYNC_ERROR"
	TypeSyncComplete  MessageType = "SYNC_COMPLETE"
)

var (
	ErrForeignNamespace = errors.New("message from foreign namespace")
	ErrUnknownType      = errors.New("unknown message type")
	ErrInvalidMessage   = errors.New("invalid message")
)

// Message is one of StateUpdate, StateRequest, StateResponse, SyncError or
// SyncComplete.
type Message interface {
	Type() MessageType
}

type StateUpdate struct {
	State route.State
}

type StateRequest struct {
	RequestID string
}

type StateResponse struct {
	RequestID string
	State     *route.State
}

type SyncError struct {
	Error string
}

type SyncComplete struct {
	Processed int
}

func (StateUpdate) Type() MessageType   { return TypeStateUpdate }
func (StateRequest) Type() MessageType  { return TypeStateRequest }
func (StateResponse) Type() MessageType { return TypeStateResponse }
func (SyncError) Type() MessageType     { return TypeSyncError }
func (SyncComplete) Type() MessageType  { return TypeSyncComplete }

type envelope struct {
	Namespace string       `json:"namespace"`
	Type      MessageType  `json:"type"`
	RequestID string       `json:"requestId,omitempty"`
	State     *route.State `json:"state,omitempty"`
	Error     string       `json:"error,omitempty"`
	Processed *int         `json:"processed,omitempty"`
}

func Encode(namespace string, msg Message) ([]byte, error) {
	env := envelope{Namespace: namespace, Type: msg.Type()}
	switch m := msg.(type) {
	case StateUpdate:
		s := m.State
		env.State = &s
	case StateRequest:
		env.RequestID = m.RequestID
	case StateResponse:
		env.RequestID = m.RequestID
		env.State = m.State
	case SyncError:
		env.Error = m.Error
	case SyncComplete:
		n := m.Processed
		env.Processed = &n
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
	return json.Marshal(env)
}

// Decode validates an inbound envelope. Foreign namespaces and unknown types
// are reported so callers can drop them.
func Decode(namespace string, data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if env.Namespace != namespace {
		return nil, ErrForeignNamespace
	}

	switch env.Type {
	case TypeStateUpdate:
		if env.State == nil {
			return nil, fmt.Errorf("%w: state update without state", ErrInvalidMessage)
		}
		return StateUpdate{State: *env.State}, nil
	case TypeStateRequest:
		if env.RequestID == "" {
			return nil, fmt.Errorf("%w: state request without id", ErrInvalidMessage)
		}
		return StateRequest{RequestID: env.RequestID}, nil
	case TypeStateResponse:
		if env.RequestID == "" {
			return nil, fmt.Errorf("%w: state response without id", ErrInvalidMessage)
		}
		return StateResponse{RequestID: env.RequestID, State: env.State}, nil
	case TypeSyncError:
		return SyncError{Error: env.Error}, nil
	case TypeSyncComplete:
		processed := 0
		if env.Processed != nil {
			processed = *env.Processed
		}
		return SyncComplete{Processed: processed}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

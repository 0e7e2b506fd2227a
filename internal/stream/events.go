package stream

import (
	"log"

	"backend-triplog/internal/route"
	"backend-triplog/internal/routestore"

	"github.com/goccy/go-json"
)

type Notification struct {
	Kind    routestore.EventKind `json:"kind"`
	RouteID string               `json:"route_id,omitempty"`
	Route   *route.Route         `json:"route,omitempty"`
	Task    *route.SyncTask      `json:"task,omitempty"`
}

// Forward broadcasts every store event to TopicRoutes and, when the event
// names a route, to that route's topic.
func Forward(store *routestore.Store, hub *Hub) (unsubscribe func()) {
	return store.Subscribe(func(e routestore.Event) {
		n := Notification{Kind: e.Kind, Route: e.Route, Task: e.Task}
		switch {
		case e.Route != nil:
			n.RouteID = e.Route.ID
		case e.Task != nil:
			n.RouteID = e.Task.RouteID
		}
		payload, err := json.Marshal(n)
		if err != nil {
			log.Printf("stream encode error: %v", err)
			return
		}
		hub.Broadcast(TopicRoutes, payload)
		if n.RouteID != "" {
			hub.Broadcast(n.RouteID, payload)
		}
	})
}

package ecs

import (
	"github.com/phanxgames/arbor"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"
)

// SceneEvent is the ECS-side copy of an arbor.Event. Node ids are used
// instead of pointers so systems cannot reach into the scene graph.
type SceneEvent struct {
	Type     arbor.EventType
	NodeID   string
	NodeName string
	ParentID string
}

// SceneEventType is the Donburi event type for arbor scene events.
var SceneEventType = events.NewEventType[SceneEvent]()

// NewDonburiListener returns a scene listener that publishes every event to
// SceneEventType on world. Events are queued until ProcessEvents runs.
func NewDonburiListener(world donburi.World) arbor.Listener {
	return func(ev arbor.Event) {
		SceneEventType.Publish(world, toSceneEvent(ev))
	}
}

func toSceneEvent(ev arbor.Event) SceneEvent {
	out := SceneEvent{Type: ev.Type}
	if ev.Node != nil {
		out.NodeID = ev.Node.ID
		out.NodeName = ev.Node.Name
	}
	if ev.Parent != nil {
		out.ParentID = ev.Parent.ID
	}
	return out
}

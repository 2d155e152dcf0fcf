// Package ecs provides ECS adapters for arbor scene events.
//
// The primary adapter is [NewDonburiListener], which publishes scene change
// notifications (node added, removed, selected) into a [Donburi] world as
// typed events. Subscribe to [SceneEventType] in your ECS systems to receive
// them.
//
// Usage:
//
//	unsubscribe := scene.Subscribe(ecs.NewDonburiListener(world))
//	defer unsubscribe()
//
// [Donburi]: https://github.com/yohamta/donburi
package ecs

// Package arbor is the runtime core of a scene editor: an ownership tree of
// addressable nodes, a closed set of per-node components with a lifecycle,
// and a sandboxed channel through which user scripts mutate node transforms.
//
// # Quick start
//
//	scene := arbor.NewScene("level-1")
//	cube := scene.CreateNode("MeshNode", "Cube")
//	if err := scene.AddNode(cube, nil); err != nil {
//		log.Fatal(err)
//	}
//	_ = cube.AddComponent(arbor.NewScriptComponent(`[{"cmd":"translate","args":[0,1,0]}]`))
//
//	for range 60 {
//		scene.Update(1.0 / 60)
//	}
//
// To drive the scene from a window, see package host.
//
// # Scene graph
//
// Every element is a [Node]. Nodes form a tree rooted at [Scene.Root]; a
// node has at most one parent and [Node.AddChild] rejects cycles. The
// [Scene] keeps a flat id index over every node reachable from the root and
// notifies listeners registered with [Scene.Subscribe] when nodes are added,
// removed or selected. Linking or unlinking a node under a scene node with
// [Node.AddChild] or [Node.RemoveChild] updates that index as well.
// [Scene.RemoveNode] takes the whole subtree out of the index but leaves the
// subtree itself intact.
//
// # Components
//
// A node holds at most one component per [ComponentKind]. Components update
// in a fixed stage order: script, physics, animator, transform, renderer.
// Physics integrates in FixedUpdate, driven by [Scene.FixedStep].
//
// # Scripts
//
// A [ScriptComponent] owns one isolated sandbox worker (see package
// sandbox). Untrusted scripts are JSON command lists such as
//
//	[{"cmd":"setPosition","args":[1,2,3]},{"cmd":"log","msg":"moved"}]
//
// and anything else is rejected before it reaches the sandbox. Trusted
// scripts may be JavaScript that can call only setPosition, translate,
// rotate, scale and log. Replies are applied when the host processes them,
// so script effects land on a later tick. Use [ScriptComponent.Wait] or
// [Scene.Settle] to block until they have.
//
// # Persistence
//
// [Scene.MarshalJSON] and [LoadScene] round-trip the {name, root} document
// exactly. The schema for that document is produced by cmd/sceneschema.
package arbor

package arbor

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

// ---- Debug mode tests ------------------------------------------------------

func TestDebugMode_DisposedParentPanics(t *testing.T) {
	s := NewScene("debug")
	s.SetDebugMode(true)
	defer s.SetDebugMode(false)

	parent := NewNode("parent")
	parent.Dispose()
	child := NewNode("child")

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on AddChild to disposed parent, got none")
		}
		if msg := fmt.Sprint(r); !strings.Contains(msg, "disposed") {
			t.Errorf("panic message should mention 'disposed', got: %s", msg)
		}
	}()

	_ = parent.AddChild(child)
}

func TestReleaseMode_DisposedNodeRejectedBySceneOnly(t *testing.T) {
	s := NewScene("release")
	s.SetDebugMode(false)

	child := NewNode("child")
	child.Dispose()

	// Release mode never panics; the scene still refuses disposed nodes.
	if err := s.AddNode(child, nil); err == nil {
		t.Error("AddNode of a disposed node should fail")
	}
}

func TestDebugMode_TreeDepthWarning(t *testing.T) {
	var buf bytes.Buffer
	s := NewScene("deep")
	s.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	s.SetDebugMode(true)
	defer s.SetDebugMode(false)

	parent := s.Root()
	for i := range debugMaxTreeDepth + 1 {
		n := NewNode(fmt.Sprintf("level-%d", i))
		if err := s.AddNode(n, parent); err != nil {
			t.Fatal(err)
		}
		parent = n
	}

	if !strings.Contains(buf.String(), "tree depth exceeds threshold") {
		t.Errorf("expected depth warning, got: %q", buf.String())
	}
}

func TestDebugMode_ChildCountWarning(t *testing.T) {
	var buf bytes.Buffer
	s := NewScene("wide")
	s.SetDebugMode(true)
	s.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer s.SetDebugMode(false)

	for i := range debugMaxChildCount + 1 {
		mustAdd(t, s.Root(), NewNode(fmt.Sprintf("c%d", i)))
	}

	if !strings.Contains(buf.String(), "child count exceeds threshold") {
		t.Error("expected child count warning")
	}
}

func TestDebugCheckIndexDetectsStaleEntry(t *testing.T) {
	s := NewScene("stale")
	n := NewNode("n")
	_ = s.AddNode(n, nil)

	s.nodes["ghost"] = NewNode("ghost")

	if problem := s.debugCheckIndex(); !strings.Contains(problem, "index holds") {
		t.Errorf("problem = %q", problem)
	}
}

func TestDebugModeIsPerScene(t *testing.T) {
	var buf bytes.Buffer
	checked := NewScene("checked")
	checked.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	checked.SetDebugMode(true)

	// A second scene switching debug off must not silence the first.
	quiet := NewScene("quiet")
	quiet.SetLogger(slog.New(slog.DiscardHandler))
	quiet.SetDebugMode(false)

	parent := checked.Root()
	for i := range debugMaxTreeDepth + 1 {
		n := NewNode(fmt.Sprintf("level-%d", i))
		if err := checked.AddNode(n, parent); err != nil {
			t.Fatal(err)
		}
		parent = n
	}
	if !strings.Contains(buf.String(), "tree depth exceeds threshold") {
		t.Errorf("checked scene lost its debug mode, log: %q", buf.String())
	}

	// Switching the checked scene on last must not put the quiet one in debug.
	checked.SetDebugMode(true)
	defer checked.SetDebugMode(false)
	gone := NewNode("gone")
	gone.Dispose()
	quietParent := NewNode("quiet-parent")
	if err := quiet.AddNode(quietParent, nil); err != nil {
		t.Fatal(err)
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("release-mode scene panicked: %v", r)
			}
		}()
		if err := quietParent.AddChild(gone); !errors.Is(err, ErrDisposed) {
			t.Errorf("err = %v, want ErrDisposed", err)
		}
	}()
}

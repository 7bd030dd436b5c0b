package telemetry

import (
	"testing"
)

func TestTreeRealRoot(t *testing.T) {
	tr := &Trace{
		TraceID: "t1",
		Spans: []*Span{
			{SpanID: "s1", Name: "pipeline.flow", StartTime: ms(0)},
			{SpanID: "s2", ParentSpanID: "s1", Name: "fetch.exec", StartTime: ms(10)},
			{SpanID: "s3", ParentSpanID: "s1", Name: "summarize.exec", StartTime: ms(20)},
			{SpanID: "s4", ParentSpanID: "s3", Name: "llm.complete", StartTime: ms(25)},
		},
	}

	root := tr.Tree()
	if root.Synthetic() {
		t.Fatal("trace with a real root produced a synthetic node")
	}
	if root.Span.SpanID != "s1" {
		t.Fatalf("root = %q, want s1", root.Span.SpanID)
	}
	if got := root.Count(); got != 4 {
		t.Errorf("node count = %d, want 4 (N nodes for a real root)", got)
	}
	if len(root.Children) != 2 || root.Children[0].Span.SpanID != "s2" {
		t.Errorf("children of root wrong: %+v", root.Children)
	}
	if len(root.Children[1].Children) != 1 || root.Children[1].Children[0].Span.SpanID != "s4" {
		t.Error("grandchild not attached under its parent")
	}
}

func TestTreeOrphanUnderSyntheticRoot(t *testing.T) {
	// s3's parent s9 never arrived.
	tr := &Trace{
		TraceID: "t1",
		Spans: []*Span{
			{SpanID: "s1", StartTime: ms(0)},
			{SpanID: "s2", ParentSpanID: "s1", StartTime: ms(10)},
			{SpanID: "s3", ParentSpanID: "s9", StartTime: ms(5)},
		},
	}

	root := tr.Tree()
	if !root.Synthetic() {
		t.Fatal("orphaned span did not force a synthetic root")
	}
	if got := root.Count(); got != 4 {
		t.Errorf("node count = %d, want N+1 = 4 with an orphan present", got)
	}

	// Every span must be reachable from the root.
	seen := map[string]bool{}
	root.Walk(func(n *TreeNode, _ int) {
		if n.Span != nil {
			seen[n.Span.SpanID] = true
		}
	})
	for _, id := range []string{"s1", "s2", "s3"} {
		if !seen[id] {
			t.Errorf("span %s unreachable from root", id)
		}
	}
}

func TestTreeNoRootAtAll(t *testing.T) {
	// Child arrived before its parent: single span, unresolved parent.
	tr := &Trace{
		TraceID: "t1",
		Spans: []*Span{
			{SpanID: "s2", ParentSpanID: "s1", StartTime: ms(10)},
		},
	}

	root := tr.Tree()
	if !root.Synthetic() {
		t.Fatal("parentless trace did not get a synthetic root")
	}
	if got := root.Count(); got != 2 {
		t.Errorf("node count = %d, want 2", got)
	}
}

func TestTreeSiblingOrderDeterministic(t *testing.T) {
	// Identical start times order by span ID.
	tr := &Trace{
		TraceID: "t1",
		Spans: []*Span{
			{SpanID: "s1", StartTime: ms(0)},
			{SpanID: "sb", ParentSpanID: "s1", StartTime: ms(10)},
			{SpanID: "sa", ParentSpanID: "s1", StartTime: ms(10)},
		},
	}

	root := tr.Tree()
	if root.Children[0].Span.SpanID != "sa" || root.Children[1].Span.SpanID != "sb" {
		t.Errorf("sibling order = %s, %s; want sa, sb",
			root.Children[0].Span.SpanID, root.Children[1].Span.SpanID)
	}
}

func TestTreeSelfParentTolerated(t *testing.T) {
	tr := &Trace{
		TraceID: "t1",
		Spans: []*Span{
			{SpanID: "s1", ParentSpanID: "s1", StartTime: ms(0)},
		},
	}

	root := tr.Tree()
	if got := root.Count(); got != 2 {
		t.Errorf("self-parent span: node count = %d, want 2", got)
	}
}

func TestTreeEmptyTrace(t *testing.T) {
	tr := &Trace{TraceID: "t1"}
	root := tr.Tree()
	if root == nil || !root.Synthetic() || len(root.Children) != 0 {
		t.Errorf("empty trace tree = %+v", root)
	}
}

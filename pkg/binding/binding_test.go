package binding

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-mosaic/mosaic/pkg/errors"
	"github.com/go-mosaic/mosaic/pkg/observe"
)

func changes(paths ...string) []observe.Change {
	out := make([]observe.Change, 0, len(paths))
	for _, p := range paths {
		out = append(out, observe.Change{Kind: observe.KindUpdate, Path: p})
	}
	return out
}

func TestCompileKey_LiteralAndPattern(t *testing.T) {
	lit, err := CompileKey("person.name")
	if err != nil {
		t.Fatalf("literal compile: %v", err)
	}
	if !lit.Matches("person.name") || lit.Matches("person.names") {
		t.Error("literal key must compare by equality")
	}

	pat, err := CompileKey(`/^person\./`)
	if err != nil {
		t.Fatalf("pattern compile: %v", err)
	}
	if !pat.Matches("person.name") || !pat.Matches("person.address.city") {
		t.Error("pattern key must match by regexp")
	}
	if pat.Matches("company.name") {
		t.Error("pattern key matched an unrelated path")
	}

	if _, err := CompileKey(`/(/`); !errors.IsKind(err, errors.KindConfig) {
		t.Errorf("invalid pattern should be a config error, got %v", err)
	}
}

func TestUITable_SelectorAccumulation(t *testing.T) {
	table, err := CompileUI([]UIBinding{
		{Path: "a", Selectors: []string{".header"}},
		{Path: "b", Selectors: []string{".rows", ".header"}},
	})
	if err != nil {
		t.Fatalf("CompileUI: %v", err)
	}

	var state RefreshState
	table.Resolve(changes("a", "b"), &state)

	if state.Full() {
		t.Fatal("selector bindings must not escalate to full")
	}
	want := []string{".header", ".rows"}
	if diff := cmp.Diff(want, state.Selectors()); diff != "" {
		t.Errorf("deduplicated selectors mismatch (-want +got):\n%s", diff)
	}
}

func TestUITable_FullIsSticky(t *testing.T) {
	table, err := CompileUI([]UIBinding{
		{Path: "a", Selectors: []string{".a"}},
		{Path: "b", Full: true},
		{Path: "c", Selectors: []string{".c"}},
	})
	if err != nil {
		t.Fatalf("CompileUI: %v", err)
	}

	var state RefreshState
	table.Resolve(changes("a"), &state)
	table.Resolve(changes("b"), &state)
	table.Resolve(changes("c"), &state)

	if !state.Full() {
		t.Fatal("expected full refresh state")
	}
	if len(state.Selectors()) != 0 {
		t.Error("full state must not retain selectors")
	}
}

func TestUITable_EmptyBindingIsConfigError(t *testing.T) {
	_, err := CompileUI([]UIBinding{{Path: "a"}})
	if !errors.IsKind(err, errors.KindConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestDataTable_PlanAggregation(t *testing.T) {
	table, err := CompileData([]DataBinding{
		{Path: "person_id", Methods: []string{"_fetchPersonList"}, DelayRefresh: true},
		{Path: `/^filters\./`, Methods: []string{"_fetchPersonList", "_fetchStats"}},
	})
	if err != nil {
		t.Fatalf("CompileData: %v", err)
	}

	plan := table.Resolve(changes("person_id", "filters.active"))

	if !plan.Delay {
		t.Error("Delay must be the OR of matched bindings")
	}
	want := []string{"_fetchPersonList", "_fetchStats"}
	if diff := cmp.Diff(want, plan.Methods); diff != "" {
		t.Errorf("method set mismatch (-want +got):\n%s", diff)
	}

	plan = table.Resolve(changes("filters.active"))
	if plan.Delay {
		t.Error("Delay must stay false when no delaying binding matched")
	}

	plan = table.Resolve(changes("unrelated"))
	if plan.Delay || len(plan.Methods) != 0 {
		t.Errorf("expected empty plan, got %+v", plan)
	}
}

func TestDataTable_MethodNames(t *testing.T) {
	table, err := CompileData([]DataBinding{
		{Path: "a", Methods: []string{"m1", "m2"}},
		{Path: "b", Methods: []string{"m2", "m3"}},
	})
	if err != nil {
		t.Fatalf("CompileData: %v", err)
	}
	want := []string{"m1", "m2", "m3"}
	if diff := cmp.Diff(want, table.MethodNames()); diff != "" {
		t.Errorf("MethodNames mismatch (-want +got):\n%s", diff)
	}
}

func TestRefreshState_Lifecycle(t *testing.T) {
	var state RefreshState
	if !state.Empty() {
		t.Fatal("zero state must be empty")
	}
	state.Add(".a", ".b", ".a")
	if state.Empty() || state.Full() {
		t.Fatal("selector state must be partial")
	}
	if diff := cmp.Diff([]string{".a", ".b"}, state.Selectors()); diff != "" {
		t.Errorf("selector dedup mismatch (-want +got):\n%s", diff)
	}
	state.MarkFull()
	state.Add(".c")
	if !state.Full() || len(state.Selectors()) != 0 {
		t.Error("full state must ignore later selectors")
	}
	state.Clear()
	if !state.Empty() {
		t.Error("Clear must reset to empty")
	}
}

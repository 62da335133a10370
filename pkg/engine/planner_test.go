package engine

import (
	"testing"
)

func TestPlanner_Plan(t *testing.T) {
	catalog := mustCatalog(t,
		pkg("homebrew"),
		pkg("git", "homebrew"),
		pkg("curl", "homebrew"),
		pkg("lazygit", "git"),
	)

	plan, err := NewPlanner(testLogger()).Plan(catalog)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := [][]string{{"homebrew"}, {"git", "curl"}, {"lazygit"}}
	if len(plan.Stages) != len(want) {
		t.Fatalf("Expected %d stages, got %d", len(want), len(plan.Stages))
	}
	for i, stage := range plan.Stages {
		if stage.Index != i {
			t.Errorf("Expected stage index %d, got %d", i, stage.Index)
		}
		if len(stage.Units) != len(want[i]) {
			t.Fatalf("Stage %d: expected %v, got %d units", i, want[i], len(stage.Units))
		}
		for j, u := range stage.Units {
			if u.ID != want[i][j] {
				t.Errorf("Stage %d position %d: expected %s, got %s", i, j, want[i][j], u.ID)
			}
		}
	}

	if plan.Len() != 4 {
		t.Errorf("Expected 4 planned units, got %d", plan.Len())
	}
	if plan.ToDOT() == "" {
		t.Error("Expected DOT output")
	}
}

func TestPlanner_PlanIsDeterministic(t *testing.T) {
	units := []Unit{pkg("e"), pkg("d", "e"), pkg("c"), pkg("b", "c"), pkg("a", "b", "d")}

	var first []string
	for i := 0; i < 20; i++ {
		plan, err := NewPlanner(testLogger()).Plan(mustCatalog(t, units...))
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		var order []string
		for _, u := range plan.Units() {
			order = append(order, u.ID)
		}
		if first == nil {
			first = order
			continue
		}
		for j := range first {
			if first[j] != order[j] {
				t.Fatalf("Expected stable order %v, got %v", first, order)
			}
		}
	}
}

func TestPlanner_CycleIsFatal(t *testing.T) {
	_, err := NewPlanner(testLogger()).Plan(mustCatalog(t, pkg("x", "y"), pkg("y", "x")))
	if !IsConfiguration(err) {
		t.Fatalf("Expected configuration error, got: %v", err)
	}
}

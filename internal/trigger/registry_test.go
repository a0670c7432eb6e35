package trigger

import (
	"testing"
)

func TestDefaultRegistryReleaseTable(t *testing.T) {
	registry := NewDefaultRegistry()

	tests := []struct {
		name    string
		stateID string
		want    []string
	}{
		{"arriving home releases home trigger", StateAtHome, []string{"arrivee_maison"}},
		{"leaving work releases departure trigger", StateCommuting, []string{"depart_travail"}},
		{"arriving at work releases nothing", StateAtWork, nil},
		{"unknown state releases nothing", "au_sport", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := registry.Released(tt.stateID)
			if len(got) != len(tt.want) {
				t.Fatalf("Released(%q) = %v, want %v", tt.stateID, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Released(%q)[%d] = %q, want %q", tt.stateID, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestReleasedReturnsCopy(t *testing.T) {
	registry := NewDefaultRegistry()

	first := registry.Released(StateAtHome)
	first[0] = "mutated"

	second := registry.Released(StateAtHome)
	if second[0] != "arrivee_maison" {
		t.Errorf("mutation of a returned slice leaked into the registry: %v", second)
	}
}

func TestDefaultRegistryVocabulary(t *testing.T) {
	registry := NewDefaultRegistry()

	for _, id := range []string{StateAtWork, StateCommuting, StateAtHome} {
		if !registry.ValidState(id) {
			t.Errorf("ValidState(%q) = false", id)
		}
	}
	if registry.ValidState("au_sport") {
		t.Error("ValidState accepted an unknown state")
	}

	for _, id := range []string{TriggerImmediate, "depart_travail", "arrivee_maison"} {
		if !registry.ValidTrigger(id) {
			t.Errorf("ValidTrigger(%q) = false", id)
		}
	}
	if registry.ValidTrigger("pleine_lune") {
		t.Error("ValidTrigger accepted an unknown trigger")
	}

	if got := len(registry.States()); got != 3 {
		t.Errorf("len(States()) = %d, want 3", got)
	}
	if got := len(registry.Triggers()); got != 3 {
		t.Errorf("len(Triggers()) = %d, want 3", got)
	}
}

func TestNewRegistryRejectsUnknownReferences(t *testing.T) {
	states := []State{{ID: "present"}}
	triggers := []Trigger{{ID: "ping"}}

	if _, err := NewRegistry(states, triggers, ReleaseTable{"absent": {"ping"}}); err == nil {
		t.Error("expected error for table keyed on unknown state")
	}
	if _, err := NewRegistry(states, triggers, ReleaseTable{"present": {"pong"}}); err == nil {
		t.Error("expected error for table referencing unknown trigger")
	}
	if _, err := NewRegistry(states, triggers, ReleaseTable{"present": {"ping"}}); err != nil {
		t.Errorf("valid table rejected: %v", err)
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	if _, err := NewRegistry([]State{{ID: "x"}, {ID: "x"}}, nil, nil); err == nil {
		t.Error("expected error for duplicate state")
	}
	if _, err := NewRegistry(nil, []Trigger{{ID: "y"}, {ID: "y"}}, nil); err == nil {
		t.Error("expected error for duplicate trigger")
	}
}

// Package trigger defines the member state and delivery trigger vocabulary
// and the table linking state transitions to released triggers.
package trigger

// TriggerImmediate is the trigger for messages delivered at send time.
const TriggerImmediate = "maintenant"

// Built-in member states.
const (
	StateAtWork    = "au_travail"
	StateCommuting = "en_route"
	StateAtHome    = "a_la_maison"
)

// DefaultState is the state assigned to newly registered members.
const DefaultState = StateAtWork

// State describes one member state as shown in the clients.
type State struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// Trigger describes one delivery trigger as shown in the composer.
type Trigger struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

// ReleaseTable maps a state (the one a member just entered) to the triggers
// released by that transition.
type ReleaseTable map[string][]string

// DefaultStates returns the built-in state vocabulary.
func DefaultStates() []State {
	return []State{
		{ID: StateAtWork, Label: "Au travail", Icon: "💼", Color: "#E8871E"},
		{ID: StateCommuting, Label: "En route", Icon: "🚗", Color: "#3D8BFD"},
		{ID: StateAtHome, Label: "À la maison", Icon: "🏠", Color: "#2EB872"},
	}
}

// DefaultTriggers returns the built-in trigger vocabulary.
func DefaultTriggers() []Trigger {
	return []Trigger{
		{ID: TriggerImmediate, Label: "Maintenant", Icon: "⚡", Description: "Envoyé tout de suite"},
		{ID: "depart_travail", Label: "Quand il/elle quitte le travail", Icon: "🏃", Description: "Livré au départ du travail"},
		{ID: "arrivee_maison", Label: "Quand il/elle arrive à la maison", Icon: "🏠", Description: "Livré à l'arrivée à la maison"},
	}
}

// DefaultReleaseTable returns the built-in transition table. Entering
// en_route means the member left work; entering a_la_maison means they
// arrived home.
func DefaultReleaseTable() ReleaseTable {
	return ReleaseTable{
		StateCommuting: {"depart_travail"},
		StateAtHome:    {"arrivee_maison"},
	}
}

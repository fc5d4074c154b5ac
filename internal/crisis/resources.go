package crisis

import (
	"fmt"
	"strings"
)

// Grounding actions the client can surface next to a crisis reply.
const (
	ActionCallHelpline       = "call_helpline"
	ActionGroundingExercise  = "grounding_exercise"
	ActionReachTrustedPerson = "reach_trusted_person"
	ActionEmergencyServices  = "contact_emergency_services"
)

// Actions lists the grounding actions for a result; empty unless it is a crisis.
func (r Result) Actions() []string {
	if !r.IsCrisis() {
		return nil
	}
	actions := []string{ActionCallHelpline, ActionGroundingExercise, ActionReachTrustedPerson}
	if r.Severity == SeverityImminent {
		actions = append([]string{ActionEmergencyServices}, actions...)
	}
	return actions
}

// Resources renders the deterministic resource block placed ahead of crisis replies.
func (l *Lexicon) Resources(sev Severity) string {
	var b strings.Builder
	if sev == SeverityImminent {
		b.WriteString("If you are in immediate danger, please call your local emergency number (112 in India, 911 in the US, 999 in the UK) right now.\n\n")
	}
	b.WriteString("You don't have to go through this alone. Please reach out to someone who can help right now:\n")
	for _, h := range l.hotlines {
		fmt.Fprintf(&b, "- %s: %s\n", h.Name, h.Number)
	}
	b.WriteString("\nIf you can, move to a safe place, take a few slow breaths, and let someone you trust know how you are feeling.")
	return b.String()
}

package sut

import (
	"slices"
	"strings"
)

// Capability is something a SUT can do that a test may rely on.
type Capability string

const (
	AcceptsTextPrompt Capability = "accepts_text_prompt"
	AcceptsChatPrompt Capability = "accepts_chat_prompt"
	// ProducesMultipleCompletions means the SUT honors prompt.Options.NumCompletions > 1.
	ProducesMultipleCompletions Capability = "produces_multiple_completions"
)

// Capabilities is a set of declared capabilities.
type Capabilities map[Capability]struct{}

// NewCapabilities builds a set from the given values.
func NewCapabilities(caps ...Capability) Capabilities {
	set := make(Capabilities, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether c is in the set.
func (s Capabilities) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// List returns the set in sorted order.
func (s Capabilities) List() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// MissingCapabilitiesError is returned when a SUT lacks capabilities a test requires.
type MissingCapabilitiesError struct {
	SUTUID   string
	Missing  []Capability
	Declared []Capability
}

func (e *MissingCapabilitiesError) Error() string {
	msg := "SUT " + e.SUTUID + " is missing required capabilities: " + joinCapabilities(e.Missing)
	if len(e.Declared) == 0 {
		return msg + " (it declares none)"
	}
	return msg + " (it declares " + joinCapabilities(e.Declared) + ")"
}

func joinCapabilities(caps []Capability) string {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// CheckCapabilities verifies that s declares every capability in required.
func CheckCapabilities(s SUT, required []Capability) error {
	declared := s.Capabilities()
	var missing []Capability
	for _, c := range required {
		if !declared.Has(c) && !slices.Contains(missing, c) {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return &MissingCapabilitiesError{SUTUID: s.UID(), Missing: missing, Declared: declared.List()}
}

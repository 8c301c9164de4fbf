// Package prompt builds the instruction sent to the text-generation backend.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCategory is returned by ParseCategory for unrecognised input.
var ErrUnknownCategory = errors.New("unknown diagram category")

// Category is a PlantUML diagram type offered to the user.
type Category int

const (
	Sequence Category = iota
	UseCase
	Class
	Object
	Activity
	Component
	Deployment
	State
	Timing
)

var categoryLabels = [...]string{
	Sequence:   "Sequence diagram",
	UseCase:    "Usecase diagram",
	Class:      "Class diagram",
	Object:     "Object diagram",
	Activity:   "Activity diagram (legacy syntax)",
	Component:  "Component diagram",
	Deployment: "Deployment diagram",
	State:      "State diagram",
	Timing:     "Timing diagram",
}

var categoryKeys = [...]string{
	Sequence:   "sequence",
	UseCase:    "usecase",
	Class:      "class",
	Object:     "object",
	Activity:   "activity",
	Component:  "component",
	Deployment: "deployment",
	State:      "state",
	Timing:     "timing",
}

// Categories returns every category in display order.
func Categories() []Category {
	out := make([]Category, len(categoryLabels))
	for i := range categoryLabels {
		out[i] = Category(i)
	}
	return out
}

// String returns the display label, e.g. "Class diagram".
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryLabels) {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryLabels[c]
}

// Key returns the short identifier used on the command line, e.g. "class".
func (c Category) Key() string {
	if c < 0 || int(c) >= len(categoryKeys) {
		return ""
	}
	return categoryKeys[c]
}

// Next returns the following category, wrapping around after Timing.
func (c Category) Next() Category {
	return Category((int(c) + 1) % len(categoryLabels))
}

// ParseCategory resolves a display label or short key, ignoring case.
// "use-case" and "use case" are accepted for UseCase.
func ParseCategory(s string) (Category, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "", "_", "").Replace(norm)
	for i := range categoryLabels {
		if norm == categoryKeys[i] ||
			norm == strings.ToLower(categoryLabels[i]) ||
			norm == categoryKeys[i]+" diagram" {
			return Category(i), nil
		}
	}
	if norm == "use case" || norm == "use case diagram" {
		return UseCase, nil
	}
	return Sequence, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

const instructionTemplate = `You are a PlantUML (PUML) diagram generator.

Generate only raw PlantUML code for the following %s.

Do NOT return:
- Markdown formatting
- JSON
- [object Object]
- Explanations

Just return plain PUML like:
@startuml
title Sample Title
actor User
User -> System: Sample interaction
@enduml

Now generate for:
"%s"`

// Build returns the instruction for userText and category c.
// userText is embedded verbatim; no validation is applied.
func Build(userText string, c Category) string {
	return fmt.Sprintf(instructionTemplate, c.String(), userText)
}

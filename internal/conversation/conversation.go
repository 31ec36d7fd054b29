// Package conversation implements the poster wizard: a fixed sequence of
// steps that collects the domain, a description, an optional reference,
// a palette and an optional content image before generation.
package conversation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"graphiste/internal/models"
)

// Step is one stage of the wizard.
type Step string

const (
	StepGreeting     Step = "greeting"
	StepDomain       Step = "domain"
	StepDetails      Step = "details"
	StepReference    Step = "reference"
	StepColors       Step = "colors"
	StepContentImage Step = "content_image"
	StepGenerating   Step = "generating"
	StepComplete     Step = "complete"
)

// order is the fixed step sequence.
var order = []Step{
	StepGreeting, StepDomain, StepDetails, StepReference,
	StepColors, StepContentImage, StepGenerating, StepComplete,
}

// Next returns the step that follows s, or s itself for the last step.
func (s Step) Next() Step {
	for i, step := range order {
		if step == s && i+1 < len(order) {
			return order[i+1]
		}
	}
	return s
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	for _, step := range order {
		if step == s {
			return true
		}
	}
	return false
}

// Skippable reports whether the step accepts "skip" as input.
func (s Step) Skippable() bool {
	return s == StepReference || s == StepContentImage
}

const (
	// MaxColors caps the palette size.
	MaxColors = 5
	// MaxDescription caps the free-text details.
	MaxDescription = 2000
)

var (
	ErrInvalidStep  = errors.New("conversation: invalid step")
	ErrGenerating   = errors.New("conversation: generation in progress")
	ErrFinished     = errors.New("conversation: already complete")
	ErrEmptyInput   = errors.New("conversation: input required")
	ErrNotSkippable = errors.New("conversation: step cannot be skipped")
	ErrColors       = errors.New("conversation: between 1 and 5 colors required")
	ErrBadColor     = errors.New("conversation: unrecognised color")
	ErrResolution   = errors.New("conversation: unknown resolution")
)

// State is the accumulated wizard data for one user.
type State struct {
	Step                Step              `json:"step"`
	Domain              string            `json:"domain,omitempty"`
	Description         string            `json:"description,omitempty"`
	Colors              []string          `json:"colors,omitempty"`
	ReferenceImageURL   string            `json:"reference_image_url,omitempty"`
	ReferenceTemplateID *uuid.UUID        `json:"reference_template_id,omitempty"`
	ContentImageURL     string            `json:"content_image_url,omitempty"`
	Resolution          models.Resolution `json:"resolution"`
	ImageID             *uuid.UUID        `json:"image_id,omitempty"`
	ImageURL            string            `json:"image_url,omitempty"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// Input is the user's answer to the current step.
type Input struct {
	Text       string     `json:"text"`
	Skip       bool       `json:"skip"`
	Colors     []string   `json:"colors"`
	ImageURL   string     `json:"image_url"`
	TemplateID *uuid.UUID `json:"template_id"`
	Resolution string     `json:"resolution"`
}

// New returns a fresh state at the greeting step.
func New(now time.Time) State {
	return State{Step: StepGreeting, Resolution: models.Resolution1K, UpdatedAt: now}
}

// Reset discards everything collected so far.
func Reset(now time.Time) State {
	return New(now)
}

// Advance validates in against the current step and moves to the next one.
// The returned state is a copy; st is never modified.
func Advance(st State, in Input, now time.Time) (State, error) {
	next := st
	next.Colors = append([]string(nil), st.Colors...)

	if in.Skip && !st.Step.Skippable() {
		return st, ErrNotSkippable
	}

	switch st.Step {
	case StepGreeting:
		// Any message starts the wizard.

	case StepDomain:
		domain := NormalizeDomain(in.Text)
		if domain == "" {
			return st, ErrEmptyInput
		}
		next.Domain = domain

	case StepDetails:
		text := strings.TrimSpace(in.Text)
		if text == "" {
			return st, ErrEmptyInput
		}
		if len([]rune(text)) > MaxDescription {
			text = string([]rune(text)[:MaxDescription])
		}
		next.Description = text

	case StepReference:
		if !in.Skip {
			if in.ImageURL == "" && in.TemplateID == nil {
				return st, ErrEmptyInput
			}
			next.ReferenceImageURL = in.ImageURL
			next.ReferenceTemplateID = in.TemplateID
		}

	case StepColors:
		colors, err := ParseColors(in.Colors, in.Text)
		if err != nil {
			return st, err
		}
		next.Colors = colors

	case StepContentImage:
		if !in.Skip {
			if in.ImageURL == "" {
				return st, ErrEmptyInput
			}
			next.ContentImageURL = in.ImageURL
		}
		if in.Resolution != "" {
			res, err := models.ParseResolution(in.Resolution)
			if err != nil {
				return st, fmt.Errorf("%w: %v", ErrResolution, err)
			}
			next.Resolution = res
		}

	case StepGenerating:
		return st, ErrGenerating

	case StepComplete:
		return st, ErrFinished

	default:
		return st, fmt.Errorf("%w: %q", ErrInvalidStep, st.Step)
	}

	next.Step = st.Step.Next()
	next.UpdatedAt = now
	return next, nil
}

// Complete records the generated image and leaves the generating step.
func Complete(st State, imageID uuid.UUID, imageURL string, now time.Time) (State, error) {
	if st.Step != StepGenerating {
		return st, fmt.Errorf("%w: complete from %q", ErrInvalidStep, st.Step)
	}
	st.Colors = append([]string(nil), st.Colors...)
	st.ImageID = &imageID
	st.ImageURL = imageURL
	st.Step = StepComplete
	st.UpdatedAt = now
	return st, nil
}

// Fail returns a generating conversation to the content image step so the
// user can retry.
func Fail(st State, now time.Time) (State, error) {
	if st.Step != StepGenerating {
		return st, fmt.Errorf("%w: fail from %q", ErrInvalidStep, st.Step)
	}
	st.Colors = append([]string(nil), st.Colors...)
	st.Step = StepContentImage
	st.UpdatedAt = now
	return st, nil
}

// NormalizeDomain trims, collapses whitespace and lower-cases a domain.
func NormalizeDomain(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// namedColors are the palette names the UI offers, French and English.
var namedColors = map[string]bool{
	"rouge": true, "bleu": true, "vert": true, "jaune": true, "orange": true,
	"violet": true, "rose": true, "noir": true, "blanc": true, "gris": true,
	"marron": true, "or": true, "argent": true, "turquoise": true, "beige": true,
	"red": true, "blue": true, "green": true, "yellow": true, "purple": true,
	"pink": true, "black": true, "white": true, "gray": true, "grey": true,
	"brown": true, "gold": true, "silver": true,
}

// ParseColors accepts an explicit list or a comma separated string and
// returns 1..MaxColors normalised values. Hex colors are lower-cased.
func ParseColors(list []string, text string) ([]string, error) {
	raw := list
	if len(raw) == 0 && strings.TrimSpace(text) != "" {
		raw = strings.Split(text, ",")
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, c := range raw {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if !hexColor.MatchString(c) && !namedColors[c] {
			return nil, fmt.Errorf("%w: %q", ErrBadColor, c)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 || len(out) > MaxColors {
		return nil, ErrColors
	}
	return out, nil
}

// Ready reports whether the state holds everything generation needs.
func (s State) Ready() bool {
	return s.Domain != "" && s.Description != "" && len(s.Colors) > 0
}

package types

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

const (
	FirstOnboardingStep = 1
	// FirstQuestionStep is where new drafts start; step 1 is the intro animation.
	FirstQuestionStep = 2
	LastOnboardingStep = 22
)

// OnboardingDraft accumulates quiz answers across steps before they are persisted.
type OnboardingDraft struct {
	ID        uuid.UUID      `json:"id"`
	UserID    *string        `json:"user_id,omitempty"`
	Step      int            `json:"step"`
	Data      map[string]any `json:"data"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewOnboardingDraft returns an empty draft positioned after the intro.
func NewOnboardingDraft(id uuid.UUID, now time.Time) *OnboardingDraft {
	return &OnboardingDraft{
		ID:        id,
		Step:      FirstQuestionStep,
		Data:      map[string]any{},
		UpdatedAt: now,
	}
}

// Normalize repairs a draft read back from storage.
func (d *OnboardingDraft) Normalize() {
	if d.Data == nil {
		d.Data = map[string]any{}
	}
	if d.Step < FirstQuestionStep || d.Step > LastOnboardingStep {
		d.Step = FirstQuestionStep
	}
}

// Merge shallow-merges partial into the draft; keys in partial overwrite.
func (d *OnboardingDraft) Merge(partial map[string]any) {
	if d.Data == nil {
		d.Data = make(map[string]any, len(partial))
	}
	maps.Copy(d.Data, partial)
}

// Next advances one step, saturating at the last step.
func (d *OnboardingDraft) Next() {
	if d.Step < LastOnboardingStep {
		d.Step++
	}
}

// Prev goes back one step, saturating at the first step.
func (d *OnboardingDraft) Prev() {
	if d.Step > FirstOnboardingStep {
		d.Step--
	}
}

// GoTo jumps to step when it lies in range and leaves the draft untouched otherwise.
func (d *OnboardingDraft) GoTo(step int) error {
	if step < FirstOnboardingStep || step > LastOnboardingStep {
		return fmt.Errorf("step %d: %w", step, ErrStepOutOfRange)
	}
	d.Step = step
	return nil
}

type StepKind string

const (
	StepIntro    StepKind = "intro"
	StepQuestion StepKind = "question"
	StepInfo     StepKind = "info"
	StepAuth     StepKind = "auth"
	StepPaywall  StepKind = "paywall"
	StepComplete StepKind = "complete"
)

type StepOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// OnboardingStep describes one screen of the quiz and the draft keys it writes.
type OnboardingStep struct {
	Number   int          `json:"number"`
	Kind     StepKind     `json:"kind"`
	Title    string       `json:"title"`
	Keys     []string     `json:"keys,omitempty"`
	Options  []StepOption `json:"options,omitempty"`
	Multi    bool         `json:"multi,omitempty"`
	Min      *float64     `json:"min,omitempty"`
	Max      *float64     `json:"max,omitempty"`
	Optional bool         `json:"optional,omitempty"`
}

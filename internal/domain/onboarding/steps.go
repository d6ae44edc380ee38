package onboarding

import (
	"fmt"

	"github.com/FACorreiaa/peakheight-api/internal/types"
)

func bound(v float64) *float64 { return &v }

func options(pairs ...string) []types.StepOption {
	out := make([]types.StepOption, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, types.StepOption{ID: pairs[i], Label: pairs[i+1]})
	}
	return out
}

// steps is the fixed quiz sequence, indexed by step number - 1.
var steps = []types.OnboardingStep{
	{Number: 1, Kind: types.StepIntro, Title: "Unlock your height potential"},
	{Number: 2, Kind: types.StepQuestion, Title: "What is your gender?", Keys: []string{"gender"},
		Options: options("female", "Female", "male", "Male", "other", "Other")},
	{Number: 3, Kind: types.StepQuestion, Title: "How old are you?", Keys: []string{"dateOfBirth", "age"}},
	{Number: 4, Kind: types.StepQuestion, Title: "What is your ethnicity?", Keys: []string{"ethnicity"},
		Options: options(
			"Asian", "Asian",
			"Black/African", "Black/African",
			"Caucasian/White", "Caucasian/White",
			"Hispanic/Latino", "Hispanic/Latino",
			"Mixed/Other", "Mixed/Other",
			"Prefer not to say", "Prefer not to say",
		)},
	{Number: 5, Kind: types.StepQuestion, Title: "What is your height & weight?",
		Keys: []string{"currentHeight", "cm", "feet", "inches", "measurementSystem"},
		Min:  bound(100), Max: bound(230)},
	{Number: 6, Kind: types.StepQuestion, Title: "What is your dream height?",
		Keys: []string{"dreamHeight", "targetHeight", "dreamCm", "dreamFeet", "dreamInches"},
		Min:  bound(100), Max: bound(250)},
	{Number: 7, Kind: types.StepQuestion, Title: "How tall are your parents?",
		Keys: []string{"parentHeight", "fatherCm", "motherCm", "fatherFeet", "fatherInches",
			"motherFeet", "motherInches", "parentMeasurementSystem"},
		Min: bound(120), Max: bound(230), Optional: true},
	{Number: 8, Kind: types.StepQuestion, Title: "Height isn't just inherited", Keys: []string{"motivation"}},
	{Number: 9, Kind: types.StepQuestion, Title: "What have you tried so far?", Keys: []string{"triedOptions"}, Multi: true,
		Options: options(
			"supplements", "Supplements",
			"exercises", "Exercises",
			"diet", "Diet changes",
			"posture", "Posture correction",
			"nothing", "Nothing yet",
		)},
	{Number: 10, Kind: types.StepQuestion, Title: "What is your foot size?", Keys: []string{"footSize", "footSizeSystem"}},
	{Number: 11, Kind: types.StepQuestion, Title: "How often do you work out?", Keys: []string{"workoutFrequency"},
		Options: options("0-2", "0-2 times a week", "3-4", "3-4 times a week", "5-7", "5-7 times a week")},
	{Number: 12, Kind: types.StepQuestion, Title: "How many hours do you sleep?", Keys: []string{"sleepHours"},
		Min: bound(3), Max: bound(12)},
	{Number: 13, Kind: types.StepInfo, Title: "Losing height potential every night?"},
	{Number: 14, Kind: types.StepQuestion, Title: "Do you smoke or drink alcohol?", Keys: []string{"smokingStatus", "drinkingStatus"}},
	{Number: 15, Kind: types.StepQuestion, Title: "The reality of being short", Keys: []string{"barriers"}, Multi: true, Optional: true},
	{Number: 16, Kind: types.StepQuestion, Title: "How tall will you actually grow?", Keys: []string{"stoppingGoals"}, Multi: true, Optional: true},
	{Number: 17, Kind: types.StepQuestion, Title: "What should we call you?", Keys: []string{"userName"}, Optional: true},
	{Number: 18, Kind: types.StepInfo, Title: "Analyzing your answers"},
	{Number: 19, Kind: types.StepInfo, Title: "Your personalized growth plan"},
	{Number: 20, Kind: types.StepAuth, Title: "Create your account"},
	{Number: 21, Kind: types.StepPaywall, Title: "Unlock PeakHeight Premium"},
	{Number: 22, Kind: types.StepComplete, Title: "You're all set"},
}

// Steps returns a copy of the step catalogue.
func Steps() []types.OnboardingStep {
	out := make([]types.OnboardingStep, len(steps))
	copy(out, steps)
	return out
}

// StepAt returns the definition of step n.
func StepAt(n int) (types.OnboardingStep, error) {
	if n < types.FirstOnboardingStep || n > types.LastOnboardingStep {
		return types.OnboardingStep{}, fmt.Errorf("step %d: %w", n, types.ErrStepOutOfRange)
	}
	return steps[n-1], nil
}

// IsQuestionStep reports whether step n collects answers into the draft.
func IsQuestionStep(n int) bool {
	s, err := StepAt(n)
	return err == nil && s.Kind == types.StepQuestion
}

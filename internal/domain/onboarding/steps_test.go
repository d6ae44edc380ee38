package onboarding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/peakheight-api/internal/types"
)

func TestStepsCatalogue(t *testing.T) {
	all := Steps()
	require.Len(t, all, types.LastOnboardingStep)
	for i, s := range all {
		assert.Equal(t, i+1, s.Number, "step numbers are contiguous")
		assert.NotEmpty(t, s.Title)
	}
	assert.Equal(t, types.StepIntro, all[0].Kind)
	assert.Equal(t, types.StepComplete, all[len(all)-1].Kind)
}

func TestStepAt(t *testing.T) {
	s, err := StepAt(11)
	require.NoError(t, err)
	assert.Equal(t, []string{"workoutFrequency"}, s.Keys)

	_, err = StepAt(0)
	assert.ErrorIs(t, err, types.ErrStepOutOfRange)
	_, err = StepAt(23)
	assert.ErrorIs(t, err, types.ErrStepOutOfRange)
}

func TestIsQuestionStep(t *testing.T) {
	assert.False(t, IsQuestionStep(1))
	assert.True(t, IsQuestionStep(2))
	assert.False(t, IsQuestionStep(20))
	assert.False(t, IsQuestionStep(99))
}

func TestStepsReturnsCopy(t *testing.T) {
	a := Steps()
	a[0].Title = "changed"
	assert.NotEqual(t, "changed", Steps()[0].Title)
}

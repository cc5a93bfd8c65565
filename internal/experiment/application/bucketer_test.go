package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/experiment/domain"
)

type fakeExperimentRepository struct {
	experiments map[string]*domain.Experiment
}

func (f *fakeExperimentRepository) GetActive(ctx context.Context, experimentKey string) (*domain.Experiment, error) {
	return f.experiments[experimentKey], nil
}

func TestBucketer_MissingExperimentReturnsControlUnlogged(t *testing.T) {
	b := NewBucketer(&fakeExperimentRepository{experiments: map[string]*domain.Experiment{}})
	assignment, err := b.Assign(context.Background(), "anon-1", "missing-exp")
	require.NoError(t, err)
	assert.Equal(t, domain.ControlVariant, assignment.Variant)
	assert.False(t, assignment.Logged)
}

func TestBucketer_InactiveExperimentReturnsControlUnlogged(t *testing.T) {
	repo := &fakeExperimentRepository{experiments: map[string]*domain.Experiment{
		"exp-1": {ExperimentKey: "exp-1", IsActive: false, Variants: []string{"control", "treatment"}, Allocation: map[string]float64{"control": 50, "treatment": 50}},
	}}
	b := NewBucketer(repo)
	assignment, err := b.Assign(context.Background(), "anon-1", "exp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ControlVariant, assignment.Variant)
	assert.False(t, assignment.Logged)
}

func TestBucketer_AssignmentIsStablePerAnonID(t *testing.T) {
	repo := &fakeExperimentRepository{experiments: map[string]*domain.Experiment{
		"exp-1": {ExperimentKey: "exp-1", IsActive: true, Variants: []string{"control", "treatment"}, Allocation: map[string]float64{"control": 50, "treatment": 50}},
	}}
	b := NewBucketer(repo)

	first, err := b.Assign(context.Background(), "anon-42", "exp-1")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := b.Assign(context.Background(), "anon-42", "exp-1")
		require.NoError(t, err)
		assert.Equal(t, first.Variant, again.Variant)
	}
	assert.True(t, first.Logged)
}

func TestBucketer_DistributesAcrossVariantsRoughlyByAllocation(t *testing.T) {
	repo := &fakeExperimentRepository{experiments: map[string]*domain.Experiment{
		"exp-1": {ExperimentKey: "exp-1", IsActive: true, Variants: []string{"control", "treatment"}, Allocation: map[string]float64{"control": 50, "treatment": 50}},
	}}
	b := NewBucketer(repo)

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		anonID := generateAnonID(i)
		assignment, err := b.Assign(context.Background(), anonID, "exp-1")
		require.NoError(t, err)
		counts[assignment.Variant]++
	}

	assert.InDelta(t, 1000, counts["control"], 150)
	assert.InDelta(t, 1000, counts["treatment"], 150)
}

func generateAnonID(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, 8)
	for j := range out {
		out[j] = letters[(i*31+j*17)%len(letters)]
	}
	return string(out) + "-" + string(rune('a'+i%26))
}

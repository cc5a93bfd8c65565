// Package application implements the A/B experiment lifecycle: stable
// hash-bucket assignment, buffered impression/click telemetry, the
// nightly metrics rollup, and the auto-stop monitor that disables a
// degrading experiment without a deploy.
package application

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/experiment/domain"
)

// ExperimentRepository loads experiment configuration the Bucketer
// and Auto-Stop Monitor both need.
type ExperimentRepository interface {
	GetActive(ctx context.Context, experimentKey string) (*domain.Experiment, error)
}

// Bucketer deterministically assigns an anonId to a variant, stable
// for the experiment's lifetime.
type Bucketer struct {
	experiments ExperimentRepository
}

// NewBucketer builds a Bucketer.
func NewBucketer(experiments ExperimentRepository) *Bucketer {
	return &Bucketer{experiments: experiments}
}

// Assignment is the result of bucketing one anonId into an
// experiment; Logged is false exactly when the experiment was
// inactive or missing, in which case no experiment metadata is logged.
type Assignment struct {
	ExperimentKey string
	Variant       string
	Logged        bool
}

// Assign resolves (anonId, experimentKey) to a stable variant. A
// missing or inactive experiment always resolves to the control
// variant with Logged=false.
func (b *Bucketer) Assign(ctx context.Context, anonID, experimentKey string) (Assignment, error) {
	if experimentKey == "" {
		return Assignment{ExperimentKey: experimentKey, Variant: domain.ControlVariant, Logged: false}, nil
	}

	exp, err := b.experiments.GetActive(ctx, experimentKey)
	if err != nil {
		return Assignment{}, err
	}
	if exp == nil || !exp.IsActive {
		return Assignment{ExperimentKey: experimentKey, Variant: domain.ControlVariant, Logged: false}, nil
	}

	variant := resolveVariant(anonID, experimentKey, exp.Variants, exp.Allocation)
	return Assignment{ExperimentKey: experimentKey, Variant: variant, Logged: true}, nil
}

// resolveVariant hashes (anonId|experimentKey), takes the bucket as a
// fraction of the hash space, and walks the variant list in stable
// order accumulating allocation percentages until the bucket falls
// within one's cumulative range.
func resolveVariant(anonID, experimentKey string, variants []string, allocation map[string]float64) string {
	if len(variants) == 0 {
		return domain.ControlVariant
	}

	sum := sha256.Sum256([]byte(anonID + "|" + experimentKey))
	bucketValue := binary.BigEndian.Uint32(sum[:4])
	fraction := float64(bucketValue) / float64(^uint32(0))

	ordered := append([]string(nil), variants...)
	sort.Strings(ordered)

	cumulative := 0.0
	for _, variant := range ordered {
		cumulative += allocation[variant] / 100.0
		if fraction <= cumulative {
			return variant
		}
	}
	return ordered[len(ordered)-1]
}

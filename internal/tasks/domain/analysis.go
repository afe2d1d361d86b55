package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/banuni/haxor-mk2/internal/errors"
)

// DefenseLevel rates how well a target is protected.
type DefenseLevel string

const (
	DefenseEasy       DefenseLevel = "easy"
	DefenseMedium     DefenseLevel = "medium"
	DefenseHard       DefenseLevel = "hard"
	DefenseImpossible DefenseLevel = "impossible"
)

// TargetSize rates how large a target installation is.
type TargetSize string

const (
	SizeSmall  TargetSize = "small"
	SizeMedium TargetSize = "medium"
	SizeLarge  TargetSize = "large"
	SizeHuge   TargetSize = "huge"
)

// algorithmBase holds per-algorithm base completion time and success power.
var algorithmBase = map[string]struct {
	seconds     int
	probability float64
}{
	"alpha": {seconds: 5, probability: 0.5},
	"beta":  {seconds: 8, probability: 0.8},
	"gamma": {seconds: 9, probability: 0.1},
	"delta": {seconds: 12, probability: 0.9},
}

// AnalysisInput describes the target parameters fed into the estimate.
type AnalysisInput struct {
	TargetName     string
	AlgorithmName  string
	DistanceMeters float64
	Defense        DefenseLevel
	Size           TargetSize
}

// Estimate computes the estimated seconds to complete and the success
// probability (integer percentage) for a hack attempt. Certain well-known
// targets carry fixed bonuses on top of the base formula.
func Estimate(input AnalysisInput) (estimatedSeconds int, probability int, err error) {
	base, ok := algorithmBase[strings.ToLower(strings.TrimSpace(input.AlgorithmName))]
	if !ok {
		return 0, 0, apperrors.WithMetadata(apperrors.CodeTaskAlgorithmUnknown,
			fmt.Sprintf("unknown algorithm %q", input.AlgorithmName),
			map[string]string{"algorithm": input.AlgorithmName})
	}

	difficulty, err := defenseMultiplier(input.Defense)
	if err != nil {
		return 0, 0, err
	}
	size, err := sizeMultiplier(input.Size)
	if err != nil {
		return 0, 0, err
	}
	distance := input.DistanceMeters / 1000
	if distance < 1 {
		distance = 1
	}
	if distance > 10 {
		distance = 10
	}

	multiplier := float64(difficulty) * float64(size) * distance
	seconds := float64(base.seconds) * multiplier
	successPower := base.probability * multiplier
	chance := clamp01(1 / successPower)

	secondsBonus, chanceBonus := targetBonuses(input.TargetName)
	seconds += float64(secondsBonus)
	if seconds < 1 {
		seconds = 1
	}
	chance = clamp01(chance + chanceBonus)

	return int(seconds), int(chance * 100), nil
}

func defenseMultiplier(level DefenseLevel) (int, error) {
	switch level {
	case DefenseEasy:
		return 1, nil
	case DefenseMedium:
		return 2, nil
	case DefenseHard:
		return 3, nil
	case DefenseImpossible:
		return 4, nil
	default:
		return 0, apperrors.WithMetadata(apperrors.CodeTaskDefenseInvalid,
			fmt.Sprintf("unknown defense level %q", level),
			map[string]string{"defense_level": string(level)})
	}
}

func sizeMultiplier(size TargetSize) (int, error) {
	switch size {
	case SizeSmall:
		return 1, nil
	case SizeMedium:
		return 2, nil
	case SizeLarge:
		return 3, nil
	case SizeHuge:
		return 4, nil
	default:
		return 0, apperrors.WithMetadata(apperrors.CodeTaskSizeInvalid,
			fmt.Sprintf("unknown target size %q", size),
			map[string]string{"size": string(size)})
	}
}

// targetBonuses returns flat adjustments for named targets.
func targetBonuses(targetName string) (seconds int, probability float64) {
	name := strings.ToLower(strings.TrimSpace(targetName))
	switch {
	case strings.HasPrefix(name, "budner"):
		return 5, -0.1
	case strings.HasPrefix(name, "nuni"):
		return -2, 0.05
	default:
		return 0, 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package domain

import (
	"fmt"
	"strings"
)

// System chat messages posted on task milestones.

// AnalysisStartedMessage announces that target analysis has begun.
func AnalysisStartedMessage(t Task) string {
	return fmt.Sprintf("Analyzing - target: %s algorithm: %s", t.TargetName, t.AlgorithmName)
}

// AnalysisResultMessage announces the estimate once analysis resolves.
func AnalysisResultMessage(t Task) string {
	return fmt.Sprintf(
		"Analysis result - target: %s algorithm: %s | estimated time to complete: %d seconds | probability: %d%%",
		t.TargetName, t.AlgorithmName, t.EstimatedSeconds, t.Probability,
	)
}

// HackStartedMessage announces that a hack has started running.
func HackStartedMessage(t Task) string {
	return fmt.Sprintf("Starting hack - target: %s algorithm: %s objective: %s",
		t.TargetName, t.AlgorithmName, strings.ToUpper(string(t.Type)))
}

// HackResultMessage announces the final outcome of a hack.
func HackResultMessage(t Task) string {
	return fmt.Sprintf("Hack result - target: %s algorithm: %s result: %s",
		t.TargetName, t.AlgorithmName, strings.ToUpper(string(t.Status)))
}

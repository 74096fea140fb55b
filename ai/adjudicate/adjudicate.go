// Package adjudicate implements the pure decision logic of the AI
// adjudicators : image-label matching and audio-text
// similarity. It has no external dependency so it is exhaustively
// unit-testable, in the spirit of the original's own pure-logic
// modules like backend/layer/python/shared/gamification.py.
package adjudicate

import (
	"regexp"
	"strings"

	"github.com/crowdtask-platform/engine/ai"
	"github.com/crowdtask-platform/engine/common"
)

// Decision is the adjudicator's verdict.
type Decision string

const (
	DecisionApprove Decision = "Approve"
	DecisionReject Decision = "Reject"
	DecisionInconclusive Decision = "Inconclusive"
)

// Verdict carries a decision and the confidence backing it.
type Verdict struct {
	Decision Decision
	Confidence float64
	Reason string
}

const (
	imageApproveConfidence = 0.8
	imageRejectConfidence = 0.2

	// DefaultAudioApproveSimilarity is fixed 0.85 cutoff,
	// used when a caller doesn't have a configured override.
	DefaultAudioApproveSimilarity = 0.85
	audioRejectSimilarity = 0.6
)

// Image matches labels against the worker's answer case-insensitively,
// by exact equality or bi-directional substring, treating a label's
// parents as synonyms carrying the child's confidence —
func Image(labels []ai.Label, answer string) Verdict {
	needle := strings.ToLower(strings.TrimSpace(answer))
	best := 0.0
	matched := false

	for _, l := range labels {
		candidates := append([]string{l.Name}, l.Parents...)
		for _, c := range candidates {
			if labelMatches(strings.ToLower(c), needle) {
				matched = true
				conf := l.Confidence / 100
				if conf > best {
					best = conf
				}
			}
		}
	}

	if matched && best >= imageApproveConfidence {
		return Verdict{Decision: DecisionApprove, Confidence: best, Reason: "label match above confidence threshold"}
	}
	if !matched {
		return Verdict{Decision: DecisionReject, Confidence: imageRejectConfidence, Reason: "no matching label found"}
	}
	return Verdict{Decision: DecisionInconclusive, Confidence: best, Reason: "label matched below confidence threshold"}
}

func labelMatches(label, answer string) bool {
	if label == answer {
		return true
	}
	return strings.Contains(label, answer) || strings.Contains(answer, label)
}

// Audio compares the worker's answer to a previously computed
// transcription using a normalized-text similarity ratio. An empty
// transcription (job still pending) is Inconclusive.
// approveThreshold is the configurable analog of the fixed 0.85
// cutoff (config.TextSimilarityThreshold); pass DefaultAudioApproveSimilarity
// for the default behavior.
func Audio(transcription, answer string, approveThreshold float64) Verdict {
	if strings.TrimSpace(transcription) == "" {
		return Verdict{Decision: DecisionInconclusive, Confidence: 0, Reason: "transcription not yet available"}
	}
	sim := common.SimilarityRatio(normalizeText(transcription), normalizeText(answer))
	switch {
	case sim >= approveThreshold:
		return Verdict{Decision: DecisionApprove, Confidence: sim, Reason: "transcription matches answer"}
	case sim >= audioRejectSimilarity:
		return Verdict{Decision: DecisionInconclusive, Confidence: sim, Reason: "transcription partially matches answer"}
	default:
		return Verdict{Decision: DecisionReject, Confidence: sim, Reason: "transcription does not match answer"}
	}
}

var punctuation = regexp.MustCompile(`[^\w\s]`)
var whitespace = regexp.MustCompile(`\s+`)

// normalizeText lowercases, strips punctuation, and collapses
// whitespace, normalized-text similarity step.
func normalizeText(s string) string {
	s = strings.ToLower(s)
	s = punctuation.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ML adapts the optional ML endpoint's response into a Verdict. Any
// caller-side failure (nil result) degrades to Inconclusive.
func ML(res *ai.MLResult) Verdict {
	if res == nil {
		return Verdict{Decision: DecisionInconclusive, Reason: "ml endpoint unavailable"}
	}
	if res.Approved {
		return Verdict{Decision: DecisionApprove, Confidence: res.Confidence, Reason: res.Reason}
	}
	return Verdict{Decision: DecisionReject, Confidence: res.Confidence, Reason: res.Reason}
}

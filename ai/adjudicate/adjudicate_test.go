package adjudicate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crowdtask-platform/engine/ai"
	"github.com/crowdtask-platform/engine/ai/adjudicate"
)

func TestImage_ApprovesOnHighConfidenceMatch(t *testing.T) {
	labels := []ai.Label{{Name: "Cat", Confidence: 95}}
	v := adjudicate.Image(labels, "cat")
	assert.Equal(t, adjudicate.DecisionApprove, v.Decision)
	assert.InDelta(t, 0.95, v.Confidence, 0.001)
}

func TestImage_MatchesViaParentSynonym(t *testing.T) {
	labels := []ai.Label{{Name: "Siamese Cat", Confidence: 92, Parents: []string{"Cat", "Animal"}}}
	v := adjudicate.Image(labels, "cat")
	assert.Equal(t, adjudicate.DecisionApprove, v.Decision)
}

func TestImage_RejectsOnNoMatch(t *testing.T) {
	labels := []ai.Label{{Name: "Dog", Confidence: 98}}
	v := adjudicate.Image(labels, "cat")
	assert.Equal(t, adjudicate.DecisionReject, v.Decision)
	assert.Equal(t, 0.2, v.Confidence)
}

func TestImage_InconclusiveOnLowConfidenceMatch(t *testing.T) {
	labels := []ai.Label{{Name: "Cat", Confidence: 50}}
	v := adjudicate.Image(labels, "cat")
	assert.Equal(t, adjudicate.DecisionInconclusive, v.Decision)
}

func TestAudio_ApprovesOnHighSimilarity(t *testing.T) {
	v := adjudicate.Audio("The quick brown fox jumps.", "the quick brown fox jumps", adjudicate.DefaultAudioApproveSimilarity)
	assert.Equal(t, adjudicate.DecisionApprove, v.Decision)
}

func TestAudio_InconclusiveWhenTranscriptionMissing(t *testing.T) {
	v := adjudicate.Audio("", "anything", adjudicate.DefaultAudioApproveSimilarity)
	assert.Equal(t, adjudicate.DecisionInconclusive, v.Decision)
}

func TestAudio_RejectsOnLowSimilarity(t *testing.T) {
	v := adjudicate.Audio("completely unrelated content here", "something else entirely", adjudicate.DefaultAudioApproveSimilarity)
	assert.Equal(t, adjudicate.DecisionReject, v.Decision)
}

func TestML_InconclusiveOnNilResult(t *testing.T) {
	v := adjudicate.ML(nil)
	assert.Equal(t, adjudicate.DecisionInconclusive, v.Decision)
}

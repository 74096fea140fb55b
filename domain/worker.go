package domain

import "github.com/shopspring/decimal"

// WorkerLevel gates which tasks a worker may see
type WorkerLevel string

const (
	LevelNovice WorkerLevel = "Novice"
	LevelIntermediate WorkerLevel = "Intermediate"
	LevelExpert WorkerLevel = "Expert"
)

// levelRank orders levels for the can-access-task comparison, grounded
// in the original gamification.py's LEVEL_HIERARCHY.
var levelRank = map[WorkerLevel]int{
	LevelNovice: 0,
	LevelIntermediate: 1,
	LevelExpert: 2,
}

// CanAccessTask reports whether a worker at workerLevel may see a task
// that requires requiredLevel. An empty requirement is open to everyone.
// Grounded in the original's can_access_task, wired into the worker
// task-listing endpoint's `locked` flag.
func CanAccessTask(workerLevel, requiredLevel WorkerLevel) bool {
	if requiredLevel == "" {
		return true
	}
	return levelRank[workerLevel] >= levelRank[requiredLevel]
}

// Worker is a crowdworker's gamification profile
type Worker struct {
	WorkerID string `json:"workerId"`
	TasksSubmitted int64 `json:"tasksSubmitted"`
	TasksApproved int64 `json:"tasksApproved"`
	Accuracy float64 `json:"accuracy"`
	Level WorkerLevel `json:"level"`
	Earnings decimal.Decimal `json:"earnings"`
}

// CalculateLevel applies the level-up thresholds, grounded
// in the original gamification.py's calculate_level.
func CalculateLevel(accuracy float64, tasksSubmitted int64) WorkerLevel {
	if accuracy > 0.90 && tasksSubmitted > 50 {
		return LevelExpert
	}
	if accuracy > 0.80 {
		return LevelIntermediate
	}
	return LevelNovice
}

// Accuracy computes accuracy = tasksApproved / max(tasksSubmitted, 1).
func Accuracy(tasksApproved, tasksSubmitted int64) float64 {
	denom := tasksSubmitted
	if denom < 1 {
		denom = 1
	}
	return float64(tasksApproved) / float64(denom)
}

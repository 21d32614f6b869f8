package workouts

import (
	"math"
	"strings"

	"github.com/2beens/gymsync/internal/gymstats/datekey"
)

const (
	maxNameLength = 120
	maxNoteLength = 2000
	minRPE        = 1
	maxRPE        = 10
)

func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return newValidationError("name", "empty")
	}
	if len(name) > maxNameLength {
		return newValidationError("name", "too long")
	}
	return nil
}

func ValidateNote(note string) error {
	if len(note) > maxNoteLength {
		return newValidationError("note", "too long")
	}
	return nil
}

func ValidateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return newValidationError(field, "empty")
	}
	return nil
}

// ValidateSet checks the values of a single set before it is logged.
func ValidateSet(date string, weight float64, reps int, rpe float64) error {
	if !datekey.Valid(date) {
		return newValidationError("date", "not a YYYY-MM-DD date key")
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight <= 0 {
		return newValidationError("weight", "must be greater than 0")
	}
	if reps <= 0 {
		return newValidationError("reps", "must be greater than 0")
	}
	if math.IsNaN(rpe) || rpe < minRPE || rpe > maxRPE {
		return newValidationError("rpe", "must be between 1 and 10")
	}
	return nil
}

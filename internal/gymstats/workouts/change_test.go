package workouts_test

import (
	"testing"

	"github.com/2beens/gymsync/internal/gymstats/workouts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChange_MarshalRoundTrip(t *testing.T) {
	c := workouts.Change{
		Op:          workouts.OpAdd,
		Entity:      workouts.EntityLog,
		Name:        "log.add",
		OwnerID:     "owner",
		AggregateID: "w1",
		EntityID:    "l1",
		Log:         &workouts.ExerciseLog{ID: "l1", ExerciseID: "e1", Date: "2024-03-09", Weight: 100, Reps: 5, RPE: 8},
		Touched:     []workouts.Ref{{Entity: workouts.EntityLog, ID: "l1", Revision: 3}},
	}
	payload, err := c.Marshal()
	require.NoError(t, err)

	decoded, err := workouts.UnmarshalChange(payload)
	require.NoError(t, err)
	assert.Equal(t, c.Key(), decoded.Key())
	assert.Equal(t, "log:l1", decoded.Key())
	assert.Equal(t, c.Touched, decoded.Touched)
	require.NotNil(t, decoded.Log)
	assert.Equal(t, 100.0, decoded.Log.Weight)
}

func TestUnmarshalChange_Invalid(t *testing.T) {
	_, err := workouts.UnmarshalChange([]byte(`{"op":"upsert"}`))
	assert.Error(t, err)
	_, err = workouts.UnmarshalChange([]byte(`not json`))
	assert.Error(t, err)
}

func TestValidateSet(t *testing.T) {
	assert.NoError(t, workouts.ValidateSet("2024-03-09", 100, 5, 8))

	for _, tc := range []struct {
		name   string
		date   string
		weight float64
		reps   int
		rpe    float64
		field  string
	}{
		{"bad date", "09.03.2024", 100, 5, 8, "date"},
		{"zero weight", "2024-03-09", 0, 5, 8, "weight"},
		{"zero reps", "2024-03-09", 100, 0, 8, "reps"},
		{"rpe too high", "2024-03-09", 100, 5, 11, "rpe"},
		{"rpe too low", "2024-03-09", 100, 5, 0.5, "rpe"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := workouts.ValidateSet(tc.date, tc.weight, tc.reps, tc.rpe)
			require.Error(t, err)
			assert.True(t, workouts.IsValidationError(err))
			var vErr *workouts.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
		})
	}
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, workouts.ValidateName("Push Day"))
	assert.Error(t, workouts.ValidateName("   "))
	assert.Error(t, workouts.ValidateName(string(make([]byte, 200))))
}

func TestFlatten(t *testing.T) {
	snap := workouts.Flatten([]workouts.WorkoutAggregate{
		{
			Workout: workouts.Workout{ID: "w1"},
			Exercises: []workouts.ExerciseAggregate{
				{Exercise: workouts.Exercise{ID: "e1"}, Logs: []workouts.ExerciseLog{{ID: "l1"}, {ID: "l2"}}},
			},
		},
	})
	assert.Len(t, snap.Workouts, 1)
	assert.Len(t, snap.Exercises, 1)
	assert.Len(t, snap.Logs, 2)
}

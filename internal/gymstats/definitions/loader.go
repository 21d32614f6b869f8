package definitions

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

type file struct {
	Exercise []Definition `toml:"exercise"`
}

// LoadFile reads definitions from a TOML file made of [[exercise]] tables.
func LoadFile(path string) (*Table, error) {
	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("decode definitions file %s: %w", path, err)
	}
	if len(f.Exercise) == 0 {
		return nil, fmt.Errorf("definitions file %s: no exercises defined", path)
	}
	table, err := NewTable(f.Exercise...)
	if err != nil {
		return nil, fmt.Errorf("definitions file %s: %w", path, err)
	}
	return table, nil
}

// Default returns the built-in definition table.
func Default() *Table {
	table, err := NewTable(defaultDefinitions()...)
	if err != nil {
		panic(fmt.Sprintf("default definitions: %s", err))
	}
	return table
}

func defaultDefinitions() []Definition {
	return []Definition{
		{Name: "Bench Press", MainMuscle: "chest", AccessoryMuscles: []string{"triceps", "shoulders"}, FatigueFactor: 1.0},
		{Name: "Incline Bench Press", MainMuscle: "chest", AccessoryMuscles: []string{"shoulders", "triceps"}, FatigueFactor: 0.95},
		{Name: "Dumbbell Fly", MainMuscle: "chest", AccessoryMuscles: []string{"shoulders"}, FatigueFactor: 0.7},
		{Name: "Dips", MainMuscle: "chest", AccessoryMuscles: []string{"triceps", "shoulders"}, FatigueFactor: 0.85},
		{Name: "Overhead Press", MainMuscle: "shoulders", AccessoryMuscles: []string{"triceps"}, FatigueFactor: 0.9},
		{Name: "Lateral Raise", MainMuscle: "shoulders", FatigueFactor: 0.5},
		{Name: "Squat", MainMuscle: "quads", AccessoryMuscles: []string{"glutes", "hamstrings", "lower back"}, FatigueFactor: 1.1},
		{Name: "Front Squat", MainMuscle: "quads", AccessoryMuscles: []string{"glutes", "abs"}, FatigueFactor: 1.05},
		{Name: "Leg Press", MainMuscle: "quads", AccessoryMuscles: []string{"glutes"}, FatigueFactor: 0.85},
		{Name: "Leg Extension", MainMuscle: "quads", FatigueFactor: 0.6},
		{Name: "Deadlift", MainMuscle: "lower back", AccessoryMuscles: []string{"hamstrings", "glutes", "traps"}, FatigueFactor: 1.1},
		{Name: "Romanian Deadlift", MainMuscle: "hamstrings", AccessoryMuscles: []string{"glutes", "lower back"}, FatigueFactor: 1.0},
		{Name: "Leg Curl", MainMuscle: "hamstrings", FatigueFactor: 0.6},
		{Name: "Hip Thrust", MainMuscle: "glutes", AccessoryMuscles: []string{"hamstrings"}, FatigueFactor: 0.8},
		{Name: "Pull Up", MainMuscle: "back", AccessoryMuscles: []string{"biceps", "forearms"}, FatigueFactor: 0.9},
		{Name: "Barbell Row", MainMuscle: "back", AccessoryMuscles: []string{"biceps", "lower back"}, FatigueFactor: 0.95},
		{Name: "Lat Pulldown", MainMuscle: "back", AccessoryMuscles: []string{"biceps"}, FatigueFactor: 0.75},
		{Name: "Barbell Curl", MainMuscle: "biceps", AccessoryMuscles: []string{"forearms"}, FatigueFactor: 0.6},
		{Name: "Triceps Pushdown", MainMuscle: "triceps", FatigueFactor: 0.55},
		{Name: "Calf Raise", MainMuscle: "calves", FatigueFactor: 0.5},
		{Name: "Plank", MainMuscle: "abs", FatigueFactor: 0.5},
	}
}

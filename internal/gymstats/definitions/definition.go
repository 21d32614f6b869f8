package definitions

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

const (
	MinFatigueFactor = 0.5
	MaxFatigueFactor = 1.1
)

var (
	ErrDefinitionNotFound = errors.New("exercise definition not found")
	ErrDefinitionExists   = errors.New("exercise definition already exists")
)

// Definition describes a named movement: which muscles it works, how taxing
// it is and the best known one rep max for it.
type Definition struct {
	Name             string   `json:"name" toml:"name"`
	MainMuscle       string   `json:"mainMuscle" toml:"main_muscle"`
	AccessoryMuscles []string `json:"accessoryMuscles" toml:"accessory_muscles"`
	FatigueFactor    float64  `json:"fatigueFactor" toml:"fatigue_factor"`
	UserMax          float64  `json:"userMax" toml:"user_max"`
}

func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("definition name is empty")
	}
	if strings.TrimSpace(d.MainMuscle) == "" {
		return fmt.Errorf("definition [%s]: main muscle is empty", d.Name)
	}
	if math.IsNaN(d.FatigueFactor) || d.FatigueFactor < MinFatigueFactor || d.FatigueFactor > MaxFatigueFactor {
		return fmt.Errorf("definition [%s]: fatigue factor %v out of range [%v, %v]", d.Name, d.FatigueFactor, MinFatigueFactor, MaxFatigueFactor)
	}
	if math.IsNaN(d.UserMax) || d.UserMax < 0 {
		return fmt.Errorf("definition [%s]: user max must not be negative", d.Name)
	}
	return nil
}

// Table is the exercise definition lookup, keyed by exercise name
// (case insensitive). It is read mostly; the only writes are custom
// definitions and user max ratchets.
type Table struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewTable(defs ...Definition) (*Table, error) {
	t := &Table{
		defs: make(map[string]Definition, len(defs)),
	}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		key := nameKey(d.Name)
		if _, ok := t.defs[key]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDefinitionExists, d.Name)
		}
		t.defs[key] = copyDefinition(d)
	}
	return t, nil
}

func (t *Table) Get(name string) (Definition, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.defs[nameKey(name)]
	if !ok {
		return Definition{}, false
	}
	return copyDefinition(d), true
}

// List returns all definitions sorted by name.
func (t *Table) List() []Definition {
	t.mu.RLock()
	defer t.mu.RUnlock()

	list := make([]Definition, 0, len(t.defs))
	for _, d := range t.defs {
		list = append(list, copyDefinition(d))
	}
	sort.Slice(list, func(i, j int) bool {
		return nameKey(list[i].Name) < nameKey(list[j].Name)
	})
	return list
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.defs)
}

// Define registers a custom exercise.
func (t *Table) Define(d Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	key := nameKey(d.Name)
	if _, ok := t.defs[key]; ok {
		return fmt.Errorf("%w: %s", ErrDefinitionExists, d.Name)
	}
	t.defs[key] = copyDefinition(d)
	return nil
}

func (t *Table) UserMax(name string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.defs[nameKey(name)].UserMax
}

// Ratchet raises the user max of the named exercise to candidate when
// candidate is higher. The user max never goes down. Returns the resulting
// max and whether it changed.
func (t *Table) Ratchet(name string, candidate float64) (float64, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := nameKey(name)
	d, ok := t.defs[key]
	if !ok {
		return 0, false, ErrDefinitionNotFound
	}
	if math.IsNaN(candidate) || candidate <= d.UserMax {
		return d.UserMax, false, nil
	}
	d.UserMax = candidate
	t.defs[key] = d
	return candidate, true, nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func copyDefinition(d Definition) Definition {
	if d.AccessoryMuscles != nil {
		d.AccessoryMuscles = append([]string(nil), d.AccessoryMuscles...)
	}
	return d
}

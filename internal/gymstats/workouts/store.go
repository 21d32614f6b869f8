package workouts

import (
	"sort"
	"sync"
	"time"
)

// Store is the in-memory source of truth for one client. Reads return copies,
// so callers never share memory with the store. Only the mutation engine
// writes to it.
type Store struct {
	mu        sync.RWMutex
	workouts  map[string]*Workout
	exercises map[string]*Exercise
	logs      map[string]*ExerciseLog
	// per record local revision, bumped on every local write
	revisions map[string]int64
	// global revision, bumped on every change of any kind
	revision int64
}

type LogFilter struct {
	WorkoutID      string
	ExerciseID     string
	ExerciseName   string
	From           string
	To             string
	IncludeDeleted bool
}

func NewStore() *Store {
	return &Store{
		workouts:  make(map[string]*Workout),
		exercises: make(map[string]*Exercise),
		logs:      make(map[string]*ExerciseLog),
		revisions: make(map[string]int64),
	}
}

// Revision changes whenever anything in the store changes.
func (s *Store) Revision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

func (s *Store) Workout(id string) (Workout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workouts[id]
	if !ok {
		return Workout{}, ErrWorkoutNotFound
	}
	return *w, nil
}

func (s *Store) Exercise(id string) (Exercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, ok := s.exercises[id]
	if !ok {
		return Exercise{}, ErrExerciseNotFound
	}
	return *ex, nil
}

func (s *Store) Log(id string) (ExerciseLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.logs[id]
	if !ok {
		return ExerciseLog{}, ErrLogNotFound
	}
	return *l, nil
}

func (s *Store) HasWorkout(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.workouts[id]
	return ok
}

// Workouts lists the owner's workouts, highest order first.
func (s *Store) Workouts(ownerID string, includeArchived bool) []Workout {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []Workout
	for _, w := range s.workouts {
		if ownerID != "" && w.OwnerID != ownerID {
			continue
		}
		if w.Archived && !includeArchived {
			continue
		}
		list = append(list, *w)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Order != list[j].Order {
			return list[i].Order > list[j].Order
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// Exercises lists the exercises of a workout, highest order first.
func (s *Store) Exercises(workoutID string, includeArchived bool) []Exercise {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exercisesOf(workoutID, includeArchived)
}

func (s *Store) exercisesOf(workoutID string, includeArchived bool) []Exercise {
	var list []Exercise
	for _, ex := range s.exercises {
		if ex.WorkoutID != workoutID {
			continue
		}
		if ex.Archived && !includeArchived {
			continue
		}
		list = append(list, *ex)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Order != list[j].Order {
			return list[i].Order > list[j].Order
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// Logs returns the logs matching the filter, ordered by date and then by
// creation time, each joined with its exercise name.
func (s *Store) Logs(filter LogFilter) []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []LogEntry
	for _, l := range s.logs {
		if l.Deleted && !filter.IncludeDeleted {
			continue
		}
		if filter.WorkoutID != "" && l.WorkoutID != filter.WorkoutID {
			continue
		}
		if filter.ExerciseID != "" && l.ExerciseID != filter.ExerciseID {
			continue
		}
		if filter.From != "" && l.Date < filter.From {
			continue
		}
		if filter.To != "" && l.Date > filter.To {
			continue
		}
		var name string
		if ex, ok := s.exercises[l.ExerciseID]; ok {
			name = ex.Name
		}
		if filter.ExerciseName != "" && name != filter.ExerciseName {
			continue
		}
		list = append(list, LogEntry{ExerciseLog: *l, ExerciseName: name})
	}
	sortLogEntries(list)
	return list
}

func sortLogEntries(list []LogEntry) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date < list[j].Date
		}
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

// Aggregate returns the nested shape of a workout, including soft deleted logs.
func (s *Store) Aggregate(workoutID string) (WorkoutAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggregate(workoutID)
}

func (s *Store) aggregate(workoutID string) (WorkoutAggregate, error) {
	w, ok := s.workouts[workoutID]
	if !ok {
		return WorkoutAggregate{}, ErrWorkoutNotFound
	}

	agg := WorkoutAggregate{Workout: *w}
	for _, ex := range s.exercisesOf(workoutID, true) {
		exAgg := ExerciseAggregate{Exercise: ex, Logs: []ExerciseLog{}}
		var entries []LogEntry
		for _, l := range s.logs {
			if l.ExerciseID == ex.ID {
				entries = append(entries, LogEntry{ExerciseLog: *l})
			}
		}
		sortLogEntries(entries)
		for _, e := range entries {
			exAgg.Logs = append(exAgg.Logs, e.ExerciseLog)
		}
		agg.Exercises = append(agg.Exercises, exAgg)
	}
	if agg.Exercises == nil {
		agg.Exercises = []ExerciseAggregate{}
	}
	return agg, nil
}

func (s *Store) NextWorkoutOrder(ownerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	next := 0
	for _, w := range s.workouts {
		if w.OwnerID == ownerID && w.Order >= next {
			next = w.Order + 1
		}
	}
	return next
}

func (s *Store) NextExerciseOrder(workoutID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	next := 0
	for _, ex := range s.exercises {
		if ex.WorkoutID == workoutID && ex.Order >= next {
			next = ex.Order + 1
		}
	}
	return next
}

// PutWorkout inserts or replaces a workout as an unsynced local write.
func (s *Store) PutWorkout(w Workout) Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Synced = false
	s.workouts[w.ID] = &w
	return s.bump(EntityWorkout, w.ID)
}

// PutExercise inserts or replaces an exercise as an unsynced local write.
func (s *Store) PutExercise(ex Exercise) (Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workouts[ex.WorkoutID]; !ok {
		return Ref{}, ErrWorkoutNotFound
	}
	ex.Synced = false
	s.exercises[ex.ID] = &ex
	return s.bump(EntityExercise, ex.ID), nil
}

// PutLog inserts or replaces a log as an unsynced local write.
func (s *Store) PutLog(l ExerciseLog) (Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.exercises[l.ExerciseID]
	if !ok {
		return Ref{}, ErrExerciseNotFound
	}
	l.WorkoutID = ex.WorkoutID
	l.Synced = false
	s.logs[l.ID] = &l
	return s.bump(EntityLog, l.ID), nil
}

// UpdateWorkout applies fn to the stored workout and marks it unsynced.
func (s *Store) UpdateWorkout(id string, fn func(w *Workout)) (Workout, Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workouts[id]
	if !ok {
		return Workout{}, Ref{}, ErrWorkoutNotFound
	}
	updated := *w
	fn(&updated)
	updated.ID = w.ID
	updated.Synced = false
	s.workouts[id] = &updated
	return updated, s.bump(EntityWorkout, id), nil
}

// UpdateExercise applies fn to the stored exercise and marks it unsynced.
func (s *Store) UpdateExercise(id string, fn func(ex *Exercise)) (Exercise, Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.exercises[id]
	if !ok {
		return Exercise{}, Ref{}, ErrExerciseNotFound
	}
	updated := *ex
	fn(&updated)
	updated.ID = ex.ID
	updated.WorkoutID = ex.WorkoutID
	updated.Synced = false
	s.exercises[id] = &updated
	return updated, s.bump(EntityExercise, id), nil
}

// UpdateLog applies fn to the stored log and marks it unsynced.
func (s *Store) UpdateLog(id string, fn func(l *ExerciseLog)) (ExerciseLog, Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[id]
	if !ok {
		return ExerciseLog{}, Ref{}, ErrLogNotFound
	}
	updated := *l
	fn(&updated)
	updated.ID = l.ID
	updated.ExerciseID = l.ExerciseID
	updated.WorkoutID = l.WorkoutID
	updated.Synced = false
	s.logs[id] = &updated
	return updated, s.bump(EntityLog, id), nil
}

// RemoveWorkout hard deletes a workout with all of its exercises and logs,
// returning refs to the removed children.
func (s *Store) RemoveWorkout(id string) ([]Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workouts[id]; !ok {
		return nil, ErrWorkoutNotFound
	}

	var removed []Ref
	for exID, ex := range s.exercises {
		if ex.WorkoutID == id {
			removed = append(removed, s.removeExercise(exID)...)
		}
	}
	delete(s.workouts, id)
	delete(s.revisions, id)
	s.revision++
	sortRefs(removed)
	return removed, nil
}

// RemoveExercise hard deletes an exercise with its logs.
func (s *Store) RemoveExercise(id string) ([]Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exercises[id]; !ok {
		return nil, ErrExerciseNotFound
	}
	removed := s.removeExercise(id)
	s.revision++
	// first ref is the exercise itself
	children := removed[1:]
	sortRefs(children)
	return children, nil
}

func (s *Store) removeExercise(id string) []Ref {
	removed := []Ref{{Entity: EntityExercise, ID: id, Revision: s.revisions[id]}}
	for logID, l := range s.logs {
		if l.ExerciseID == id {
			removed = append(removed, Ref{Entity: EntityLog, ID: logID, Revision: s.revisions[logID]})
			delete(s.logs, logID)
			delete(s.revisions, logID)
		}
	}
	delete(s.exercises, id)
	delete(s.revisions, id)
	return removed
}

// RemoveLog hard deletes a log. Used only to undo an optimistic add.
func (s *Store) RemoveLog(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[id]; !ok {
		return ErrLogNotFound
	}
	delete(s.logs, id)
	delete(s.revisions, id)
	s.revision++
	return nil
}

// MarkSynced flips the synced flag of every ref whose record still carries
// the same revision. Records written again in the meantime stay unsynced.
// Returns the number of flipped records.
func (s *Store) MarkSynced(refs ...Ref) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	flipped := 0
	for _, ref := range refs {
		if s.revisions[ref.ID] != ref.Revision {
			continue
		}
		switch ref.Entity {
		case EntityWorkout:
			if w, ok := s.workouts[ref.ID]; ok && !w.Synced {
				w.Synced = true
				flipped++
			}
		case EntityExercise:
			if ex, ok := s.exercises[ref.ID]; ok && !ex.Synced {
				ex.Synced = true
				flipped++
			}
		case EntityLog:
			if l, ok := s.logs[ref.ID]; ok && !l.Synced {
				l.Synced = true
				flipped++
			}
		}
	}
	if flipped > 0 {
		s.revision++
	}
	return flipped
}

// PendingCount is the number of records not yet confirmed by the remote.
func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, w := range s.workouts {
		if !w.Synced {
			count++
		}
	}
	for _, ex := range s.exercises {
		if !ex.Synced {
			count++
		}
	}
	for _, l := range s.logs {
		if !l.Synced {
			count++
		}
	}
	return count
}

// Merge applies remote state on top of the local one. A remote record wins
// only over a synced local record with an older updatedAt, or when the record
// is missing locally. Ids in keep are never touched. Merged records are
// synced. Returns the number of records written.
func (s *Store) Merge(snap Snapshot, keep map[string]bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := 0
	for _, remote := range snap.Workouts {
		if keep[remote.ID] {
			continue
		}
		local, ok := s.workouts[remote.ID]
		if ok && !remoteWins(local.Synced, local.UpdatedAt, remote.UpdatedAt) {
			continue
		}
		remote.Synced = true
		s.workouts[remote.ID] = &remote
		s.revisions[remote.ID]++
		merged++
	}
	for _, remote := range snap.Exercises {
		if keep[remote.ID] {
			continue
		}
		if _, ok := s.workouts[remote.WorkoutID]; !ok {
			continue
		}
		local, ok := s.exercises[remote.ID]
		if ok && !remoteWins(local.Synced, local.UpdatedAt, remote.UpdatedAt) {
			continue
		}
		remote.Synced = true
		s.exercises[remote.ID] = &remote
		s.revisions[remote.ID]++
		merged++
	}
	for _, remote := range snap.Logs {
		if keep[remote.ID] {
			continue
		}
		ex, ok := s.exercises[remote.ExerciseID]
		if !ok {
			continue
		}
		local, ok := s.logs[remote.ID]
		if ok && !remoteWins(local.Synced, local.UpdatedAt, remote.UpdatedAt) {
			continue
		}
		remote.WorkoutID = ex.WorkoutID
		remote.Synced = true
		s.logs[remote.ID] = &remote
		s.revisions[remote.ID]++
		merged++
	}
	if merged > 0 {
		s.revision++
	}
	return merged
}

func remoteWins(localSynced bool, localUpdatedAt, remoteUpdatedAt time.Time) bool {
	return localSynced && remoteUpdatedAt.After(localUpdatedAt)
}

// Snapshot dumps every record, including synced flags and record revisions.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Workouts:  make([]Workout, 0, len(s.workouts)),
		Exercises: make([]Exercise, 0, len(s.exercises)),
		Logs:      make([]ExerciseLog, 0, len(s.logs)),
		Revisions: make(map[string]int64, len(s.revisions)),
	}
	for id, rev := range s.revisions {
		snap.Revisions[id] = rev
	}
	for _, w := range s.workouts {
		snap.Workouts = append(snap.Workouts, *w)
	}
	for _, ex := range s.exercises {
		snap.Exercises = append(snap.Exercises, *ex)
	}
	for _, l := range s.logs {
		snap.Logs = append(snap.Logs, *l)
	}
	sort.Slice(snap.Workouts, func(i, j int) bool { return snap.Workouts[i].ID < snap.Workouts[j].ID })
	sort.Slice(snap.Exercises, func(i, j int) bool { return snap.Exercises[i].ID < snap.Exercises[j].ID })
	sort.Slice(snap.Logs, func(i, j int) bool { return snap.Logs[i].ID < snap.Logs[j].ID })
	return snap
}

// Restore replaces the whole store content with the snapshot, keeping the
// synced flags and record revisions it carries. Orphaned exercises and logs
// are dropped.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workouts = make(map[string]*Workout, len(snap.Workouts))
	s.exercises = make(map[string]*Exercise, len(snap.Exercises))
	s.logs = make(map[string]*ExerciseLog, len(snap.Logs))
	s.revisions = make(map[string]int64)

	for _, w := range snap.Workouts {
		s.workouts[w.ID] = &w
		s.revisions[w.ID] = restoredRevision(snap, w.ID)
	}
	for _, ex := range snap.Exercises {
		if _, ok := s.workouts[ex.WorkoutID]; !ok {
			continue
		}
		s.exercises[ex.ID] = &ex
		s.revisions[ex.ID] = restoredRevision(snap, ex.ID)
	}
	for _, l := range snap.Logs {
		ex, ok := s.exercises[l.ExerciseID]
		if !ok {
			continue
		}
		l.WorkoutID = ex.WorkoutID
		s.logs[l.ID] = &l
		s.revisions[l.ID] = restoredRevision(snap, l.ID)
	}
	s.revision++
}

// snapshots written before revisions were persisted start every record at one
func restoredRevision(snap Snapshot, id string) int64 {
	if rev := snap.Revisions[id]; rev > 0 {
		return rev
	}
	return 1
}

// CompactDeletedLogs purges soft deleted logs that are already synced and
// dated strictly before the given date key. Returns the number of purged logs.
func (s *Store) CompactDeletedLogs(before string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, l := range s.logs {
		if l.Deleted && l.Synced && l.Date < before {
			delete(s.logs, id)
			delete(s.revisions, id)
			purged++
		}
	}
	if purged > 0 {
		s.revision++
	}
	return purged
}

func (s *Store) bump(entity Entity, id string) Ref {
	s.revisions[id]++
	s.revision++
	return Ref{Entity: entity, ID: id, Revision: s.revisions[id]}
}

func sortRefs(refs []Ref) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Entity != refs[j].Entity {
			return refs[i].Entity < refs[j].Entity
		}
		return refs[i].ID < refs[j].ID
	})
}

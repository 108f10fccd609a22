package dummydb

import (
	"sort"
	"sync"

	"github.com/trezcool/tathmini/core/attempt"
	"github.com/trezcool/tathmini/core/progress"
	"github.com/trezcool/tathmini/core/submission"
)

type (
	// pair is the composite key of the per-user tables.
	pair struct {
		a, b string
	}

	// DB is an in-memory store. All tables share one lock, so every write is atomic.
	DB struct {
		sync.RWMutex

		lessons   map[string]progress.Lesson
		exercises map[string]progress.Exercise
		tests     map[string]attempt.Test
		questions map[string]attempt.Question

		exerciseCompletions map[pair]progress.ExerciseCompletion
		lessonCompletions   map[pair]progress.LessonCompletion
		enrollments         map[pair]progress.CourseEnrollment
		pointAwards         map[pair]progress.PointAward

		attempts    map[string]attempt.Attempt
		answers     map[pair]attempt.Answer
		submissions map[string]submission.Submission
		standalones map[string]submission.Standalone
	}
)

func Open() (*DB, error) {
	db := &DB{
		lessons:             make(map[string]progress.Lesson),
		exercises:           make(map[string]progress.Exercise),
		tests:               make(map[string]attempt.Test),
		questions:           make(map[string]attempt.Question),
		exerciseCompletions: make(map[pair]progress.ExerciseCompletion),
		lessonCompletions:   make(map[pair]progress.LessonCompletion),
		enrollments:         make(map[pair]progress.CourseEnrollment),
		pointAwards:         make(map[pair]progress.PointAward),
		attempts:            make(map[string]attempt.Attempt),
		answers:             make(map[pair]attempt.Answer),
		submissions:         make(map[string]submission.Submission),
		standalones:         make(map[string]submission.Standalone),
	}
	return db, nil
}

// Catalog seeding. Courses exist implicitly through their lessons.

func (db *DB) AddLesson(l progress.Lesson) {
	db.Lock()
	defer db.Unlock()
	db.lessons[l.ID] = l
}

func (db *DB) AddExercise(e progress.Exercise) {
	db.Lock()
	defer db.Unlock()
	db.exercises[e.ID] = e
}

// RemoveExercise drops e from the catalog. Completions recorded for it are kept.
func (db *DB) RemoveExercise(id string) {
	db.Lock()
	defer db.Unlock()
	delete(db.exercises, id)
}

func (db *DB) AddTest(t attempt.Test) {
	db.Lock()
	defer db.Unlock()
	db.tests[t.ID] = t
}

func (db *DB) AddQuestion(q attempt.Question) {
	db.Lock()
	defer db.Unlock()
	db.questions[q.ID] = q
}

// SeedSubmissions stores subs as is, skipping the (attempt, question) uniqueness check.
// It mimics rows written before the constraint existed.
func (db *DB) SeedSubmissions(subs ...submission.Submission) {
	db.Lock()
	defer db.Unlock()
	for _, s := range subs {
		db.submissions[s.ID] = s
	}
}

// Submissions returns every stored test submission, oldest first.
func (db *DB) Submissions() []submission.Submission {
	db.RLock()
	defer db.RUnlock()
	subs := make([]submission.Submission, 0, len(db.submissions))
	for _, s := range db.submissions {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
	return subs
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

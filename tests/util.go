package testutil

import (
	"fmt"
	"io/ioutil"
	"log"
	"testing"
	"time"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/attempt"
	"github.com/trezcool/tathmini/core/progress"
	"github.com/trezcool/tathmini/core/user"
	"github.com/trezcool/tathmini/services/logger"
	"github.com/trezcool/tathmini/storage/database/dummy"
)

// NewConfig returns the configuration used by tests.
func NewConfig() *core.Config {
	conf := &core.Config{
		Debug:     true,
		TestMode:  true,
		Env:       "TEST",
		Build:     "test",
		AppName:   "Tathmini",
		SecretKey: "secret",
	}
	conf.Auth.Issuer = "tathmini-test"
	conf.Database.Engine = "memory"
	conf.Progress.LessonBonus = 20
	conf.Grading.MinFeedbackLength = 20
	conf.Reconciler.Interval = time.Hour
	conf.Server.ShutdownTimeout = time.Second
	return conf
}

// NewLogger returns a logger that writes nowhere and never reports to rollbar.
func NewLogger() core.Logger {
	l := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), NewConfig())
	l.Enable(false)
	return l
}

func OpenDummyDB(t *testing.T) *dummydb.DB {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("OpenDummyDB() failed: %v", err)
	}
	return db
}

func LessonID(courseID string, lesson int) string {
	return fmt.Sprintf("%s-l%d", courseID, lesson)
}

func ExerciseID(courseID string, lesson, exercise int) string {
	return fmt.Sprintf("%s-l%d-e%d", courseID, lesson, exercise)
}

// SeedCourse adds a course with one lesson per exercisesPerLesson entry,
// each holding that many exercises. Use LessonID and ExerciseID to refer to them.
func SeedCourse(db *dummydb.DB, courseID string, exercisesPerLesson ...int) {
	for l, n := range exercisesPerLesson {
		lessonID := LessonID(courseID, l)
		db.AddLesson(progress.Lesson{ID: lessonID, CourseID: courseID})
		for e := 0; e < n; e++ {
			db.AddExercise(progress.Exercise{ID: ExerciseID(courseID, l, e), LessonID: lessonID})
		}
	}
}

// SeedTest adds a test made of questions; their TestID is overwritten.
func SeedTest(db *dummydb.DB, testID string, questions ...attempt.Question) {
	db.AddTest(attempt.Test{ID: testID})
	for _, q := range questions {
		q.TestID = testID
		db.AddQuestion(q)
	}
}

func Student(id string) user.Identity { return user.Identity{UserID: id, Role: user.RoleStudent} }
func Teacher(id string) user.Identity { return user.Identity{UserID: id, Role: user.RoleTeacher} }
func Admin(id string) user.Identity   { return user.Identity{UserID: id, Role: user.RoleAdmin} }

func Score(v float64) *float64 { return &v }

// FreezeTime makes core.NowFunc return now until the test ends.
func FreezeTime(t *testing.T, now time.Time) {
	prev := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = prev })
}

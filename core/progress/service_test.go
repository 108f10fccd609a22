package progress_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/progress"
	"github.com/trezcool/tathmini/storage/database/dummy"
	"github.com/trezcool/tathmini/tests"
)

const userID = "u1"

func setup(t *testing.T, conf ...*core.Config) (*progress.Service, progress.Repository, *dummydb.DB) {
	db := testutil.OpenDummyDB(t)
	repo := dummydb.NewProgressRepository(db)
	c := testutil.NewConfig()
	if len(conf) > 0 {
		c = conf[0]
	}
	svc := progress.NewService(repo, core.NewValidator(), testutil.NewLogger(), c)
	return svc, repo, db
}

func complete(t *testing.T, svc *progress.Service, exerciseID string, score int) progress.CascadeResult {
	res, err := svc.RecordExerciseCompletion(context.Background(), progress.ExerciseCompletionInput{
		UserID:     userID,
		ExerciseID: exerciseID,
		Answer:     "a",
		Score:      score,
	})
	require.NoError(t, err)
	return res
}

func TestService_RecordExerciseCompletion_lesson(t *testing.T) {
	svc, _, db := setup(t)
	testutil.SeedCourse(db, "c1", 3, 1)

	res := complete(t, svc, testutil.ExerciseID("c1", 0, 0), 10)
	assert.False(t, res.LessonCompleted)
	assert.Equal(t, 10, res.PointsAwarded)

	res = complete(t, svc, testutil.ExerciseID("c1", 0, 1), 10)
	assert.False(t, res.LessonCompleted, "2 of 3 exercises must not complete the lesson")
	assert.False(t, res.LessonCompletedNow)
	assert.Equal(t, 0, res.CourseProgressPercent)

	res = complete(t, svc, testutil.ExerciseID("c1", 0, 2), 10)
	assert.True(t, res.LessonCompleted)
	assert.True(t, res.LessonCompletedNow)
	assert.Equal(t, 30, res.PointsAwarded, "score + lesson bonus")
	assert.Equal(t, 50, res.CourseProgressPercent)
	assert.False(t, res.CourseCompleted)
	assert.Equal(t, 50, res.TotalPoints)
	assert.Equal(t, 1, res.Level)
}

func TestService_RecordExerciseCompletion_idempotent(t *testing.T) {
	svc, repo, db := setup(t)
	testutil.SeedCourse(db, "c1", 1, 1)
	ctx := context.Background()
	exID := testutil.ExerciseID("c1", 0, 0)

	first := complete(t, svc, exID, 15)
	enr1, err := repo.GetEnrollment(ctx, userID, "c1")
	require.NoError(t, err)
	comps1, err := repo.ListExerciseCompletions(ctx, userID, []string{exID})
	require.NoError(t, err)

	second := complete(t, svc, exID, 15)
	enr2, err := repo.GetEnrollment(ctx, userID, "c1")
	require.NoError(t, err)
	comps2, err := repo.ListExerciseCompletions(ctx, userID, []string{exID})
	require.NoError(t, err)

	assert.True(t, first.LessonCompletedNow)
	assert.Equal(t, 35, first.PointsAwarded)

	assert.True(t, second.LessonCompleted)
	assert.False(t, second.LessonCompletedNow)
	assert.Equal(t, 0, second.PointsAwarded)
	assert.Equal(t, first.TotalPoints, second.TotalPoints)
	assert.Equal(t, first.CourseProgressPercent, second.CourseProgressPercent)
	assert.Equal(t, enr1, enr2)
	assert.Equal(t, comps1, comps2)
}

func TestService_RecordExerciseCompletion_coursePercent(t *testing.T) {
	svc, repo, db := setup(t)
	testutil.SeedCourse(db, "c1", 1, 1, 1, 1)

	res := complete(t, svc, testutil.ExerciseID("c1", 0, 0), 0)
	assert.Equal(t, 25, res.CourseProgressPercent)

	for l := 1; l < 4; l++ {
		res = complete(t, svc, testutil.ExerciseID("c1", l, 0), 0)
	}
	assert.Equal(t, 100, res.CourseProgressPercent)
	assert.True(t, res.CourseCompleted)

	enr, err := repo.GetEnrollment(context.Background(), userID, "c1")
	require.NoError(t, err)
	assert.Equal(t, 100, enr.ProgressPercent)
	assert.NotNil(t, enr.CompletedAt)
}

func TestService_RecordExerciseCompletion_edgeCases(t *testing.T) {
	svc, repo, db := setup(t)
	testutil.SeedCourse(db, "c1", 1, 0)
	ctx := context.Background()

	// a failing score still completes the exercise
	exID := testutil.ExerciseID("c1", 0, 0)
	res := complete(t, svc, exID, 0)
	comps, err := repo.ListExerciseCompletions(ctx, userID, []string{exID})
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.True(t, comps[0].Completed)

	// the empty lesson never completes, so the course stays at 50%
	assert.True(t, res.LessonCompleted)
	assert.Equal(t, 50, res.CourseProgressPercent)
	assert.False(t, res.CourseCompleted)
}

func TestService_RecordExerciseCompletion_errors(t *testing.T) {
	svc, _, db := setup(t)
	testutil.SeedCourse(db, "c1", 1)

	tests := []struct {
		name     string
		in       progress.ExerciseCompletionInput
		wantKind string
	}{
		{"missing user", progress.ExerciseCompletionInput{ExerciseID: testutil.ExerciseID("c1", 0, 0)}, core.KindValidation},
		{"blank exercise", progress.ExerciseCompletionInput{UserID: userID, ExerciseID: "  "}, core.KindValidation},
		{"negative score", progress.ExerciseCompletionInput{UserID: userID, ExerciseID: testutil.ExerciseID("c1", 0, 0), Score: -1}, core.KindValidation},
		{"unknown exercise", progress.ExerciseCompletionInput{UserID: userID, ExerciseID: "nope"}, core.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordExerciseCompletion(context.Background(), tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, core.ErrorKind(err))
		})
	}
}

func TestService_RecordExerciseCompletion_newLessons(t *testing.T) {
	tests := []struct {
		name        string
		monotonic   bool
		wantPercent int
	}{
		{"recomputed", false, 50},
		{"monotonic", true, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := testutil.NewConfig()
			conf.Progress.Monotonic = tt.monotonic
			svc, _, db := setup(t, conf)
			testutil.SeedCourse(db, "c1", 1)

			res := complete(t, svc, testutil.ExerciseID("c1", 0, 0), 0)
			require.Equal(t, 100, res.CourseProgressPercent)

			// a second lesson is published; re-answering re-evaluates the course
			testutil.SeedCourse(db, "c1", 1, 1)
			res = complete(t, svc, testutil.ExerciseID("c1", 0, 0), 0)
			assert.Equal(t, tt.wantPercent, res.CourseProgressPercent)
			assert.Equal(t, tt.wantPercent == 100, res.CourseCompleted)
		})
	}
}

func TestService_RecordExerciseCompletion_lessonGainsExercise(t *testing.T) {
	svc, _, db := setup(t)
	testutil.SeedCourse(db, "c1", 1)

	res := complete(t, svc, testutil.ExerciseID("c1", 0, 0), 0)
	require.True(t, res.LessonCompleted)

	testutil.SeedCourse(db, "c1", 2)
	res = complete(t, svc, testutil.ExerciseID("c1", 0, 0), 0)
	assert.False(t, res.LessonCompleted)
	assert.Equal(t, 0, res.CourseProgressPercent)

	// finishing the new exercise completes the lesson again without a second bonus
	res = complete(t, svc, testutil.ExerciseID("c1", 0, 1), 0)
	assert.True(t, res.LessonCompletedNow)
	assert.Equal(t, 0, res.PointsAwarded)
	assert.Equal(t, 20, res.TotalPoints)
}

func TestService_RecordExerciseCompletion_concurrent(t *testing.T) {
	svc, repo, db := setup(t)
	testutil.SeedCourse(db, "c1", 2)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		for e := 0; e < 2; e++ {
			wg.Add(1)
			go func(exID string) {
				defer wg.Done()
				_, err := svc.RecordExerciseCompletion(ctx, progress.ExerciseCompletionInput{
					UserID: userID, ExerciseID: exID, Score: 5,
				})
				assert.NoError(t, err)
			}(testutil.ExerciseID("c1", 0, e))
		}
	}
	wg.Wait()

	pts, err := repo.GetUserPoints(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 5+5+20, pts.TotalPoints)

	enr, err := repo.GetEnrollment(ctx, userID, "c1")
	require.NoError(t, err)
	assert.Equal(t, 100, enr.ProgressPercent)
}

func TestService_GetUserPoints(t *testing.T) {
	svc, _, db := setup(t)
	testutil.SeedCourse(db, "c1", 1, 1)
	ctx := context.Background()

	pts, err := svc.GetUserPoints(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, progress.UserPoints{UserID: userID, Level: 1}, pts)

	complete(t, svc, testutil.ExerciseID("c1", 0, 0), 60)
	complete(t, svc, testutil.ExerciseID("c1", 1, 0), 60)

	pts, err = svc.GetUserPoints(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 160, pts.TotalPoints)
	assert.Equal(t, 2, pts.Level)
}

func TestService_GetCourseProgress(t *testing.T) {
	svc, _, db := setup(t)
	testutil.SeedCourse(db, "c1", 1, 1)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	testutil.FreezeTime(t, now)

	_, err := svc.GetCourseProgress(context.Background(), userID, "c1")
	assert.Equal(t, core.KindNotFound, core.ErrorKind(err))

	complete(t, svc, testutil.ExerciseID("c1", 0, 0), 0)
	complete(t, svc, testutil.ExerciseID("c1", 1, 0), 0)

	enr, err := svc.GetCourseProgress(context.Background(), userID, "c1")
	require.NoError(t, err)
	assert.Equal(t, progress.CourseEnrollment{
		UserID:          userID,
		CourseID:        "c1",
		ProgressPercent: 100,
		CompletedAt:     &now,
	}, enr)
}

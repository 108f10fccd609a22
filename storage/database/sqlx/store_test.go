package sqlxrepos_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/attempt"
	"github.com/trezcool/tathmini/core/grading"
	"github.com/trezcool/tathmini/core/progress"
	"github.com/trezcool/tathmini/core/reconcile"
	"github.com/trezcool/tathmini/core/submission"
	"github.com/trezcool/tathmini/storage/database"
	"github.com/trezcool/tathmini/storage/database/sqlx"
	"github.com/trezcool/tathmini/tests"
)

// openStores yields a freshly migrated database per available engine:
// a temporary SQLite file, plus postgres when TATHMINI_TEST_DSN is set.
func openStores(t *testing.T) map[string]*sqlx.DB {
	stores := make(map[string]*sqlx.DB)

	conf := testutil.NewConfig()
	conf.Database.Engine = "sqlite3"
	conf.Database.Path = filepath.Join(t.TempDir(), "tathmini.db")
	if db, err := database.Open(conf); err == nil {
		stores["sqlite3"] = db
	} else {
		t.Logf("sqlite3 unavailable: %v", err)
	}

	if dsn := os.Getenv("TATHMINI_TEST_DSN"); dsn != "" {
		db, err := sqlx.Open("postgres", dsn)
		require.NoError(t, err)
		require.NoError(t, database.RunMigrations("reset", db))
		stores["postgres"] = db
	}

	if len(stores) == 0 {
		t.Skip("no SQL engine available")
	}
	for name, db := range stores {
		require.NoError(t, database.Migrate(db), name)
		seedCatalog(t, db)
		db := db
		t.Cleanup(func() { _ = db.Close() })
	}
	return stores
}

func seedCatalog(t *testing.T, db *sqlx.DB) {
	stmts := []string{
		"INSERT INTO courses (id) VALUES ('c1')",
		"INSERT INTO lessons (id, course_id) VALUES ('l1', 'c1'), ('l2', 'c1')",
		"INSERT INTO exercises (id, lesson_id) VALUES ('e1', 'l1'), ('e2', 'l1'), ('e3', 'l2'), ('w1', 'l2')",
		"INSERT INTO tests (id) VALUES ('t1')",
		`INSERT INTO questions (id, test_id, skill, correct_option, points) VALUES
			('q1', 't1', 'READING', 'a', 80), ('q2', 't1', 'LISTENING', 'b', 20), ('q3', 't1', 'WRITING', '', 0)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
}

func TestProgressRepository(t *testing.T) {
	for name, db := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := progress.NewService(sqlxrepos.NewProgressRepository(db), core.NewValidator(), testutil.NewLogger(), testutil.NewConfig())
			record := func(exID string, score int) progress.CascadeResult {
				res, err := svc.RecordExerciseCompletion(ctx, progress.ExerciseCompletionInput{UserID: "u1", ExerciseID: exID, Score: score})
				require.NoError(t, err)
				return res
			}

			res := record("e1", 10)
			assert.False(t, res.LessonCompleted)
			assert.Equal(t, 0, res.CourseProgressPercent)

			res = record("e2", 10)
			assert.True(t, res.LessonCompletedNow)
			assert.Equal(t, 50, res.CourseProgressPercent)
			assert.Equal(t, 40, res.TotalPoints)

			res = record("e2", 10)
			assert.False(t, res.LessonCompletedNow)
			assert.Equal(t, 0, res.PointsAwarded)

			var wg sync.WaitGroup
			for i := 0; i < 5; i++ {
				for _, ex := range []string{"e3", "w1"} {
					wg.Add(1)
					go func(ex string) {
						defer wg.Done()
						_, err := svc.RecordExerciseCompletion(ctx, progress.ExerciseCompletionInput{UserID: "u1", ExerciseID: ex, Score: 1})
						assert.NoError(t, err)
					}(ex)
				}
			}
			wg.Wait()

			enr, err := svc.GetCourseProgress(ctx, "u1", "c1")
			require.NoError(t, err)
			assert.Equal(t, 100, enr.ProgressPercent)
			assert.NotNil(t, enr.CompletedAt)

			pts, err := svc.GetUserPoints(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 10+10+20+1+1+20, pts.TotalPoints)
		})
	}
}

func TestAttemptAndGradingRepositories(t *testing.T) {
	for name, db := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			student := testutil.Student("u1")
			attempts := attempt.NewService(sqlxrepos.NewAttemptRepository(db), core.NewValidator(), testutil.NewLogger())
			grader := grading.NewService(sqlxrepos.NewGradingRepository(db), core.NewValidator(), testutil.NewLogger(), testutil.NewConfig())
			reconciler := reconcile.NewReconciler(sqlxrepos.NewReconcileRepository(db), testutil.NewLogger())

			att, err := attempts.StartAttempt(ctx, student.UserID, "t1")
			require.NoError(t, err)

			for _, in := range []attempt.SubmitAnswerInput{
				{QuestionID: "q1", Selection: "a"},
				{QuestionID: "q2", Selection: "x"},
				{QuestionID: "q3", Text: "draft"},
				{QuestionID: "q3", Text: "final"},
			} {
				in.AttemptID, in.UserID = att.ID, student.UserID
				_, err = attempts.SubmitAnswer(ctx, in)
				require.NoError(t, err)
			}

			var wg sync.WaitGroup
			sums := make([]attempt.Summary, 4)
			for i := range sums {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					sum, err := attempts.CompleteAttempt(ctx, att.ID, student)
					assert.NoError(t, err)
					sums[i] = sum
				}(i)
			}
			wg.Wait()
			for _, sum := range sums {
				assert.Equal(t, 80, sum.Score)
				assert.Equal(t, 8.0, sum.BandScore)
				assert.Equal(t, 1, sum.PendingSubmissionsCount)
			}

			_, err = attempts.SubmitAnswer(ctx, attempt.SubmitAnswerInput{AttemptID: att.ID, QuestionID: "q1", UserID: student.UserID, Selection: "b"})
			assert.Equal(t, core.KindInvalidState, core.ErrorKind(err))

			atts, err := attempts.ListUserAttempts(ctx, student.UserID, "t1")
			require.NoError(t, err)
			require.Len(t, atts, 1)
			assert.Equal(t, attempt.StatusCompleted, atts[0].Status)

			var subID string
			require.NoError(t, db.Get(&subID, db.Rebind("SELECT id FROM submissions WHERE attempt_id = ?"), att.ID))

			sub, err := grader.GradeSubmission(ctx, grading.GradeInput{
				SubmissionID: subID,
				Grader:       testutil.Teacher("teach"),
				Criteria:     submission.Criteria{TaskAchievement: testutil.Score(6), GrammaticalRange: testutil.Score(7)},
				Feedback:     "Good ideas, vary your sentence structure.",
			})
			require.NoError(t, err)
			assert.Equal(t, "final", sub.RawContent)
			assert.Equal(t, 6.5, *sub.OverallBandScore)

			stored, err := sqlxrepos.NewGradingRepository(db).GetSubmission(ctx, subID)
			require.NoError(t, err)
			assert.Equal(t, submission.StatusGraded, stored.Status)
			assert.Nil(t, stored.Fluency)
			assert.Equal(t, 7.0, *stored.GrammaticalRange)

			sa, err := grader.SubmitStandalone(ctx, grading.StandaloneInput{UserID: "u1", ExerciseID: "w1", Skill: submission.SkillWriting, Content: "essay"})
			require.NoError(t, err)
			_, err = grader.SubmitStandalone(ctx, grading.StandaloneInput{UserID: "u1", ExerciseID: "w1", Skill: submission.SkillWriting, Content: "again"})
			assert.True(t, core.IsConflict(err))

			graded, err := grader.GradeStandalone(ctx, grading.GradeInput{
				SubmissionID: sa.ID,
				Grader:       testutil.Admin("boss"),
				Criteria: submission.Criteria{
					TaskAchievement: testutil.Score(5), CoherenceCohesion: testutil.Score(6),
					LexicalResource: testutil.Score(7), GrammaticalRange: testutil.Score(8),
				},
				Feedback: "Solid essay, mind the conclusion.",
			})
			require.NoError(t, err)
			assert.Equal(t, 6.5, *graded.OverallBandScore)

			// drafts follow the answer until a grader claims them
			att2, err := attempts.StartAttempt(ctx, student.UserID, "t1")
			require.NoError(t, err)
			res, err := attempts.SubmitAnswer(ctx, attempt.SubmitAnswerInput{AttemptID: att2.ID, QuestionID: "q3", UserID: student.UserID, Text: "first draft"})
			require.NoError(t, err)
			require.NotNil(t, res.Submission)
			res, err = attempts.SubmitAnswer(ctx, attempt.SubmitAnswerInput{AttemptID: att2.ID, QuestionID: "q3", UserID: student.UserID, Text: ""})
			require.NoError(t, err)
			assert.Nil(t, res.Submission)
			var n int
			require.NoError(t, db.Get(&n, db.Rebind("SELECT COUNT(*) FROM submissions WHERE attempt_id = ?"), att2.ID))
			assert.Equal(t, 0, n)

			res, err = attempts.SubmitAnswer(ctx, attempt.SubmitAnswerInput{AttemptID: att2.ID, QuestionID: "q3", UserID: student.UserID, Text: "second draft"})
			require.NoError(t, err)
			require.NotNil(t, res.Submission)
			_, err = grader.ClaimSubmission(ctx, res.Submission.ID, testutil.Teacher("teach"))
			require.NoError(t, err)
			_, err = attempts.SubmitAnswer(ctx, attempt.SubmitAnswerInput{AttemptID: att2.ID, QuestionID: "q3", UserID: student.UserID, Text: "late edit"})
			assert.Equal(t, core.KindInvalidState, core.ErrorKind(err))
			claimed, err := sqlxrepos.NewGradingRepository(db).GetSubmission(ctx, res.Submission.ID)
			require.NoError(t, err)
			assert.Equal(t, "second draft", claimed.RawContent)
			assert.Equal(t, submission.StatusGrading, claimed.Status)

			// an answer racing the completion is either scored or rejected
			errs := make(chan error, 1)
			go func() {
				_, err := attempts.SubmitAnswer(ctx, attempt.SubmitAnswerInput{AttemptID: att2.ID, QuestionID: "q1", UserID: student.UserID, Selection: "a"})
				errs <- err
			}()
			sum, err := attempts.CompleteAttempt(ctx, att2.ID, student)
			require.NoError(t, err)
			if err = <-errs; err != nil {
				assert.Equal(t, core.KindInvalidState, core.ErrorKind(err))
				assert.Equal(t, 0, sum.Score)
			} else {
				assert.Equal(t, 80, sum.Score)
			}
			assert.Equal(t, 1, sum.PendingSubmissionsCount)

			rep, err := reconciler.Reconcile(ctx, false)
			require.NoError(t, err)
			assert.Equal(t, 0, rep.GroupsFound, "the unique index prevents duplicates")
		})
	}
}

package attempt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/tathmini/core"
)

func TestBandScore(t *testing.T) {
	tests := []struct {
		score, total int
		want         float64
	}{
		{0, 0, 0},
		{100, 100, 9.0},
		{90, 100, 9.0},
		{89, 100, 8.0},
		{80, 100, 8.0},
		{79, 100, 7.0},
		{70, 100, 7.0},
		{65, 100, 6.5},
		{60, 100, 6.5},
		{50, 100, 6.0},
		{40, 100, 5.5},
		{30, 100, 5.0},
		{20, 100, 4.5},
		{19, 100, 4.0},
		{0, 100, 4.0},
		{7, 10, 7.0},
		{2, 3, 6.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BandScore(tt.score, tt.total), "%d/%d", tt.score, tt.total)
	}
}

func TestTransition(t *testing.T) {
	assert.NoError(t, Transition(StatusInProgress, StatusCompleted))

	for _, tt := range [][2]Status{
		{StatusCompleted, StatusInProgress},
		{StatusCompleted, StatusCompleted},
		{StatusInProgress, StatusInProgress},
	} {
		err := Transition(tt[0], tt[1])
		assert.Equal(t, core.KindInvalidState, core.ErrorKind(err), "%s -> %s", tt[0], tt[1])
	}
}

func TestAttempt_Summary(t *testing.T) {
	a := Attempt{ID: "a1", Score: 30, TotalPoints: 40, BandScore: 7.0, PendingSubmissions: 2}
	assert.Equal(t, Summary{
		AttemptID:               "a1",
		Score:                   30,
		TotalPoints:             40,
		Percentage:              75,
		BandScore:               7.0,
		PendingSubmissionsCount: 2,
	}, a.Summary())
}

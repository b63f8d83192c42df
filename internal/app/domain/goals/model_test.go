package goals

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t.Add(15 * time.Hour)
}

func TestStreak_Advance(t *testing.T) {
	testCases := []struct {
		name  string
		start Streak
		today string
		want  Streak
	}{
		{"first read", Streak{}, "2024-03-10", Streak{Count: 1, LastReadDate: "2024-03-10"}},
		{"same day", Streak{Count: 4, LastReadDate: "2024-03-10"}, "2024-03-10", Streak{Count: 4, LastReadDate: "2024-03-10"}},
		{"consecutive day", Streak{Count: 4, LastReadDate: "2024-03-09"}, "2024-03-10", Streak{Count: 5, LastReadDate: "2024-03-10"}},
		{"month boundary", Streak{Count: 2, LastReadDate: "2024-02-29"}, "2024-03-01", Streak{Count: 3, LastReadDate: "2024-03-01"}},
		{"gap resets", Streak{Count: 9, LastReadDate: "2024-03-07"}, "2024-03-10", Streak{Count: 1, LastReadDate: "2024-03-10"}},
		{"future date resets", Streak{Count: 3, LastReadDate: "2024-03-12"}, "2024-03-10", Streak{Count: 1, LastReadDate: "2024-03-10"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.start.Advance(day(tc.today)))
		})
	}
}

func TestStreak_AdvanceIsMonotonicWithinADay(t *testing.T) {
	s := Streak{Count: 2, LastReadDate: "2024-03-09"}
	today := day("2024-03-10")
	first := s.Advance(today)
	second := first.Advance(today)
	assert.Equal(t, first, second)
}

func TestMission_IncrementCompletesOnce(t *testing.T) {
	m := Mission{ID: "read_2", TargetCount: 2, Type: MissionReadArticle}

	assert.False(t, m.Increment())
	assert.True(t, m.Increment())
	assert.True(t, m.IsCompleted)
	assert.Equal(t, 2, m.CurrentCount)

	assert.False(t, m.Increment())
	assert.Equal(t, 2, m.CurrentCount)
}

func TestMission_DecrementFloorsAndKeepsCompletion(t *testing.T) {
	m := Mission{TargetCount: 3}
	assert.False(t, m.Decrement())
	assert.Equal(t, 0, m.CurrentCount)

	m.CurrentCount = 2
	assert.True(t, m.Decrement())
	assert.Equal(t, 1, m.CurrentCount)

	done := Mission{TargetCount: 1, CurrentCount: 1, IsCompleted: true}
	assert.False(t, done.Decrement())
	assert.True(t, done.IsCompleted)
	assert.Equal(t, 1, done.CurrentCount)
}

func TestMission_SetProgressCaps(t *testing.T) {
	m := Mission{TargetCount: 3}
	assert.True(t, m.SetProgress(10))
	assert.Equal(t, 3, m.CurrentCount)

	m = Mission{TargetCount: 3}
	assert.False(t, m.SetProgress(-2))
	assert.Equal(t, 0, m.CurrentCount)
}

func TestMissionType_JSON(t *testing.T) {
	var m Mission
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","type":"add_friend","targetCount":1}`), &m))
	assert.Equal(t, MissionAddFriend, m.Type)

	err := json.Unmarshal([]byte(`{"id":"a","type":"share_article"}`), &m)
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "goals/u1/streak/current", StreakPath("u1"))
	assert.Equal(t, "goals/u1/activity/k", ActivityPath("u1", "k"))
	assert.Equal(t, "goals/u1/missions/m1", MissionPath("u1", "m1"))
}

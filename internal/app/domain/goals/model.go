package goals

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the YYYY-MM-DD layout used for streak and activity dates.
const DateLayout = "2006-01-02"

// MissionType is the closed set of actions that advance missions.
type MissionType string

const (
	MissionReadArticle    MissionType = "read_article"
	MissionReactToArticle MissionType = "react_to_article"
	MissionAddFriend      MissionType = "add_friend"
)

// ParseMissionType validates a stored or configured mission type.
func ParseMissionType(s string) (MissionType, error) {
	switch t := MissionType(s); t {
	case MissionReadArticle, MissionReactToArticle, MissionAddFriend:
		return t, nil
	default:
		return "", fmt.Errorf("unknown mission type %q", s)
	}
}

// UnmarshalJSON rejects unknown mission types at the document boundary.
func (t *MissionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMissionType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Mission is stored at goals/{uid}/missions/{missionId}.
type Mission struct {
	ID           string      `json:"id" firestore:"id"`
	Name         string      `json:"name" firestore:"name"`
	Description  string      `json:"description" firestore:"description"`
	TargetCount  int         `json:"targetCount" firestore:"targetCount"`
	CurrentCount int         `json:"currentCount" firestore:"currentCount"`
	IsCompleted  bool        `json:"isCompleted" firestore:"isCompleted"`
	Type         MissionType `json:"type" firestore:"type"`
}

// Increment advances progress by one. It reports whether the mission
// completed on this call. Completed missions are left untouched.
func (m *Mission) Increment() bool {
	if m.IsCompleted {
		return false
	}
	return m.SetProgress(m.CurrentCount + 1)
}

// Decrement lowers progress by one, floored at zero. Completed missions are
// never reopened.
func (m *Mission) Decrement() bool {
	if m.IsCompleted || m.CurrentCount == 0 {
		return false
	}
	m.CurrentCount--
	return true
}

// SetProgress sets the count capped at the target and reports whether the
// mission completed on this call. Completion is one-way.
func (m *Mission) SetProgress(count int) bool {
	if m.IsCompleted {
		return false
	}
	if count < 0 {
		count = 0
	}
	if count > m.TargetCount {
		count = m.TargetCount
	}
	m.CurrentCount = count
	if m.CurrentCount >= m.TargetCount {
		m.IsCompleted = true
		return true
	}
	return false
}

// Streak is stored at goals/{uid}/streak/current.
type Streak struct {
	Count        int    `json:"count" firestore:"count"`
	LastReadDate string `json:"lastReadDate" firestore:"lastReadDate"`
}

// Advance applies a read on today and returns the new streak. Same day keeps
// the streak, a read exactly one day after the last extends it, anything
// else restarts it at one.
func (s Streak) Advance(today time.Time) Streak {
	todayStr := today.Format(DateLayout)
	if s.LastReadDate == todayStr && s.Count > 0 {
		return s
	}
	yesterday := today.AddDate(0, 0, -1).Format(DateLayout)
	if s.LastReadDate == yesterday {
		return Streak{Count: s.Count + 1, LastReadDate: todayStr}
	}
	return Streak{Count: 1, LastReadDate: todayStr}
}

// Activity is stored at goals/{uid}/activity/{encodedUrl}; one per distinct
// article the user has read.
type Activity struct {
	ArticleURL string    `json:"articleUrl" firestore:"articleUrl"`
	Timestamp  time.Time `json:"timestamp" firestore:"timestamp"`
	Date       string    `json:"date" firestore:"date"`
}

// RootPath returns the goals root document of uid.
func RootPath(uid string) string {
	return "goals/" + uid
}

// StreakPath returns the streak document of uid.
func StreakPath(uid string) string {
	return RootPath(uid) + "/streak/current"
}

// StreakCollectionPath returns the streak collection of uid.
func StreakCollectionPath(uid string) string {
	return RootPath(uid) + "/streak"
}

// ActivityCollectionPath returns the activity collection of uid.
func ActivityCollectionPath(uid string) string {
	return RootPath(uid) + "/activity"
}

// ActivityPath returns the activity document for an encoded article key.
func ActivityPath(uid, articleKey string) string {
	return ActivityCollectionPath(uid) + "/" + articleKey
}

// MissionsCollectionPath returns the missions collection of uid.
func MissionsCollectionPath(uid string) string {
	return RootPath(uid) + "/missions"
}

// MissionPath returns the mission document path.
func MissionPath(uid, missionID string) string {
	return MissionsCollectionPath(uid) + "/" + missionID
}

package audit

import (
	"math"
	"time"
)

// TopN bounds the user and resource leaderboards in Statistics.
const TopN = 10

type TypeCount struct {
	EventType EventType `json:"event_type"`
	Count     int64     `json:"count"`
}

type RiskCount struct {
	RiskLevel RiskLevel `json:"risk_level"`
	Count     int64     `json:"count"`
}

type DateCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type UserActivity struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Count    int64  `json:"count"`
}

type ResourceActivity struct {
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   int64        `json:"resource_id"`
	ResourceName string       `json:"resource_name"`
	Count        int64        `json:"count"`
}

type ResourceTypeCount struct {
	ResourceType ResourceType `json:"resource_type"`
	Count        int64        `json:"count"`
}

// Statistics is a read-only report over the stored events. Breakdown slices
// are ordered by count descending, except EventsByDate which is chronological.
type Statistics struct {
	TotalEvents     int64              `json:"total_events"`
	EventsByType    []TypeCount        `json:"events_by_type"`
	EventsByRisk    []RiskCount        `json:"events_by_risk_level"`
	EventsByDate    []DateCount        `json:"events_by_date"`
	TopUsers        []UserActivity     `json:"top_users"`
	TopResources    []ResourceActivity `json:"top_resources"`
	HighRiskEvents  int64              `json:"high_risk_events"`
	EventsToday     int64              `json:"events_today"`
	EventsThisWeek  int64              `json:"events_this_week"`
	EventsThisMonth int64              `json:"events_this_month"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

// HighRiskPercentage is 0 when there are no events.
func (s Statistics) HighRiskPercentage() float64 {
	if s.TotalEvents == 0 {
		return 0
	}
	return round2(float64(s.HighRiskEvents) / float64(s.TotalEvents) * 100)
}

// GrowthPercentage compares the month to four times the week. It is a rough
// trend signal, 0 when the week is empty.
func (s Statistics) GrowthPercentage() float64 {
	baseline := s.EventsThisWeek * 4
	if baseline == 0 {
		return 0
	}
	return round2(float64(s.EventsThisMonth-baseline) / float64(baseline) * 100)
}

func (s Statistics) MostCommonEventType() (EventType, bool) {
	if len(s.EventsByType) == 0 {
		return "", false
	}
	return s.EventsByType[0].EventType, true
}

func (s Statistics) MostActiveUser() (UserActivity, bool) {
	if len(s.TopUsers) == 0 {
		return UserActivity{}, false
	}
	return s.TopUsers[0], true
}

func (s Statistics) MostAccessedResource() (ResourceActivity, bool) {
	if len(s.TopResources) == 0 {
		return ResourceActivity{}, false
	}
	return s.TopResources[0], true
}

// StatisticsWindows returns the lower bounds for the today, week and month counters.
func StatisticsWindows(now time.Time) (today, week, month time.Time) {
	now = now.UTC()
	today = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today, now.AddDate(0, 0, -7), now.AddDate(0, 0, -30)
}

// DateKey is the day bucket used by EventsByDate.
func DateKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

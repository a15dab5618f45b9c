package memory

import (
	"cmp"
	"maps"
	"slices"
	"time"

	audit "audittrail/pkg/platform/audit"
)

func buildStatistics(events []*audit.Event, now time.Time) audit.Statistics {
	today, week, month := audit.StatisticsWindows(now)

	st := audit.Statistics{
		TotalEvents:  int64(len(events)),
		EventsByDate: countByDate(events),
		TopUsers:     topUsers(events, audit.TopN),
		TopResources: topResources(events, audit.TopN),
		GeneratedAt:  now.UTC(),
	}

	byType := map[audit.EventType]int64{}
	byRisk := map[audit.RiskLevel]int64{}
	for _, e := range events {
		byType[e.EventType()]++
		byRisk[e.RiskLevel()]++
		if e.IsHighRisk() {
			st.HighRiskEvents++
		}
		ts := e.Timestamp()
		if !ts.Before(today) {
			st.EventsToday++
		}
		if !ts.Before(week) {
			st.EventsThisWeek++
		}
		if !ts.Before(month) {
			st.EventsThisMonth++
		}
	}

	for _, et := range sortedKeys(byType, func(a, b audit.EventType) int { return cmp.Compare(a, b) }) {
		st.EventsByType = append(st.EventsByType, audit.TypeCount{EventType: et, Count: byType[et]})
	}
	for _, level := range sortedKeys(byRisk, func(a, b audit.RiskLevel) int { return cmp.Compare(a, b) }) {
		st.EventsByRisk = append(st.EventsByRisk, audit.RiskCount{RiskLevel: level, Count: byRisk[level]})
	}
	return st
}

func countByDate(events []*audit.Event) []audit.DateCount {
	byDate := map[string]int64{}
	for _, e := range events {
		byDate[audit.DateKey(e.Timestamp())]++
	}
	out := make([]audit.DateCount, 0, len(byDate))
	for _, d := range slices.Sorted(maps.Keys(byDate)) {
		out = append(out, audit.DateCount{Date: d, Count: byDate[d]})
	}
	return out
}

// topUsers reports the most recent username recorded for each user id.
func topUsers(events []*audit.Event, limit int) []audit.UserActivity {
	counts := map[int64]*audit.UserActivity{}
	latest := map[int64]time.Time{}
	for _, e := range events {
		u := e.User()
		a, ok := counts[u.UserID()]
		if !ok {
			a = &audit.UserActivity{UserID: u.UserID()}
			counts[u.UserID()] = a
		}
		if ts := e.Timestamp(); !ok || ts.After(latest[u.UserID()]) {
			a.Username = u.Username()
			latest[u.UserID()] = ts
		}
		a.Count++
	}
	out := make([]audit.UserActivity, 0, len(counts))
	for _, a := range counts {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b audit.UserActivity) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), cmp.Compare(a.UserID, b.UserID))
	})
	return out[:min(limit, len(out))]
}

type resourceKey struct {
	rt audit.ResourceType
	id int64
}

func topResources(events []*audit.Event, limit int) []audit.ResourceActivity {
	counts := map[resourceKey]*audit.ResourceActivity{}
	latest := map[resourceKey]time.Time{}
	for _, e := range events {
		r := e.Resource()
		key := resourceKey{rt: r.ResourceType(), id: r.ResourceID()}
		a, ok := counts[key]
		if !ok {
			a = &audit.ResourceActivity{ResourceType: key.rt, ResourceID: key.id}
			counts[key] = a
		}
		if ts := e.Timestamp(); !ok || ts.After(latest[key]) {
			a.ResourceName = r.ResourceName()
			latest[key] = ts
		}
		a.Count++
	}
	out := make([]audit.ResourceActivity, 0, len(counts))
	for _, a := range counts {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b audit.ResourceActivity) int {
		return cmp.Or(
			cmp.Compare(b.Count, a.Count),
			cmp.Compare(a.ResourceType, b.ResourceType),
			cmp.Compare(a.ResourceID, b.ResourceID),
		)
	})
	return out[:min(limit, len(out))]
}

func countByResourceType(events []*audit.Event) []audit.ResourceTypeCount {
	counts := map[audit.ResourceType]int64{}
	for _, e := range events {
		counts[e.Resource().ResourceType()]++
	}
	out := make([]audit.ResourceTypeCount, 0, len(counts))
	for _, rt := range sortedKeys(counts, func(a, b audit.ResourceType) int { return cmp.Compare(a, b) }) {
		out = append(out, audit.ResourceTypeCount{ResourceType: rt, Count: counts[rt]})
	}
	return out
}

// sortedKeys orders keys by count descending, breaking ties with tie.
func sortedKeys[K comparable](counts map[K]int64, tie func(a, b K) int) []K {
	keys := slices.Collect(maps.Keys(counts))
	slices.SortFunc(keys, func(a, b K) int {
		return cmp.Or(cmp.Compare(counts[b], counts[a]), tie(a, b))
	})
	return keys
}

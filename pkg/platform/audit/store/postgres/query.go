package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	audit "audittrail/pkg/platform/audit"
)

const selectColumns = `
	id, event_type, risk_level, user_id, username, email, full_name, roles,
	ip_address, user_agent, resource_type, resource_id, resource_name, parent_id,
	resource_metadata, timestamp, description, details, session_id, course_id, change_log`

// sortColumns maps allow-listed criteria columns onto physical columns.
var sortColumns = map[string]string{
	"id":                      "id",
	"timestamp":               "timestamp",
	"event_type":              "event_type",
	audit.SortColumnRiskLevel: "risk_rank",
	"user_id":                 "user_id",
	"resource_type":           "resource_type",
}

// whereBuilder accumulates AND-ed predicates with positional arguments.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(format string, values ...any) {
	placeholders := make([]any, len(values))
	for i, v := range values {
		w.args = append(w.args, v)
		placeholders[i] = fmt.Sprintf("$%d", len(w.args))
	}
	w.clauses = append(w.clauses, fmt.Sprintf(format, placeholders...))
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// buildWhere translates every filter dimension of the criteria.
func buildWhere(c audit.SearchCriteria) *whereBuilder {
	w := &whereBuilder{}
	if userID, ok := c.UserID(); ok {
		w.add("user_id = %s", userID)
	}
	if types := c.EventTypes(); len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		w.add("event_type = ANY(%s)", pq.Array(names))
	}
	if levels := c.RiskLevels(); len(levels) > 0 {
		ranks := make([]int64, len(levels))
		for i, l := range levels {
			ranks[i] = int64(l.Rank())
		}
		w.add("risk_rank = ANY(%s)", pq.Array(ranks))
	}
	if rt := c.ResourceType(); rt != "" {
		w.add("resource_type = %s", string(rt))
	}
	if id, ok := c.ResourceID(); ok {
		w.add("resource_id = %s", id)
	}
	if from, ok := c.DateFrom(); ok {
		w.add("timestamp >= %s", from)
	}
	if to, ok := c.DateTo(); ok {
		w.add("timestamp <= %s", to)
	}
	if courseID, ok := c.CourseID(); ok {
		w.add("course_id = %s", courseID)
	}
	if sid := c.SessionID(); sid != "" {
		w.add("session_id = %s", sid)
	}
	if text := c.SearchText(); text != "" {
		pattern := "%" + escapeLike(text) + "%"
		w.add("(description ILIKE %[1]s OR resource_name ILIKE %[1]s OR username ILIKE %[1]s)", pattern)
	}
	return w
}

func orderBy(c audit.SearchCriteria) string {
	column, dir := audit.ResolveSort(c)
	return fmt.Sprintf(" ORDER BY %s %s, id %s", sortColumns[column], dir, dir)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

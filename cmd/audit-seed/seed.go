package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	audit "audittrail/pkg/platform/audit"
)

var (
	roles      = [][]string{{"student"}, {"student"}, {"teacher"}, {"admin"}}
	userAgents = []string{
		"Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
	}
	folderNames = []string{"Reports", "Assignments", "Lecture notes", "Archive"}
	itemNames   = []string{"syllabus.pdf", "grades.xlsx", "notes.txt", "slides.pptx"}
)

type generator struct {
	rng   *rand.Rand
	users []audit.UserContext
	days  int
	now   time.Time
}

func newGenerator(seed uint64, users, days int, now time.Time) (*generator, error) {
	g := &generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), days: max(days, 1), now: now.UTC()}
	for i := range max(users, 1) {
		id := int64(i + 1)
		u, err := audit.NewUserContext(id, fmt.Sprintf("user%02d", id), fmt.Sprintf("user%02d@example.com", id),
			fmt.Sprintf("Seed User %d", id), roles[i%len(roles)],
			audit.WithIPAddress(fmt.Sprintf("198.51.100.%d", id%250+1)),
			audit.WithUserAgent(userAgents[i%len(userAgents)]),
		)
		if err != nil {
			return nil, err
		}
		g.users = append(g.users, u)
	}
	return g, nil
}

func pick[T any](rng *rand.Rand, values []T) T {
	return values[rng.IntN(len(values))]
}

// next builds one plausible event somewhere in the last g.days days.
func (g *generator) next() (*audit.Event, error) {
	user := pick(g.rng, g.users)
	at := g.now.Add(-time.Duration(g.rng.Int64N(int64(g.days) * int64(24*time.Hour))))
	opts := []audit.EventOption{
		audit.WithTimestamp(at),
		audit.WithSessionID(fmt.Sprintf("sess-%d-%d", user.UserID(), at.YearDay())),
	}
	folderID := int64(g.rng.IntN(20) + 1)
	itemID := int64(g.rng.IntN(200) + 1)

	var (
		event *audit.Event
		err   error
	)
	switch g.rng.IntN(8) {
	case 0:
		event, err = audit.FolderCreated(user, folderID, pick(g.rng, folderNames), nil, opts...)
	case 1:
		event, err = audit.FolderDeleted(user, folderID, pick(g.rng, folderNames), map[string]any{"items": g.rng.IntN(30)}, opts...)
	case 2:
		event, err = audit.ItemUploaded(user, itemID, pick(g.rng, itemNames), folderID,
			map[string]any{"size_bytes": g.rng.IntN(5 << 20)}, opts...)
	case 3:
		event, err = audit.ItemDeleted(user, itemID, pick(g.rng, itemNames), nil, opts...)
	case 4:
		event, err = audit.ViewAccessed(user, int64(g.rng.IntN(10)+1), "Course board", 1, opts...)
	case 5:
		var resource audit.ResourceContext
		resource, err = audit.FolderResource(folderID, pick(g.rng, folderNames), nil)
		if err == nil {
			event, err = audit.PermissionGranted(user, resource, pick(g.rng, g.users).UserID(), "read", opts...)
		}
	default:
		event, err = audit.ItemDownloaded(user, itemID, pick(g.rng, itemNames), opts...)
	}
	if err != nil {
		return nil, err
	}
	if g.rng.IntN(3) == 0 {
		event.SetCourseID(int64(g.rng.IntN(5) + 1))
	}
	return event, nil
}

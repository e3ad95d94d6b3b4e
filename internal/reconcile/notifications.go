package reconcile

import (
	"time"

	"github.com/airwatch-iot/gasmon/internal/api"
)

// Bucket is a creation-date group for the notifications screen.
type Bucket string

const (
	BucketToday     Bucket = "Today"
	BucketYesterday Bucket = "Yesterday"
	BucketOlder     Bucket = "Older"
)

// NotificationGroup is one non-empty bucket.
type NotificationGroup struct {
	Bucket Bucket
	Items  []api.Notification
}

// GroupNotifications splits list into today, yesterday and older buckets,
// in that order, relative to now's calendar day. Empty buckets are omitted
// and items keep their input order. Unparseable timestamps go to older.
func GroupNotifications(list []api.Notification, now time.Time) []NotificationGroup {
	loc := now.Location()
	today := dayOf(now)
	yesterday := today.AddDate(0, 0, -1)

	groups := []NotificationGroup{
		{Bucket: BucketToday},
		{Bucket: BucketYesterday},
		{Bucket: BucketOlder},
	}
	for _, n := range list {
		created := n.ParsedCreatedAt()
		idx := 2
		if !created.IsZero() {
			day := dayOf(created.In(loc))
			switch {
			case day.Equal(today):
				idx = 0
			case day.Equal(yesterday):
				idx = 1
			}
		}
		groups[idx].Items = append(groups[idx].Items, n)
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.Items) > 0 {
			out = append(out, g)
		}
	}
	return out
}

// UnreadCount counts notifications not yet read.
func UnreadCount(list []api.Notification) int {
	n := 0
	for _, item := range list {
		if !item.Read {
			n++
		}
	}
	return n
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

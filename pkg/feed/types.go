package feed

import "time"

// Entry is a single release announcement from an RSS/Atom feed.
// Entries come back in feed document order, newest first for the
// release feeds this tool targets.
type Entry struct {
	Title     string
	Link      string
	GUID      string
	Published time.Time
}

// Identity returns a stable identifier for the entry, used to remember
// how far into a feed the previous run got. Prefers the link, falls back
// to the GUID and finally to title plus timestamp.
func (e Entry) Identity() string {
	if e.Link != "" {
		return e.Link
	}
	if e.GUID != "" {
		return e.GUID
	}
	return e.Title + "|" + e.Published.UTC().Format(time.RFC3339)
}

package models

import "time"

// Message kinds. Anything else is rejected at the boundary.
const (
	KindText  = "text"
	KindImage = "image"
)

// Message is a persisted chat event. Seq is assigned by the store and
// defines the total order of persisted messages; it is never reused,
// even across restarts.
type Message struct {
	Seq     int64  `json:"seq"`
	Author  string `json:"author"`
	Content string `json:"content"`
	Kind    string `json:"kind"`
	Time    string `json:"time"`
}

// ValidKind reports whether kind names a supported message kind.
func ValidKind(kind string) bool {
	return kind == KindText || kind == KindImage
}

// Timestamp formats the wall clock the way messages display it:
// human-readable, minute granularity.
func Timestamp(t time.Time) string {
	return t.Format("15:04")
}

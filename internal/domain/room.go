// Package domain contains entity without logic, just meta-data
package domain

type RoomName string

// Message is one chat line in a room's history.
// Immutable once appended; Time is server-assigned, milliseconds.
type Message struct {
	Name string `json:"name"`
	Text string `json:"text"`
	Time int64  `json:"time"`
}

// Location is the latest known position for one user name.
// A room keeps exactly one Location per name, newest overwrites.
type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Time int64   `json:"time"`
}

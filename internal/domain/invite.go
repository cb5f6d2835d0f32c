package domain

import "time"

// Invite is a time-limited, use-limited credential that redeems to a
// room/password pair. Password is a snapshot taken at creation time and
// may diverge from the room's current password if the room is recreated.
type Invite struct {
	Token     string    `json:"token"`
	Room      RoomName  `json:"room"`
	Password  string    `json:"password"`
	ExpiresAt time.Time `json:"expires_at"`
	MaxUses   int       `json:"max_uses"`
	Uses      int       `json:"uses"`
}

func (i *Invite) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

package app

// DeletePolicy decides what happens when an authorized deletion hits a
// room that still has live subscribers.
type DeletePolicy int

const (
	// ForceClose terminates every subscriber stream and deletes the room.
	ForceClose DeletePolicy = iota
	// RefuseOccupied rejects the deletion while subscribers are connected.
	RefuseOccupied
)

func ParseDeletePolicy(s string) DeletePolicy {
	if s == "refuse" {
		return RefuseOccupied
	}
	return ForceClose
}

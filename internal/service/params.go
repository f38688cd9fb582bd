package service

import "time"

// BoostParams are the inputs of a room boost request.
type BoostParams struct {
	RoomID         int
	Level          int // percent, 10..200
	TimeoutMinutes int // 5..720
}

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "BOOST_START", "POLL_FAILED", ...
}

type ReadingFilter struct {
	RoomID int
	From   time.Time
	To     time.Time
	Limit  int
}

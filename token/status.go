package token

import "time"

// Status is the lifecycle state published for the UI: whether a renewal is
// running, when the last one finished, when the next one is due, and how
// much session time remains before the refresh credential dies.
type Status struct {
	IsRefreshing         bool
	LastRefresh          time.Time
	NextRefresh          time.Time
	SessionTimeRemaining time.Duration
}

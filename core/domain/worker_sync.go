package domain

import "time"

// CreatedEventRecord links a source meeting to the target event mirrored
// from it.
type CreatedEventRecord struct {
	OutlookEventID string `json:"outlookEventId"`
	User           string `json:"user"`
	GoogleEventID  string `json:"googleEventId"`
}

// SyncReport summarizes one sync pass.
type SyncReport struct {
	RunID        string        `json:"runId"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
	Skipped      bool          `json:"skipped"`
	Users        int           `json:"users"`
	FailedUsers  []string      `json:"failedUsers"`
	Fetched      int           `json:"fetched"`
	NewOrChanged int           `json:"newOrChanged"`
	Created      int           `json:"created"`
	Cancelled    int           `json:"cancelled"`
	NoRoom       int           `json:"noRoom"`
	FailedEvents []string      `json:"failedEvents"`
}

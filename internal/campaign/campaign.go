package campaign

import (
	"errors"
	"time"
)

// StatusRunning is the non-terminal campaign status. Terminal statuses
// start with "Finalizada" and carry the final counts.
const StatusRunning = "Running"

// ErrNotFound marks lookups for unknown campaign ids.
var ErrNotFound = errors.New("campaign not found")

// Contact is one recipient of a campaign. Order in the submitted list
// determines send order.
type Contact struct {
	Numero string `json:"numero"`
	Nome   string `json:"nome"`
}

// Attachment references media stored outside the platform.
type Attachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileName string `json:"file_name"`
}

// StatusInfo is the polling snapshot for one campaign.
type StatusInfo struct {
	Status      string `json:"status"`
	LastAction  string `json:"lastAction"`
	SentCount   int    `json:"sentCount"`
	FailedCount int    `json:"failedCount"`
}

// Summary is one history listing entry.
type Summary struct {
	ID            string    `json:"campaign_id"`
	StartTime     time.Time `json:"startTime"`
	Status        string    `json:"status"`
	TotalContacts int       `json:"totalContacts"`
	SentCount     int       `json:"sentCount"`
	FailedCount   int       `json:"failedCount"`
}

// Job is the unit of work handed to the dispatcher once a submission
// has been accepted and recorded.
type Job struct {
	ID         string
	Contacts   []Contact
	Template   string
	Attachment *Attachment
}

package dto

import "time"

// DocumentDownload returns a signed, time-limited download token for an
// issued document.
type DocumentDownload struct {
	DocumentID string    `json:"documentId"`
	Filename   string    `json:"filename"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

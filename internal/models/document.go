package models

import "time"

// Document is the metadata record for an artifact issued against an
// application. File bytes live in storage; only the path is kept here.
type Document struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	Filename      string    `db:"filename" json:"filename"`
	MimeType      string    `db:"mime_type" json:"mime_type"`
	SizeBytes     int64     `db:"size_bytes" json:"size_bytes"`
	StoragePath   string    `db:"storage_path" json:"-"`
	QRCode        *string   `db:"qr_code" json:"qr_code,omitempty"`
	UploadedBy    string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

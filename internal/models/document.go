// Package models defines the domain types for Synapse.
package models

import "time"

// DocumentInfo is the catalog view of a vault document, returned by list operations.
type DocumentInfo struct {
	Path      string    `json:"path"`
	Folder    string    `json:"folder"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attachment is a file delivered by the transport alongside a message.
type Attachment struct {
	Filename  string `json:"filename"`
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}

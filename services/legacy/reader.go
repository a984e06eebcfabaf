// Package legacy reads batches, users and classroom videos from the previous
// document store. It never writes back to that store.
package legacy

import (
	"context"
	"time"
)

// Batch is a legacy batch in canonical shape
type Batch struct {
	ID          string
	Name        string
	Course      string
	TeacherID   string
	TeacherName string
	Students    []string
}

// User is a legacy user in canonical shape
type User struct {
	ID      string
	Name    string
	Email   string
	Role    string
	BatchID string
	Course  string
}

// Video is a legacy classroom video in canonical shape
type Video struct {
	ID                string
	Title             string
	Date              string // YYYY-MM-DD, empty when unknown
	Course            string
	BatchID           string
	VideoSource       string
	VideoURL          string
	ExternalContentID string
	CreatedAt         time.Time
}

// Reader enumerates the legacy store. Implementations return records in a
// stable order.
type Reader interface {
	ListBatches(ctx context.Context) ([]Batch, error)
	ListUsers(ctx context.Context) ([]User, error)
	ListVideos(ctx context.Context) ([]Video, error)
}

// Package repository defines per-entity store access for users, batches and
// classroom videos. Implementations must honour context cancellation.
package repository

import (
	"context"
	"errors"

	"github.com/sahilchouksey/cohort-lms/model"
)

// ErrNotFound is returned when a lookup by id or unique key matches nothing.
var ErrNotFound = errors.New("record not found")

// UserFilter selects users. Zero fields are ignored; all set fields must match.
type UserFilter struct {
	IDs       []string
	Role      model.Role
	BatchID   *string // Users whose batch pointer equals this id
	LegacyIDs []string
}

// BatchFilter selects batches.
type BatchFilter struct {
	IDs                []string
	ContainsAnyStudent []string // Roster overlaps with any of these ids
	ExcludeID          string
}

// VideoFilter selects classroom videos. BatchID and Unassigned are exclusive.
type VideoFilter struct {
	BatchID    *string
	Unassigned bool // Null or absent-looking batch pointer
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	FindUsers(ctx context.Context, filter UserFilter) ([]model.User, error)
	// SetUsersBatch sets (or clears, for nil) the batch pointer of the given users.
	SetUsersBatch(ctx context.Context, ids []string, batchID *string) (int64, error)
	SetUsersCourse(ctx context.Context, ids []string, course string) (int64, error)
	// RepointUsersBatch moves every user pointing at from to to.
	RepointUsersBatch(ctx context.Context, from, to string) (int64, error)
	SetUserLegacyID(ctx context.Context, id, legacyID string) error
}

type BatchRepository interface {
	CreateBatch(ctx context.Context, batch *model.Batch) error
	GetBatch(ctx context.Context, id string) (*model.Batch, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]model.Batch, error)
	UpdateBatchStudents(ctx context.Context, id string, students []string) error
	SetBatchLegacyID(ctx context.Context, id, legacyID string) error
	DeleteBatch(ctx context.Context, id string) error
}

type VideoRepository interface {
	CreateVideo(ctx context.Context, video *model.ClassroomVideo) error
	GetVideo(ctx context.Context, id string) (*model.ClassroomVideo, error)
	ListVideos(ctx context.Context, filter VideoFilter) ([]model.ClassroomVideo, error)
	UnassignVideos(ctx context.Context, ids []string) (int64, error)
	DeleteVideos(ctx context.Context, ids []string) (int64, error)
	RepointVideosBatch(ctx context.Context, from, to string) (int64, error)
	SetVideoLegacyID(ctx context.Context, id, legacyID string) error
}

// Store bundles the three repositories.
type Store interface {
	UserRepository
	BatchRepository
	VideoRepository
}

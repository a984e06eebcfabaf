package model

import (
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/sahilchouksey/cohort-lms/utils/ids"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BatchStatus represents the lifecycle state of a batch
type BatchStatus string

const (
	BatchStatusActive    BatchStatus = "active"
	BatchStatusInactive  BatchStatus = "inactive"
	BatchStatusCompleted BatchStatus = "completed"
)

// BatchSchedule describes when a batch meets
type BatchSchedule struct {
	Days     []string `json:"days"`
	Time     string   `json:"time"`
	Timezone string   `json:"timezone"`
}

// Batch represents a named cohort of students sharing a course and a teacher.
// Students is a cached projection of the users whose BatchID points here.
type Batch struct {
	ID          string                            `gorm:"type:varchar(64);primaryKey" json:"id"`
	CreatedAt   time.Time                         `json:"created_at"`
	UpdatedAt   time.Time                         `json:"updated_at"`
	DeletedAt   gorm.DeletedAt                    `gorm:"index" json:"-"`
	Name        string                            `gorm:"not null;index" json:"name"` // Reconciliation key, not unique
	Course      string                            `gorm:"type:varchar(255)" json:"course"`
	TeacherID   string                            `gorm:"type:varchar(64);index" json:"teacher_id"`
	TeacherName string                            `json:"teacher_name"`
	Status      BatchStatus                       `gorm:"type:varchar(20);default:'active'" json:"status"`
	Students    pq.StringArray                    `gorm:"type:text[]" json:"students"`
	Schedule    datatypes.JSONType[BatchSchedule] `gorm:"type:jsonb" json:"schedule"`
	LegacyID    *string                           `gorm:"type:varchar(128);index" json:"legacy_id,omitempty"`
}

// BeforeCreate assigns an id and default status
func (b *Batch) BeforeCreate(tx *gorm.DB) error {
	b.Prepare()
	return nil
}

// Prepare fills defaults the store relies on
func (b *Batch) Prepare() {
	if b.ID == "" {
		b.ID = ids.New()
	}
	if b.Status == "" {
		b.Status = BatchStatusActive
	}
	if b.Students == nil {
		b.Students = pq.StringArray{}
	}
}

// HasStudent reports whether id is in the cached roster
func (b *Batch) HasStudent(id string) bool {
	for _, s := range b.Students {
		if s == id {
			return true
		}
	}
	return false
}

// SameStudents compares two rosters as sets
func SameStudents(a, b []string) bool {
	return equalSets(StudentSet(a), StudentSet(b))
}

// StudentSet returns the roster as a set, ignoring blank entries
func StudentSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		if id, ok := ids.ParseOptionalID(s); ok {
			set[id] = struct{}{}
		}
	}
	return set
}

// SortedStudents returns the set as a sorted slice so stored rosters are stable
func SortedStudents(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func equalSets(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sahilchouksey/cohort-lms/model"
	"github.com/sahilchouksey/cohort-lms/repository"
	"github.com/sahilchouksey/cohort-lms/utils/ids"
	"github.com/sahilchouksey/cohort-lms/utils/logger"
	"github.com/sahilchouksey/cohort-lms/utils/metrics"
	"go.uber.org/zap"
)

const (
	membershipLockKey = "lock:membership"
	membershipLockTTL = 30 * time.Second
)

// Locker serializes membership changes across processes
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// MembershipService keeps every student in at most one regular batch and
// keeps batch rosters in step with student batch pointers.
type MembershipService struct {
	users   repository.UserRepository
	batches repository.BatchRepository
	locker  Locker
	log     *zap.Logger
}

// NewMembershipService creates a new membership service
func NewMembershipService(users repository.UserRepository, batches repository.BatchRepository, log *zap.Logger) *MembershipService {
	return &MembershipService{
		users:   users,
		batches: batches,
		log:     logger.OrNop(log),
	}
}

// WithLocker enables cross-process serialization of membership changes
func (s *MembershipService) WithLocker(l Locker) *MembershipService {
	s.locker = l
	return s
}

// AssignResult describes what an assignment changed
type AssignResult struct {
	BatchID         string              `json:"batch_id"`
	Students        []string            `json:"students"`
	RemovedFrom     map[string][]string `json:"removed_from"` // batch id -> students pulled out of it
	RosterChanged   bool                `json:"roster_changed"`
	PointersUpdated int                 `json:"pointers_updated"`
	CoursesUpdated  int                 `json:"courses_updated"`
}

// Writes is the number of store writes the call issued
func (r *AssignResult) Writes() int {
	n := len(r.RemovedFrom)
	if r.RosterChanged {
		n++
	}
	if r.PointersUpdated > 0 {
		n++
	}
	if r.CoursesUpdated > 0 {
		n++
	}
	return n
}

// RemoveResult describes what a removal changed
type RemoveResult struct {
	BatchID        string `json:"batch_id"`
	StudentID      string `json:"student_id"`
	RosterChanged  bool   `json:"roster_changed"`
	PointerCleared bool   `json:"pointer_cleared"`
}

func (s *MembershipService) acquire(ctx context.Context) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	unlock, ok, err := s.locker.TryLock(ctx, membershipLockKey, membershipLockTTL)
	if err != nil {
		return nil, storeErr("acquire membership lock", err)
	}
	if !ok {
		return nil, ErrOperationInProgress
	}
	return unlock, nil
}

// AssignStudentsToBatch makes batchID the only regular batch of every listed
// student. The steps are individually idempotent; a failure part way leaves
// state that RebuildAllRosters repairs.
func (s *MembershipService) AssignStudentsToBatch(ctx context.Context, batchID string, studentIDs []string) (*AssignResult, error) {
	targetID, ok := ids.ParseOptionalID(batchID)
	if !ok {
		return nil, &ValidationError{Field: "batch_id", Message: "is required"}
	}
	if len(studentIDs) == 0 {
		return nil, &ValidationError{Field: "student_ids", Message: "at least one student id is required"}
	}
	students, invalid := ids.ParseList(studentIDs)
	if len(invalid) > 0 {
		return nil, &ValidationError{Field: "student_ids", Message: fmt.Sprintf("contains %d empty identifier(s)", len(invalid))}
	}

	unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	batch, err := s.batches.GetBatch(ctx, targetID)
	if err != nil {
		return nil, lookupErr("Batch", targetID, "load batch", err)
	}

	users, err := s.loadStudents(ctx, students)
	if err != nil {
		return nil, err
	}

	result := &AssignResult{
		BatchID:     batch.ID,
		Students:    students,
		RemovedFrom: map[string][]string{},
	}

	// Global exclusivity: pull the students out of every other roster first
	others, err := s.batches.ListBatches(ctx, repository.BatchFilter{ContainsAnyStudent: students, ExcludeID: batch.ID})
	if err != nil {
		return nil, storeErr("find batches containing students", err)
	}
	moving := model.StudentSet(students)
	for _, other := range others {
		kept, removed := splitRoster(other.Students, moving)
		if len(removed) == 0 {
			continue
		}
		if err := s.batches.UpdateBatchStudents(ctx, other.ID, kept); err != nil {
			return result, storeErr("update roster of batch "+other.ID, err)
		}
		metrics.MembershipWrites.WithLabelValues("roster").Inc()
		result.RemovedFrom[other.ID] = removed
		s.log.Info("students removed from previous batch",
			zap.String("batch_id", other.ID),
			zap.Strings("students", removed),
		)
	}

	roster, added := unionRoster(batch.Students, students)
	if added > 0 {
		if err := s.batches.UpdateBatchStudents(ctx, batch.ID, roster); err != nil {
			return result, storeErr("update roster of batch "+batch.ID, err)
		}
		metrics.MembershipWrites.WithLabelValues("roster").Inc()
		result.RosterChanged = true
	}

	var repoint, recourse []string
	course := strings.TrimSpace(batch.Course)
	for _, u := range users {
		if !ids.Equal(u.BatchID, batch.ID) {
			repoint = append(repoint, u.ID)
		}
		if course != "" && (u.Course == nil || *u.Course != course) {
			recourse = append(recourse, u.ID)
		}
	}
	if len(repoint) > 0 {
		target := batch.ID
		if _, err := s.users.SetUsersBatch(ctx, repoint, &target); err != nil {
			return result, storeErr("update student batch pointers", err)
		}
		metrics.MembershipWrites.WithLabelValues("pointer").Inc()
		result.PointersUpdated = len(repoint)
	}
	if len(recourse) > 0 {
		if _, err := s.users.SetUsersCourse(ctx, recourse, course); err != nil {
			return result, storeErr("update student course", err)
		}
		metrics.MembershipWrites.WithLabelValues("course").Inc()
		result.CoursesUpdated = len(recourse)
	}

	s.log.Info("students assigned to batch",
		zap.String("batch_id", batch.ID),
		zap.Int("students", len(students)),
		zap.Int("removed_from_batches", len(result.RemovedFrom)),
		zap.Bool("roster_changed", result.RosterChanged),
		zap.Int("pointers_updated", result.PointersUpdated),
	)
	return result, nil
}

// loadStudents fetches the users in the order given and checks they are students.
func (s *MembershipService) loadStudents(ctx context.Context, studentIDs []string) ([]model.User, error) {
	found, err := s.users.FindUsers(ctx, repository.UserFilter{IDs: studentIDs})
	if err != nil {
		return nil, storeErr("load students", err)
	}
	byID := make(map[string]model.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}

	users := make([]model.User, 0, len(studentIDs))
	for _, id := range studentIDs {
		u, ok := byID[id]
		if !ok {
			return nil, &NotFoundError{Resource: "User", ID: id}
		}
		if !u.IsStudent() {
			return nil, &ValidationError{
				Field:   "student_ids",
				Message: fmt.Sprintf("user %s has role %q, only students can join a batch", id, u.Role),
			}
		}
		users = append(users, u)
	}
	return users, nil
}

// RemoveStudentFromBatch drops the student from the roster and clears the
// student's batch pointer when it still names this batch.
func (s *MembershipService) RemoveStudentFromBatch(ctx context.Context, batchID, studentID string) (*RemoveResult, error) {
	bID, ok := ids.ParseOptionalID(batchID)
	if !ok {
		return nil, &ValidationError{Field: "batch_id", Message: "is required"}
	}
	sID, ok := ids.ParseOptionalID(studentID)
	if !ok {
		return nil, &ValidationError{Field: "student_id", Message: "is required"}
	}

	unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	batch, err := s.batches.GetBatch(ctx, bID)
	if err != nil {
		return nil, lookupErr("Batch", bID, "load batch", err)
	}
	user, err := s.users.GetUser(ctx, sID)
	if err != nil {
		return nil, lookupErr("User", sID, "load user", err)
	}

	result := &RemoveResult{BatchID: batch.ID, StudentID: user.ID}

	kept, removed := splitRoster(batch.Students, map[string]struct{}{user.ID: {}})
	if len(removed) > 0 {
		if err := s.batches.UpdateBatchStudents(ctx, batch.ID, kept); err != nil {
			return result, storeErr("update roster of batch "+batch.ID, err)
		}
		metrics.MembershipWrites.WithLabelValues("roster").Inc()
		result.RosterChanged = true
	}

	if ids.Equal(user.BatchID, batch.ID) {
		if _, err := s.users.SetUsersBatch(ctx, []string{user.ID}, nil); err != nil {
			return result, storeErr("clear student batch pointer", err)
		}
		metrics.MembershipWrites.WithLabelValues("pointer").Inc()
		result.PointerCleared = true
	}

	s.log.Info("student removed from batch",
		zap.String("batch_id", batch.ID),
		zap.String("student_id", user.ID),
		zap.Bool("roster_changed", result.RosterChanged),
		zap.Bool("pointer_cleared", result.PointerCleared),
	)
	return result, nil
}

// splitRoster partitions a roster into entries to keep and entries found in drop.
func splitRoster(roster []string, drop map[string]struct{}) (kept, removed []string) {
	kept = make([]string, 0, len(roster))
	for _, id := range roster {
		if _, ok := drop[id]; ok {
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	return kept, removed
}

// unionRoster appends ids missing from roster, keeping the existing order.
func unionRoster(roster []string, add []string) ([]string, int) {
	present := make(map[string]struct{}, len(roster))
	out := make([]string, 0, len(roster)+len(add))
	for _, id := range roster {
		present[id] = struct{}{}
		out = append(out, id)
	}
	added := 0
	for _, id := range add {
		if _, ok := present[id]; ok {
			continue
		}
		present[id] = struct{}{}
		out = append(out, id)
		added++
	}
	return out, added
}

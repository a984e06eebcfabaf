package services

import (
	"context"
	"fmt"

	"github.com/sahilchouksey/cohort-lms/model"
	"github.com/sahilchouksey/cohort-lms/repository"
	"github.com/sahilchouksey/cohort-lms/utils/ids"
	"github.com/sahilchouksey/cohort-lms/utils/logger"
	"github.com/sahilchouksey/cohort-lms/utils/metrics"
	"go.uber.org/zap"
)

// RosterService recomputes the cached batch rosters from student pointers
type RosterService struct {
	users   repository.UserRepository
	batches repository.BatchRepository
	log     *zap.Logger
}

// NewRosterService creates a new roster service
func NewRosterService(users repository.UserRepository, batches repository.BatchRepository, log *zap.Logger) *RosterService {
	return &RosterService{users: users, batches: batches, log: logger.OrNop(log)}
}

// RosterResult is the outcome for one batch
type RosterResult struct {
	BatchID  string   `json:"batch_id"`
	Students []string `json:"students"`
	Changed  bool     `json:"changed"`
	Added    []string `json:"added,omitempty"`
	Removed  []string `json:"removed,omitempty"`
}

// RosterSweepResult is the outcome of rebuilding every roster
type RosterSweepResult struct {
	Batches   int                  `json:"batches"`
	Changed   []RosterResult       `json:"changed"`
	Unchanged int                  `json:"unchanged"`
	Warnings  []ConsistencyWarning `json:"warnings"`
}

// RebuildRoster sets the roster of batchID to the students pointing at it.
// Nothing is written when the roster already matches as a set.
func (s *RosterService) RebuildRoster(ctx context.Context, batchID string) (*RosterResult, error) {
	id, ok := ids.ParseOptionalID(batchID)
	if !ok {
		return nil, &ValidationError{Field: "batch_id", Message: "is required"}
	}
	batch, err := s.batches.GetBatch(ctx, id)
	if err != nil {
		return nil, lookupErr("Batch", id, "load batch", err)
	}
	members, err := s.users.FindUsers(ctx, repository.UserFilter{Role: model.RoleStudent, BatchID: &batch.ID})
	if err != nil {
		return nil, storeErr("load batch members", err)
	}

	want := make(map[string]struct{}, len(members))
	for _, u := range members {
		want[u.ID] = struct{}{}
	}
	return s.apply(ctx, batch, want)
}

// RebuildAllRosters rebuilds every batch from a single scan of students and
// reports students whose pointer names no batch.
func (s *RosterService) RebuildAllRosters(ctx context.Context) (*RosterSweepResult, error) {
	batches, err := s.batches.ListBatches(ctx, repository.BatchFilter{})
	if err != nil {
		return nil, storeErr("list batches", err)
	}
	students, err := s.users.FindUsers(ctx, repository.UserFilter{Role: model.RoleStudent})
	if err != nil {
		return nil, storeErr("list students", err)
	}

	known := make(map[string]struct{}, len(batches))
	for _, b := range batches {
		known[b.ID] = struct{}{}
	}
	byBatch := make(map[string]map[string]struct{}, len(batches))
	var dangling []string
	for _, u := range students {
		bID, ok := ids.FromPtr(u.BatchID)
		if !ok {
			continue
		}
		if _, exists := known[bID]; !exists {
			dangling = append(dangling, u.ID)
			continue
		}
		if byBatch[bID] == nil {
			byBatch[bID] = map[string]struct{}{}
		}
		byBatch[bID][u.ID] = struct{}{}
	}

	sweep := &RosterSweepResult{Batches: len(batches), Changed: []RosterResult{}, Warnings: []ConsistencyWarning{}}
	for i := range batches {
		want := byBatch[batches[i].ID]
		if want == nil {
			want = map[string]struct{}{}
		}
		res, err := s.apply(ctx, &batches[i], want)
		if err != nil {
			return sweep, err
		}
		if res.Changed {
			sweep.Changed = append(sweep.Changed, *res)
		} else {
			sweep.Unchanged++
		}
	}

	if len(dangling) > 0 {
		sweep.Warnings = append(sweep.Warnings, ConsistencyWarning{
			Kind:    WarningDanglingBatchPointer,
			Message: fmt.Sprintf("%d student(s) point at a batch that does not exist", len(dangling)),
			IDs:     dangling,
		})
		s.log.Warn("dangling student batch pointers", zap.Strings("students", dangling))
	}

	s.log.Info("roster sweep complete",
		zap.Int("batches", sweep.Batches),
		zap.Int("changed", len(sweep.Changed)),
		zap.Int("dangling", len(dangling)),
	)
	return sweep, nil
}

func (s *RosterService) apply(ctx context.Context, batch *model.Batch, want map[string]struct{}) (*RosterResult, error) {
	have := model.StudentSet(batch.Students)
	result := &RosterResult{BatchID: batch.ID, Students: model.SortedStudents(want)}

	if model.SameStudents(batch.Students, result.Students) {
		metrics.RosterRebuilds.WithLabelValues("unchanged").Inc()
		return result, nil
	}

	for _, id := range result.Students {
		if _, ok := have[id]; !ok {
			result.Added = append(result.Added, id)
		}
	}
	for _, id := range model.SortedStudents(have) {
		if _, ok := want[id]; !ok {
			result.Removed = append(result.Removed, id)
		}
	}

	if err := s.batches.UpdateBatchStudents(ctx, batch.ID, result.Students); err != nil {
		return nil, storeErr("update roster of batch "+batch.ID, err)
	}
	metrics.RosterRebuilds.WithLabelValues("changed").Inc()
	result.Changed = true
	s.log.Info("roster rebuilt",
		zap.String("batch_id", batch.ID),
		zap.Strings("added", result.Added),
		zap.Strings("removed", result.Removed),
	)
	return result, nil
}

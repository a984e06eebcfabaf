// Package memstore is an in-memory repository.Store used by tests and dry
// tooling. Records are copied on the way in and out.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sahilchouksey/cohort-lms/model"
	"github.com/sahilchouksey/cohort-lms/repository"
	"github.com/sahilchouksey/cohort-lms/utils/ids"
	"gorm.io/datatypes"
)

// Store keeps users, batches and videos in insertion order.
type Store struct {
	mu sync.RWMutex

	users   map[string]*model.User
	batches map[string]*model.Batch
	videos  map[string]*model.ClassroomVideo

	userOrder  []string
	batchOrder []string
	videoOrder []string

	failures map[string]error
	writes   map[string]int
	now      func() time.Time
	last     time.Time
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    make(map[string]*model.User),
		batches:  make(map[string]*model.Batch),
		videos:   make(map[string]*model.ClassroomVideo),
		failures: make(map[string]error),
		writes:   make(map[string]int),
		now:      time.Now,
	}
}

// FailOn makes every later call of the named method return err. A nil err
// clears the injected failure.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Writes returns how many successful mutating calls the named method served.
func (s *Store) Writes(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes[op]
}

// TotalWrites sums Writes over every mutating method.
func (s *Store) TotalWrites() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, n := range s.writes {
		total += n
	}
	return total
}

func (s *Store) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := s.failures[op]; ok {
		return err
	}
	return nil
}

func idSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, id := range list {
		set[id] = struct{}{}
	}
	return set
}

func copyPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyUser(u *model.User) model.User {
	out := *u
	out.Course = copyPtr(u.Course)
	out.BatchID = copyPtr(u.BatchID)
	out.OneToOneBatchID = copyPtr(u.OneToOneBatchID)
	out.LegacyID = copyPtr(u.LegacyID)
	return out
}

func copyBatch(b *model.Batch) model.Batch {
	out := *b
	out.Students = append(pq.StringArray{}, b.Students...)
	out.LegacyID = copyPtr(b.LegacyID)
	sched := b.Schedule.Data()
	sched.Days = append([]string(nil), sched.Days...)
	out.Schedule = datatypes.NewJSONType(sched)
	return out
}

func copyVideo(v *model.ClassroomVideo) model.ClassroomVideo {
	out := *v
	out.BatchID = copyPtr(v.BatchID)
	out.LegacyID = copyPtr(v.LegacyID)
	return out
}

// stamp keeps timestamps strictly increasing so creation order is never a tie
func (s *Store) stamp(created *time.Time, updated *time.Time) {
	now := s.now()
	if !now.After(s.last) {
		now = s.last.Add(time.Nanosecond)
	}
	s.last = now
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

// ----- Users -----

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "CreateUser"); err != nil {
		return err
	}
	user.Prepare()
	if _, exists := s.users[user.ID]; exists {
		return fmt.Errorf("duplicate user id %q", user.ID)
	}
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return fmt.Errorf("duplicate user email %q", user.Email)
		}
	}
	s.stamp(&user.CreatedAt, &user.UpdatedAt)
	stored := copyUser(user)
	s.users[user.ID] = &stored
	s.userOrder = append(s.userOrder, user.ID)
	s.writes["CreateUser"]++
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "GetUser"); err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := copyUser(u)
	return &out, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "GetUserByEmail"); err != nil {
		return nil, err
	}
	want := model.NormalizeEmail(email)
	for _, id := range s.userOrder {
		if u := s.users[id]; u.Email == want {
			out := copyUser(u)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) FindUsers(ctx context.Context, filter repository.UserFilter) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "FindUsers"); err != nil {
		return nil, err
	}
	var wantIDs, wantLegacy map[string]struct{}
	if filter.IDs != nil {
		wantIDs = idSet(filter.IDs)
	}
	if len(filter.LegacyIDs) > 0 {
		wantLegacy = idSet(filter.LegacyIDs)
	}

	out := []model.User{}
	for _, id := range s.userOrder {
		u := s.users[id]
		if wantIDs != nil {
			if _, ok := wantIDs[u.ID]; !ok {
				continue
			}
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.BatchID != nil && !ids.Equal(u.BatchID, *filter.BatchID) {
			continue
		}
		if wantLegacy != nil {
			legacy, ok := ids.FromPtr(u.LegacyID)
			if !ok {
				continue
			}
			if _, match := wantLegacy[legacy]; !match {
				continue
			}
		}
		out = append(out, copyUser(u))
	}
	return out, nil
}

func (s *Store) SetUsersBatch(ctx context.Context, userIDs []string, batchID *string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "SetUsersBatch"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			u.BatchID = copyPtr(batchID)
			u.UpdatedAt = s.now()
			n++
		}
	}
	s.writes["SetUsersBatch"]++
	return n, nil
}

func (s *Store) SetUsersCourse(ctx context.Context, userIDs []string, course string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "SetUsersCourse"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			c := course
			u.Course = &c
			u.UpdatedAt = s.now()
			n++
		}
	}
	s.writes["SetUsersCourse"]++
	return n, nil
}

func (s *Store) RepointUsersBatch(ctx context.Context, from, to string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "RepointUsersBatch"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range s.userOrder {
		u := s.users[id]
		if ids.Equal(u.BatchID, from) {
			target := to
			u.BatchID = &target
			u.UpdatedAt = s.now()
			n++
		}
	}
	if n > 0 {
		s.writes["RepointUsersBatch"]++
	}
	return n, nil
}

func (s *Store) SetUserLegacyID(ctx context.Context, id, legacyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "SetUserLegacyID"); err != nil {
		return err
	}
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	l := legacyID
	u.LegacyID = &l
	u.UpdatedAt = s.now()
	s.writes["SetUserLegacyID"]++
	return nil
}

// ----- Batches -----

func (s *Store) CreateBatch(ctx context.Context, batch *model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "CreateBatch"); err != nil {
		return err
	}
	batch.Prepare()
	if _, exists := s.batches[batch.ID]; exists {
		return fmt.Errorf("duplicate batch id %q", batch.ID)
	}
	s.stamp(&batch.CreatedAt, &batch.UpdatedAt)
	stored := copyBatch(batch)
	s.batches[batch.ID] = &stored
	s.batchOrder = append(s.batchOrder, batch.ID)
	s.writes["CreateBatch"]++
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "GetBatch"); err != nil {
		return nil, err
	}
	b, ok := s.batches[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := copyBatch(b)
	return &out, nil
}

func (s *Store) ListBatches(ctx context.Context, filter repository.BatchFilter) ([]model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "ListBatches"); err != nil {
		return nil, err
	}
	var wantIDs, anyStudent map[string]struct{}
	if filter.IDs != nil {
		wantIDs = idSet(filter.IDs)
	}
	if filter.ContainsAnyStudent != nil {
		anyStudent = idSet(filter.ContainsAnyStudent)
	}

	out := []model.Batch{}
	for _, id := range s.batchOrder {
		b := s.batches[id]
		if wantIDs != nil {
			if _, ok := wantIDs[b.ID]; !ok {
				continue
			}
		}
		if filter.ExcludeID != "" && b.ID == filter.ExcludeID {
			continue
		}
		if anyStudent != nil && !overlaps(b.Students, anyStudent) {
			continue
		}
		out = append(out, copyBatch(b))
	}
	return out, nil
}

func overlaps(students []string, want map[string]struct{}) bool {
	for _, s := range students {
		if _, ok := want[s]; ok {
			return true
		}
	}
	return false
}

func (s *Store) UpdateBatchStudents(ctx context.Context, id string, students []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "UpdateBatchStudents"); err != nil {
		return err
	}
	b, ok := s.batches[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Students = append(pq.StringArray{}, students...)
	b.UpdatedAt = s.now()
	s.writes["UpdateBatchStudents"]++
	return nil
}

func (s *Store) SetBatchLegacyID(ctx context.Context, id, legacyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "SetBatchLegacyID"); err != nil {
		return err
	}
	b, ok := s.batches[id]
	if !ok {
		return repository.ErrNotFound
	}
	l := legacyID
	b.LegacyID = &l
	b.UpdatedAt = s.now()
	s.writes["SetBatchLegacyID"]++
	return nil
}

func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "DeleteBatch"); err != nil {
		return err
	}
	if _, ok := s.batches[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.batches, id)
	s.batchOrder = without(s.batchOrder, map[string]struct{}{id: {}})
	s.writes["DeleteBatch"]++
	return nil
}

func without(order []string, drop map[string]struct{}) []string {
	out := order[:0]
	for _, id := range order {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// ----- Classroom videos -----

func (s *Store) CreateVideo(ctx context.Context, video *model.ClassroomVideo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "CreateVideo"); err != nil {
		return err
	}
	if video.ID == "" {
		video.ID = ids.New()
	}
	if _, exists := s.videos[video.ID]; exists {
		return fmt.Errorf("duplicate video id %q", video.ID)
	}
	s.stamp(&video.CreatedAt, &video.UpdatedAt)
	stored := copyVideo(video)
	s.videos[video.ID] = &stored
	s.videoOrder = append(s.videoOrder, video.ID)
	s.writes["CreateVideo"]++
	return nil
}

func (s *Store) GetVideo(ctx context.Context, id string) (*model.ClassroomVideo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "GetVideo"); err != nil {
		return nil, err
	}
	v, ok := s.videos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := copyVideo(v)
	return &out, nil
}

func (s *Store) ListVideos(ctx context.Context, filter repository.VideoFilter) ([]model.ClassroomVideo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "ListVideos"); err != nil {
		return nil, err
	}
	out := []model.ClassroomVideo{}
	for _, id := range s.videoOrder {
		v := s.videos[id]
		switch {
		case filter.BatchID != nil:
			if !ids.Equal(v.BatchID, *filter.BatchID) {
				continue
			}
		case filter.Unassigned:
			if _, ok := ids.FromPtr(v.BatchID); ok {
				continue
			}
		}
		out = append(out, copyVideo(v))
	}
	return out, nil
}

func (s *Store) UnassignVideos(ctx context.Context, videoIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "UnassignVideos"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range videoIDs {
		if v, ok := s.videos[id]; ok {
			v.BatchID = nil
			v.UpdatedAt = s.now()
			n++
		}
	}
	s.writes["UnassignVideos"]++
	return n, nil
}

func (s *Store) DeleteVideos(ctx context.Context, videoIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "DeleteVideos"); err != nil {
		return 0, err
	}
	drop := make(map[string]struct{}, len(videoIDs))
	for _, id := range videoIDs {
		if _, ok := s.videos[id]; ok {
			delete(s.videos, id)
			drop[id] = struct{}{}
		}
	}
	s.videoOrder = without(s.videoOrder, drop)
	s.writes["DeleteVideos"]++
	return int64(len(drop)), nil
}

func (s *Store) RepointVideosBatch(ctx context.Context, from, to string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "RepointVideosBatch"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range s.videoOrder {
		v := s.videos[id]
		if ids.Equal(v.BatchID, from) {
			target := to
			v.BatchID = &target
			v.UpdatedAt = s.now()
			n++
		}
	}
	if n > 0 {
		s.writes["RepointVideosBatch"]++
	}
	return n, nil
}

func (s *Store) SetVideoLegacyID(ctx context.Context, id, legacyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "SetVideoLegacyID"); err != nil {
		return err
	}
	v, ok := s.videos[id]
	if !ok {
		return repository.ErrNotFound
	}
	l := legacyID
	v.LegacyID = &l
	v.UpdatedAt = s.now()
	s.writes["SetVideoLegacyID"]++
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sahilchouksey/cohort-lms/model"
	"gorm.io/gorm"
)

// absentSQL matches a batch pointer column holding nothing usable.
const absentSQL = "(%[1]s IS NULL OR LOWER(TRIM(%[1]s)) IN ('', 'null', 'undefined', 'none', 'nil'))"

// GormStore implements Store on top of a *gorm.DB.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func batchValue(batchID *string) interface{} {
	if batchID == nil {
		return gorm.Expr("NULL")
	}
	return *batchID
}

func inClause(column string, ids []string) (string, interface{}) {
	return fmt.Sprintf("%s IN ?", column), ids
}

// ----- Users -----

func (s *GormStore) CreateUser(ctx context.Context, user *model.User) error {
	return s.conn(ctx).Create(user).Error
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.conn(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.conn(ctx).Where("email = ?", model.NormalizeEmail(email)).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) FindUsers(ctx context.Context, filter UserFilter) ([]model.User, error) {
	query := s.conn(ctx).Model(&model.User{})
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return []model.User{}, nil
		}
		query = query.Where(inClause("id", filter.IDs))
	}
	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	if filter.BatchID != nil {
		query = query.Where("TRIM(batch_id) = ?", *filter.BatchID)
	}
	if len(filter.LegacyIDs) > 0 {
		query = query.Where(inClause("legacy_id", filter.LegacyIDs))
	}

	var users []model.User
	if err := query.Order("created_at ASC, id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *GormStore) SetUsersBatch(ctx context.Context, ids []string, batchID *string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.conn(ctx).Model(&model.User{}).
		Where(inClause("id", ids)).
		Update("batch_id", batchValue(batchID))
	return result.RowsAffected, result.Error
}

func (s *GormStore) SetUsersCourse(ctx context.Context, ids []string, course string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.conn(ctx).Model(&model.User{}).
		Where(inClause("id", ids)).
		Update("course", course)
	return result.RowsAffected, result.Error
}

func (s *GormStore) RepointUsersBatch(ctx context.Context, from, to string) (int64, error) {
	result := s.conn(ctx).Model(&model.User{}).
		Where("TRIM(batch_id) = ?", from).
		Update("batch_id", to)
	return result.RowsAffected, result.Error
}

func (s *GormStore) SetUserLegacyID(ctx context.Context, id, legacyID string) error {
	return setLegacyID(s.conn(ctx).Model(&model.User{}), id, legacyID)
}

// ----- Batches -----

func (s *GormStore) CreateBatch(ctx context.Context, batch *model.Batch) error {
	return s.conn(ctx).Create(batch).Error
}

func (s *GormStore) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	var batch model.Batch
	if err := s.conn(ctx).Where("id = ?", id).First(&batch).Error; err != nil {
		return nil, translate(err)
	}
	return &batch, nil
}

func (s *GormStore) ListBatches(ctx context.Context, filter BatchFilter) ([]model.Batch, error) {
	query := s.conn(ctx).Model(&model.Batch{})
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return []model.Batch{}, nil
		}
		query = query.Where(inClause("id", filter.IDs))
	}
	if filter.ContainsAnyStudent != nil {
		if len(filter.ContainsAnyStudent) == 0 {
			return []model.Batch{}, nil
		}
		query = query.Where("students && ?", pq.Array(filter.ContainsAnyStudent))
	}
	if filter.ExcludeID != "" {
		query = query.Where("id <> ?", filter.ExcludeID)
	}

	var batches []model.Batch
	if err := query.Order("created_at ASC, id ASC").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *GormStore) UpdateBatchStudents(ctx context.Context, id string, students []string) error {
	if students == nil {
		students = []string{}
	}
	result := s.conn(ctx).Model(&model.Batch{}).
		Where("id = ?", id).
		Update("students", pq.StringArray(students))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SetBatchLegacyID(ctx context.Context, id, legacyID string) error {
	return setLegacyID(s.conn(ctx).Model(&model.Batch{}), id, legacyID)
}

func (s *GormStore) DeleteBatch(ctx context.Context, id string) error {
	result := s.conn(ctx).Where("id = ?", id).Delete(&model.Batch{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ----- Classroom videos -----

func (s *GormStore) CreateVideo(ctx context.Context, video *model.ClassroomVideo) error {
	return s.conn(ctx).Create(video).Error
}

func (s *GormStore) GetVideo(ctx context.Context, id string) (*model.ClassroomVideo, error) {
	var video model.ClassroomVideo
	if err := s.conn(ctx).Where("id = ?", id).First(&video).Error; err != nil {
		return nil, translate(err)
	}
	return &video, nil
}

func (s *GormStore) ListVideos(ctx context.Context, filter VideoFilter) ([]model.ClassroomVideo, error) {
	query := s.conn(ctx).Model(&model.ClassroomVideo{})
	switch {
	case filter.BatchID != nil:
		query = query.Where("TRIM(batch_id) = ?", *filter.BatchID)
	case filter.Unassigned:
		query = query.Where(fmt.Sprintf(absentSQL, "batch_id"))
	}

	var videos []model.ClassroomVideo
	if err := query.Order("created_at ASC, id ASC").Find(&videos).Error; err != nil {
		return nil, err
	}
	return videos, nil
}

func (s *GormStore) UnassignVideos(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.conn(ctx).Model(&model.ClassroomVideo{}).
		Where(inClause("id", ids)).
		Update("batch_id", gorm.Expr("NULL"))
	return result.RowsAffected, result.Error
}

// DeleteVideos hard-deletes; duplicate orphans are not kept around soft-deleted.
func (s *GormStore) DeleteVideos(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.conn(ctx).Unscoped().Where(inClause("id", ids)).Delete(&model.ClassroomVideo{})
	return result.RowsAffected, result.Error
}

func (s *GormStore) RepointVideosBatch(ctx context.Context, from, to string) (int64, error) {
	result := s.conn(ctx).Model(&model.ClassroomVideo{}).
		Where("TRIM(batch_id) = ?", from).
		Update("batch_id", to)
	return result.RowsAffected, result.Error
}

func (s *GormStore) SetVideoLegacyID(ctx context.Context, id, legacyID string) error {
	return setLegacyID(s.conn(ctx).Model(&model.ClassroomVideo{}), id, legacyID)
}

// setLegacyID stamps legacy_id on one row of the model bound to query.
func setLegacyID(query *gorm.DB, id, legacyID string) error {
	result := query.Where("id = ?", id).Update("legacy_id", legacyID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

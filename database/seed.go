package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sahilchouksey/cohort-lms/model"
	"github.com/sahilchouksey/cohort-lms/repository"
	"github.com/sahilchouksey/cohort-lms/utils/auth"
	applog "github.com/sahilchouksey/cohort-lms/utils/logger"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Seeder handles database seeding operations
type Seeder struct {
	store repository.Store
	log   *zap.Logger
}

// NewSeeder creates a new seeder instance
func NewSeeder(store repository.Store, log *zap.Logger) *Seeder {
	return &Seeder{store: store, log: applog.OrNop(log).Named("seed")}
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll(ctx context.Context, adminEmail, adminPassword string) error {
	s.log.Info("starting database seeding")

	if err := s.SeedAdminUser(ctx, adminEmail, adminPassword); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if err := s.SeedSampleCohort(ctx); err != nil {
		return fmt.Errorf("failed to seed sample cohort: %w", err)
	}

	s.log.Info("database seeding completed")
	return nil
}

// SeedAdminUser creates the default admin user
func (s *Seeder) SeedAdminUser(ctx context.Context, email, password string) error {
	admins, err := s.store.FindUsers(ctx, repository.UserFilter{Role: model.RoleAdmin})
	if err != nil {
		return err
	}
	if len(admins) > 0 {
		s.log.Info("admin user already exists, skipping")
		return nil
	}

	if email == "" || password == "" {
		s.log.Warn("ADMIN_EMAIL and ADMIN_PASSWORD not set, skipping admin user creation")
		return nil
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &model.User{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         "System Administrator",
		Role:         model.RoleAdmin,
	}
	if err := s.store.CreateUser(ctx, admin); err != nil {
		return err
	}

	s.log.Info("created admin user", zap.String("email", admin.Email))
	return nil
}

// SeedSampleCohort creates one batch with two students and a recorded class,
// so a fresh install has something for the maintenance jobs to look at.
func (s *Seeder) SeedSampleCohort(ctx context.Context) error {
	batches, err := s.store.ListBatches(ctx, repository.BatchFilter{})
	if err != nil {
		return err
	}
	if len(batches) > 0 {
		s.log.Info("batches already exist, skipping")
		return nil
	}

	batch := &model.Batch{
		Name:   "Full Stack Cohort 1",
		Course: "full-stack",
		Status: model.BatchStatusActive,
		Schedule: datatypes.NewJSONType(model.BatchSchedule{
			Days:     []string{"mon", "wed", "fri"},
			Time:     "19:00",
			Timezone: "Asia/Kolkata",
		}),
	}
	if err := s.store.CreateBatch(ctx, batch); err != nil {
		return err
	}

	var roster []string
	for i := 1; i <= 2; i++ {
		student := &model.User{
			Name:    fmt.Sprintf("Sample Student %d", i),
			Email:   fmt.Sprintf("student%d@example.com", i),
			Role:    model.RoleStudent,
			Course:  &batch.Course,
			BatchID: &batch.ID,
		}
		if err := s.store.CreateUser(ctx, student); err != nil {
			return err
		}
		roster = append(roster, student.ID)
	}
	if err := s.store.UpdateBatchStudents(ctx, batch.ID, roster); err != nil {
		return err
	}

	video := &model.ClassroomVideo{
		Title:             "Orientation",
		Date:              time.Now().UTC().Format("2006-01-02"),
		Course:            batch.Course,
		BatchID:           &batch.ID,
		VideoSource:       model.VideoSourceYouTubeURL,
		VideoURL:          "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		ExternalContentID: "dQw4w9WgXcQ",
	}
	if err := s.store.CreateVideo(ctx, video); err != nil {
		return err
	}

	s.log.Info("created sample cohort", zap.String("batch_id", batch.ID), zap.Int("students", len(roster)))
	return nil
}

package database

import (
	"fmt"
	"time"

	"github.com/sahilchouksey/cohort-lms/config"
	"github.com/sahilchouksey/cohort-lms/model"
	applog "github.com/sahilchouksey/cohort-lms/utils/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GORMStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// DSN builds the postgres connection string from the environment
func DSN(env *config.EnviornmentVariable) string {
	sslMode := env.DB_SSL_MODE
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		env.DB_HOST,
		env.DB_USER_NAME,
		env.DB_PASSWORD,
		env.DB_NAME,
		env.DB_PORT,
		sslMode,
	)
}

// StartGORM initializes a GORM connection to PostgreSQL
func StartGORM(env *config.EnviornmentVariable, log *zap.Logger) (*GORMStore, error) {
	log = applog.OrNop(log).Named("database")

	// Configure GORM logger
	gormLogger := logger.Default.LogMode(logger.Warn)
	if env.GO_ENV == "production" {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	// Open GORM connection
	db, err := gorm.Open(postgres.Open(DSN(env)), &gorm.Config{
		Logger:      gormLogger,
		PrepareStmt: true,
	})
	if err != nil {
		log.Error("unable to connect to postgres", zap.Error(err))
		return nil, err
	}

	// Get underlying *sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("connected to postgres", zap.String("host", env.DB_HOST), zap.String("db", env.DB_NAME))

	return &GORMStore{db: db, log: log}, nil
}

// Models lists every table owned by the service, in migration order
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Batch{},
		&model.ClassroomVideo{},

		// Audit & logging models
		&model.CronJobLog{},
		&model.AdminAuditLog{},
	}
}

// Init runs the AutoMigrate to create/update tables
func (s *GORMStore) Init() error {
	s.log.Info("running automigrate")

	if err := s.db.AutoMigrate(Models()...); err != nil {
		s.log.Error("automigrate failed", zap.Error(err))
		return err
	}

	// Roster overlap checks use && on the text[] column
	if err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_batches_students ON batches USING GIN (students)`).Error; err != nil {
		s.log.Warn("could not create roster index", zap.Error(err))
	}

	s.log.Info("automigrate completed")
	return nil
}

// Close closes the database connection
func (s *GORMStore) Close() error {
	s.log.Info("closing postgres connection")
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the GORM DB instance for use in repositories/handlers
func (s *GORMStore) GetDB() *gorm.DB {
	return s.db
}

// HealthCheck verifies the database connection is alive
func (s *GORMStore) HealthCheck() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Package postgres implements the orchestrator's store interfaces on top
// of GORM, grounded on the teacher's pkg/storage/postgres/job_store.go.
package postgres

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"casare-orchestrator/internal/models"
)

// DB wraps the shared *gorm.DB connection. Each concern (jobs, robots,
// schedules, checkpoints, the DLQ) gets its own store type over the same
// connection, the way the teacher keeps one PostgresStore per concern's
// methods but without colliding method names across concerns.
type DB struct {
	conn *gorm.DB
}

// Open connects to Postgres via connString and auto-migrates every
// orchestrator table.
func Open(connString string) (*DB, error) {
	cfg := &gorm.Config{
		Logger:      gormlogger.Default.LogMode(gormlogger.Warn),
		PrepareStmt: true,
	}

	conn, err := gorm.Open(postgres.Open(connString), cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := conn.AutoMigrate(
		&models.Job{},
		&models.DLQEntry{},
		&models.Checkpoint{},
		&models.Robot{},
		&models.Schedule{},
		&models.ExecutionHistory{},
	); err != nil {
		return nil, fmt.Errorf("postgres: schema migration: %w", err)
	}

	return &DB{conn: conn}, nil
}

func (d *DB) Close() error {
	sqlDB, err := d.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Jobs returns the JobStore implementation over this connection.
func (d *DB) Jobs() *JobStore { return &JobStore{db: d.conn} }

// Robots returns the RobotStore implementation over this connection.
func (d *DB) Robots() *RobotStore { return &RobotStore{db: d.conn} }

// Schedules returns the ScheduleStore implementation over this connection.
func (d *DB) Schedules() *ScheduleStore { return &ScheduleStore{db: d.conn} }

// Checkpoints returns the CheckpointStore implementation over this connection.
func (d *DB) Checkpoints() *CheckpointStore { return &CheckpointStore{db: d.conn} }

// DLQ returns the DLQStore implementation over this connection.
func (d *DB) DLQ() *DLQStore { return &DLQStore{db: d.conn} }

package repo

import (
	"Dyvine/config"
	"Dyvine/model"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var Db *gorm.DB

// autoMigrateAll migrates all database models.
func autoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(&model.Operation{})
}

func mysqlDSN(dbName string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		config.AppConfig.DBUser,
		config.AppConfig.DBPass,
		config.AppConfig.DBHost,
		config.AppConfig.DBPort,
		dbName,
	)
}

// InitMysql opens the operation archive, creating the database when missing.
func InitMysql() error {
	dsn := mysqlDSN(config.AppConfig.DBName)
	db, err := gorm.Open(gormMysql.Open(dsn), &gorm.Config{})
	if err != nil && isUnknownDatabaseError(err) {
		if createErr := ensureMySQLDatabase(config.AppConfig.DBName); createErr != nil {
			return fmt.Errorf("create mysql database: %w", createErr)
		}
		db, err = gorm.Open(gormMysql.Open(dsn), &gorm.Config{})
	}
	if err != nil {
		return fmt.Errorf("init mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrateAll(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	slog.Info("init mysql success", "host", config.AppConfig.DBHost, "db", config.AppConfig.DBName)
	Db = db
	return nil
}

func isUnknownDatabaseError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1049
	}
	return strings.Contains(strings.ToLower(err.Error()), "unknown database")
}

func ensureMySQLDatabase(dbName string) error {
	dbName = strings.TrimSpace(dbName)
	if dbName == "" {
		return errors.New("empty database name")
	}

	serverDB, err := sql.Open("mysql", mysqlDSN(""))
	if err != nil {
		return err
	}
	defer serverDB.Close()

	if err = serverDB.Ping(); err != nil {
		return err
	}

	_, err = serverDB.Exec(
		"CREATE DATABASE IF NOT EXISTS " + quoteMySQLIdentifier(dbName) + " CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci",
	)
	return err
}

func quoteMySQLIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// OperationStore archives operation records in MySQL.
type OperationStore struct {
	db *gorm.DB
}

func NewOperationStore(db *gorm.DB) *OperationStore {
	return &OperationStore{db: db}
}

// Save upserts op.
func (s *OperationStore) Save(ctx context.Context, op model.Operation) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&op).Error
}

// LoadSince returns records created at or after since, oldest first.
func (s *OperationStore) LoadSince(ctx context.Context, since time.Time) ([]model.Operation, error) {
	var ops []model.Operation
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(&ops).Error
	return ops, err
}

// DeleteBefore removes terminal records completed before before.
func (s *OperationStore) DeleteBefore(ctx context.Context, before time.Time) error {
	return s.db.WithContext(ctx).
		Where("completed_at IS NOT NULL AND completed_at < ?", before).
		Delete(&model.Operation{}).Error
}

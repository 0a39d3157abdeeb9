// Package sql implements the inbox cache store on MySQL or PostgreSQL via
// GORM.
package sql

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
)

// Store is the SQL-backed implementation of domain.Store.
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB
	driverName string // "mysql" or "postgres"
}

// NewStore opens the database, configures the connection pool and runs
// migrations.
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var gormDB *gorm.DB
	if driverName == "mysql" {
		gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: db}), gormConfig)
	} else {
		gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: db}), gormConfig)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	store := &Store{
		db:         db,
		gormDB:     gormDB,
		driverName: driverName,
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Migrate creates or updates the schema for the event log, the message
// projection and the replay log.
func (s *Store) Migrate() error {
	return s.gormDB.AutoMigrate(
		&domain.InboundEvent{},
		&domain.CachedMessage{},
		&domain.ReplayRecord{},
	)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health pings the database.
func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Ping()
}

// quoteColumn quotes a reserved identifier for the active dialect.
func (s *Store) quoteColumn(name string) string {
	if s.driverName == "postgres" {
		return `"` + name + `"`
	}
	return "`" + name + "`"
}

// ApplyEvent runs the order-aware, idempotent upsert inside a transaction.
// The event row insert deduplicates by event-id primary key; the projection
// row is locked with SELECT ... FOR UPDATE so concurrent upserts for the same
// message id serialize and the latest-event-wins comparison cannot race.
func (s *Store) ApplyEvent(event *domain.InboundEvent) (bool, error) {
	applied := false

	err := s.gormDB.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(event)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Duplicate delivery of a known event id.
			return nil
		}

		var msg domain.CachedMessage
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("message_id = ?", event.MessageID).
			First(&msg).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			created := domain.NewCachedMessage(event)
			if err := tx.Create(created).Error; err != nil {
				return err
			}
			applied = true
			return nil
		}
		if err != nil {
			return err
		}

		if !msg.Fresh(event) {
			// Stale: the audit row above is kept, the projection is not.
			return nil
		}

		msg.Apply(event)
		if err := tx.Save(&msg).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})

	if err != nil {
		return false, &domain.StoreError{Op: "apply event", Err: err}
	}
	return applied, nil
}

// GetMessage returns the cached message for the id.
func (s *Store) GetMessage(messageID string) (*domain.CachedMessage, error) {
	var msg domain.CachedMessage
	err := s.gormDB.Where("message_id = ?", messageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "get message", Err: err}
	}
	return &msg, nil
}

// ListMessages returns matching messages ordered by received_at descending.
func (s *Store) ListMessages(filter domain.ListFilter) ([]domain.CachedMessage, error) {
	filter.Normalize()

	query := s.gormDB.Model(&domain.CachedMessage{})
	if filter.From != "" {
		query = query.Where("LOWER(from_address) = ?", strings.ToLower(filter.From))
	}
	if filter.Subject != "" {
		query = query.Where("LOWER(subject) LIKE ?", "%"+strings.ToLower(filter.Subject)+"%")
	}
	if filter.UnreadOnly {
		query = query.Where(s.quoteColumn("read")+" = ?", false)
	}
	if filter.Since != nil {
		query = query.Where("received_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		query = query.Where("received_at <= ?", *filter.Until)
	}

	var messages []domain.CachedMessage
	err := query.Order("received_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&messages).Error
	if err != nil {
		return nil, &domain.StoreError{Op: "list messages", Err: err}
	}
	return messages, nil
}

// MarkMessageRead sets the local read flag.
func (s *Store) MarkMessageRead(messageID string) (bool, error) {
	res := s.gormDB.Model(&domain.CachedMessage{}).
		Where("message_id = ?", messageID).
		Update("read", true)
	if res.Error != nil {
		return false, &domain.StoreError{Op: "mark read", Err: res.Error}
	}
	return res.RowsAffected > 0, nil
}

// AppendReplayRecord appends a raw webhook body; the auto-increment primary
// key fixes the receipt order.
func (s *Store) AppendReplayRecord(record *domain.ReplayRecord) error {
	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = time.Now().UTC()
	}
	if err := s.gormDB.Create(record).Error; err != nil {
		return &domain.StoreError{Op: "append replay record", Err: err}
	}
	return nil
}

// SetReplayOutcome updates the processed flag and error text of a record.
func (s *Store) SetReplayOutcome(id uint64, processed bool, procErr string) error {
	res := s.gormDB.Model(&domain.ReplayRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"processed": processed, "error": procErr})
	if res.Error != nil {
		return &domain.StoreError{Op: "set replay outcome", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return domain.ErrReplayRecordNotFound
	}
	return nil
}

// ListReplayRecords returns records in receipt order within the selector's
// time range.
func (s *Store) ListReplayRecords(selector domain.ReplaySelector) ([]domain.ReplayRecord, error) {
	query := s.gormDB.Model(&domain.ReplayRecord{})
	if selector.From != nil {
		query = query.Where("received_at >= ?", *selector.From)
	}
	if selector.To != nil {
		query = query.Where("received_at <= ?", *selector.To)
	}

	var records []domain.ReplayRecord
	if err := query.Order("id ASC").Find(&records).Error; err != nil {
		return nil, &domain.StoreError{Op: "list replay records", Err: err}
	}
	return records, nil
}

// ListUnprocessedReplayRecords returns up to limit unprocessed records in
// receipt order.
func (s *Store) ListUnprocessedReplayRecords(limit int) ([]domain.ReplayRecord, error) {
	query := s.gormDB.Model(&domain.ReplayRecord{}).
		Where("processed = ?", false).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []domain.ReplayRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, &domain.StoreError{Op: "list unprocessed replay records", Err: err}
	}
	return records, nil
}

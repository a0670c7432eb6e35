// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cem-sucu/ia-familiale/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements the store.Driver interface using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg == nil || cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init initializes the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, "famille.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	// AutoMigrate creates/updates tables based on model structs
	if err := db.AutoMigrate(
		&store.Member{},
		&store.Circle{},
		&store.Invitation{},
		&store.Message{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Member operations

func (d *Driver) CreateMember(ctx context.Context, member *store.Member) error {
	var existing store.Member
	err := d.db.WithContext(ctx).First(&existing, "id = ?", member.ID).Error
	if err == nil {
		return store.ErrAlreadyExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return d.db.WithContext(ctx).Create(member).Error
}

func (d *Driver) GetMember(ctx context.Context, id string) (*store.Member, error) {
	var member store.Member
	result := d.db.WithContext(ctx).First(&member, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &member, nil
}

func (d *Driver) UpdateMember(ctx context.Context, member *store.Member) error {
	result := d.db.WithContext(ctx).Save(member)
	return result.Error
}

func (d *Driver) ListMembers(ctx context.Context, circleID string) ([]*store.Member, error) {
	var members []*store.Member
	result := d.db.WithContext(ctx).
		Where("circle_id = ?", circleID).
		Order("id").
		Find(&members)
	if result.Error != nil {
		return nil, result.Error
	}
	return members, nil
}

// Circle operations

func (d *Driver) CreateCircle(ctx context.Context, circle *store.Circle) error {
	return d.db.WithContext(ctx).Create(circle).Error
}

func (d *Driver) GetCircle(ctx context.Context, id string) (*store.Circle, error) {
	var circle store.Circle
	result := d.db.WithContext(ctx).First(&circle, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &circle, nil
}

// Invitation operations

func (d *Driver) CreateInvitation(ctx context.Context, inv *store.Invitation) error {
	return d.db.WithContext(ctx).Create(inv).Error
}

func (d *Driver) GetInvitation(ctx context.Context, token string) (*store.Invitation, error) {
	var inv store.Invitation
	result := d.db.WithContext(ctx).First(&inv, "token = ?", token)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &inv, nil
}

func (d *Driver) RedeemInvitation(ctx context.Context, token, memberID string, usedAt time.Time) error {
	// The used_at IS NULL guard makes redemption single-use even under
	// concurrent requests for the same token.
	result := d.db.WithContext(ctx).Model(&store.Invitation{}).
		Where("token = ? AND used_at IS NULL", token).
		Updates(map[string]any{"used_by": memberID, "used_at": usedAt})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Message operations

func (d *Driver) CreateMessage(ctx context.Context, msg *store.Message) error {
	return d.db.WithContext(ctx).Create(msg).Error
}

func (d *Driver) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	var msg store.Message
	result := d.db.WithContext(ctx).First(&msg, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &msg, nil
}

func (d *Driver) UpdateMessage(ctx context.Context, msg *store.Message) error {
	return d.db.WithContext(ctx).Save(msg).Error
}

func (d *Driver) ListVisibleMessages(ctx context.Context, memberID, circleID string) ([]*store.Message, error) {
	var msgs []*store.Message
	result := d.db.WithContext(ctx).
		Where("circle_id = ? AND (sender_id = ? OR ((recipient_id = ? OR recipient_id = '') AND status = ?))",
			circleID, memberID, memberID, store.StatusDelivered).
		Order("sent_at, id").
		Find(&msgs)
	if result.Error != nil {
		return nil, result.Error
	}
	return msgs, nil
}

func (d *Driver) DeliverPending(ctx context.Context, memberID, circleID string, triggers []string, deliveredAt time.Time) ([]*store.Message, error) {
	if len(triggers) == 0 {
		return nil, nil
	}

	var delivered []*store.Message
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		addressed := "(recipient_id = ? OR (recipient_id = '' AND circle_id = ? AND sender_id <> ?))"

		// The status guard makes this idempotent: a message already
		// delivered by a concurrent duplicate event is not touched again.
		result := tx.Model(&store.Message{}).
			Where("status = ? AND trigger_id IN ? AND "+addressed,
				store.StatusPending, triggers, memberID, circleID, memberID).
			Updates(map[string]any{"status": store.StatusDelivered, "delivered_at": deliveredAt})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		return tx.
			Where("status = ? AND delivered_at = ? AND trigger_id IN ? AND "+addressed,
				store.StatusDelivered, deliveredAt, triggers, memberID, circleID, memberID).
			Order("sent_at, id").
			Find(&delivered).Error
	})
	if err != nil {
		return nil, err
	}
	return delivered, nil
}

var _ store.Driver = (*Driver)(nil)

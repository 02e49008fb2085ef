package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vestra/chain_service/internal/domain/entities"
	domainerrors "github.com/vestra/chain_service/internal/domain/errors"
)

// MonitoredAddressRepository reads the deposit addresses assigned to users.
// Rows are owned by the wallet provisioning collaborator; this service only
// ever reads them.
type MonitoredAddressRepository struct {
	db *sqlx.DB
}

// NewMonitoredAddressRepository creates a new monitored address repository
func NewMonitoredAddressRepository(db *sqlx.DB) *MonitoredAddressRepository {
	return &MonitoredAddressRepository{db: db}
}

// GetByAddress resolves a deposit address to its monitored address row
func (r *MonitoredAddressRepository) GetByAddress(ctx context.Context, chain, address string) (*entities.MonitoredAddress, error) {
	query := `
		SELECT id, user_id, chain, token, address, created_at
		FROM monitored_addresses
		WHERE chain = $1 AND lower(address) = lower($2)
	`

	var addr entities.MonitoredAddress
	err := r.db.GetContext(ctx, &addr, query, chain, address)
	if err != nil {
		if err == sql.ErrNoRows {
			// Callers branch on not-found: an unregistered address is a
			// business outcome, any other failure is infrastructure.
			return nil, fmt.Errorf("monitored address %s: %w", address, domainerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get monitored address: %w", err)
	}

	return &addr, nil
}

// GetByUserID retrieves the monitored address for a user
func (r *MonitoredAddressRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*entities.MonitoredAddress, error) {
	query := `
		SELECT id, user_id, chain, token, address, created_at
		FROM monitored_addresses
		WHERE user_id = $1
	`

	var addr entities.MonitoredAddress
	err := r.db.GetContext(ctx, &addr, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("monitored address for user %s: %w", userID, domainerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get monitored address: %w", err)
	}

	return &addr, nil
}

// ListAfterID returns addresses ordered by id starting after the given id.
// The scanner uses this for round-robin continuation across restarts; a
// wrap to id 0 restarts the rotation.
func (r *MonitoredAddressRepository) ListAfterID(ctx context.Context, afterID int64, limit int) ([]*entities.MonitoredAddress, error) {
	query := `
		SELECT id, user_id, chain, token, address, created_at
		FROM monitored_addresses
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`

	var addrs []*entities.MonitoredAddress
	err := r.db.SelectContext(ctx, &addrs, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitored addresses: %w", err)
	}

	return addrs, nil
}

// Count returns the number of monitored addresses
func (r *MonitoredAddressRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM monitored_addresses`)
	if err != nil {
		return 0, fmt.Errorf("failed to count monitored addresses: %w", err)
	}
	return count, nil
}

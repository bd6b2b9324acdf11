package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/energyos/espi-authz/internal/common/errorx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// gormStore implements Store on a relational database. The sqlite, postgres
// and mysql constructors differ only in the dialector they open.
type gormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func newGormStore(logger *zap.Logger, dialector gorm.Dialector) (Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&registeredClientRow{}, &authorizationRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &gormStore{
		db:     db,
		logger: logger.Named("storage"),
	}, nil
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save is an existence-checked insert-or-update, not a blind upsert:
// inserts write the full row including client_id_issued_at, updates write
// only the mutable columns.
func (s *gormStore) Save(ctx context.Context, client *RegisteredClient) error {
	row := clientToRow(client)

	var existing registeredClientRow
	err := s.db.WithContext(ctx).
		Where("client_id = ?", client.ClientID).
		First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if row.ClientIDIssuedAt.IsZero() {
			row.ClientIDIssuedAt = time.Now().UTC()
			client.ClientIDIssuedAt = row.ClientIDIssuedAt
		}
		return s.db.WithContext(ctx).Create(row).Error
	case err != nil:
		return err
	}

	// Preserve identity and issuance timestamp of the stored row.
	client.ID = existing.ID
	client.ClientIDIssuedAt = existing.ClientIDIssuedAt
	return s.db.WithContext(ctx).
		Model(&registeredClientRow{}).
		Where("client_id = ?", client.ClientID).
		Select(mutableClientColumns).
		Updates(row).Error
}

func (s *gormStore) FindByID(ctx context.Context, id string) (*RegisteredClient, bool, error) {
	var row registeredClientRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return clientFromRow(&row), true, nil
}

func (s *gormStore) FindByClientID(ctx context.Context, clientID string) (*RegisteredClient, bool, error) {
	var row registeredClientRow
	err := s.db.WithContext(ctx).Where("client_id = ?", clientID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return clientFromRow(&row), true, nil
}

func (s *gormStore) FindAll(ctx context.Context) ([]*RegisteredClient, error) {
	var rows []registeredClientRow
	if err := s.db.WithContext(ctx).Order("client_id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	clients := make([]*RegisteredClient, 0, len(rows))
	for i := range rows {
		clients = append(clients, clientFromRow(&rows[i]))
	}
	return clients, nil
}

func (s *gormStore) DeleteByID(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&registeredClientRow{}).Error
}

func (s *gormStore) Create(ctx context.Context, authz *Authorization) error {
	if authz.CreatedAt.IsZero() {
		authz.CreatedAt = time.Now().UTC()
	}
	authz.UpdatedAt = authz.CreatedAt
	return s.db.WithContext(ctx).Create(authorizationToRow(authz)).Error
}

func (s *gormStore) Get(ctx context.Context, id string) (*Authorization, bool, error) {
	var row authorizationRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return authorizationFromRow(&row), true, nil
}

// UpdateIfStatus writes the mutable columns, guarded on the stored status so
// a concurrent transition wins over this one.
func (s *gormStore) UpdateIfStatus(ctx context.Context, authz *Authorization, from AuthorizationStatus) error {
	authz.UpdatedAt = time.Now().UTC()
	row := authorizationToRow(authz)
	res := s.db.WithContext(ctx).
		Model(&authorizationRow{}).
		Where("id = ? AND status = ?", authz.ID, string(from)).
		Select("*").
		Omit("id", "retail_customer_id", "created_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errorx.ErrConflict.WithDescription("authorization %s is no longer %s", authz.ID, from)
	}
	return nil
}

// ConsumeState finds the Created record holding the state token and clears
// the token with a guarded UPDATE. The guard makes consumption single-use
// under concurrency: of two racing callers only one UPDATE matches, the
// other sees zero affected rows and loses with a Conflict.
func (s *gormStore) ConsumeState(ctx context.Context, state string) (*Authorization, error) {
	var row authorizationRow
	err := s.db.WithContext(ctx).Where("state = ?", state).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errorx.ErrNotFound.WithDescription("unknown state token")
	}
	if err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).
		Model(&authorizationRow{}).
		Where("id = ? AND state = ? AND status = ?", row.ID, state, string(StatusCreated)).
		Updates(map[string]any{"state": "", "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		s.logger.Warn("state token lost consumption race", zap.String("authorization_id", row.ID))
		return nil, errorx.ErrConflict.WithDescription("state token already consumed")
	}

	row.State = ""
	return authorizationFromRow(&row), nil
}

func (s *gormStore) ListStale(ctx context.Context, status AuthorizationStatus, cutoff time.Time) ([]*Authorization, error) {
	var rows []authorizationRow
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(status), cutoff).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	stale := make([]*Authorization, 0, len(rows))
	for i := range rows {
		stale = append(stale, authorizationFromRow(&rows[i]))
	}
	return stale, nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/infrastructure/persistence/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// maxCreateAttempts bounds retries when two mints race for the same sequence number
const maxCreateAttempts = 5

// GormTokenStore keeps simulated tokens in the ledger_tokens table
type GormTokenStore struct {
	db *gorm.DB
}

// NewGormTokenStore creates a new GormTokenStore
func NewGormTokenStore(db *gorm.DB) *GormTokenStore {
	return &GormTokenStore{db: db}
}

// Create inserts a token with the next sequential id. Tokens are never
// deleted, so the row count is the highest id issued so far.
func (s *GormTokenStore) Create(ctx context.Context, metadata keg.TokenMetadata, at time.Time) (string, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.LedgerTokenModel{}).Count(&count).Error; err != nil {
			return "", fmt.Errorf("count ledger tokens: %w", err)
		}

		model := &models.LedgerTokenModel{
			TokenID:  strconv.FormatInt(count+1, 10),
			Metadata: datatypes.NewJSONType(metadata),
			MintedAt: at,
		}
		err := s.db.WithContext(ctx).Create(model).Error
		if err == nil {
			return model.TokenID, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", fmt.Errorf("insert ledger token: %w", err)
		}
	}
	return "", fmt.Errorf("insert ledger token: no free id after %d attempts", maxCreateAttempts)
}

// Get loads a token by id
func (s *GormTokenStore) Get(ctx context.Context, tokenID string) (*keg.LedgerToken, error) {
	model, err := s.find(s.db.WithContext(ctx), tokenID)
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// UpdateMetadata replaces the metadata of an unburned token
func (s *GormTokenStore) UpdateMetadata(ctx context.Context, tokenID string, metadata keg.TokenMetadata) (int64, error) {
	return s.mutate(ctx, tokenID, map[string]interface{}{
		"metadata": datatypes.NewJSONType(metadata),
	})
}

// MarkBurned flips the burned flag. The burned = false guard makes concurrent
// burns of one token resolve to a single winner.
func (s *GormTokenStore) MarkBurned(ctx context.Context, tokenID string, at time.Time) (int64, error) {
	return s.mutate(ctx, tokenID, map[string]interface{}{
		"burned":    true,
		"burned_at": at,
	})
}

func (s *GormTokenStore) mutate(ctx context.Context, tokenID string, updates map[string]interface{}) (int64, error) {
	updates["nonce"] = gorm.Expr("nonce + 1")

	var nonce int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.LedgerTokenModel{}).
			Where("token_id = ? AND burned = ?", tokenID, false).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		model, err := s.find(tx, tokenID)
		if err != nil {
			return err
		}
		if result.RowsAffected == 0 {
			return keg.ErrAlreadyBurned
		}
		nonce = model.Nonce
		return nil
	})
	return nonce, err
}

func (s *GormTokenStore) find(db *gorm.DB, tokenID string) (*models.LedgerTokenModel, error) {
	var model models.LedgerTokenModel
	if err := db.First(&model, "token_id = ?", tokenID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, keg.ErrTokenNotFound
		}
		return nil, err
	}
	return &model, nil
}

var _ TokenStore = (*GormTokenStore)(nil)

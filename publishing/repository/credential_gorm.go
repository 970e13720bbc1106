package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-publisher/pkg/crypto"
	"github.com/AzielCF/az-publisher/publishing/domain/content"
	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type platformCredentialModel struct {
	ID          string         `gorm:"primaryKey;column:id"`
	UserID      string         `gorm:"column:user_id;not null;uniqueIndex:idx_platform_credentials_owner"`
	Platform    string         `gorm:"column:platform;not null;uniqueIndex:idx_platform_credentials_owner"`
	AccessToken string         `gorm:"column:access_token;type:text;not null"`
	AccountID   sql.NullString `gorm:"column:account_id"`
	ExpiresAt   *time.Time     `gorm:"column:expires_at"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
}

func (platformCredentialModel) TableName() string { return "platform_credentials" }

// CredentialGormRepository stores OAuth tokens encrypted at rest and serves them to
// the publish coordinator.
type CredentialGormRepository struct {
	db     *gorm.DB
	cipher *crypto.Cipher
	now    func() time.Time
}

func NewCredentialGormRepository(db *gorm.DB, cipher *crypto.Cipher) *CredentialGormRepository {
	return &CredentialGormRepository{db: db, cipher: cipher, now: time.Now}
}

var _ content.AccessTokenProvider = (*CredentialGormRepository)(nil)

func (r *CredentialGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&platformCredentialModel{})
}

func (r *CredentialGormRepository) SaveToken(ctx context.Context, userID string, p platform.Platform, token platform.AccessToken) error {
	encrypted, err := r.cipher.Encrypt(token.Value)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	now := normalizeTime(r.now())
	m := platformCredentialModel{
		ID:          uuid.NewString(),
		UserID:      userID,
		Platform:    string(p),
		AccessToken: encrypted,
		AccountID:   nullString(token.AccountID),
		ExpiresAt:   normalizeTimePtr(token.ExpiresAt),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "platform"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "account_id", "expires_at", "updated_at"}),
	}).Create(&m).Error
}

func (r *CredentialGormRepository) GetToken(ctx context.Context, userID string, p platform.Platform) (platform.AccessToken, error) {
	var m platformCredentialModel
	err := r.db.WithContext(ctx).Where("user_id = ? AND platform = ?", userID, string(p)).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return platform.AccessToken{}, platform.NewError(platform.KindUnauthorized, p, "no access token connected for user "+userID)
	}
	if err != nil {
		return platform.AccessToken{}, err
	}

	value, err := r.cipher.Decrypt(m.AccessToken)
	if err != nil {
		return platform.AccessToken{}, platform.Wrap(platform.KindUnauthorized, p, fmt.Errorf("stored access token unreadable: %w", err))
	}
	token := platform.AccessToken{Value: value, AccountID: m.AccountID.String, ExpiresAt: utcPtr(m.ExpiresAt)}
	if token.Expired(r.now()) {
		return platform.AccessToken{}, platform.NewError(platform.KindUnauthorized, p, "access token expired")
	}
	return token, nil
}

func (r *CredentialGormRepository) DeleteToken(ctx context.Context, userID string, p platform.Platform) error {
	return r.db.WithContext(ctx).Where("user_id = ? AND platform = ?", userID, string(p)).Delete(&platformCredentialModel{}).Error
}

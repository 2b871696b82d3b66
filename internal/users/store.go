package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Fields は UpdateFields で更新する列と値の組です。
type Fields map[string]any

var updatableFields = map[string]struct{}{
	"provider": {},
	"email":    {},
	"secret":   {},
}

// Store はユーザーレコードを gorm 経由で保存します。
type Store struct {
	db *gorm.DB
}

// NewStore は Store を作成します。
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate は users テーブルを作成・更新します。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("failed to migrate users: %w", err)
	}
	return nil
}

// Create は新しいユーザーを保存します。
// ユーザー名が既に存在する場合は ErrUsernameTaken を返します。
func (s *Store) Create(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("user is nil")
	}
	if user.Username == "" {
		return fmt.Errorf("username is required")
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	res := s.insertIgnoringConflict(ctx, user)
	if res.Error != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Username, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUsernameTaken
	}
	return nil
}

// FindByUsername はユーザー名で検索します。
func (s *Store) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.first(ctx, "username = ?", username)
}

// FindByID は主キーで検索します。
func (s *Store) FindByID(ctx context.Context, id string) (*User, error) {
	return s.first(ctx, "id = ?", id)
}

// FindAllWithSecret はシークレットを投稿済みのユーザーを新しい順に返します。
func (s *Store) FindAllWithSecret(ctx context.Context) ([]User, error) {
	var found []User
	err := s.db.WithContext(ctx).
		Where("secret IS NOT NULL").
		Order("updated_at DESC").
		Find(&found).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}
	return found, nil
}

// UpdateFields は指定した列だけを更新します。
// 更新対象がなければ ErrNotFound を返します。
func (s *Store) UpdateFields(ctx context.Context, id string, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, ok := updatableFields[k]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, k)
		}
		if p, ok := v.(Provider); ok {
			v = string(p)
		}
		values[k] = v
	}

	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("failed to update user %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Save はレコード全体を主キーで上書き保存します（存在しない場合は作成）。
func (s *Store) Save(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("user is nil")
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to save user %s: %w", user.ID, err)
	}
	return nil
}

// FindOrCreate はユーザー名で検索し、存在しなければ作成します。
// 同時に作成された場合も一意制約によって同じレコードに収束します。
func (s *Store) FindOrCreate(ctx context.Context, username string) (*User, bool, error) {
	existing, err := s.FindByUsername(ctx, username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	user := &User{ID: uuid.NewString(), Username: username}
	res := s.insertIgnoringConflict(ctx, user)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create user %s: %w", username, res.Error)
	}
	if res.RowsAffected == 1 {
		return user, true, nil
	}

	// 他のリクエストが先に作成した
	existing, err = s.FindByUsername(ctx, username)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Backfill は未設定の provider と email だけを埋めます。
func (s *Store) Backfill(ctx context.Context, id string, provider Provider, email string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load user %s: %w", id, err)
		}

		values := map[string]any{}
		if user.Provider == "" && provider != "" {
			values["provider"] = string(provider)
		}
		if user.Email == "" && email != "" {
			values["email"] = email
		}
		if len(values) == 0 {
			return nil
		}
		if err := tx.Model(&User{}).Where("id = ?", id).Updates(values).Error; err != nil {
			return fmt.Errorf("failed to backfill user %s: %w", id, err)
		}
		return nil
	})
}

func (s *Store) insertIgnoringConflict(ctx context.Context, user *User) *gorm.DB {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoNothing: true,
		}).
		Create(user)
}

func (s *Store) first(ctx context.Context, query string, arg any) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

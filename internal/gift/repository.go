package gift

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cardjoy/giftbox-service/pkg/apperrors"
)

type Repository interface {
	Create(gift *Gift) error
	Update(gift *Gift) error
	Get(id uuid.UUID) (*Gift, error)
	GetActive(id uuid.UUID) (*Gift, error)
	List(limit, offset int) ([]Gift, error)
	Count() (int64, error)
	Deactivate(id uuid.UUID) error
	Delete(id uuid.UUID) error
	// DecrementStock atomically takes quantity units, failing when tracked
	// stock would go negative. Untracked (NULL) stock always succeeds.
	DecrementStock(id uuid.UUID, quantity int) error
	WithTx(tx *gorm.DB) Repository
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(gift *Gift) error {
	return r.db.Create(gift).Error
}

func (r *repository) Update(gift *Gift) error {
	return r.db.Save(gift).Error
}

func (r *repository) Get(id uuid.UUID) (*Gift, error) {
	var g Gift
	if err := r.db.Where("id = ?", id).First(&g).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *repository) GetActive(id uuid.UUID) (*Gift, error) {
	var g Gift
	if err := r.db.Where("id = ? AND active = ?", id, true).First(&g).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *repository) List(limit, offset int) ([]Gift, error) {
	var gifts []Gift
	err := r.db.Where("active = ?", true).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&gifts).Error
	return gifts, err
}

func (r *repository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&Gift{}).Where("active = ?", true).Count(&count).Error
	return count, err
}

func (r *repository) Deactivate(id uuid.UUID) error {
	res := r.db.Model(&Gift{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(id uuid.UUID) error {
	res := r.db.Where("id = ?", id).Delete(&Gift{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *repository) DecrementStock(id uuid.UUID, quantity int) error {
	res := r.db.Model(&Gift{}).
		Where("id = ? AND active = ? AND (stock IS NULL OR stock >= ?)", id, true, quantity).
		UpdateColumn("stock", gorm.Expr("CASE WHEN stock IS NULL THEN NULL ELSE stock - ? END", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// distinguish a missing gift from an out-of-stock one
		if _, err := r.GetActive(id); err != nil {
			return err
		}
		return apperrors.ErrInsufficientStock
	}
	return nil
}

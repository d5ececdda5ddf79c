package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/quartermaster_backend/config"
	"bitbucket.org/mmdatafocus/quartermaster_backend/utils"
	"github.com/shopspring/decimal"
)

// QMRL is the originating request letter; QMHQ lines fulfill it.
type QMRL struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"index;not null" json:"business_id"`
	RequestNumber string          `gorm:"size:255;not null" json:"request_number"`
	SequenceNo    decimal.Decimal `gorm:"type:decimal(15);not null" json:"sequence_no"`
	RequestedBy   string          `gorm:"size:100" json:"requested_by"`
	Department    string          `gorm:"size:100" json:"department"`
	RequestDate   time.Time       `gorm:"not null" json:"request_date"`
	Notes         string          `gorm:"type:text" json:"notes"`
	Lines         []QMHQ          `gorm:"foreignKey:QmrlId" json:"lines"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewQmrl struct {
	RequestedBy string    `json:"requested_by"`
	Department  string    `json:"department"`
	RequestDate time.Time `json:"request_date" binding:"required"`
	Notes       string    `json:"notes"`
}

func CreateQmrl(ctx context.Context, input *NewQmrl) (*QMRL, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	qmrl := QMRL{
		BusinessId:  businessId,
		RequestedBy: input.RequestedBy,
		Department:  input.Department,
		RequestDate: input.RequestDate,
		Notes:       input.Notes,
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	seqNo, err := utils.GetSequence[QMRL](ctx, businessId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	qmrl.SequenceNo = decimal.NewFromInt(seqNo)
	qmrl.RequestNumber = "QMRL-" + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&qmrl).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := SaveAuditCreate(tx.WithContext(ctx), "qmrl", qmrl.ID, &qmrl,
		"Request "+qmrl.RequestNumber+" created"); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &qmrl, nil
}

func GetQmrl(ctx context.Context, id int) (*QMRL, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[QMRL](ctx, businessId, id, "Lines")
}

package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/quartermaster_backend/config"
	"bitbucket.org/mmdatafocus/quartermaster_backend/utils"
)

type Item struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"index;not null" json:"business_id"`
	Name        string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Sku         string    `gorm:"size:100" json:"sku"`
	Unit        string    `gorm:"size:50" json:"unit"`
	Description string    `gorm:"type:text" json:"description"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i Item) GetBusinessId() string {
	return i.BusinessId
}

type NewItem struct {
	Name        string `json:"name" binding:"required"`
	Sku         string `json:"sku"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewItem) validate(ctx context.Context, businessId string, id int) error {
	// name
	if err := utils.ValidateUnique[Item](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	// sku
	if len(strings.TrimSpace(input.Sku)) > 0 {
		if err := utils.ValidateUnique[Item](ctx, businessId, "sku", input.Sku, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateItem(ctx context.Context, input *NewItem) (*Item, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	item := Item{
		BusinessId:  businessId,
		Name:        input.Name,
		Sku:         input.Sku,
		Unit:        input.Unit,
		Description: input.Description,
		IsActive:    utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func UpdateItem(ctx context.Context, id int, input *NewItem) (*Item, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	item, err := utils.FetchModel[Item](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&item).Updates(map[string]interface{}{
		"Name":        input.Name,
		"Sku":         input.Sku,
		"Unit":        input.Unit,
		"Description": input.Description,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Item](id); err != nil {
		return nil, err
	}

	return item, nil
}

func DeleteItem(ctx context.Context, id int) (*Item, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	result, err := utils.FetchModel[Item](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// check if item is used
	count, err := utils.ResourceCountWhere[InventoryTransaction](ctx, businessId, "item_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("item has stock movements")
	}

	// db action
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Item](id); err != nil {
		return nil, err
	}
	return result, nil
}

func GetItem(ctx context.Context, id int) (*Item, error) {

	return GetResource[Item](ctx, id)
}

func ListItem(ctx context.Context, name *string) ([]*Item, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Item

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	// db query
	err := dbCtx.Order("name").Limit(config.SearchLimit).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveItem(ctx context.Context, id int, isActive bool) (*Item, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	item, err := utils.FetchModel[Item](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&item).Update("is_active", isActive).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Item](id); err != nil {
		return nil, err
	}
	return item, nil
}

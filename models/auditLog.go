package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/quartermaster_backend/config"
	"bitbucket.org/mmdatafocus/quartermaster_backend/utils"
	"gorm.io/gorm"
)

// AuditLogEntry is append-only: entries are never updated or deleted.
// Correctness of current state never depends on this table; it exists for
// observability of every transition.
type AuditLogEntry struct {
	ID             int         `gorm:"primary_key" json:"id"`
	BusinessId     string      `gorm:"index;not null" json:"business_id"`
	EntityType     string      `gorm:"size:100;index;not null" json:"entity_type"`
	EntityId       int         `gorm:"index;not null" json:"entity_id"`
	Action         AuditAction `gorm:"type:enum('CREATE','UPDATE','DELETE','STATUS_CHANGE','ASSIGNMENT_CHANGE','VOID','APPROVE','CLOSE','CANCEL');not null" json:"action"`
	OldValues      string      `gorm:"type:text" json:"old_values"`
	NewValues      string      `gorm:"type:text" json:"new_values"`
	ChangedBy      int         `gorm:"index;not null" json:"changed_by"`
	ChangedByName  string      `gorm:"size:100" json:"changed_by_name"`
	ChangedAt      time.Time   `gorm:"autoCreateTime" json:"changed_at"`
	Notes          string      `gorm:"type:text" json:"notes"`
	ChangesSummary string      `gorm:"type:text" json:"changes_summary"`
}

func (e AuditLogEntry) GetId() int {
	return e.ID
}

func (e AuditLogEntry) GetCursor() string {
	return e.ChangedAt.Format("2006-01-02 15:04:05.000000")
}

type AuditLogConnection struct {
	Edges    []*AuditLogEdge `json:"edges"`
	PageInfo *PageInfo       `json:"pageInfo"`
}

type AuditLogEdge Edge[AuditLogEntry]

// FieldChange holds one field's before/after pair.
type FieldChange struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// DiffAuditFields returns only the fields whose values actually changed.
// No-op fields are omitted; an empty map means nothing changed.
func DiffAuditFields(oldValues, newValues map[string]interface{}) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	for field, newValue := range newValues {
		oldValue, ok := oldValues[field]
		if ok && auditValuesEqual(oldValue, newValue) {
			continue
		}
		changes[field] = FieldChange{Old: oldValue, New: newValue}
	}
	return changes
}

func auditValuesEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	// Stringer-aware comparison so decimal.Decimal and time.Time values
	// compare by value, not by internal representation.
	as, aok := a.(fmt.Stringer)
	bs, bok := b.(fmt.Stringer)
	if aok && bok {
		return as.String() == bs.String()
	}
	return reflect.DeepEqual(a, b)
}

// SummarizeChanges renders "field: old -> new" lines in stable field order.
func SummarizeChanges(changes map[string]FieldChange) string {
	if len(changes) == 0 {
		return ""
	}
	fields := make([]string, 0, len(changes))
	for field := range changes {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	lines := make([]string, 0, len(fields))
	for _, field := range fields {
		c := changes[field]
		lines = append(lines, fmt.Sprintf("%s: %v -> %v", field, auditDisplay(c.Old), auditDisplay(c.New)))
	}
	return strings.Join(lines, "; ")
}

func auditDisplay(v interface{}) interface{} {
	if v == nil {
		return "(none)"
	}
	return v
}

// createAuditEntry appends one entry inside the caller's transaction.
// Actor identity comes from context, always passed in explicitly by the
// operation boundary; there is no ambient session fallback.
func createAuditEntry(tx *gorm.DB,
	entityType string,
	entityId int,
	action AuditAction,
	changes map[string]FieldChange,
	notes string) error {

	ctx := tx.Statement.Context
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}
	actorId, ok := utils.GetActorIdFromContext(ctx)
	if !ok {
		return errors.New("actor id is required")
	}
	actorName, ok := utils.GetActorNameFromContext(ctx)
	if !ok {
		return errors.New("actor name is required")
	}

	oldValues := make(map[string]interface{}, len(changes))
	newValues := make(map[string]interface{}, len(changes))
	for field, change := range changes {
		oldValues[field] = change.Old
		newValues[field] = change.New
	}
	oldJSON, _ := json.Marshal(oldValues)
	newJSON, _ := json.Marshal(newValues)

	entry := AuditLogEntry{
		BusinessId:     businessId,
		EntityType:     entityType,
		EntityId:       entityId,
		Action:         action,
		OldValues:      string(oldJSON),
		NewValues:      string(newJSON),
		ChangedBy:      actorId,
		ChangedByName:  actorName,
		Notes:          notes,
		ChangesSummary: SummarizeChanges(changes),
	}
	return tx.Create(&entry).Error
}

func SaveAuditCreate(tx *gorm.DB, entityType string, entityId int, obj interface{}, notes string) error {
	objJSON, _ := json.Marshal(obj)
	var asMap map[string]interface{}
	_ = json.Unmarshal(objJSON, &asMap)
	changes := make(map[string]FieldChange, len(asMap))
	for field, v := range asMap {
		changes[field] = FieldChange{Old: nil, New: v}
	}
	return createAuditEntry(tx, entityType, entityId, AuditActionCreate, changes, notes)
}

func SaveAuditUpdate(tx *gorm.DB, entityType string, entityId int, changes map[string]FieldChange, notes string) error {
	// nothing changed: append nothing
	if len(changes) == 0 {
		return nil
	}
	return createAuditEntry(tx, entityType, entityId, AuditActionUpdate, changes, notes)
}

func SaveAuditStatusChange(tx *gorm.DB, entityType string, entityId int, oldStatus, newStatus string, notes string) error {
	changes := map[string]FieldChange{
		"status": {Old: oldStatus, New: newStatus},
	}
	return createAuditEntry(tx, entityType, entityId, AuditActionStatusChange, changes, notes)
}

func SaveAuditAction(tx *gorm.DB, entityType string, entityId int, action AuditAction, changes map[string]FieldChange, notes string) error {
	return createAuditEntry(tx, entityType, entityId, action, changes, notes)
}

func PaginateAuditEntries(ctx context.Context,
	limit *int,
	after *string,
	entityType *string,
	entityId *int,
	action *string,
) (*AuditLogConnection, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if entityType != nil && *entityType != "" {
		dbCtx = dbCtx.Where("entity_type = ?", *entityType)
	}
	if entityId != nil && *entityId > 0 {
		dbCtx = dbCtx.Where("entity_id = ?", *entityId)
	}
	if action != nil && *action != "" {
		dbCtx = dbCtx.Where("action = ?", *action)
	}

	pageSize := 20
	if limit != nil && *limit > 0 {
		pageSize = *limit
	}
	edges, pageInfo, err := FetchPageCompositeCursor[AuditLogEntry](dbCtx, pageSize, after, "changed_at", "<")
	if err != nil {
		return nil, err
	}
	var connection AuditLogConnection
	connection.PageInfo = pageInfo
	for _, edge := range edges {
		auditEdge := AuditLogEdge(edge)
		connection.Edges = append(connection.Edges, &auditEdge)
	}

	return &connection, nil
}

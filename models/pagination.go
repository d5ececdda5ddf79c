package models

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

type PageInfo struct {
	StartCursor string `json:"startCursor"`
	EndCursor   string `json:"endCursor"`
	HasNextPage *bool  `json:"hasNextPage,omitempty"`
}

type Edge[T any] struct {
	Cursor string `json:"cursor"`
	Node   *T     `json:"node"`
}

type Cursorable interface {
	GetId() int
	GetCursor() string
}

func DecodeCompositeCursor(cursor *string) (string, int) {
	if cursor == nil || *cursor == "" {
		return "", 0
	}

	decoded, err := base64.StdEncoding.DecodeString(*cursor)
	if err != nil {
		return "", 0
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return "", 0
	}

	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0
	}

	return parts[0], id
}

func EncodeCompositeCursor(sortValue string, id int) string {
	cursor := fmt.Sprintf("%s|%d", sortValue, id)
	return base64.StdEncoding.EncodeToString([]byte(cursor))
}

// FetchPageCompositeCursor pages by (sortColumn, id) so rows sharing the same
// sort value cannot be skipped or repeated across pages.
func FetchPageCompositeCursor[T Cursorable](dbCtx *gorm.DB, limit int, after *string, sortColumn string, direction string) ([]Edge[T], *PageInfo, error) {
	if limit <= 0 {
		limit = 20
	}

	sortValue, afterId := DecodeCompositeCursor(after)
	if sortValue != "" {
		cond := fmt.Sprintf("(%s %s ?) OR (%s = ? AND id %s ?)", sortColumn, direction, sortColumn, direction)
		dbCtx = dbCtx.Where(cond, sortValue, sortValue, afterId)
	}

	order := "ASC"
	if direction == "<" {
		order = "DESC"
	}

	var rows []*T
	err := dbCtx.Order(fmt.Sprintf("%s %s, id %s", sortColumn, order, order)).
		Limit(limit + 1).
		Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}

	hasNext := len(rows) > limit
	if hasNext {
		rows = rows[:limit]
	}

	edges := make([]Edge[T], 0, len(rows))
	for _, row := range rows {
		node := row
		edges = append(edges, Edge[T]{
			Cursor: EncodeCompositeCursor((*node).GetCursor(), (*node).GetId()),
			Node:   node,
		})
	}

	pageInfo := &PageInfo{HasNextPage: &hasNext}
	if len(edges) > 0 {
		pageInfo.StartCursor = edges[0].Cursor
		pageInfo.EndCursor = edges[len(edges)-1].Cursor
	}
	return edges, pageInfo, nil
}

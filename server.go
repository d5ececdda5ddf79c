package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/quartermaster_backend/config"
	"bitbucket.org/mmdatafocus/quartermaster_backend/middlewares"
	"bitbucket.org/mmdatafocus/quartermaster_backend/models"
	"bitbucket.org/mmdatafocus/quartermaster_backend/models/reports"
	"bitbucket.org/mmdatafocus/quartermaster_backend/utils"
	"bitbucket.org/mmdatafocus/quartermaster_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// fail maps the error taxonomy onto HTTP codes. Shortfalls keep their full
// per-bucket list so the caller can address every blocking issue in one pass.
func fail(c *gin.Context, err error) {
	var shortfall *workflow.StockShortfallError
	switch {
	case errors.Is(err, workflow.ErrNotElevated):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": err.Error()})
	case errors.As(err, &shortfall):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success":    false,
			"error":      shortfall.Error(),
			"shortfalls": shortfall.Shortfalls,
		})
	case workflow.IsPreconditionError(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	}
}

func loginHandler() gin.HandlerFunc {
	type loginInput struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	return func(c *gin.Context) {
		var input loginInput
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		info, err := models.Login(c.Request.Context(), input.Username, input.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": err.Error()})
			return
		}
		ok(c, info)
	}
}

func idParam(c *gin.Context) (int, error) {
	return utils.ParseIntParam(c.Param("id"))
}

type toggleActiveInput struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// pageParams reads the shared cursor-pagination query params.
func pageParams(c *gin.Context) (after *string, limit *int, err error) {
	if v := c.Query("after"); v != "" {
		after = &v
	}
	if v := c.Query("limit"); v != "" {
		n, parseErr := utils.ParseIntParam(v)
		if parseErr != nil {
			return nil, nil, parseErr
		}
		limit = &n
	}
	return after, limit, nil
}

func registerMasterDataRoutes(r *gin.RouterGroup) {
	r.POST("/items", func(c *gin.Context) {
		var input models.NewItem
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.CreateItem(c.Request.Context(), &input)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.GET("/items", func(c *gin.Context) {
		var name *string
		if v := c.Query("name"); v != "" {
			name = &v
		}
		result, err := models.ListItem(c.Request.Context(), name)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.GET("/items/:id", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		result, err := models.GetItem(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.PUT("/items/:id", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		var input models.NewItem
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.UpdateItem(c.Request.Context(), id, &input)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.DELETE("/items/:id", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		result, err := models.DeleteItem(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.POST("/items/:id/toggle-active", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		var input toggleActiveInput
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.ToggleActiveItem(c.Request.Context(), id, *input.IsActive)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})

	r.POST("/warehouses", func(c *gin.Context) {
		var input models.NewWarehouse
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.CreateWarehouse(c.Request.Context(), &input)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.GET("/warehouses", func(c *gin.Context) {
		var name *string
		if v := c.Query("name"); v != "" {
			name = &v
		}
		result, err := models.ListWarehouse(c.Request.Context(), name)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.GET("/warehouses/:id", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		result, err := models.GetWarehouse(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.PUT("/warehouses/:id", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		var input models.NewWarehouse
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.UpdateWarehouse(c.Request.Context(), id, &input)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.DELETE("/warehouses/:id", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		result, err := models.DeleteWarehouse(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.POST("/warehouses/:id/toggle-active", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		var input toggleActiveInput
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.ToggleActiveWarehouse(c.Request.Context(), id, *input.IsActive)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})

	r.POST("/suppliers", func(c *gin.Context) {
		var input models.NewSupplier
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.CreateSupplier(c.Request.Context(), &input)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.GET("/suppliers", func(c *gin.Context) {
		var name *string
		if v := c.Query("name"); v != "" {
			name = &v
		}
		result, err := models.ListSupplier(c.Request.Context(), name)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.GET("/suppliers/:id", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		result, err := models.GetSupplier(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.PUT("/suppliers/:id", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		var input models.NewSupplier
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.UpdateSupplier(c.Request.Context(), id, &input)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.DELETE("/suppliers/:id", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		result, err := models.DeleteSupplier(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.POST("/suppliers/:id/toggle-active", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		var input toggleActiveInput
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.ToggleActiveSupplier(c.Request.Context(), id, *input.IsActive)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
}

// user management is admin-only
func registerUserRoutes(r *gin.RouterGroup) {
	requireAdmin := func(c *gin.Context) bool {
		role, _ := utils.GetActorRoleFromContext(c.Request.Context())
		if !models.UserRole(role).Elevated() {
			fail(c, workflow.ErrNotElevated)
			return false
		}
		return true
	}

	r.POST("/users", func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.GET("/users", func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		result, err := models.ListUsers(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.GET("/users/:id", func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		result, err := models.GetUser(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.POST("/users/:id/toggle-active", func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		var input toggleActiveInput
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.ToggleActiveUser(c.Request.Context(), id, *input.IsActive)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
}

func registerRequestRoutes(r *gin.RouterGroup) {
	r.POST("/qmrl", func(c *gin.Context) {
		var input models.NewQmrl
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.CreateQmrl(c.Request.Context(), &input)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.GET("/qmrl/:id", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		result, err := models.GetQmrl(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})

	r.POST("/qmhq", func(c *gin.Context) {
		var input models.NewQmhq
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.CreateQmhq(c.Request.Context(), &input)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.GET("/qmhq", func(c *gin.Context) {
		var routeType *string
		if v := c.Query("route_type"); v != "" {
			routeType = &v
		}
		var qmrlId *int
		if v := c.Query("qmrl_id"); v != "" {
			id, err := utils.ParseIntParam(v)
			if err != nil {
				fail(c, err)
				return
			}
			qmrlId = &id
		}
		after, limit, err := pageParams(c)
		if err != nil {
			fail(c, err)
			return
		}
		page, err := models.PaginateQmhq(c.Request.Context(), limit, after, routeType, qmrlId)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, page)
	})
	r.GET("/qmhq/:id", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		result, err := models.GetQmhq(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.GET("/qmhq/:id/budget", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		qmhq, err := models.GetQmhq(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, qmhq.Budget())
	})
	r.GET("/qmhq/:id/status", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		status, err := models.GetQmhqAutoStatus(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"status": status})
	})
	r.GET("/qmhq/:id/purchase-orders", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		result, err := models.GetPurchaseOrdersByQmhq(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.POST("/qmhq/:id/money-in", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		var input struct {
			AmountEusd      decimal.Decimal `json:"amount_eusd" binding:"required"`
			TransactionDate time.Time       `json:"transaction_date"`
			Notes           string          `json:"notes"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.RecordMoneyIn(c.Request.Context(), id, input.AmountEusd, input.TransactionDate, input.Notes)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
}

func registerPurchaseOrderRoutes(r *gin.RouterGroup) {
	r.POST("/purchase-orders", func(c *gin.Context) {
		var input models.NewPurchaseOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.CreatePurchaseOrder(c.Request.Context(), &input)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.GET("/purchase-orders", func(c *gin.Context) {
		var status *string
		if v := c.Query("status"); v != "" {
			status = &v
		}
		var qmhqId *int
		if v := c.Query("qmhq_id"); v != "" {
			id, err := utils.ParseIntParam(v)
			if err != nil {
				fail(c, err)
				return
			}
			qmhqId = &id
		}
		after, limit, err := pageParams(c)
		if err != nil {
			fail(c, err)
			return
		}
		page, err := models.PaginatePurchaseOrders(c.Request.Context(), limit, after, status, qmhqId)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, page)
	})
	r.GET("/purchase-orders/:id", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		result, err := models.GetPurchaseOrder(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.POST("/purchase-orders/:id/invoice", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		var lines []models.POLineProgress
		if err := c.ShouldBindJSON(&lines); err != nil {
			fail(c, err)
			return
		}
		result, err := models.RecordPurchaseOrderInvoice(c.Request.Context(), id, lines)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.POST("/purchase-orders/:id/receipt", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		var lines []models.POLineProgress
		if err := c.ShouldBindJSON(&lines); err != nil {
			fail(c, err)
			return
		}
		result, err := models.RecordPurchaseOrderReceipt(c.Request.Context(), id, lines)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})

	r.POST("/purchase-orders/:id/cancel", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		var input struct {
			Reason string `json:"reason" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := workflow.CancelPurchaseOrder(c.Request.Context(), id, input.Reason)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.POST("/purchase-orders/:id/unlock", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		result, err := workflow.UnlockPurchaseOrder(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.PUT("/purchase-orders/:id", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		var input models.PurchaseOrderHeaderInput
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := workflow.UpdatePurchaseOrder(c.Request.Context(), id, &input)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
}

func registerStockRoutes(r *gin.RouterGroup) {
	r.POST("/stock-out-requests", func(c *gin.Context) {
		var input models.NewStockOutRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.CreateStockOutRequest(c.Request.Context(), &input)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.GET("/stock-out-requests/:id", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		result, err := models.GetStockOutRequest(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.GET("/stock-out-requests/:id/approval-totals", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		result, err := models.GetApprovalTotals(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.POST("/stock-out-approvals", func(c *gin.Context) {
		var input models.NewStockOutApproval
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.CreateStockOutApproval(c.Request.Context(), &input)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.POST("/stock-out-requests/:id/execute", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		result, err := workflow.ExecuteStockOut(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})

	r.POST("/inventory/in", func(c *gin.Context) {
		var input models.NewInventoryIn
		if err := c.ShouldBindJSON(&input); err != nil {
			fail(c, err)
			return
		}
		result, err := models.RecordInventoryIn(c.Request.Context(), &input)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.POST("/inventory/:id/cancel", func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		result, err := models.CancelInventoryTransaction(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.GET("/inventory/available", func(c *gin.Context) {
		itemId, err := utils.ParseIntParam(c.Query("item_id"))
		if err != nil {
			fail(c, err)
			return
		}
		warehouseId, err := utils.ParseIntParam(c.Query("warehouse_id"))
		if err != nil {
			fail(c, err)
			return
		}
		qty, err := models.GetAvailableStock(c.Request.Context(), itemId, warehouseId)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"item_id": itemId, "warehouse_id": warehouseId, "available_qty": qty})
	})
}

func registerAuditAndReportRoutes(r *gin.RouterGroup) {
	r.GET("/audit", func(c *gin.Context) {
		var entityType *string
		if v := c.Query("entity_type"); v != "" {
			entityType = &v
		}
		var entityId *int
		if v := c.Query("entity_id"); v != "" {
			id, err := utils.ParseIntParam(v)
			if err != nil {
				fail(c, err)
				return
			}
			entityId = &id
		}
		after, limit, err := pageParams(c)
		if err != nil {
			fail(c, err)
			return
		}
		var action *string
		if v := c.Query("action"); v != "" {
			action = &v
		}
		page, err := models.PaginateAuditEntries(c.Request.Context(), limit, after, entityType, entityId, action)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, page)
	})

	r.GET("/reports/fulfillment", func(c *gin.Context) {
		var requestId *int
		if v := c.Query("request_id"); v != "" {
			id, err := utils.ParseIntParam(v)
			if err != nil {
				fail(c, err)
				return
			}
			requestId = &id
		}
		result, err := reports.GetFulfillmentReport(c.Request.Context(), requestId)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	})
	r.GET("/reports/fulfillment.xlsx", func(c *gin.Context) {
		var requestId *int
		if v := c.Query("request_id"); v != "" {
			id, err := utils.ParseIntParam(v)
			if err != nil {
				fail(c, err)
				return
			}
			requestId = &id
		}
		if err := reports.WriteFulfillmentExcel(c.Request.Context(), c.Writer, requestId); err != nil {
			fail(c, err)
		}
	})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until the DB is ready, app endpoints return 503.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require explicit allowlist via CORS_ALLOWED_ORIGINS
	// (comma-separated). In non-production, allow all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/login", loginHandler())

	api := r.Group("/api")
	registerMasterDataRoutes(api)
	registerUserRoutes(api)
	registerRequestRoutes(api)
	registerPurchaseOrderRoutes(api)
	registerStockRoutes(api)
	registerAuditAndReportRoutes(api)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
	})

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running migrations as
	// a separate job instead.
	if config.AutoMigrateOnBoot() {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("AUTO_MIGRATE disabled; skipping AutoMigrate on startup")
	}

	// Set the session isolation level to READ COMMITTED
	if err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error; err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Warn("failed to set isolation level: " + err.Error())
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on port ", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger logs only requests that accumulated gin errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

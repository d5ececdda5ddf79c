package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/quartermaster_backend/config"
	"bitbucket.org/mmdatafocus/quartermaster_backend/models"
	"bitbucket.org/mmdatafocus/quartermaster_backend/utils"
	"bitbucket.org/mmdatafocus/quartermaster_backend/workflow"
	"github.com/shopspring/decimal"
)

// End-to-end stock-out path: request -> approvals -> pending transaction ->
// shortfall -> goods receipt -> execution. Availability must be zero after
// the out-movements complete, and a second execution must find nothing.
func TestStockOutExecutionEndToEnd(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "quartermaster_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	businessID := "itest-biz"
	ctx = utils.SetBusinessIdInContext(ctx, businessID)
	ctx = utils.SetActorIdInContext(ctx, 1)
	ctx = utils.SetActorNameInContext(ctx, "Test Admin")
	ctx = utils.SetActorRoleInContext(ctx, string(models.UserRoleAdmin))

	item, err := models.CreateItem(ctx, &models.NewItem{Name: "Field Radio", Sku: "RADIO-001", Unit: "pcs"})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Name: "Central Depot"})
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}

	request, err := models.CreateStockOutRequest(ctx, &models.NewStockOutRequest{
		RequestDate: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
		Notes:       "field resupply",
		LineItems: []models.NewStockOutLineItem{{
			ItemId:       item.ID,
			RequestedQty: decimal.NewFromInt(10),
		}},
	})
	if err != nil {
		t.Fatalf("CreateStockOutRequest: %v", err)
	}
	if len(request.LineItems) != 1 {
		t.Fatalf("expected 1 line item; got %d", len(request.LineItems))
	}
	lineID := request.LineItems[0].ID

	if _, err := models.CreateStockOutApproval(ctx, &models.NewStockOutApproval{
		StockOutLineItemId: lineID,
		Layer:              models.ApprovalLayerQuartermaster,
		Decision:           models.ApprovalDecisionApproved,
		ApprovedQty:        decimal.NewFromInt(10),
	}); err != nil {
		t.Fatalf("CreateStockOutApproval(L1): %v", err)
	}
	if _, err := models.CreateStockOutApproval(ctx, &models.NewStockOutApproval{
		StockOutLineItemId: lineID,
		Layer:              models.ApprovalLayerAdmin,
		Decision:           models.ApprovalDecisionApproved,
		ApprovedQty:        decimal.NewFromInt(10),
		WarehouseId:        warehouse.ID,
	}); err != nil {
		t.Fatalf("CreateStockOutApproval(L2): %v", err)
	}

	totals, err := models.GetApprovalTotals(ctx, request.ID)
	if err != nil {
		t.Fatalf("GetApprovalTotals: %v", err)
	}
	if totals.L2AssignedQty.Cmp(decimal.NewFromInt(10)) != 0 {
		t.Fatalf("expected l2 assigned=10; got %s", totals.L2AssignedQty.String())
	}

	// No stock in the depot yet; execution must fail with the full shortfall.
	_, err = workflow.ExecuteStockOut(ctx, request.ID)
	var shortErr *workflow.StockShortfallError
	if !errors.As(err, &shortErr) {
		t.Fatalf("expected StockShortfallError; got %v", err)
	}
	if len(shortErr.Shortfalls) != 1 {
		t.Fatalf("expected 1 shortfall; got %d", len(shortErr.Shortfalls))
	}
	if shortErr.Shortfalls[0].RequiredQty.Cmp(decimal.NewFromInt(10)) != 0 {
		t.Fatalf("expected required=10; got %s", shortErr.Shortfalls[0].RequiredQty.String())
	}
	if !shortErr.Shortfalls[0].AvailableQty.IsZero() {
		t.Fatalf("expected available=0; got %s", shortErr.Shortfalls[0].AvailableQty.String())
	}

	if _, err := models.RecordInventoryIn(ctx, &models.NewInventoryIn{
		ItemId:          item.ID,
		WarehouseId:     warehouse.ID,
		Qty:             decimal.NewFromInt(10),
		TransactionDate: time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("RecordInventoryIn: %v", err)
	}

	result, err := workflow.ExecuteStockOut(ctx, request.ID)
	if err != nil {
		t.Fatalf("ExecuteStockOut: %v", err)
	}
	if result.ExecutedCount != 1 {
		t.Fatalf("expected executed count=1; got %d", result.ExecutedCount)
	}
	if result.ExecutedQty.Cmp(decimal.NewFromInt(10)) != 0 {
		t.Fatalf("expected executed qty=10; got %s", result.ExecutedQty.String())
	}

	available, err := models.GetAvailableStock(ctx, item.ID, warehouse.ID)
	if err != nil {
		t.Fatalf("GetAvailableStock: %v", err)
	}
	if !available.IsZero() {
		t.Fatalf("expected available=0 after execution; got %s", available.String())
	}

	reloaded, err := models.GetStockOutRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("GetStockOutRequest: %v", err)
	}
	if reloaded.LineItems[0].IsExecuted == nil || !*reloaded.LineItems[0].IsExecuted {
		t.Fatalf("expected line item marked executed")
	}

	// Nothing left to execute; running again must not double-complete.
	if _, err := workflow.ExecuteStockOut(ctx, request.ID); !errors.Is(err, workflow.ErrNothingToExecute) {
		t.Fatalf("expected ErrNothingToExecute on re-run; got %v", err)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("qm-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("qm-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=quartermaster_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}

package models

import (
	"log"

	"bitbucket.org/mmdatafocus/quartermaster_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&AuditLogEntry{},
		&Item{}, &Warehouse{}, &Supplier{},
		&QMRL{}, &QMHQ{}, &MoneyInTransaction{},
		&PurchaseOrder{}, &POLineItem{},
		&StockOutRequest{}, &StockOutLineItem{}, &StockOutApproval{},
		&InventoryTransaction{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}

package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const SearchLimit = 10

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	// Load env from .env
	godotenv.Load()
	// IMPORTANT (Cloud Run):
	// Do NOT block startup in init() waiting for DB.
	// Cloud Run requires the container to start listening on $PORT quickly.
}

// ConnectDatabaseWithRetry connects and sets the global DB.
// Call this from main() AFTER the HTTP server is listening.
func ConnectDatabaseWithRetry() {
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")

	network := "tcp"
	address := fmt.Sprintf("%s:%s", dbHost, dbPort)

	// Cloud Run + Cloud SQL: when DB_HOST is "/cloudsql/<CONNECTION_NAME>",
	// connect using a Unix domain socket provided by Cloud SQL Auth Proxy.
	if strings.HasPrefix(dbHost, "/cloudsql/") {
		network = "unix"
		address = dbHost
	}

	databaseConfig := fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true",
		dbUser,
		dbPassword,
		network,
		address,
		dbName,
	)

	var attempt int
	for {
		attempt++
		conn, err := gorm.Open(mysql.Open(databaseConfig), &gorm.Config{})
		if err == nil {
			if err := conn.Use(otelgorm.NewPlugin()); err != nil {
				log.Printf("otelgorm plugin: %v", err)
			}
			if err := conn.Use(NewTenantGuardPlugin()); err != nil {
				log.Printf("tenant guard plugin: %v", err)
			}
			sqlDB, err := conn.DB()
			if err == nil {
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetMaxOpenConns(20)
				sqlDB.SetConnMaxLifetime(time.Hour)
			}
			if strings.EqualFold(os.Getenv("DB_DEBUG"), "true") {
				conn.Logger = logger.Default.LogMode(logger.Info)
			}
			db = conn
			log.Printf("database connected (attempt %d)", attempt)
			return
		}
		log.Printf("database connect attempt %d failed: %v", attempt, err)
		if attempt >= 30 {
			log.Fatalf("could not connect to database after %d attempts: %v", attempt, err)
		}
		time.Sleep(2 * time.Second)
	}
}

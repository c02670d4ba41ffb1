package postgres

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/lib/pq"
)

type Db struct {
	PostgresClient *sql.DB
}

// ConnectDB establishes a connection to the PostgreSQL database
func ConnectDB() *Db {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("POSTGRES_HOST"),
		os.Getenv("POSTGRES_PORT"),
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		os.Getenv("POSTGRES_DB"),
	)

	var db *sql.DB
	var err error
	maxRetries, _ := strconv.Atoi(os.Getenv("MAX_DB_ATTEMPTS"))
	if maxRetries == 0 {
		maxRetries = 10
	}

	for i := 0; i < maxRetries; i++ {
		db, err = sql.Open("postgres", connStr)
		if err != nil {
			log.Printf("Attempt %d: failed to open database connection: %v", i+1, err)
			time.Sleep(2 * time.Second)
			continue
		}

		err = db.Ping()
		if err == nil {
			fmt.Println("Connected to PostgreSQL database successfully!")
			return &Db{PostgresClient: db}
		}

		log.Printf("Attempt %d: failed to ping PostgreSQL: %v", i+1, err)
		time.Sleep(2 * time.Second)
	}

	log.Fatalf("Exceeded max retries. Could not connect to PostgreSQL: %v", err)
	return nil
}

// Stop gracefully closes the PostgreSQL connection
func (db *Db) Stop() {
	if db.PostgresClient != nil {
		err := db.PostgresClient.Close()
		if err != nil {
			log.Printf("Error closing PostgreSQL connection: %v", err)
		} else {
			fmt.Println("PostgreSQL connection closed successfully!")
		}
	}
}

// InitSchema applies db/postgres/schema.sql. Intended for development and
// test environments; production schemas are managed out of band.
func (db *Db) InitSchema() error {
	schemaPath := filepath.Join("db", "postgres", "schema.sql")
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	_, err = db.PostgresClient.Exec(string(content))
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	fmt.Println("Database schema initialized successfully from file.")
	return nil
}

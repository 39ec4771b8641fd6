package database

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"

	"github.com/earnly-app/earnly/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = createUserTable(db)
	if err != nil {
		return nil, err
	}
	err = createOfferCompletionTable(db)
	if err != nil {
		return nil, err
	}
	err = createTransactionTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createUserTable creates a PostgreSQL table for the UserBalance struct
func createUserTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			points BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0),
			total_points BIGINT NOT NULL DEFAULT 0,
			total_earnings BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	if err != nil {
		log.Printf("Error creating users table: %v", err)
	}
	return err
}

// createOfferCompletionTable creates a PostgreSQL table for the OfferCompletion struct
func createOfferCompletionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS offer_completions (
			id SERIAL PRIMARY KEY,
			completion_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			offer_id TEXT,
			provider TEXT NOT NULL,
			external_txn_id TEXT,
			payout BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL CHECK (status IN ('pending', 'credited', 'reversed', 'failed_no_user')),
			started_at TIMESTAMP NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMP,
			credited_at TIMESTAMP,
			meta_data JSONB
		)
	`)
	if err != nil {
		log.Printf("Error creating offer_completions table: %v", err)
	}
	return err
}

// createTransactionTable creates a PostgreSQL table for the Transaction struct.
// Ledger entries are append-only; there is deliberately no update path.
func createTransactionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id SERIAL PRIMARY KEY,
			transaction_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL CHECK (type IN ('credit', 'debit')),
			amount BIGINT NOT NULL,
			source TEXT,
			source_id TEXT,
			status TEXT,
			reason TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	if err != nil {
		log.Printf("Error creating transactions table: %v", err)
	}
	return err
}

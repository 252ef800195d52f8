package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Open はDATABASE_URLで指定されたPostgreSQLへの接続を開く
// （例: "postgres://subtracker:pass@db:5432/subtracker?sslmode=disable"）。
// sql.Openはこの時点では接続を試行しないため、呼び出し側でdb.Ping()による確認が必要。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return db, nil
}

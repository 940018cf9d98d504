package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            username VARCHAR(50) UNIQUE NOT NULL,
            password VARCHAR(255) NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS contents (
            id BIGSERIAL PRIMARY KEY,
            author_id INT REFERENCES users(id) ON DELETE CASCADE,
            body TEXT NOT NULL,
            type VARCHAR(30) NOT NULL CHECK (type IN ('CHAT_MESSAGE', 'SYSTEM_NOTIFICATION')),
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS delivery_records (
            id BIGSERIAL PRIMARY KEY,
            recipient_id INT REFERENCES users(id) ON DELETE CASCADE,
            content_id BIGINT REFERENCES contents(id) ON DELETE CASCADE,
            read BOOLEAN NOT NULL DEFAULT FALSE,
            read_at TIMESTAMP,
            UNIQUE (content_id, recipient_id)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_delivery_unread
            ON delivery_records (recipient_id) WHERE read = FALSE`,

		`CREATE INDEX IF NOT EXISTS idx_delivery_recipient
            ON delivery_records (recipient_id, content_id)`,
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

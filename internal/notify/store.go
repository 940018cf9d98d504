package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Store is the durable side of the subsystem: immutable contents plus the
// per-recipient delivery records that carry read state.
type Store interface {
	CreateContent(ctx context.Context, authorID int, body string, typ ContentType) (*Content, error)
	CreateDeliveryRecords(ctx context.Context, contentID int64, recipientIDs []int) ([]DeliveryRecord, error)
	MarkRead(ctx context.Context, id int64, userID int) (*DeliveryRecord, error)
	MarkAllRead(ctx context.Context, userID int) (int64, error)
	MarkConversationRead(ctx context.Context, userID, otherID int) (int64, error)
	CountUnread(ctx context.Context, userID int) (int, error)
	ListByUser(ctx context.Context, userID, page, size int) (*Page, error)
	ListConversation(ctx context.Context, userID, otherID, page, size int) (*Page, error)
	DeleteRecord(ctx context.Context, id int64, userID int) error
	DeleteRead(ctx context.Context, userID int) (int64, error)
}

// SQLStore implements Store on PostgreSQL.
type SQLStore struct {
	db         *sql.DB
	maxBodyLen int
}

func NewSQLStore(db *sql.DB, maxBodyLen int) *SQLStore {
	return &SQLStore{db: db, maxBodyLen: maxBodyLen}
}

func (s *SQLStore) CreateContent(ctx context.Context, authorID int, body string, typ ContentType) (*Content, error) {
	if strings.TrimSpace(body) == "" {
		return nil, &ValidationError{Field: "body", Reason: "must not be empty"}
	}
	if len(body) > s.maxBodyLen {
		return nil, &ValidationError{Field: "body", Reason: fmt.Sprintf("exceeds %d bytes", s.maxBodyLen)}
	}
	if !typ.Valid() {
		return nil, &ValidationError{Field: "type", Reason: "unknown content type"}
	}

	c := &Content{AuthorID: authorID, Body: body, Type: typ}
	query := `INSERT INTO contents (author_id, body, type) VALUES ($1, $2, $3)
	          RETURNING id, created_at`
	err := s.db.QueryRowContext(ctx, query, authorID, body, string(typ)).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create content: %w", err)
	}
	return c, nil
}

// CreateDeliveryRecords fans one content out to every recipient inside a
// single transaction: a broadcast either reaches all recipients' rows or none.
func (s *SQLStore) CreateDeliveryRecords(ctx context.Context, contentID int64, recipientIDs []int) ([]DeliveryRecord, error) {
	if len(recipientIDs) == 0 {
		return nil, &ValidationError{Field: "recipientIds", Reason: "must not be empty"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin fan-out: %w", err)
	}
	defer tx.Rollback()

	records := make([]DeliveryRecord, 0, len(recipientIDs))
	query := `INSERT INTO delivery_records (recipient_id, content_id) VALUES ($1, $2) RETURNING id`
	for _, rid := range recipientIDs {
		rec := DeliveryRecord{RecipientID: rid, ContentID: contentID}
		if err := tx.QueryRowContext(ctx, query, rid, contentID).Scan(&rec.ID); err != nil {
			return nil, fmt.Errorf("fan-out to recipient %d: %w", rid, err)
		}
		records = append(records, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit fan-out: %w", err)
	}
	return records, nil
}

// MarkRead is idempotent: the first call sets read_at, repeat calls leave it
// untouched. Records belonging to another user are reported as not found.
func (s *SQLStore) MarkRead(ctx context.Context, id int64, userID int) (*DeliveryRecord, error) {
	query := `UPDATE delivery_records
	          SET read = TRUE, read_at = COALESCE(read_at, NOW())
	          WHERE id = $1 AND recipient_id = $2
	          RETURNING id, recipient_id, content_id, read, read_at`
	rec := &DeliveryRecord{}
	err := s.db.QueryRowContext(ctx, query, id, userID).
		Scan(&rec.ID, &rec.RecipientID, &rec.ContentID, &rec.Read, &rec.ReadAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return rec, nil
}

func (s *SQLStore) MarkAllRead(ctx context.Context, userID int) (int64, error) {
	query := `UPDATE delivery_records SET read = TRUE, read_at = NOW()
	          WHERE recipient_id = $1 AND read = FALSE`
	res, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.RowsAffected()
}

// MarkConversationRead marks every unread chat message the other user sent to
// userID as read.
func (s *SQLStore) MarkConversationRead(ctx context.Context, userID, otherID int) (int64, error) {
	query := `UPDATE delivery_records d SET read = TRUE, read_at = NOW()
	          FROM contents c
	          WHERE d.content_id = c.id
	            AND d.recipient_id = $1 AND d.read = FALSE
	            AND c.author_id = $2 AND c.type = 'CHAT_MESSAGE'`
	res, err := s.db.ExecContext(ctx, query, userID, otherID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return res.RowsAffected()
}

// CountUnread is always derived from the rows so it can never drift.
func (s *SQLStore) CountUnread(ctx context.Context, userID int) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM delivery_records WHERE recipient_id = $1 AND read = FALSE`
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func (s *SQLStore) ListByUser(ctx context.Context, userID, page, size int) (*Page, error) {
	page, size = clampPage(page, size)

	var total int
	countQ := `SELECT COUNT(*) FROM delivery_records WHERE recipient_id = $1`
	if err := s.db.QueryRowContext(ctx, countQ, userID).Scan(&total); err != nil {
		return nil, fmt.Errorf("list by user: %w", err)
	}

	// Newest first for the notification feed; created_at with id as
	// tie-break, never wire arrival order.
	query := `
		SELECT d.id, d.recipient_id, d.content_id, d.read, d.read_at,
		       c.id, c.author_id, c.body, c.type, c.created_at
		FROM delivery_records d
		JOIN contents c ON d.content_id = c.id
		WHERE d.recipient_id = $1
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT $2 OFFSET $3
	`
	items, err := s.queryItems(ctx, query, userID, size, page*size)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Page: page, Size: size, Total: total}, nil
}

func (s *SQLStore) ListConversation(ctx context.Context, userID, otherID, page, size int) (*Page, error) {
	page, size = clampPage(page, size)

	cond := `((d.recipient_id = $1 AND c.author_id = $2) OR (d.recipient_id = $2 AND c.author_id = $1))
	         AND c.type = 'CHAT_MESSAGE'`

	var total int
	countQ := `SELECT COUNT(*) FROM delivery_records d JOIN contents c ON d.content_id = c.id WHERE ` + cond
	if err := s.db.QueryRowContext(ctx, countQ, userID, otherID).Scan(&total); err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}

	query := `
		SELECT d.id, d.recipient_id, d.content_id, d.read, d.read_at,
		       c.id, c.author_id, c.body, c.type, c.created_at
		FROM delivery_records d
		JOIN contents c ON d.content_id = c.id
		WHERE ` + cond + `
		ORDER BY c.created_at ASC, c.id ASC
		LIMIT $3 OFFSET $4
	`
	items, err := s.queryItems(ctx, query, userID, otherID, size, page*size)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Page: page, Size: size, Total: total}, nil
}

func (s *SQLStore) DeleteRecord(ctx context.Context, id int64, userID int) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM delivery_records WHERE id = $1 AND recipient_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeleteRead(ctx context.Context, userID int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM delivery_records WHERE recipient_id = $1 AND read = TRUE`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete read: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.ID, &it.RecipientID, &it.ContentID, &it.Read, &it.ReadAt,
			&it.Content.ID, &it.Content.AuthorID, &it.Content.Body, &it.Content.Type, &it.Content.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func clampPage(page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}

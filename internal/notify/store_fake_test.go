package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// memStore is an in-memory Store used by the dispatcher and handler tests.
// It mirrors the SQL semantics: transactional fan-out, idempotent markRead,
// counts always derived from the rows.
type memStore struct {
	mu       sync.Mutex
	contents map[int64]Content
	records  map[int64]DeliveryRecord
	nextID   int64

	maxBodyLen int
	failFanOut bool
}

func newMemStore() *memStore {
	return &memStore{
		contents:   make(map[int64]Content),
		records:    make(map[int64]DeliveryRecord),
		maxBodyLen: 4000,
	}
}

func (s *memStore) CreateContent(_ context.Context, authorID int, body string, typ ContentType) (*Content, error) {
	if strings.TrimSpace(body) == "" {
		return nil, &ValidationError{Field: "body", Reason: "must not be empty"}
	}
	if len(body) > s.maxBodyLen {
		return nil, &ValidationError{Field: "body", Reason: fmt.Sprintf("exceeds %d bytes", s.maxBodyLen)}
	}
	if !typ.Valid() {
		return nil, &ValidationError{Field: "type", Reason: "unknown content type"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c := Content{ID: s.nextID, AuthorID: authorID, Body: body, Type: typ, CreatedAt: time.Now()}
	s.contents[c.ID] = c
	return &c, nil
}

func (s *memStore) CreateDeliveryRecords(_ context.Context, contentID int64, recipientIDs []int) ([]DeliveryRecord, error) {
	if len(recipientIDs) == 0 {
		return nil, &ValidationError{Field: "recipientIds", Reason: "must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFanOut {
		return nil, fmt.Errorf("simulated fan-out failure")
	}

	out := make([]DeliveryRecord, 0, len(recipientIDs))
	for _, rid := range recipientIDs {
		s.nextID++
		rec := DeliveryRecord{ID: s.nextID, RecipientID: rid, ContentID: contentID}
		s.records[rec.ID] = rec
		out = append(out, rec)
	}
	return out, nil
}

func (s *memStore) MarkRead(_ context.Context, id int64, userID int) (*DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.RecipientID != userID {
		return nil, ErrNotFound
	}
	if !rec.Read {
		now := time.Now()
		rec.Read = true
		rec.ReadAt = &now
		s.records[id] = rec
	}
	return &rec, nil
}

func (s *memStore) MarkAllRead(_ context.Context, userID int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now()
	for id, rec := range s.records {
		if rec.RecipientID == userID && !rec.Read {
			rec.Read = true
			rec.ReadAt = &now
			s.records[id] = rec
			n++
		}
	}
	return n, nil
}

func (s *memStore) MarkConversationRead(_ context.Context, userID, otherID int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now()
	for id, rec := range s.records {
		c := s.contents[rec.ContentID]
		if rec.RecipientID == userID && !rec.Read && c.AuthorID == otherID && c.Type == TypeChatMessage {
			rec.Read = true
			rec.ReadAt = &now
			s.records[id] = rec
			n++
		}
	}
	return n, nil
}

func (s *memStore) CountUnread(_ context.Context, userID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.RecipientID == userID && !rec.Read {
			n++
		}
	}
	return n, nil
}

func (s *memStore) ListByUser(_ context.Context, userID, page, size int) (*Page, error) {
	page, size = clampPage(page, size)
	s.mu.Lock()
	items := []Item{}
	for _, rec := range s.records {
		if rec.RecipientID == userID {
			items = append(items, Item{DeliveryRecord: rec, Content: s.contents[rec.ContentID]})
		}
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].Content, items[j].Content
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return paginate(items, page, size), nil
}

func (s *memStore) ListConversation(_ context.Context, userID, otherID, page, size int) (*Page, error) {
	page, size = clampPage(page, size)
	s.mu.Lock()
	items := []Item{}
	for _, rec := range s.records {
		c := s.contents[rec.ContentID]
		if c.Type != TypeChatMessage {
			continue
		}
		if (rec.RecipientID == userID && c.AuthorID == otherID) ||
			(rec.RecipientID == otherID && c.AuthorID == userID) {
			items = append(items, Item{DeliveryRecord: rec, Content: c})
		}
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].Content, items[j].Content
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return paginate(items, page, size), nil
}

func (s *memStore) DeleteRecord(_ context.Context, id int64, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.RecipientID != userID {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *memStore) DeleteRead(_ context.Context, userID int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.records {
		if rec.RecipientID == userID && rec.Read {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func paginate(items []Item, page, size int) *Page {
	total := len(items)
	start := page * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return &Page{Items: items[start:end], Page: page, Size: size, Total: total}
}

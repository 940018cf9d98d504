package client

import (
	"context"
)

// Reconciler applies read-state mutations optimistically to the local cache,
// confirms them against the authoritative REST API, and rolls the local
// change back when the server rejects it. The UI feels instantaneous, the
// server remains the source of truth, and the cache can never get stuck in
// the "read locally, unread on the server" direction.
type Reconciler struct {
	cache *Cache
	api   API
}

func NewReconciler(cache *Cache, api API) *Reconciler {
	return &Reconciler{cache: cache, api: api}
}

// MarkAsRead flips the record locally, then confirms with the server. On
// rejection the record reverts to unread and the error is returned wrapped.
func (r *Reconciler) MarkAsRead(ctx context.Context, id int64) error {
	applied := r.cache.ApplyRead(id)

	if err := r.api.MarkRead(ctx, id); err != nil {
		if applied {
			r.cache.ApplyUnread(id)
		}
		return &ReconciliationError{Op: "markAsRead", Err: err}
	}
	return nil
}

// MarkAllAsRead applies the optimistic flip to every currently-unread record,
// issues one authoritative call, and reverts exactly the records it flipped
// when that call fails.
func (r *Reconciler) MarkAllAsRead(ctx context.Context) error {
	flipped := make([]int64, 0)
	for _, id := range r.cache.UnreadIDs() {
		if r.cache.ApplyRead(id) {
			flipped = append(flipped, id)
		}
	}

	if err := r.api.MarkAllRead(ctx); err != nil {
		for _, id := range flipped {
			r.cache.ApplyUnread(id)
		}
		return &ReconciliationError{Op: "markAllAsRead", Err: err}
	}

	r.cache.SetUnreadCount(0)
	return nil
}

// MarkConversationAsRead is the chat-side variant: locally it can only clear
// records already in the cache, the server clears the full conversation.
func (r *Reconciler) MarkConversationAsRead(ctx context.Context, otherID int) error {
	flipped := make([]int64, 0)
	for _, id := range r.cache.UnreadIDs() {
		if item, ok := r.cache.Get(id); ok && item.Content.AuthorID == otherID {
			if r.cache.ApplyRead(id) {
				flipped = append(flipped, id)
			}
		}
	}

	if err := r.api.MarkConversationRead(ctx, otherID); err != nil {
		for _, id := range flipped {
			r.cache.ApplyUnread(id)
		}
		return &ReconciliationError{Op: "markConversationAsRead", Err: err}
	}
	return nil
}

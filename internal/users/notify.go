package users

import (
	"context"
	"sync"
)

// Notification kinds mirror the flash kinds rendered by the dashboard.
const (
	KindSuccess = "success"
	KindError   = "error"
)

// Operation names used in notifications, events and metrics.
const (
	OpAddUser        = "add_user"
	OpUpdateUser     = "update_user"
	OpDeleteUser     = "delete_user"
	OpChangePassword = "change_password"
)

// Notification is a fire-and-forget message about an operation outcome.
type Notification struct {
	Kind    string
	Op      string
	Message string
}

// Notifier receives store notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

type notifierContextKey struct{}

// ContextWithNotifier attaches a request-scoped notifier to ctx.
func ContextWithNotifier(ctx context.Context, n Notifier) context.Context {
	return context.WithValue(ctx, notifierContextKey{}, n)
}

// NotifierFromContext returns the notifier attached to ctx, if any.
func NotifierFromContext(ctx context.Context) Notifier {
	n, _ := ctx.Value(notifierContextKey{}).(Notifier)
	return n
}

// NotificationBuffer collects notifications so a handler can drain them
// after the store call settles. Safe for concurrent use.
type NotificationBuffer struct {
	mu    sync.Mutex
	items []Notification
}

// Notify implements Notifier.
func (b *NotificationBuffer) Notify(_ context.Context, n Notification) {
	b.mu.Lock()
	b.items = append(b.items, n)
	b.mu.Unlock()
}

// Drain returns and clears buffered notifications.
func (b *NotificationBuffer) Drain() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	return out
}

// EventType identifies a state change.
type EventType string

// Event types emitted to observers.
const (
	EventUserAdded       EventType = "user.added"
	EventUserUpdated     EventType = "user.updated"
	EventUserDeleted     EventType = "user.deleted"
	EventPasswordChanged EventType = "password.changed"
	EventBusyChanged     EventType = "busy.changed"
)

// Event describes a store state change.
type Event struct {
	Type   EventType
	UserID string
	Busy   bool
}

// Observer is called after each state change.
type Observer func(Event)

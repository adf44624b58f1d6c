package users

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultPasswordDelay is the simulated latency of ChangePassword.
const DefaultPasswordDelay = 500 * time.Millisecond

// Store owns the ordered user list, the current-user pointer and the busy
// flag. Every mutation goes through it.
type Store struct {
	mu        sync.RWMutex
	users     []User
	currentID string

	inflight atomic.Int32
	pending  sync.WaitGroup

	obsMu     sync.RWMutex
	observers []subscription
	nextObs   int

	notifiers     []Notifier
	creds         *credentials
	now           func() time.Time
	newID         func() (string, error)
	passwordDelay time.Duration
	logger        *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides how new user IDs are produced.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *Store) { s.newID = fn }
}

// WithPasswordDelay sets how long ChangePassword takes to settle.
func WithPasswordDelay(d time.Duration) Option {
	return func(s *Store) { s.passwordDelay = d }
}

// WithLogger sets the logger used for operation outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithNotifier registers a process-wide notification sink.
func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		if n != nil {
			s.notifiers = append(s.notifiers, n)
		}
	}
}

// WithSeed replaces the initial records. The first record becomes the
// current user.
func WithSeed(seed []User) Option {
	return func(s *Store) {
		s.users = append([]User(nil), seed...)
		s.currentID = ""
		if len(s.users) > 0 {
			s.currentID = s.users[0].ID
		}
	}
}

// WithHashCost sets the bcrypt cost for stored credentials.
func WithHashCost(cost int) Option {
	return func(s *Store) { s.creds = newCredentials(cost) }
}

// NewStore builds a Store seeded with SeedUsers unless WithSeed is given.
func NewStore(opts ...Option) *Store {
	s := &Store{
		creds:         newCredentials(0),
		now:           time.Now,
		newID:         newUUID,
		passwordDelay: DefaultPasswordDelay,
		logger:        slog.Default(),
	}
	s.users = SeedUsers(s.now())
	s.currentID = s.users[0].ID
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Users returns a copy of the records in insertion order.
func (s *Store) Users() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]User(nil), s.users...)
}

// User looks up a record by id.
func (s *Store) User(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.users[i], true
	}
	return User{}, false
}

// CurrentUser resolves the current-user pointer against the live records.
func (s *Store) CurrentUser() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentID == "" {
		return User{}, false
	}
	if i := s.indexOf(s.currentID); i >= 0 {
		return s.users[i], true
	}
	return User{}, false
}

// Admins returns the administrator records in order.
func (s *Store) Admins() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		if u.IsAdmin {
			out = append(out, u)
		}
	}
	return out
}

// Search filters the records, see Filter.
func (s *Store) Search(query string) []User {
	return Filter(s.Users(), query)
}

// Busy reports whether any mutating operation is in progress.
func (s *Store) Busy() bool {
	return s.inflight.Load() > 0
}

// Stats returns record counts and the busy flag.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	st := Stats{Total: len(s.users)}
	for _, u := range s.users {
		if u.IsAdmin {
			st.Admins++
		}
	}
	s.mu.RUnlock()
	st.Busy = s.Busy()
	return st
}

// CheckPassword reports whether password matches the credential stored by
// ChangePassword for userID.
func (s *Store) CheckPassword(userID, password string) bool {
	return s.creds.check(userID, password)
}

// Subscribe registers an observer and returns a function removing it.
func (s *Store) Subscribe(fn Observer) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers = append(s.observers, subscription{id: id, fn: fn})
	s.obsMu.Unlock()
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, sub := range s.observers {
			if sub.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// AddUser appends a new record with a fresh id and creation time.
func (s *Store) AddUser(ctx context.Context, data NewUser) {
	s.guard(ctx, OpAddUser, "User created successfully", "Failed to create user", func() (*Event, error) {
		id, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("generate user id: %w", err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		// CreatedAt never runs backwards relative to existing records.
		createdAt := s.now()
		for _, u := range s.users {
			if u.CreatedAt.After(createdAt) {
				createdAt = u.CreatedAt
			}
		}
		s.users = append(s.users, User{
			ID:        id,
			Name:      data.Name,
			Email:     data.Email,
			IsAdmin:   data.IsAdmin,
			CreatedAt: createdAt,
		})
		return &Event{Type: EventUserAdded, UserID: id}, nil
	})
}

// UpdateUser merges patch into the record with the given id. Unknown ids
// are ignored.
func (s *Store) UpdateUser(ctx context.Context, id string, patch UserPatch) {
	s.guard(ctx, OpUpdateUser, "User updated successfully", "Failed to update user", func() (*Event, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		i := s.indexOf(id)
		if i < 0 {
			return nil, nil
		}
		patch.apply(&s.users[i])
		return &Event{Type: EventUserUpdated, UserID: id}, nil
	})
}

// DeleteUser removes the record with the given id. Unknown ids are ignored.
func (s *Store) DeleteUser(ctx context.Context, id string) {
	s.guard(ctx, OpDeleteUser, "User deleted successfully", "Failed to delete user", func() (*Event, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		i := s.indexOf(id)
		if i < 0 {
			return nil, nil
		}
		s.users = append(s.users[:i:i], s.users[i+1:]...)
		if s.currentID == id {
			s.currentID = ""
		}
		s.creds.drop(id)
		return &Event{Type: EventUserDeleted, UserID: id}, nil
	})
}

// ChangePassword stores a new credential for userID after the configured
// delay. The returned task always resolves; there is no way to cancel it.
func (s *Store) ChangePassword(ctx context.Context, userID, newPassword string) *PasswordTask {
	task := &PasswordTask{done: make(chan struct{})}
	// Detach so the task outlives the request but keeps its notifier.
	taskCtx := context.WithoutCancel(ctx)
	s.begin()
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer close(task.done)
		time.Sleep(s.passwordDelay)
		task.outcome = s.run(taskCtx, OpChangePassword, "Password changed successfully", "Failed to change password", func() (*Event, error) {
			if _, ok := s.User(userID); !ok {
				return nil, nil
			}
			hash, err := s.creds.hash(newPassword)
			if err != nil {
				return nil, fmt.Errorf("hash password: %w", err)
			}
			// DeleteUser drops credentials under s.mu, so the record check and
			// the write must share it.
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.indexOf(userID) < 0 {
				return nil, nil
			}
			s.creds.put(userID, hash)
			return &Event{Type: EventPasswordChanged, UserID: userID}, nil
		})
	}()
	return task
}

// Drain waits for outstanding password tasks or until ctx is done.
func (s *Store) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// guard runs a synchronous mutation between begin and run's release.
func (s *Store) guard(ctx context.Context, op, okMsg, failMsg string, fn func() (*Event, error)) {
	s.begin()
	s.run(ctx, op, okMsg, failMsg, fn)
}

// run executes fn, recovering panics, then publishes the outcome and
// releases the busy flag taken by begin.
func (s *Store) run(ctx context.Context, op, okMsg, failMsg string, fn func() (*Event, error)) (n Notification) {
	defer s.end()
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "user store operation panicked", slog.String("op", op), slog.Any("panic", r))
			n = Notification{Kind: KindError, Op: op, Message: failMsg}
			s.notify(ctx, n)
		}
	}()

	ev, err := fn()
	if err != nil {
		s.logger.ErrorContext(ctx, "user store operation failed", slog.String("op", op), slog.Any("error", err))
		n = Notification{Kind: KindError, Op: op, Message: failMsg}
		s.notify(ctx, n)
		return n
	}
	if ev != nil {
		s.publish(*ev)
	}
	n = Notification{Kind: KindSuccess, Op: op, Message: okMsg}
	s.notify(ctx, n)
	return n
}

func (s *Store) begin() {
	if s.inflight.Add(1) == 1 {
		s.publish(Event{Type: EventBusyChanged, Busy: true})
	}
}

func (s *Store) end() {
	if s.inflight.Add(-1) == 0 {
		s.publish(Event{Type: EventBusyChanged, Busy: false})
	}
}

func (s *Store) notify(ctx context.Context, n Notification) {
	if n.Kind == KindError {
		s.logger.ErrorContext(ctx, n.Message, slog.String("op", n.Op))
	} else {
		s.logger.InfoContext(ctx, n.Message, slog.String("op", n.Op))
	}
	for _, sink := range s.notifiers {
		sink.Notify(ctx, n)
	}
	if sink := NotifierFromContext(ctx); sink != nil {
		sink.Notify(ctx, n)
	}
}

func (s *Store) publish(ev Event) {
	s.obsMu.RLock()
	observers := append([]subscription(nil), s.observers...)
	s.obsMu.RUnlock()
	for _, sub := range observers {
		sub.fn(ev)
	}
}

func (s *Store) indexOf(id string) int {
	for i := range s.users {
		if s.users[i].ID == id {
			return i
		}
	}
	return -1
}

type subscription struct {
	id int
	fn Observer
}

// PasswordTask is the pending result of ChangePassword.
type PasswordTask struct {
	done    chan struct{}
	outcome Notification
}

// Done is closed once the task has settled.
func (t *PasswordTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task settles or ctx is done. Giving up on the wait
// leaves the task running.
func (t *PasswordTask) Wait(ctx context.Context) (Notification, error) {
	select {
	case <-t.done:
		return t.outcome, nil
	case <-ctx.Done():
		return Notification{}, ctx.Err()
	}
}

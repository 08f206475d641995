// Package session owns every online user's authentication state, filter
// configuration, and pending-detection mailbox.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"candlecore/internal/history"
	"candlecore/internal/kline"
	"candlecore/internal/logger"

	"golang.org/x/crypto/bcrypt"
)

// IdleTimeout is how long a session may go without a poll before the
// periodic sweep evicts it.
const IdleTimeout = 60 * time.Second

var (
	// ErrInvalidCredentials is returned when a registered user's password
	// does not match. An unknown name is never rejected: Login registers
	// it on first sight.
	ErrInvalidCredentials = errors.New("session: invalid credentials")
	// ErrUnknownSession is returned by any session-scoped operation given
	// a sessionId the registry does not recognize as online.
	ErrUnknownSession = errors.New("session: unknown session")
)

// UserStore is the persistence boundary the registry depends on; the
// store package provides the PostgreSQL-backed implementation.
type UserStore interface {
	Load(name string) (*kline.User, error)
	Create(u *kline.User) error
	Upsert(u *kline.User) error
}

type entry struct {
	id           int32
	userName     string
	config       kline.UserConfig
	mailbox      *mailbox
	lastActivity time.Time
}

// Registry is the process-wide table of online sessions. All exported
// methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byID     map[int32]*entry
	byUser   map[string]int32
	users    UserStore
	log      logger.Logger
	venues   []string
	history  *history.Index
}

// New builds an empty Registry. venues is the static list of configured
// venue names surfaced by ListVenues; history backs ListKLineIds.
func New(users UserStore, log logger.Logger, venues []string, idx *history.Index) *Registry {
	return &Registry{
		byID:    make(map[int32]*entry),
		byUser:  make(map[string]int32),
		users:   users,
		log:     log,
		venues:  venues,
		history: idx,
	}
}

// Login authenticates name/password, creating a new User on first sight,
// and returns a fresh sessionId plus the user's stored UserConfig (empty
// for a brand new account). If name is already online, its previous
// session is replaced (mirrors the source's re-login-overwrites behavior).
func (r *Registry) Login(name, password string) (int32, kline.UserConfig, error) {
	user, err := r.users.Load(name)
	if err != nil {
		return 0, kline.UserConfig{}, fmt.Errorf("session: load user: %w", err)
	}

	if user == nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return 0, kline.UserConfig{}, fmt.Errorf("session: hash password: %w", err)
		}
		user = &kline.User{
			Name:         name,
			PasswordHash: string(hash),
			CreatedAt:    time.Now(),
		}
		if err := r.users.Create(user); err != nil {
			return 0, kline.UserConfig{}, fmt.Errorf("session: create user: %w", err)
		}
	} else if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return 0, kline.UserConfig{}, ErrInvalidCredentials
	}

	user.LastLogin = time.Now()
	if err := r.users.Upsert(user); err != nil {
		r.log.Warn("session: failed to persist last login", "user", name, "error", err)
	}

	id, err := newSessionID()
	if err != nil {
		return 0, kline.UserConfig{}, fmt.Errorf("session: generate id: %w", err)
	}

	r.mu.Lock()
	for {
		if _, taken := r.byID[id]; !taken {
			break
		}
		if id, err = newSessionID(); err != nil {
			r.mu.Unlock()
			return 0, kline.UserConfig{}, fmt.Errorf("session: generate id: %w", err)
		}
	}
	if prevID, ok := r.byUser[name]; ok {
		delete(r.byID, prevID)
	}
	r.byID[id] = &entry{
		id:           id,
		userName:     name,
		config:       user.Config,
		mailbox:      newMailbox(),
		lastActivity: time.Now(),
	}
	r.byUser[name] = id
	r.mu.Unlock()

	return id, user.Config, nil
}

// Logout removes sessionId from the online table.
func (r *Registry) Logout(sessionId int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[sessionId]
	if !ok {
		return ErrUnknownSession
	}
	delete(r.byID, sessionId)
	if r.byUser[e.userName] == sessionId {
		delete(r.byUser, e.userName)
	}
	return nil
}

// UpdateConfig replaces sessionId's filter set and clears any pending
// mailbox contents evaluated under the old configuration.
func (r *Registry) UpdateConfig(sessionId int32, cfg kline.UserConfig) error {
	for _, f := range cfg.Filters {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("session: invalid filter: %w", err)
		}
	}

	r.mu.Lock()
	e, ok := r.byID[sessionId]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownSession
	}
	e.config = cfg
	e.mailbox.clear()
	e.lastActivity = time.Now()
	userName := e.userName
	r.mu.Unlock()

	user, err := r.users.Load(userName)
	if err == nil && user != nil {
		user.Config = cfg
		if err := r.users.Upsert(user); err != nil {
			r.log.Warn("session: failed to persist config", "user", userName, "error", err)
		}
	}
	return nil
}

// PollDetect drains and returns sessionId's pending DetectEvents along with
// whether any were dropped for overflow since the last poll.
func (r *Registry) PollDetect(sessionId int32) ([]kline.DetectEvent, bool, error) {
	r.mu.Lock()
	e, ok := r.byID[sessionId]
	if ok {
		e.lastActivity = time.Now()
	}
	r.mu.Unlock()
	if !ok {
		return nil, false, ErrUnknownSession
	}

	events, overflow := e.mailbox.drain()
	return events, overflow, nil
}

// ListVenues returns the configured venue names, touching sessionId's
// lastActivity like every other session-scoped read.
func (r *Registry) ListVenues(sessionId int32) ([]string, error) {
	if err := r.touch(sessionId); err != nil {
		return nil, err
	}
	out := make([]string, len(r.venues))
	copy(out, r.venues)
	return out, nil
}

// ListKLineIds returns every instrument currently tracked by a poller on
// venueId, touching sessionId's lastActivity like every other
// session-scoped read.
func (r *Registry) ListKLineIds(sessionId int32, venueId string) ([]kline.InstrumentId, error) {
	if err := r.touch(sessionId); err != nil {
		return nil, err
	}
	var out []kline.InstrumentId
	for _, id := range r.history.Instruments() {
		if id.Venue == venueId {
			out = append(out, id)
		}
	}
	return out, nil
}

// touch verifies sessionId is online and refreshes its lastActivity.
func (r *Registry) touch(sessionId int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[sessionId]
	if !ok {
		return ErrUnknownSession
	}
	e.lastActivity = time.Now()
	return nil
}

// OnlineCount reports how many sessions are currently online.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// OnlineUserNames returns the user name backing every currently online
// session, for /serverstatus's usersOnline payload.
func (r *Registry) OnlineUserNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, e.userName)
	}
	return out
}

// SweepIdle evicts every session whose last poll/config/activity was more
// than IdleTimeout before now. Intended to be called periodically (the
// orchestrator schedules it at a 1-minute cadence).
func (r *Registry) SweepIdle(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.byID {
		if now.Sub(e.lastActivity) > IdleTimeout {
			delete(r.byID, id)
			if r.byUser[e.userName] == id {
				delete(r.byUser, e.userName)
			}
			r.log.Info("session: evicted idle session", "session", id, "user", e.userName)
		}
	}
}

// FlushActivity persists the current LastLogin timestamp for every online
// session's user, the periodic counterpart to the synchronous Upsert
// Login and UpdateConfig already perform — it exists so a session that
// neither re-authenticates nor changes its filters for a long stretch
// still has its activity reflected in storage.
func (r *Registry) FlushActivity(ctx context.Context) error {
	r.mu.RLock()
	names := make([]string, 0, len(r.byID))
	for _, e := range r.byID {
		names = append(names, e.userName)
	}
	r.mu.RUnlock()

	for _, name := range names {
		user, err := r.users.Load(name)
		if err != nil || user == nil {
			continue
		}
		user.LastLogin = time.Now()
		if err := r.users.Upsert(user); err != nil {
			r.log.Warn("session: flush activity failed", "user", name, "error", err)
		}
	}
	return nil
}

// FiltersFor implements detector.SessionSource: every online session
// subscribed to instrument's venue with at least one filter matching
// instrument's interval and symbol, keyed by sessionId.
func (r *Registry) FiltersFor(instrument kline.InstrumentId) map[int32][]kline.Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int32][]kline.Filter)
	for id, e := range r.byID {
		if !e.config.SubscribesTo(instrument.Venue) {
			continue
		}
		var matched []kline.Filter
		for _, f := range e.config.Filters {
			if f.Interval == instrument.Interval && f.Matches(instrument.Symbol) {
				matched = append(matched, f)
			}
		}
		if len(matched) > 0 {
			out[id] = matched
		}
	}
	return out
}

// Deliver implements detector.SessionSource: enqueue event onto
// sessionId's mailbox, a no-op if the session has since gone offline.
func (r *Registry) Deliver(sessionId int32, event kline.DetectEvent) {
	r.mu.RLock()
	e, ok := r.byID[sessionId]
	r.mu.RUnlock()
	if !ok {
		return
	}
	e.mailbox.enqueue(event)
}

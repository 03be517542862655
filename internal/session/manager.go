// Package session owns the per-user search state machine and drives each
// active user's recurring scrape cycles.
//
//	Idle → AwaitingConfirmation → Active → Idle
//	         ↘ (decline/timeout) Idle
//
// Every mutation for a user is serialised by that user's lock; different users
// never contend beyond the map lookup.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tejaschuahan/job-scraper-bot/internal/metrics"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

const (
	// DefaultInterval separates consecutive cycles of one session.
	DefaultInterval = 300 * time.Second
	// DefaultConfirmTimeout returns an unconfirmed session to Idle.
	DefaultConfirmTimeout = 5 * time.Minute
	// DefaultCycleTimeout bounds a single cycle.
	DefaultCycleTimeout = 4 * time.Minute
)

var (
	// ErrNoSession is returned when the user has no session in a state the
	// operation applies to.
	ErrNoSession = errors.New("no session")
	// ErrInvalidTransition is returned for transitions the state machine
	// does not allow.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrEmptyRole is returned when Start receives a blank role.
	ErrEmptyRole = errors.New("role must not be empty")
	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("session manager closed")
	// ErrFatal marks a cycle error that ends the session.
	ErrFatal = errors.New("fatal cycle error")
)

// State is a session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAwaitingConfirmation
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Transition reasons.
const (
	ReasonStarted        = "started"
	ReasonConfirmed      = "confirmed"
	ReasonDeclined       = "declined"
	ReasonConfirmTimeout = "confirm_timeout"
	ReasonStopped        = "stopped"
	ReasonError          = "error"
	ReasonShutdown       = "shutdown"
)

// Transition describes one state change.
type Transition struct {
	UserID    string
	SessionID string
	Role      string
	From      State
	To        State
	Reason    string
	Err       error
}

// Observer is told about every transition, outside the user's lock.
type Observer interface {
	OnTransition(t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Transition)

// OnTransition implements Observer.
func (f ObserverFunc) OnTransition(t Transition) { f(t) }

// Cycle is the work handed to the CycleRunner.
type Cycle struct {
	SessionID string
	UserID    string
	Role      string
	Queries   []string
	Filter    scraper.FilterSpec
	Number    int
	// Done is closed when the session is stopped. It outlives the cycle
	// deadline, so a runner finishing a timed-out cycle can still see a stop.
	Done <-chan struct{}
}

// Stopped reports whether the session behind c has been stopped.
func (c Cycle) Stopped() bool {
	select {
	case <-c.Done:
		return true
	default:
		return false
	}
}

// CycleRunner executes one scrape cycle for a session. Returning an error
// wrapping ErrFatal ends the session; any other error is logged and the
// session keeps cycling.
type CycleRunner interface {
	RunCycle(ctx context.Context, c Cycle) error
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	Role        string             `json:"role"`
	Queries     []string           `json:"queries"`
	Filter      scraper.FilterSpec `json:"filter"`
	State       State              `json:"state"`
	Cycles      int                `json:"cycles"`
	CreatedAt   time.Time          `json:"created_at"`
	ActivatedAt time.Time          `json:"activated_at,omitempty"`
	LastCycleAt time.Time          `json:"last_cycle_at,omitempty"`
	LastError   string             `json:"last_error,omitempty"`
}

// Config tunes the manager. Zero values take the defaults.
type Config struct {
	Interval       time.Duration
	CycleTimeout   time.Duration
	ConfirmTimeout time.Duration
	MaxQueries     int
}

type session struct {
	mu sync.Mutex

	id          string
	userID      string
	role        string
	queries     []string
	filter      scraper.FilterSpec
	state       State
	cycles      int
	createdAt   time.Time
	activatedAt time.Time
	lastCycleAt time.Time
	lastErr     string

	// gen changes on every transition; timers and loops from an older
	// generation become no-ops.
	gen    uint64
	timer  scraper.Timer
	cancel context.CancelFunc
}

func (s *session) snapshot() Snapshot {
	return Snapshot{
		ID:          s.id,
		UserID:      s.userID,
		Role:        s.role,
		Queries:     append([]string(nil), s.queries...),
		Filter:      s.filter,
		State:       s.state,
		Cycles:      s.cycles,
		CreatedAt:   s.createdAt,
		ActivatedAt: s.activatedAt,
		LastCycleAt: s.lastCycleAt,
		LastError:   s.lastErr,
	}
}

// Manager is the sole owner of user sessions.
type Manager struct {
	runner   CycleRunner
	clock    scraper.Clock
	ids      scraper.IDGenerator
	observer Observer
	logger   *zap.Logger
	cfg      Config

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool

	active atomic.Int64
	wg     sync.WaitGroup
	base   context.Context
	stop   context.CancelFunc
}

// New returns a Manager. observer may be nil.
func New(runner CycleRunner, clock scraper.Clock, ids scraper.IDGenerator, observer Observer, logger *zap.Logger, cfg Config) (*Manager, error) {
	if runner == nil {
		return nil, errors.New("session: cycle runner is required")
	}
	if clock == nil {
		return nil, errors.New("session: clock is required")
	}
	if ids == nil {
		return nil, errors.New("session: id generator is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = DefaultCycleTimeout
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = DefaultMaxQueries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		runner:   runner,
		clock:    clock,
		ids:      ids,
		observer: observer,
		logger:   logger.Named("session"),
		cfg:      cfg,
		sessions: make(map[string]*session),
		base:     base,
		stop:     stop,
	}, nil
}

// entry returns the user's session record, creating an Idle one if needed.
func (m *Manager) entry(userID string, create bool) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed && create {
		return nil, ErrClosed
	}
	s, ok := m.sessions[userID]
	if !ok {
		if !create {
			return nil, ErrNoSession
		}
		s = &session{userID: userID, state: StateIdle}
		m.sessions[userID] = s
	}
	return s, nil
}

// Start moves an Idle user to AwaitingConfirmation with role and its
// expanded queries.
func (m *Manager) Start(userID, role string, filter scraper.FilterSpec) (Snapshot, error) {
	role = strings.Join(strings.Fields(role), " ")
	if role == "" {
		return Snapshot{}, ErrEmptyRole
	}
	s, err := m.entry(userID, true)
	if err != nil {
		return Snapshot{}, err
	}
	id, err := m.ids.NewID()
	if err != nil {
		return Snapshot{}, fmt.Errorf("session id: %w", err)
	}

	s.mu.Lock()
	if s.state != StateIdle {
		from := s.state
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: start from %s", ErrInvalidTransition, from)
	}
	s.id = id
	s.role = strings.ToLower(role)
	s.queries = Expand(role, m.cfg.MaxQueries)
	s.filter = filter
	s.cycles = 0
	s.createdAt = m.clock.Now()
	s.activatedAt = time.Time{}
	s.lastCycleAt = time.Time{}
	s.lastErr = ""
	t := m.transition(s, StateAwaitingConfirmation, ReasonStarted, nil)
	gen := s.gen
	s.timer = m.clock.AfterFunc(m.cfg.ConfirmTimeout, func() { m.expire(userID, gen) })
	snap := s.snapshot()
	s.mu.Unlock()

	m.notify(t)
	return snap, nil
}

// Confirm activates an AwaitingConfirmation session and starts its cycles:
// one immediately, then one every interval after the previous finished.
func (m *Manager) Confirm(userID string) (Snapshot, error) {
	s, err := m.entry(userID, false)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.mu.Unlock()
		return Snapshot{}, ErrNoSession
	case StateActive:
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: confirm from %s", ErrInvalidTransition, StateActive)
	}
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		s.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	m.stopTimer(s)
	t := m.transition(s, StateActive, ReasonConfirmed, nil)
	s.activatedAt = m.clock.Now()
	ctx, cancel := context.WithCancel(m.base)
	s.cancel = cancel
	m.wg.Add(1)
	go m.loop(ctx, s, s.gen)
	snap := s.snapshot()
	s.mu.Unlock()

	m.notify(t)
	return snap, nil
}

// Decline returns an AwaitingConfirmation session to Idle.
func (m *Manager) Decline(userID string) (Snapshot, error) {
	return m.end(userID, ReasonDeclined, StateAwaitingConfirmation)
}

// Stop returns an Active session to Idle. No further cycle starts; an
// in-flight cycle has its context cancelled and its results are discarded.
func (m *Manager) Stop(userID string) (Snapshot, error) {
	return m.end(userID, ReasonStopped, StateActive)
}

func (m *Manager) end(userID, reason string, from State) (Snapshot, error) {
	s, err := m.entry(userID, false)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return Snapshot{}, ErrNoSession
	}
	if s.state != from {
		state := s.state
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, reason, state)
	}
	t := m.teardown(s, reason, nil)
	snap := s.snapshot()
	s.mu.Unlock()

	m.notify(t)
	return snap, nil
}

// Status returns the user's non-idle session.
func (m *Manager) Status(userID string) (Snapshot, error) {
	s, err := m.entry(userID, false)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return Snapshot{}, ErrNoSession
	}
	return s.snapshot(), nil
}

// List returns every non-idle session ordered by user id.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	all := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		if s.state != StateIdle {
			out = append(out, s.snapshot())
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Active reports how many sessions are cycling.
func (m *Manager) Active() int {
	return int(m.active.Load())
}

// Shutdown tears every session down and waits for cycle loops to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	all := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	var transitions []Transition
	for _, s := range all {
		s.mu.Lock()
		if s.state != StateIdle {
			transitions = append(transitions, m.teardown(s, ReasonShutdown, nil))
		}
		s.mu.Unlock()
	}
	for _, t := range transitions {
		m.notify(t)
	}
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session shutdown wait: %w", ctx.Err())
	}
}

func (m *Manager) expire(userID string, gen uint64) {
	s, err := m.entry(userID, false)
	if err != nil {
		return
	}
	s.mu.Lock()
	if s.gen != gen || s.state != StateAwaitingConfirmation {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	t := m.teardown(s, ReasonConfirmTimeout, nil)
	s.mu.Unlock()
	m.notify(t)
}

func (m *Manager) loop(ctx context.Context, s *session, gen uint64) {
	defer m.wg.Done()
	logger := m.logger.With(zap.String("user_id", s.userID))

	for n := 1; ; n++ {
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		cycle := Cycle{
			SessionID: s.id,
			UserID:    s.userID,
			Role:      s.role,
			Queries:   append([]string(nil), s.queries...),
			Filter:    s.filter,
			Number:    n,
			Done:      ctx.Done(),
		}
		s.mu.Unlock()

		cycleCtx, cancel := context.WithTimeout(ctx, m.cfg.CycleTimeout)
		err := m.runner.RunCycle(cycleCtx, cycle)
		cancel()

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.cycles = n
		s.lastCycleAt = m.clock.Now()
		s.lastErr = ""
		if err != nil {
			s.lastErr = err.Error()
		}
		if errors.Is(err, ErrFatal) {
			logger.Error("session ended by cycle error", zap.Int("cycle", n), zap.Error(err))
			t := m.teardown(s, ReasonError, err)
			s.mu.Unlock()
			m.notify(t)
			return
		}
		s.mu.Unlock()
		if err != nil {
			logger.Warn("cycle failed", zap.Int("cycle", n), zap.Error(err))
		}

		if err := m.clock.Sleep(ctx, m.cfg.Interval); err != nil {
			return
		}
	}
}

// teardown moves s to Idle. Caller holds s.mu.
func (m *Manager) teardown(s *session, reason string, cause error) Transition {
	m.stopTimer(s)
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return m.transition(s, StateIdle, reason, cause)
}

// transition sets the new state. Caller holds s.mu.
func (m *Manager) transition(s *session, to State, reason string, cause error) Transition {
	from := s.state
	s.state = to
	s.gen++
	switch {
	case to == StateActive && from != StateActive:
		metrics.SetActiveSessions(int(m.active.Add(1)))
	case from == StateActive && to != StateActive:
		metrics.SetActiveSessions(int(m.active.Add(-1)))
	}
	m.logger.Info("session transition",
		zap.String("user_id", s.userID),
		zap.String("session_id", s.id),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.String("reason", reason),
	)
	return Transition{
		UserID:    s.userID,
		SessionID: s.id,
		Role:      s.role,
		From:      from,
		To:        to,
		Reason:    reason,
		Err:       cause,
	}
}

func (m *Manager) stopTimer(s *session) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (m *Manager) notify(t Transition) {
	if m.observer != nil {
		m.observer.OnTransition(t)
	}
}

package commands

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cpu/acmekit/acme/client"
	"github.com/cpu/acmekit/acme/solver"
	"github.com/cpu/acmekit/internal/logging"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ErrNoActiveAccount is returned by commands that need an account before one
// was created or loaded.
var ErrNoActiveAccount = errors.New("no active account. Use newAccount or loadAccount")

// SessionConfig holds what the shell's commands share.
type SessionConfig struct {
	Directory *client.Directory
	// ChallSrv publishes challenge responses for solve and solveAll.
	ChallSrv solver.ChallengeServer
	// Filesystem used by saveAccount and loadAccount. Defaults to the OS
	// filesystem.
	Fs afero.Fs
	// Interval between polls of challenges and orders.
	Interval time.Duration
	// Timeout of a single command. Zero means no timeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Session is the state of an interactive shell: the directory, the accounts
// created or loaded so far and the orders each of them made. A Session is safe
// for concurrent use.
type Session struct {
	dir      *client.Directory
	challSrv solver.ChallengeServer
	fs       afero.Fs
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	accounts []*client.Account
	active   int
	// orders made by each account, keyed by account URL.
	orders map[string][]*client.Order
}

// NewSession returns a Session without any account.
func NewSession(conf SessionConfig) (*Session, error) {
	if conf.Directory == nil {
		return nil, errors.New("session directory must not be nil")
	}
	if conf.Fs == nil {
		conf.Fs = afero.NewOsFs()
	}
	if conf.Interval <= 0 {
		conf.Interval = time.Second
	}
	if conf.Logger == nil {
		conf.Logger = logging.Discard()
	}
	return &Session{
		dir:      conf.Directory,
		challSrv: conf.ChallSrv,
		fs:       conf.Fs,
		interval: conf.Interval,
		timeout:  conf.Timeout,
		log:      conf.Logger,
		active:   -1,
		orders:   make(map[string][]*client.Order),
	}, nil
}

func (s *Session) Directory() *client.Directory { return s.dir }
func (s *Session) Fs() afero.Fs                 { return s.fs }
func (s *Session) Interval() time.Duration      { return s.interval }
func (s *Session) Logger() *slog.Logger         { return s.log }

// ChallSrv returns the challenge server responses are published on.
func (s *Session) ChallSrv() (solver.ChallengeServer, error) {
	if s.challSrv == nil {
		return nil, errors.New("no challenge server configured")
	}
	return s.challSrv, nil
}

// Solver returns a solver publishing on the session's challenge server.
func (s *Session) Solver() (solver.Solver, error) {
	srv, err := s.ChallSrv()
	if err != nil {
		return nil, err
	}
	return solver.NewChallSrvSolver(srv), nil
}

// Context returns the context a command runs under.
func (s *Session) Context() (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(context.Background(), s.timeout)
	}
	return context.WithCancel(context.Background())
}

// AddAccount adds acct to the session and makes it the active account. An
// account already known under the same URL is replaced.
func (s *Session) AddAccount(acct *client.Account) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, known := range s.accounts {
		if known.ID() == acct.ID() {
			s.accounts[i] = acct
			s.active = i
			return i
		}
	}
	s.accounts = append(s.accounts, acct)
	s.active = len(s.accounts) - 1
	return s.active
}

// Accounts returns the session's accounts in the order they were added.
func (s *Session) Accounts() []*client.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*client.Account(nil), s.accounts...)
}

// ActiveIndex returns the index of the active account, or -1.
func (s *Session) ActiveIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Active returns the active account.
func (s *Session) Active() (*client.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active < 0 {
		return nil, ErrNoActiveAccount
	}
	return s.accounts[s.active], nil
}

// Switch makes the account at index active.
func (s *Session) Switch(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.accounts) {
		return errors.Errorf("account index %d out of range [0, %d)", index, len(s.accounts))
	}
	s.active = index
	return nil
}

// AddOrder records an order made by the active account.
func (s *Session) AddOrder(order *client.Order) (int, error) {
	acct, err := s.Active()
	if err != nil {
		return -1, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[acct.ID()] = append(s.orders[acct.ID()], order)
	return len(s.orders[acct.ID()]) - 1, nil
}

// Orders returns the orders of the active account.
func (s *Session) Orders() []*client.Order {
	acct, err := s.Active()
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*client.Order(nil), s.orders[acct.ID()]...)
}

// Order returns the active account's order at index.
func (s *Session) Order(index int) (*client.Order, error) {
	orders := s.Orders()
	if len(orders) == 0 {
		return nil, errors.New("active account has no orders")
	}
	if index < 0 || index >= len(orders) {
		return nil, errors.Errorf("order index %d out of range [0, %d)", index, len(orders))
	}
	return orders[index], nil
}

// ReplaceAccount swaps in acct for the known account with the same URL, e.g.
// after a key rollover, and reloads that account's orders with it.
func (s *Session) ReplaceAccount(ctx context.Context, acct *client.Account) error {
	s.mu.Lock()
	previous := append([]*client.Order(nil), s.orders[acct.ID()]...)
	s.mu.Unlock()

	reloaded := make([]*client.Order, 0, len(previous))
	for _, order := range previous {
		fresh, err := acct.Order(ctx, order.URL())
		if err != nil {
			return err
		}
		reloaded = append(reloaded, fresh)
	}

	s.AddAccount(acct)
	s.mu.Lock()
	s.orders[acct.ID()] = reloaded
	s.mu.Unlock()
	return nil
}

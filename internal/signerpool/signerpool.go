// Package signerpool is the Signer Pool (spec §4.7): a per-chain rotating
// pool of privileged signing keys. Leases are exclusive — a key is in use
// by at most one in-flight settlement at a time, which is what prevents the
// same-nonce collision that would otherwise silently void a settlement.
// The pool is the single point of enforcement for per-key nonce discipline;
// callers never set transaction nonces explicitly.
package signerpool

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	x402f "github.com/x402labs/facilitator"
)

// Signer is one privileged key available for settlement submission. The
// functional-options constructor below is grounded in the way the teacher's
// EVM signer is built (WithPrivateKey/WithNetwork/...), generalized here
// from a payer-side signer into a facilitator-side settlement key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	network    string
}

// Option configures a Signer at construction time.
type Option func(*Signer) error

// WithPrivateKeyHex loads the signer's key from a hex string (no "0x" prefix
// required).
func WithPrivateKeyHex(hexKey string) Option {
	return func(s *Signer) error {
		key, err := crypto.HexToECDSA(trim0x(hexKey))
		if err != nil {
			return fmt.Errorf("signerpool: invalid private key: %w", err)
		}
		s.privateKey = key
		s.address = crypto.PubkeyToAddress(key.PublicKey)
		return nil
	}
}

// WithNetwork pins the signer to one network.
func WithNetwork(network string) Option {
	return func(s *Signer) error {
		s.network = network
		return nil
	}
}

func trim0x(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// NewSigner builds a Signer from functional options.
func NewSigner(opts ...Option) (*Signer, error) {
	s := &Signer{}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.privateKey == nil {
		return nil, fmt.Errorf("signerpool: signer requires a private key")
	}
	return s, nil
}

// Address returns the signer's EVM address.
func (s *Signer) Address() common.Address { return s.address }

// PrivateKey exposes the raw key for the settlement engine's transactor
// construction (bind.NewKeyedTransactorWithChainID). Only called while a
// Lease for this signer is held.
func (s *Signer) PrivateKey() *ecdsa.PrivateKey { return s.privateKey }

// Outcome records what happened during a lease, driving quarantine.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
)

// quarantineThreshold is how many consecutive failures quarantine a key.
const quarantineThreshold = 3

// quarantineCooldown is how long a quarantined key is held out of rotation.
const quarantineCooldown = 2 * time.Minute

type slot struct {
	signer       *Signer
	failureCount int
}

// networkPool is the per-network state: a buffered channel of available
// slot indices gives FIFO-ish waiter ordering (Go's channel runtime queues
// blocked receivers in arrival order) without a hand-rolled wait queue.
type networkPool struct {
	mu        sync.Mutex
	slots     []*slot
	available chan int
}

// Pool is the Signer Pool across all configured networks.
type Pool struct {
	pools map[string]*networkPool
	log   *zap.Logger
}

// New builds a Pool from the given signers, grouped by their pinned
// network. A network with zero signers configured is a startup-time
// configuration error (spec §9 "Panic vs error": a missing signer for a
// network should refuse to start, not fail individual requests), so callers
// should validate network coverage before calling New in production.
func New(signers []*Signer, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	byNetwork := map[string][]*Signer{}
	for _, s := range signers {
		byNetwork[s.network] = append(byNetwork[s.network], s)
	}

	pools := make(map[string]*networkPool, len(byNetwork))
	for network, ss := range byNetwork {
		np := &networkPool{available: make(chan int, len(ss))}
		for i, s := range ss {
			np.slots = append(np.slots, &slot{signer: s})
			np.available <- i
		}
		pools[network] = np
	}
	return &Pool{pools: pools, log: log}
}

// Lease is an exclusive right to use one signer for one on-chain
// transaction (spec glossary: Signer lease).
type Lease struct {
	Signer  *Signer
	network string
	index   int
	pool    *Pool
	done    bool
	mu      sync.Mutex
}

// Acquire blocks until a signer for network is available, ctx is cancelled,
// or no signer becomes available before ctx's deadline. Ordering of
// waiters is FIFO at the channel level.
func (p *Pool) Acquire(ctx context.Context, network string) (*Lease, error) {
	np, ok := p.pools[network]
	if !ok {
		return nil, fmt.Errorf("signerpool: %w: no signers configured for network %q", x402f.ErrNoSignerAvailable, network)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("signerpool: %w: %v", x402f.ErrNoSignerAvailable, ctx.Err())
		case idx := <-np.available:
			np.mu.Lock()
			sl := np.slots[idx]
			quarantined := sl.failureCount >= quarantineThreshold
			np.mu.Unlock()

			if quarantined {
				// Release back into rotation after the cooldown elapses,
				// then keep looking for a usable signer.
				go func(i int, cooldown time.Duration) {
					time.Sleep(cooldown)
					np.available <- i
				}(idx, quarantineCooldown)
				p.log.Warn("signer quarantined, skipping", zap.String("network", network))
				continue
			}

			return &Lease{Signer: sl.signer, network: network, index: idx, pool: p}, nil
		}
	}
}

// Release records the outcome of a lease and returns the signer to
// rotation (or, on repeated failure, starts its quarantine cooldown).
func (l *Lease) Release(outcome Outcome) {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return
	}
	l.done = true
	l.mu.Unlock()

	np := l.pool.pools[l.network]
	np.mu.Lock()
	sl := np.slots[l.index]
	switch outcome {
	case OutcomeSuccess:
		sl.failureCount = 0
	case OutcomeFailure:
		sl.failureCount++
	}
	quarantineNow := sl.failureCount >= quarantineThreshold
	np.mu.Unlock()

	if quarantineNow {
		l.pool.log.Warn("signer entering quarantine", zap.String("network", l.network), zap.Duration("cooldown", quarantineCooldown))
		go func(i int) {
			time.Sleep(quarantineCooldown)
			np.mu.Lock()
			np.slots[i].failureCount = 0
			np.mu.Unlock()
			np.available <- i
		}(l.index)
		return
	}

	np.available <- l.index
}

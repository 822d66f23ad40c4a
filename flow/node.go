package flow

import (
	"errors"
	"time"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/gregorybednov/ledgerflow/ledger"
)

// Config bounds how long a protocol instance may stay suspended.
type Config struct {
	// How long the initiator waits for each counterparty's answer.
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
	// How long a responder waits for the commit after signing.
	FinalityTimeout time.Duration `mapstructure:"finality_timeout"`
	// Half-width of the time window put on issuances and redemptions.
	TimeTolerance time.Duration `mapstructure:"time_tolerance"`
}

func DefaultConfig() Config {
	return Config{
		ResponseTimeout: 30 * time.Second,
		FinalityTimeout: 60 * time.Second,
		TimeTolerance:   30 * time.Second,
	}
}

// Services are the collaborators a node is built from. Vault is optional.
type Services struct {
	Identity Identity
	Signer   Signer
	Network  Network
	Finality Finality
	Notary   NotaryResolver
	Vault    Vault
}

// Node runs the signing protocol for one party. It is safe for concurrent
// use: every Propose and Respond call is an independent protocol instance.
type Node struct {
	svc      Services
	cfg      Config
	policy   Policy
	logger   log.Logger
	observer Observer
	clock    func() time.Time
}

type Option func(*Node)

func WithConfig(cfg Config) Option { return func(n *Node) { n.cfg = cfg } }

// WithPolicy sets the rules applied before signing as a responder.
func WithPolicy(p Policy) Option { return func(n *Node) { n.policy = p } }

func WithLogger(l log.Logger) Option { return func(n *Node) { n.logger = l } }

func WithObserver(o Observer) Option { return func(n *Node) { n.observer = o } }

func WithClock(clock func() time.Time) Option { return func(n *Node) { n.clock = clock } }

func NewNode(svc Services, opts ...Option) (*Node, error) {
	switch {
	case svc.Identity == nil:
		return nil, errors.New("flow: identity is required")
	case svc.Signer == nil:
		return nil, errors.New("flow: signer is required")
	case svc.Network == nil:
		return nil, errors.New("flow: network is required")
	case svc.Finality == nil:
		return nil, errors.New("flow: finality is required")
	case svc.Notary == nil:
		return nil, errors.New("flow: notary resolver is required")
	}
	n := &Node{
		svc:    svc,
		cfg:    DefaultConfig(),
		policy: AcceptAll,
		logger: log.NewNopLogger(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With("module", "flow", "party", n.Me().Name)
	return n, nil
}

func (n *Node) Me() ledger.Party { return n.svc.Identity.Me() }

// Notary is the notary this node addresses its proposals to.
func (n *Node) Notary() ledger.Party { return n.svc.Notary.ResolveNotary() }

func (n *Node) track(role Role, id ledger.Hash, initial State) *tracker {
	return &tracker{
		party:    n.Me().Name,
		role:     role,
		txID:     id,
		state:    initial,
		logger:   n.logger,
		observer: n.observer,
	}
}

func (n *Node) record(stx *ledger.SignedTransaction) error {
	if n.svc.Vault == nil {
		return nil
	}
	return n.svc.Vault.Record(stx)
}

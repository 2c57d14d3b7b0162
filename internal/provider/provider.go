// Package provider adapts an injected wallet provider into a handle with a
// uniform request and subscription surface.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/logger"

	"logane/internal/errs"
)

// Provider events.
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
)

// Listener is an event handler. Handlers are registered and removed by
// pointer identity.
type Listener struct {
	fn func(data any)
}

// NewListener wraps fn.
func NewListener(fn func(data any)) *Listener {
	return &Listener{fn: fn}
}

// Call invokes the handler.
func (l *Listener) Call(data any) {
	if l != nil && l.fn != nil {
		l.fn(data)
	}
}

// Requester is the minimum an injected object needs to count as a provider.
type Requester interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// The subscription capabilities, under both naming conventions.
type (
	Subscriber interface {
		On(event string, l *Listener)
	}
	ListenerAdder interface {
		AddListener(event string, l *Listener)
	}
	Unsubscriber interface {
		Off(event string, l *Listener)
	}
	ListenerRemover interface {
		RemoveListener(event string, l *Listener)
	}
	OnceSubscriber interface {
		Once(event string, l *Listener)
	}
)

// MultiProvider is an injected object bundling several wallets.
type MultiProvider interface {
	Providers() []any
}

// Identifier lets a provider claim to be the reference wallet implementation.
type Identifier interface {
	IsMetaMask() bool
}

// Signer signs transactions for one account.
type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// SignerSource is implemented by providers able to sign transactions. A zero
// account selects the provider's current account.
type SignerSource interface {
	Signer(ctx context.Context, account common.Address) (Signer, error)
}

// Provider is the capability-complete handle produced by Adapt.
type Provider struct {
	raw  any
	req  Requester
	on   func(event string, l *Listener)
	off  func(event string, l *Listener)
	once func(event string, l *Listener)
}

var (
	adaptedMu sync.Mutex
	adapted   = make(map[any]*Provider)
)

// Adapt returns the canonical handle for injected, or nil when there is no
// usable provider. Adapting the same pointer twice returns the same handle.
func Adapt(injected any) *Provider {
	if injected == nil {
		return nil
	}
	if p, ok := injected.(*Provider); ok {
		return p
	}
	if multi, ok := injected.(MultiProvider); ok {
		if picked := pick(multi.Providers()); picked != nil {
			injected = picked
		}
	}

	// Only pointers are cached: a value may hold unhashable fields and would
	// stay pinned in the map.
	cacheable := reflect.TypeOf(injected).Kind() == reflect.Pointer
	if cacheable {
		adaptedMu.Lock()
		defer adaptedMu.Unlock()
		if p, ok := adapted[injected]; ok {
			return p
		}
	}

	req, ok := injected.(Requester)
	if !ok {
		return nil
	}
	p := &Provider{raw: injected, req: req}
	p.normalize()
	if cacheable {
		adapted[injected] = p
	}
	return p
}

func pick(subs []any) any {
	var first any
	for _, sub := range subs {
		if sub == nil {
			continue
		}
		if id, ok := sub.(Identifier); ok && id.IsMetaMask() {
			return sub
		}
		if first == nil {
			first = sub
		}
	}
	return first
}

func (p *Provider) normalize() {
	switch v := p.raw.(type) {
	case Subscriber:
		p.on = v.On
	case ListenerAdder:
		p.on = v.AddListener
	}
	switch v := p.raw.(type) {
	case ListenerRemover:
		p.off = v.RemoveListener
	case Unsubscriber:
		p.off = v.Off
	}
	if v, ok := p.raw.(OnceSubscriber); ok {
		p.once = v.Once
	} else if p.on != nil && p.off != nil {
		p.once = p.deriveOnce
	}
}

func (p *Provider) deriveOnce(event string, l *Listener) {
	var wrapper *Listener
	wrapper = NewListener(func(data any) {
		p.off(event, wrapper)
		l.Call(data)
	})
	p.on(event, wrapper)
}

// Raw returns the injected object behind the handle.
func (p *Provider) Raw() any { return p.raw }

// IsMetaMask reports whether the wrapped provider claims to be the reference wallet.
func (p *Provider) IsMetaMask() bool {
	id, ok := p.raw.(Identifier)
	return ok && id.IsMetaMask()
}

// Request forwards an RPC request to the wrapped provider.
func (p *Provider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if p == nil || p.req == nil {
		return nil, errs.New(errs.ProviderUnavailable, "no wallet provider detected")
	}
	return p.req.Request(ctx, method, params...)
}

// Call performs a request and decodes its result into out.
func (p *Provider) Call(ctx context.Context, out any, method string, params ...any) error {
	raw, err := p.Request(ctx, method, params...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// On subscribes l to event.
func (p *Provider) On(event string, l *Listener) {
	if p.on == nil {
		logger.Warningf("provider cannot subscribe to %q", event)
		return
	}
	p.on(event, l)
}

// AddListener is an alias of On.
func (p *Provider) AddListener(event string, l *Listener) { p.On(event, l) }

// Off unsubscribes l from event.
func (p *Provider) Off(event string, l *Listener) {
	if p.off == nil {
		return
	}
	p.off(event, l)
}

// RemoveListener is an alias of Off.
func (p *Provider) RemoveListener(event string, l *Listener) { p.Off(event, l) }

// Once subscribes l for a single delivery of event.
func (p *Provider) Once(event string, l *Listener) {
	if p.once == nil {
		logger.Warningf("provider cannot subscribe to %q", event)
		return
	}
	p.once(event, l)
}

// Signer returns a transaction signer for account.
func (p *Provider) Signer(ctx context.Context, account common.Address) (Signer, error) {
	if p == nil {
		return nil, errs.New(errs.ProviderUnavailable, "no wallet provider detected")
	}
	src, ok := p.raw.(SignerSource)
	if !ok {
		return nil, errs.New(errs.NoSigner, "wallet provider cannot sign transactions")
	}
	s, err := src.Signer(ctx, account)
	if err != nil {
		return nil, errs.Wrap(errs.NoSigner, err, "wallet signer unavailable")
	}
	return s, nil
}

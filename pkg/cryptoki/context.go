// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-cryptoki.
//
// go-cryptoki is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package cryptoki is the public surface of the provider core. A Context
// is an explicit, caller-constructed value with an Initialize/Finalize
// lifecycle; there is no ambient global. All operations address sessions
// and objects through opaque handles that are never reused within one
// Context lifetime.
package cryptoki

import (
	"github.com/jeremyhahn/go-cryptoki/pkg/backend"
	"github.com/jeremyhahn/go-cryptoki/pkg/backend/software"
	"github.com/jeremyhahn/go-cryptoki/pkg/logging"
	"github.com/jeremyhahn/go-cryptoki/pkg/session"
	"github.com/jeremyhahn/go-cryptoki/pkg/storage"
	"github.com/jeremyhahn/go-cryptoki/pkg/transport"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"

	"sync"
)

const (
	manufacturer = "Automate The Things, LLC"
	description  = "go-cryptoki software provider"
	version      = "1.0.0"
)

// DefaultLabel names tokens whose configuration does not set one.
const DefaultLabel = "go-cryptoki token"

// Config carries everything Initialize needs. The zero value yields a
// single ephemeral software token in slot 1.
type Config struct {
	// Label is applied to tokens that have no persisted label.
	Label string

	// Slots lists the slot IDs the provider serves. Empty means slot 1.
	Slots []types.SlotID

	// MaxPINAttempts is the consecutive-failure lockout threshold. Zero
	// selects the default.
	MaxPINAttempts int

	// Storage persists token state between Context lifetimes. Nil means
	// tokens are ephemeral.
	Storage storage.Backend

	// Transport reports slot and token presence. Nil means a software
	// transport with every configured slot present.
	Transport transport.TokenTransport

	// Backends are registered in order; the first registered backend
	// serving a mechanism wins, and the first overall serves keyless
	// operations. Nil means the software backend alone.
	Backends []backend.Backend

	// Logger for provider events. Nil means the default logger.
	Logger *logging.Logger
}

// Context is the process-wide provider state.
type Context struct {
	mu          sync.RWMutex
	initialized bool
	logger      *logging.Logger
	registry    *backend.Registry
	transport   transport.TokenTransport
	handles     *session.HandleSource
	tokens      map[types.SlotID]*token
	slots       []types.SlotID
	label       string
	maxAttempts int
}

// New creates an uninitialized Context.
func New() *Context {
	return &Context{}
}

// Initialize establishes the provider state: backends are registered,
// slots are populated with tokens, and persisted token state is restored.
// A second Initialize without an intervening Finalize fails with
// ErrAlreadyInitialized.
func (c *Context) Initialize(cfg Config) error {
	const op = "Context.Initialize"

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return types.NewError(op, types.ErrAlreadyInitialized)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	slots := cfg.Slots
	if len(slots) == 0 {
		slots = []types.SlotID{1}
	}
	label := cfg.Label
	if label == "" {
		label = DefaultLabel
	}

	registry := backend.NewRegistry()
	if len(cfg.Backends) == 0 {
		registry.Register(software.New())
	}
	for _, b := range cfg.Backends {
		registry.Register(b)
		logger.Debug("backend registered", "backend", b.Name())
	}

	tr := cfg.Transport
	if tr == nil {
		tr = transport.NewSoftSlots(slots...)
	}

	handles := &session.HandleSource{}
	tokens := make(map[types.SlotID]*token, len(slots))
	for _, slot := range slots {
		tok, err := newToken(slot, label, cfg.MaxPINAttempts, registry, handles, cfg.Storage, logger)
		if err != nil {
			registry.Close()
			return err
		}
		tokens[slot] = tok
	}

	c.logger = logger
	c.registry = registry
	c.transport = tr
	c.handles = handles
	c.tokens = tokens
	c.slots = slots
	c.label = label
	c.maxAttempts = cfg.MaxPINAttempts
	c.initialized = true

	logger.Info("provider initialized",
		"slots", len(slots), "mechanisms", len(registry.Mechanisms()))
	return nil
}

// Finalize tears the provider down: every session on every token is
// closed, persisted tokens are saved, and backends are released. Calling
// Finalize on an uninitialized Context is a no-op.
func (c *Context) Finalize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil
	}

	var firstErr error
	for _, slot := range c.slots {
		tok := c.tokens[slot]
		manager, _ := tok.components()
		manager.CloseAll()
		if err := tok.save(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.registry.Close(); err != nil && firstErr == nil {
		firstErr = types.NewError("Context.Finalize", types.ErrDeviceError).WithCause(err)
	}

	c.logger.Info("provider finalized")
	c.initialized = false
	c.registry = nil
	c.transport = nil
	c.handles = nil
	c.tokens = nil
	c.slots = nil
	return firstErr
}

// GetInfo returns the provider descriptor.
func (c *Context) GetInfo() (types.Info, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return types.Info{}, types.NewError("Context.GetInfo", types.ErrNotInitialized)
	}
	return types.Info{
		Manufacturer: manufacturer,
		Description:  description,
		Version:      version,
	}, nil
}

// ListSlots enumerates slots freshly from the transport on every call.
// With tokenPresentOnly set, slots whose token is absent are filtered out.
func (c *Context) ListSlots(tokenPresentOnly bool) ([]types.SlotDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return nil, types.NewError("Context.ListSlots", types.ErrNotInitialized)
	}

	var out []types.SlotDescriptor
	for _, d := range c.transport.EnumerateSlots() {
		if tokenPresentOnly && !d.TokenPresent {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// GetTokenInfo returns the descriptor of the token in a slot.
func (c *Context) GetTokenInfo(slot types.SlotID) (types.TokenInfo, error) {
	const op = "Context.GetTokenInfo"

	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return types.TokenInfo{}, types.NewError(op, types.ErrNotInitialized)
	}
	tok, err := c.tokenFor(op, slot)
	if err != nil {
		return types.TokenInfo{}, err
	}
	return tok.info(len(c.registry.Mechanisms())), nil
}

// Mechanisms returns every mechanism type the provider serves.
func (c *Context) Mechanisms() ([]types.MechanismType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return nil, types.NewError("Context.Mechanisms", types.ErrNotInitialized)
	}
	return c.registry.Mechanisms(), nil
}

// tokenFor resolves a slot to its token, checking transport presence.
// Caller holds at least a read lock on an initialized Context.
func (c *Context) tokenFor(op string, slot types.SlotID) (*token, error) {
	tok, ok := c.tokens[slot]
	if !ok {
		return nil, types.NewError(op, types.ErrSlotIDInvalid).
			WithDetail("no such slot")
	}
	if !c.transport.IsTokenPresent(slot) {
		return nil, types.NewError(op, types.ErrTokenNotPresent)
	}
	return tok, nil
}

// resolve locates the token and session for a handle. Handles are unique
// across slots because every manager draws from one shared source.
func (c *Context) resolve(op string, h types.SessionHandle) (*token, *session.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return nil, nil, types.NewError(op, types.ErrNotInitialized)
	}
	for _, slot := range c.slots {
		tok := c.tokens[slot]
		manager, _ := tok.components()
		if s, err := manager.Get(h); err == nil {
			return tok, s, nil
		}
	}
	return nil, nil, types.NewError(op, types.ErrSessionHandleInvalid).WithSession(h)
}

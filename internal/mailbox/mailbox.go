package mailbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"gopkg.in/op/go-logging.v1"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/worker"
)

// Side identifies one of the two participants of a channel.
type Side uint8

const (
	// SideA opened the channel.
	SideA Side = iota
	// SideB joined it.
	SideB
)

func (s Side) other() Side { return 1 - s }

func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

// Reason is why a channel was closed.
type Reason uint8

const (
	ReasonConsumed Reason = iota + 1
	ReasonExpired
	ReasonAborted
)

func (r Reason) String() string {
	switch r {
	case ReasonConsumed:
		return "consumed"
	case ReasonExpired:
		return "expired"
	case ReasonAborted:
		return "aborted"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// Err returns the error a participant sees for a channel closed with r.
func (r Reason) Err() error {
	switch r {
	case ReasonConsumed:
		return kerrors.ErrChannelConsumed
	case ReasonExpired:
		return kerrors.ErrChannelExpired
	default:
		return kerrors.ErrChannelAborted
	}
}

// Mode selects how Open treats an existing channel.
type Mode uint8

const (
	ModeAny Mode = iota
	ModeCreate
	ModeJoin
)

// Hooks observe channel lifecycle events. Any hook may be nil.
type Hooks struct {
	Opened  func()
	Paired  func()
	Closed  func(reason Reason, lifetime time.Duration)
	Relayed func(n int)
	Refused func(err error)
}

// Config configures a Registry.
type Config struct {
	// MaxChannels caps the number of live channels.
	MaxChannels int

	// TTL bounds the lifetime of every channel.
	TTL time.Duration

	// SweepInterval is how often expired channels are collected.
	SweepInterval time.Duration

	// TombstoneLimit bounds how many closed ids are remembered.
	TombstoneLimit int

	// TombstoneTTL is how long a closed id is remembered. Defaults to 4*TTL.
	TombstoneTTL time.Duration

	// QueueDepth is the number of undelivered messages buffered per
	// direction. Defaults to 8.
	QueueDepth int

	Hooks Hooks
	Log   *logging.Logger
}

type channel struct {
	id       string
	created  time.Time
	deadline time.Time

	participants int
	inbox        [2]chan []byte
	joined       chan struct{}
	done         chan struct{}
	reason       Reason
	timer        *time.Timer
}

// Registry is the concurrency-safe set of live channels.
type Registry struct {
	worker.Worker

	cfg Config
	log *logging.Logger

	mu         sync.Mutex
	channels   map[string]*channel
	tombstones gcache.Cache
	shutdown   bool
}

// New creates a Registry and starts its expiry sweeper.
func New(cfg Config) *Registry {
	if cfg.MaxChannels <= 0 {
		cfg.MaxChannels = 100
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}
	if cfg.TombstoneLimit <= 0 {
		cfg.TombstoneLimit = 10000
	}
	if cfg.TombstoneTTL <= 0 {
		cfg.TombstoneTTL = 4 * cfg.TTL
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 8
	}
	log := cfg.Log
	if log == nil {
		log = logging.MustGetLogger("mailbox")
	}

	r := &Registry{
		cfg:        cfg,
		log:        log,
		channels:   make(map[string]*channel),
		tombstones: gcache.New(cfg.TombstoneLimit).LRU().Build(),
	}
	r.Go(r.sweeper)
	return r
}

// Open attaches the caller to channel id and returns its side.
//
// A missing channel is created (unless mode is ModeJoin) subject to the
// capacity cap. A channel with one participant is joined (unless mode is
// ModeCreate). A channel with two participants is never joined. An id that
// was recently closed reports why it closed.
func (r *Registry) Open(id string, mode Mode) (Side, error) {
	return r.OpenWithTTL(id, mode, 0)
}

// OpenWithTTL is Open with a requested lifetime for a channel it creates.
// The channel lives for the shorter of ttl and the configured TTL; a ttl
// of zero or less means the configured TTL. Joining ignores ttl.
func (r *Registry) OpenWithTTL(id string, mode Mode, ttl time.Duration) (Side, error) {
	r.mu.Lock()
	side, err := r.open(id, mode, ttl)
	r.mu.Unlock()

	hooks := r.cfg.Hooks
	switch {
	case err != nil:
		if hooks.Refused != nil {
			hooks.Refused(err)
		}
		return 0, err
	case side == SideA && hooks.Opened != nil:
		hooks.Opened()
	case side == SideB && hooks.Paired != nil:
		hooks.Paired()
	}
	return side, nil
}

func (r *Registry) open(id string, mode Mode, ttl time.Duration) (Side, error) {
	if r.shutdown {
		return 0, kerrors.ErrChannelAborted
	}

	if ch, ok := r.channels[id]; ok {
		switch {
		case mode == ModeCreate:
			return 0, kerrors.ErrChannelExists
		case ch.participants >= 2:
			return 0, kerrors.ErrChannelFull
		}
		ch.participants = 2
		close(ch.joined)
		r.log.Debugf("channel %s paired", shortID(id))
		return SideB, nil
	}

	if err := r.tombstoneErr(id); err != nil {
		return 0, err
	}
	if mode == ModeJoin {
		return 0, kerrors.ErrChannelNotFound
	}
	if len(r.channels) >= r.cfg.MaxChannels {
		return 0, kerrors.ErrCapacity
	}

	if ttl <= 0 || ttl > r.cfg.TTL {
		ttl = r.cfg.TTL
	}
	now := time.Now()
	ch := &channel{
		id:           id,
		created:      now,
		deadline:     now.Add(ttl),
		participants: 1,
		inbox:        [2]chan []byte{make(chan []byte, r.cfg.QueueDepth), make(chan []byte, r.cfg.QueueDepth)},
		joined:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	ch.timer = time.AfterFunc(ttl, func() { r.closeChannel(ch, ReasonExpired) })
	r.channels[id] = ch
	r.log.Debugf("channel %s created", shortID(id))
	return SideA, nil
}

// tombstoneErr must be called with r.mu held.
func (r *Registry) tombstoneErr(id string) error {
	v, err := r.tombstones.Get(id)
	if err != nil {
		return nil
	}
	return v.(Reason).Err()
}

// lookup returns the live channel for id, or the error explaining why
// there is none.
func (r *Registry) lookup(id string) (*channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[id]; ok {
		return ch, nil
	}
	if err := r.tombstoneErr(id); err != nil {
		return nil, err
	}
	return nil, kerrors.ErrChannelNotFound
}

// AwaitPeer blocks until the channel has two participants.
func (r *Registry) AwaitPeer(ctx context.Context, id string) error {
	ch, err := r.lookup(id)
	if err != nil {
		return err
	}
	select {
	case <-ch.joined:
		return nil
	case <-ch.done:
		return ch.reason.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Relay queues data for the participant opposite from. If the peer has not
// joined yet the call waits for it.
func (r *Registry) Relay(ctx context.Context, id string, from Side, data []byte) error {
	ch, err := r.lookup(id)
	if err != nil {
		return err
	}

	select {
	case <-ch.joined:
	case <-ch.done:
		return ch.reason.Err()
	case <-ctx.Done():
		return ctx.Err()
	}

	msg := append([]byte{}, data...)
	select {
	case ch.inbox[from.other()] <- msg:
	case <-ch.done:
		return ch.reason.Err()
	case <-ctx.Done():
		return ctx.Err()
	}

	if r.cfg.Hooks.Relayed != nil {
		r.cfg.Hooks.Relayed(len(data))
	}
	return nil
}

// Receive returns the next message queued for side, in send order. Queued
// messages are delivered before the channel's close reason is reported.
func (r *Registry) Receive(ctx context.Context, id string, side Side) ([]byte, error) {
	ch, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	in := ch.inbox[side]

	select {
	case msg := <-in:
		return msg, nil
	default:
	}

	select {
	case msg := <-in:
		return msg, nil
	case <-ch.done:
		select {
		case msg := <-in:
			return msg, nil
		default:
			return nil, ch.reason.Err()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close terminates channel id with reason and removes it. Closing an id
// that is not live does nothing and returns false.
func (r *Registry) Close(id string, reason Reason) bool {
	r.mu.Lock()
	ch, ok := r.channels[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return r.closeChannel(ch, reason)
}

// closeChannel removes ch if it is still the live channel under its id.
func (r *Registry) closeChannel(ch *channel, reason Reason) bool {
	r.mu.Lock()
	if cur, ok := r.channels[ch.id]; !ok || cur != ch {
		r.mu.Unlock()
		return false
	}
	delete(r.channels, ch.id)
	if err := r.tombstones.SetWithExpire(ch.id, reason, r.cfg.TombstoneTTL); err != nil {
		r.log.Warningf("failed to record tombstone: %v", err)
	}
	ch.reason = reason
	close(ch.done)
	ch.timer.Stop()
	r.mu.Unlock()

	lifetime := time.Since(ch.created)
	r.log.Debugf("channel %s closed: %s after %v", shortID(ch.id), reason, lifetime.Round(time.Millisecond))
	if r.cfg.Hooks.Closed != nil {
		r.cfg.Hooks.Closed(reason, lifetime)
	}
	return true
}

// Len returns the number of live channels.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// Sweep closes every channel past its deadline and returns how many it
// closed.
func (r *Registry) Sweep() int {
	now := time.Now()
	var expired []*channel
	r.mu.Lock()
	for _, ch := range r.channels {
		if !now.Before(ch.deadline) {
			expired = append(expired, ch)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, ch := range expired {
		if r.closeChannel(ch, ReasonExpired) {
			n++
		}
	}
	return n
}

func (r *Registry) sweeper() {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.HaltCh():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.log.Infof("sweep expired %d channels", n)
			}
		}
	}
}

// Shutdown stops the sweeper and aborts every live channel. Opens after
// Shutdown fail.
func (r *Registry) Shutdown() {
	r.Halt()

	r.mu.Lock()
	r.shutdown = true
	live := make([]*channel, 0, len(r.channels))
	for _, ch := range r.channels {
		live = append(live, ch)
	}
	r.mu.Unlock()

	for _, ch := range live {
		r.closeChannel(ch, ReasonAborted)
	}
	r.log.Noticef("registry shut down, aborted %d channels", len(live))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8] + "…"
	}
	return id
}

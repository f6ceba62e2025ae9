package pipeline

import (
	"net"
	"runtime"
	"time"

	"github.com/haruue-net/wgveil/internal/config"
	"github.com/haruue-net/wgveil/internal/masking"
	"github.com/haruue-net/wgveil/internal/obfuscate"
	"github.com/haruue-net/wgveil/internal/session"
	"github.com/haruue-net/wgveil/internal/wgerr"
	"github.com/haruue-net/wgveil/internal/wglog"
)

// ThreadMode selects how many worker goroutines the engine runs,
// mirroring the original's core-count-based threading_init (SPEC_FULL.md
// §4 item 2 / spec.md §5): single-core configurations collapse the
// pipeline into the ingress goroutine alone.
type ThreadMode int

const (
	ModeSingle ThreadMode = iota
	ModeDual
)

// Engine owns the listening socket, the session table, both SPSC queues,
// and the two worker loops (or none, in single-goroutine mode).
type Engine struct {
	cfg         *config.RelayConfig
	params      *obfuscate.Params
	table       *session.Table
	listenConn  *net.UDPConn
	forwardAddr *net.UDPAddr

	handshakeTimeout time.Duration
	idleTimeout      time.Duration
	maskingName      string

	mode ThreadMode

	clientQueue *Queue
	serverQueue *Queue

	poller poller
	egress *egressBatch

	shutdownCh chan struct{}
	doneCh     chan struct{}
}

// resolveThreadMode implements spec.md §5's "single-core configuration
// collapses the whole pipeline into the ingress thread" rule and
// SPEC_FULL.md §4 item 2's core-count selection, honoring an explicit
// override from configuration.
func resolveThreadMode(configured string) ThreadMode {
	switch configured {
	case "single":
		return ModeSingle
	case "dual":
		return ModeDual
	default: // "auto"
		if runtime.NumCPU() <= 1 {
			return ModeSingle
		}
		return ModeDual
	}
}

// NewEngine builds an Engine from a loaded configuration. It resolves and
// binds the listening socket and the forward address but does not start
// any goroutines; call Run for that.
func NewEngine(cfg *config.RelayConfig) (*Engine, error) {
	listenAddr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, wgerr.ErrResolveAddr{Type: "listen", Addr: cfg.Listen, Cause: err}
	}
	forwardAddr, err := net.ResolveUDPAddr("udp", cfg.Forward)
	if err != nil {
		return nil, wgerr.ErrResolveAddr{Type: "forward", Addr: cfg.Forward, Cause: err}
	}

	conn, err := listenUDP(listenAddr, cfg.ReusePort)
	if err != nil {
		return nil, wgerr.ErrListenFailed{Addr: cfg.Listen, Cause: err}
	}

	mode := resolveThreadMode(cfg.ThreadMode)
	wglog.Info("thread mode: %v (cores=%d)", mode, runtime.NumCPU())
	wglog.Info("xor key fingerprint: %s", obfuscate.KeyFingerprint(cfg.ObfuscateParams().Key))

	e := &Engine{
		cfg:              cfg,
		params:           cfg.ObfuscateParams(),
		table:            session.NewTable(),
		listenConn:       conn,
		forwardAddr:      forwardAddr,
		handshakeTimeout: cfg.HandshakeTimeout(),
		idleTimeout:      cfg.IdleTimeout(),
		maskingName:      cfg.MaskingHandler,
		mode:             mode,
		egress:           newEgressBatch(conn),
		shutdownCh:       make(chan struct{}),
		doneCh:           make(chan struct{}),
	}

	// The poller is used both by the dual-worker server ingress goroutine
	// and by single-mode's inline loop (see run.go), so it is always
	// built; only the queues are specific to the dual-worker pipeline.
	e.poller = newPoller()
	if mode != ModeSingle {
		e.clientQueue = NewQueue(DefaultQueueSize)
		e.serverQueue = NewQueue(DefaultQueueSize)
	}

	return e, nil
}

func (m ThreadMode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeDual:
		return "dual"
	default:
		return "unknown"
	}
}

func (e *Engine) defaultMaskingHandler() masking.Handler {
	return masking.New(e.maskingName)
}

// ListenAddr returns the engine's bound listen address, used by tests.
func (e *Engine) ListenAddr() net.Addr { return e.listenConn.LocalAddr() }

// Table exposes the session table for diagnostics and tests.
func (e *Engine) Table() *session.Table { return e.table }

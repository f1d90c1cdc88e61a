package collab

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/canvasgraph/pkg/controller"
	"github.com/matzehuels/canvasgraph/pkg/document"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
	"github.com/matzehuels/canvasgraph/pkg/graph"
	"github.com/matzehuels/canvasgraph/pkg/observability"
	"github.com/matzehuels/canvasgraph/pkg/store"
)

// outboundBuffer bounds local updates waiting to be published.
const outboundBuffer = 256

// Option configures a Session.
type Option func(*options)

type options struct {
	logger        *log.Logger
	docOpts       []document.Option
	ctrlOpts      []controller.Option
	flushInterval time.Duration
}

// WithLogger sets the logger for the session, its document and controller.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDocumentOptions passes options to the document the session creates.
func WithDocumentOptions(opts ...document.Option) Option {
	return func(o *options) { o.docOpts = append(o.docOpts, opts...) }
}

// WithControllerOptions passes options to the session's controller.
func WithControllerOptions(opts ...controller.Option) Option {
	return func(o *options) { o.ctrlOpts = append(o.ctrlOpts, opts...) }
}

// WithFlushInterval persists the document periodically while the session
// is open. Zero disables periodic flushes.
func WithFlushInterval(d time.Duration) Option {
	return func(o *options) { o.flushInterval = d }
}

// Session is the live, replicated state of one canvas.
type Session struct {
	canvasID  string
	doc       *document.Document
	ctrl      *controller.Controller
	transport Transport
	store     store.Store
	logger    *log.Logger

	out         chan document.Update
	done        chan struct{}
	stopUpdates func()
	unsubscribe func()
	group       *errgroup.Group
	cancel      context.CancelFunc

	flushMu   sync.Mutex
	flushed   uint64
	closeOnce sync.Once
	closeErr  error
}

// Open loads the persisted canvas, if any, and joins its update stream.
// The session keeps running until Close, independent of ctx.
func Open(ctx context.Context, canvasID string, transport Transport, st store.Store, opts ...Option) (*Session, error) {
	if canvasID == "" {
		return nil, cgerrors.New(cgerrors.ErrCodeInvalidInput, "canvas id must not be empty")
	}
	o := options{logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("canvas", canvasID)

	snap, err := st.Load(ctx, canvasID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Debug("new canvas")
	case err != nil:
		return nil, cgerrors.Wrap(cgerrors.ErrCodeStorage, err, "load canvas %s", canvasID)
	}
	snap.CanvasID = canvasID

	docOpts := append([]document.Option{document.WithLogger(o.logger)}, o.docOpts...)
	doc, err := graph.Hydrate(snap, docOpts...)
	if err != nil {
		return nil, err
	}

	updates, unsubscribe, err := transport.Subscribe(ctx, canvasID)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(runCtx)
	s := &Session{
		canvasID:    canvasID,
		doc:         doc,
		transport:   transport,
		store:       st,
		logger:      logger,
		out:         make(chan document.Update, outboundBuffer),
		done:        make(chan struct{}),
		unsubscribe: unsubscribe,
		group:       g,
		cancel:      cancel,
	}
	s.ctrl = controller.New(doc, append([]controller.Option{controller.WithLogger(o.logger)}, o.ctrlOpts...)...)
	s.stopUpdates = doc.OnUpdate(s.enqueue)

	g.Go(func() error { return s.publishLoop(gctx) })
	g.Go(func() error { return s.receiveLoop(updates) })
	if o.flushInterval > 0 {
		g.Go(func() error { return s.flushLoop(gctx, o.flushInterval) })
	}

	logger.Info("session opened", "nodes", len(snap.Nodes), "edges", len(snap.Edges), "client", doc.ClientID())
	return s, nil
}

func (s *Session) CanvasID() string                   { return s.canvasID }
func (s *Session) Document() *document.Document       { return s.doc }
func (s *Session) Controller() *controller.Controller { return s.ctrl }

// enqueue runs inside the committing goroutine. It blocks while the
// outbound buffer is full so updates are never dropped or reordered.
func (s *Session) enqueue(u document.Update) {
	select {
	case s.out <- u:
	case <-s.done:
		s.logger.Warn("update committed after close, not published", "seq", u.Seq)
	}
}

func (s *Session) publishLoop(ctx context.Context) error {
	for {
		select {
		case u := <-s.out:
			s.publish(ctx, u)
		case <-s.done:
			for {
				select {
				case u := <-s.out:
					s.publish(ctx, u)
				default:
					return nil
				}
			}
		}
	}
}

func (s *Session) publish(ctx context.Context, u document.Update) {
	if err := s.transport.Publish(ctx, s.canvasID, u); err != nil {
		observability.Transport().OnTransportError(ctx, s.canvasID, err)
		s.logger.Error("publish update", "seq", u.Seq, "err", err)
	}
}

func (s *Session) receiveLoop(updates <-chan document.Update) error {
	for u := range updates {
		if u.Origin == s.doc.ClientID() {
			continue
		}
		if err := s.doc.ApplyUpdate(u); err != nil {
			s.logger.Warn("apply remote update", "origin", u.Origin, "seq", u.Seq, "err", err)
		}
	}
	return nil
}

func (s *Session) flushLoop(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				s.logger.Warn("periodic flush", "err", err)
			}
		case <-s.done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Flush persists the committed state. It is a no-op when nothing was
// committed since the last flush.
func (s *Session) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	snap := graph.FromDocument(s.doc)
	if snap.Version == s.flushed && s.flushed != 0 {
		return nil
	}
	if err := s.store.Save(ctx, snap); err != nil {
		return cgerrors.Wrap(cgerrors.ErrCodeStorage, err, "save canvas %s", s.canvasID)
	}
	s.flushed = snap.Version
	s.logger.Debug("flushed", "version", snap.Version)
	return nil
}

// Close leaves the update stream, publishes pending local updates and
// persists the final state. Subsequent calls return the first result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.stopUpdates()
		close(s.done)
		s.unsubscribe()
		err := s.group.Wait()
		s.cancel()
		s.ctrl.Close()
		s.closeErr = errors.Join(err, s.Flush(ctx))
		s.logger.Info("session closed")
	})
	return s.closeErr
}

package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zombor/yen-lens/internal/camera"
	"github.com/zombor/yen-lens/internal/i18n"
	"github.com/zombor/yen-lens/internal/scanning"
)

// Analyzer turns a still into a translation
type Analyzer interface {
	RequestImageAnalysis(ctx context.Context, imageData []byte, contentType string) (*scanning.TranslationResult, error)
}

// Options configures a Machine
type Options struct {
	// Timeout bounds opening the camera, grabbing a still and one analysis
	// request, each on its own
	Timeout time.Duration
	// Constraints selects the camera, rear-facing by preference
	Constraints camera.Constraints
	Logger      *slog.Logger
}

// Machine runs the capture flow against a camera. It is safe for concurrent
// use; Start and Scan return immediately and the work continues in the
// background.
type Machine struct {
	camera   camera.Camera
	analyzer Analyzer
	tr       *i18n.Translator
	opts     Options
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	session    camera.Session
	generation uint64
	cancel     context.CancelFunc
	closed     bool
	observers  []func(State)
}

// NewMachine creates an idle Machine
func NewMachine(cam camera.Camera, analyzer Analyzer, tr *i18n.Translator, opts Options) *Machine {
	if opts.Timeout <= 0 {
		opts.Timeout = scanning.DefaultTimeout
	}
	if opts.Constraints == (camera.Constraints{}) {
		opts.Constraints = camera.Constraints{Facing: camera.FacingEnvironment}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		camera:   cam,
		analyzer: analyzer,
		tr:       tr,
		opts:     opts,
		logger:   logger.With("component", "capture"),
		state:    State{Status: Idle},
	}
}

// WithObserver registers fn to be called on every state entry. Observers run
// with the machine locked and must not call back into it.
func (m *Machine) WithObserver(fn func(State)) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
	return m
}

// State returns a snapshot of the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// HasSession reports whether the machine holds an open camera session
func (m *Machine) HasSession() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Start requests the camera. It returns false when the flow is already
// running or the machine is closed.
func (m *Machine) Start(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	next, ok := m.state.Start()
	if !ok {
		m.logger.Debug("Ignoring start", "status", m.state.Status.String())
		return false
	}

	workCtx, gen := m.beginWork(ctx)
	m.enter(next)
	go m.acquire(workCtx, gen)
	return true
}

// Scan captures the current frame and analyzes it. It returns false unless
// the stream is active.
func (m *Machine) Scan(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := m.state.BeginScan()
	if !ok {
		m.logger.Debug("Ignoring scan", "status", m.state.Status.String())
		return false
	}

	// The scan goroutine owns the session from here and releases it before
	// the analysis request goes out
	session := m.session
	m.session = nil

	workCtx, gen := m.beginWork(ctx)
	m.enter(next)
	go m.scan(workCtx, gen, session)
	return true
}

// Reset returns to Idle, releasing the camera and abandoning in-flight work
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardown()
	if m.state.Status != Idle {
		next, _ := m.state.Reset()
		m.enter(next)
	}
}

// Close tears the machine down. Later calls to Start are ignored.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.teardown()
	if m.state.Status != Idle {
		next, _ := m.state.Reset()
		m.enter(next)
	}
}

// beginWork cancels whatever is running and starts a new generation. The
// work context outlives ctx's cancellation so a finished HTTP request does not
// abort the flow it started.
func (m *Machine) beginWork(ctx context.Context) (context.Context, uint64) {
	if m.cancel != nil {
		m.cancel()
	}
	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.generation++
	return workCtx, m.generation
}

// teardown invalidates in-flight work and releases the held session
func (m *Machine) teardown() {
	m.generation++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.session != nil {
		m.release(m.session)
		m.session = nil
	}
}

func (m *Machine) enter(next State) {
	if next.Status != m.state.Status {
		m.logger.Info("Capture state changed", "from", m.state.Status.String(), "to", next.Status.String())
	}
	m.state = next
	for _, fn := range m.observers {
		fn(next)
	}
}

// finish clears the cancel func of a completed generation
func (m *Machine) finish() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Machine) release(session camera.Session) {
	if err := session.Release(); err != nil {
		m.logger.Warn("Failed to release camera session", "error", err)
	}
}

func (m *Machine) acquire(ctx context.Context, gen uint64) {
	openCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	session, err := m.camera.Open(openCtx, m.opts.Constraints)
	if err == nil {
		if err = session.Play(openCtx); err != nil {
			m.release(session)
			session = nil
		}
	}
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		// Reset or closed while the camera was opening
		if session != nil {
			m.release(session)
		}
		return
	}
	m.finish()

	if err != nil {
		m.logger.Warn("Camera acquisition failed", "error", err)
		next, _ := m.state.Failed(m.classify(err))
		m.enter(next)
		return
	}

	m.session = session
	next, _ := m.state.Activated()
	m.enter(next)
}

func (m *Machine) scan(ctx context.Context, gen uint64, session camera.Session) {
	data, err := m.still(ctx, session)
	if err == nil {
		analysisCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
		var result *scanning.TranslationResult
		result, err = m.analyzer.RequestImageAnalysis(analysisCtx, data, "image/jpeg")
		cancel()
		if err == nil {
			m.complete(gen, func(s State) (State, bool) { return s.Succeeded(result) })
			return
		}
	}

	if !errors.Is(err, context.Canceled) {
		m.logger.Error("Capture analysis failed", "error", err)
	}
	message := m.tr.T(i18n.AnalysisFailed)
	m.complete(gen, func(s State) (State, bool) { return s.Failed(message) })
}

// still grabs one frame as JPEG and releases the session
func (m *Machine) still(ctx context.Context, session camera.Session) ([]byte, error) {
	frameCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()
	img, err := session.Frame(frameCtx)
	m.release(session)
	if err != nil {
		return nil, err
	}
	return scanning.EncodeJPEG(img)
}

func (m *Machine) complete(gen uint64, transition func(State) (State, bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		m.logger.Debug("Discarding stale capture result")
		return
	}
	m.finish()
	if next, ok := transition(m.state); ok {
		m.enter(next)
	}
}

// classify maps an acquisition error onto one localized message
func (m *Machine) classify(err error) string {
	switch {
	case errors.Is(err, camera.ErrPermissionDenied):
		return m.tr.T(i18n.CameraDenied)
	case errors.Is(err, camera.ErrNotFound):
		return m.tr.T(i18n.CameraNotFound)
	case errors.Is(err, camera.ErrNotReadable), errors.Is(err, context.DeadlineExceeded):
		return m.tr.T(i18n.CameraNotReadable)
	case errors.Is(err, camera.ErrOverconstrained):
		return m.tr.T(i18n.CameraOverconstr)
	default:
		return m.tr.T(i18n.CameraUnexpected, err.Error())
	}
}

// Package engine implements CountingEngine: the per-location worker tying
// together a video source, a detector, a tracker, and the counting
// predicate, publishing state to the event bus and persisting results to
// the session store. The state-machine, command, and ingestion-loop shape
// follow this codebase's own detection pipeline
// (internal/pipeline/detection_pipeline.go), generalized from per-camera
// detection fan-out to the counting domain's single ingestion loop per
// location.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cvcounter/internal/database"
	"cvcounter/internal/dataset"
	"cvcounter/internal/detector"
	"cvcounter/internal/eventbus"
	"cvcounter/internal/geo"
	"cvcounter/internal/tracker"
	"cvcounter/internal/videosource"
)

// Status is the CountingEngine lifecycle state.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusError   Status = "error"
)

var (
	ErrAlreadyStarted = errors.New("engine: already started")
	ErrNotRunning     = errors.New("engine: not running")
)

const (
	ingestionTick     = 10 * time.Millisecond
	readFailureTick   = 50 * time.Millisecond
	reconnectOnNulls  = 2
)

// FrameSource is the subset of videosource.Source an Engine depends on,
// abstracted so the ingestion loop binds to capability rather than the
// concrete ffmpeg-backed implementation — the same capability-over-type
// binding the specification requires for Detector.
type FrameSource interface {
	Read() (*videosource.Frame, error)
	Reconnect() error
	ResetReconnectCount()
	ReconnectCount() uint64
	ActualFPS() float64
	Close() error
}

// Config supplies everything one Engine needs; every field is owned
// exclusively by the resulting Engine except Bus and Store, which are
// shared across engines.
type Config struct {
	Location          string
	Source            FrameSource
	Detector          detector.Detector
	DetectOptions     detector.Options
	Tracker           *tracker.Tracker
	CountingArea      geo.Polygon
	Bus               *eventbus.Bus
	Store             *database.Database
	Sampler           *dataset.Sampler
	SampleProbability float64
	SampleClasses     []string
	Debug             bool
	Logger            *log.Logger

	// StartTotalCount seeds total_count with N synthetic negative track IDs
	// at first start, matching a non-zero start_total_count carried over
	// from the configuration document. OnSeedConsumed, if set, is invoked
	// once the seed has been applied so the caller can zero and persist the
	// configuration value.
	StartTotalCount int
	OnSeedConsumed  func()
}

// Engine is one CountingEngine instance. Exactly one ingestion goroutine
// mutates the counting state; command methods take mu to mutate or read it
// from other goroutines.
type Engine struct {
	location string
	source   FrameSource
	det      detector.Detector
	detOpts  detector.Options
	trk      *tracker.Tracker
	area     geo.Polygon
	bus      *eventbus.Bus
	store    *database.Database
	sampler  *dataset.Sampler

	sampleProbability float64
	sampleClasses     []string
	debug             bool
	logger            *log.Logger

	mu           sync.Mutex
	trackedIDs   map[int]bool
	currentCount int
	defectCount  int
	correctCount int
	totalCount   int
	latestFrame  []byte
	status       Status

	consecutiveNullReads int
	viewerAttached       atomic.Bool

	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once

	startTotalCount int
	onSeedConsumed  func()

	instanceID string
}

// New constructs an Engine in the Stopped state. StartWorker must be called
// to begin ingestion.
func New(cfg Config) *Engine {
	return &Engine{
		instanceID:        uuid.NewString(),
		location:          cfg.Location,
		source:            cfg.Source,
		det:               cfg.Detector,
		detOpts:           cfg.DetectOptions,
		trk:               cfg.Tracker,
		area:              cfg.CountingArea,
		bus:               cfg.Bus,
		store:             cfg.Store,
		sampler:           cfg.Sampler,
		sampleProbability: cfg.SampleProbability,
		sampleClasses:     cfg.SampleClasses,
		debug:             cfg.Debug,
		logger:            cfg.Logger,
		trackedIDs:        make(map[int]bool),
		status:            StatusStopped,
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
		startTotalCount:   cfg.StartTotalCount,
		onSeedConsumed:    cfg.OnSeedConsumed,
	}
}

// seedStartTotalCount populates tracked_ids with N synthetic negative IDs
// so total_count reads N immediately at first start, without those IDs
// ever being produced by the tracker. Negative IDs can never collide with
// a real track ID, which the tracker assigns starting from 1. Each ID is
// also registered with Tracker.Seed, where it ages out like any unmatched
// track; trackedIDs keeps it, so it stays in total_count, and applyTracks
// skips crediting it to current_count because trackedIDs already marks it
// seen.
func (e *Engine) seedStartTotalCount() {
	if e.startTotalCount <= 0 {
		return
	}
	e.mu.Lock()
	for i := 1; i <= e.startTotalCount; i++ {
		if e.trk != nil {
			e.trk.Seed(-i, 0, 0, 0, 0)
		}
		e.trackedIDs[-i] = true
	}
	e.totalCount = len(e.trackedIDs)
	e.mu.Unlock()

	if e.onSeedConsumed != nil {
		e.onSeedConsumed()
	}
}

func (e *Engine) log(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Printf("[%s] "+format, append([]interface{}{e.instanceID[:8]}, args...)...)
	}
}

// InstanceID returns this engine's opaque instance identifier, used to
// correlate log lines across restarts of the same location.
func (e *Engine) InstanceID() string { return e.instanceID }

// Location returns the location this engine owns.
func (e *Engine) Location() string { return e.location }

// Status returns the current lifecycle status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// StartWorker transitions Stopped -> Running and launches the ingestion
// loop. Calling it more than once returns ErrAlreadyStarted.
func (e *Engine) StartWorker() error {
	started := false
	e.startOnce.Do(func() {
		e.mu.Lock()
		e.status = StatusRunning
		e.mu.Unlock()
		started = true
		go e.run()
	})
	if !started {
		return ErrAlreadyStarted
	}
	e.bus.PublishStatus(e.location, eventbus.StatusEvent{Status: eventbus.StatusStarted, Location: e.location})
	return nil
}

// Pause transitions Running -> Paused. Frames continue to be read, detected
// and annotated, but counting state is frozen.
func (e *Engine) Pause() error {
	e.mu.Lock()
	if e.status != StatusRunning {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.status = StatusPaused
	e.mu.Unlock()
	e.bus.PublishStatus(e.location, eventbus.StatusEvent{Status: eventbus.StatusPaused, Location: e.location})
	return nil
}

// Resume transitions Paused -> Running.
func (e *Engine) Resume() error {
	e.mu.Lock()
	if e.status != StatusPaused {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.status = StatusRunning
	e.mu.Unlock()
	e.bus.PublishStatus(e.location, eventbus.StatusEvent{Status: eventbus.StatusStarted, Location: e.location})
	return nil
}

// Stop ends the ingestion loop and releases the video source. Safe to call
// more than once.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.status == StatusStopped {
		e.mu.Unlock()
		return nil
	}
	e.status = StatusStopped
	e.mu.Unlock()

	select {
	case <-e.stopCh:
	default:
		close(e.stopCh)
	}
	<-e.doneCh
	e.source.Close()
	e.bus.PublishStatus(e.location, eventbus.StatusEvent{Status: eventbus.StatusStopped, Location: e.location})
	return nil
}

// SetViewerAttached flags whether a FrameServer is currently reading
// annotated frames, gating whether the ingestion loop pays for annotation.
func (e *Engine) SetViewerAttached(attached bool) {
	e.viewerAttached.Store(attached)
}

// LatestFrame returns the most recently annotated frame, or nil if no
// viewer has attached yet.
func (e *Engine) LatestFrame() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latestFrame
}

// ReconnectCount reports the source's consecutive reconnect attempts.
func (e *Engine) ReconnectCount() uint64 {
	return e.source.ReconnectCount()
}

// Snapshot is a point-in-time read of the counting state, used for status
// queries and as the identity save_result derives its arithmetic from.
type Snapshot struct {
	Status       Status
	TrackedTotal int
	Current      int
	Defect       int
	Correct      int
}

// Snapshot returns the current counting state under lock.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Status:       e.status,
		TrackedTotal: e.totalCount,
		Current:      e.currentCount,
		Defect:       e.defectCount,
		Correct:      e.correctCount,
	}
}

// run is the ingestion loop: one goroutine, owned exclusively by this
// Engine, from StartWorker until Stop.
func (e *Engine) run() {
	defer close(e.doneCh)

	e.seedStartTotalCount()

	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		frame, err := e.source.Read()
		if err != nil || frame == nil {
			e.handleNullRead()
			time.Sleep(readFailureTick)
			continue
		}
		e.consecutiveNullReads = 0
		e.source.ResetReconnectCount()

		if e.Status() == StatusError {
			e.mu.Lock()
			e.status = StatusRunning
			e.mu.Unlock()
			e.bus.PublishNotification(e.location, eventbus.NotificationEvent{Type: eventbus.NotificationSuccess, Message: "source recovered"})
			e.bus.PublishStatus(e.location, eventbus.StatusEvent{Status: eventbus.StatusStarted, Location: e.location})
		}

		var dets []detector.Detection
		if e.det != nil {
			dets, err = e.det.Detect(context.Background(), frame.Data, e.detOpts)
			if err != nil {
				e.handleDetectorError(err)
				time.Sleep(readFailureTick)
				continue
			}
		}

		trkDets := make([]tracker.Detection, len(dets))
		for i, d := range dets {
			trkDets[i] = tracker.Detection{X1: d.Box.X1, Y1: d.Box.Y1, X2: d.Box.X2, Y2: d.Box.Y2, Confidence: d.Confidence}
		}

		tracks, err := e.trk.Update(trkDets)
		if err != nil {
			// Tracker is closed; nothing more this engine can do.
			e.handleDetectorError(err)
			time.Sleep(readFailureTick)
			continue
		}

		increased := e.applyTracks(tracks)

		snap := e.Snapshot()
		total := snap.TrackedTotal - snap.Defect + snap.Correct
		e.bus.PublishCount(e.location, eventbus.CountEvent{
			Total:   total,
			Current: snap.Current,
			Defect:  snap.Defect,
			Correct: snap.Correct,
		})

		if e.viewerAttached.Load() {
			annotated := e.annotate(frame.Data, tracks)
			if e.debug {
				annotated = e.overlayFPS(annotated, e.source.ActualFPS())
			}
			e.mu.Lock()
			e.latestFrame = annotated
			e.mu.Unlock()
		}

		if increased && e.sampler != nil && e.shouldSample(dets) {
			sampleFrame := frame.Data
			go func() {
				if err := e.sampler.Sample(e.location, sampleFrame); err != nil {
					e.log("[engine] sample failed for %s: %v", e.location, err)
				}
			}()
		}

		time.Sleep(ingestionTick)
	}
}

// applyTracks tests every confirmed track's centroid against the counting
// area, crediting newly-inside track IDs to current_count, and recomputes
// total_count. It is a no-op while paused, per the Pause contract. Returns
// true if current_count increased this frame.
func (e *Engine) applyTracks(tracks []tracker.Track) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == StatusPaused {
		return false
	}

	increased := false
	for _, tr := range tracks {
		centroid := geo.Centroid(tr.X1, tr.Y1, tr.X2, tr.Y2)
		if !geo.Contains(centroid, e.area) {
			continue
		}
		if !e.trackedIDs[tr.ID] {
			e.trackedIDs[tr.ID] = true
			e.currentCount++
			increased = true
		}
	}
	e.totalCount = len(e.trackedIDs)
	return increased
}

func (e *Engine) shouldSample(dets []detector.Detection) bool {
	if rand.Float64() >= e.sampleProbability {
		return false
	}
	if len(e.sampleClasses) == 0 {
		return true
	}
	for _, d := range dets {
		for _, allowed := range e.sampleClasses {
			if d.Class == allowed {
				return true
			}
		}
	}
	return false
}

func (e *Engine) handleNullRead() {
	e.mu.Lock()
	e.status = StatusError
	e.mu.Unlock()

	e.bus.PublishNotification(e.location, eventbus.NotificationEvent{Type: eventbus.NotificationDanger, Message: "frame read failed"})
	e.bus.PublishStatus(e.location, eventbus.StatusEvent{Status: eventbus.StatusError, Location: e.location})

	e.consecutiveNullReads++
	if e.consecutiveNullReads >= reconnectOnNulls {
		e.consecutiveNullReads = 0
		if err := e.source.Reconnect(); err != nil {
			e.log("[engine] reconnect failed for %s: %v", e.location, err)
		}
	}
}

func (e *Engine) handleDetectorError(err error) {
	e.mu.Lock()
	e.status = StatusError
	e.mu.Unlock()

	e.bus.PublishNotification(e.location, eventbus.NotificationEvent{Type: eventbus.NotificationDanger, Message: fmt.Sprintf("detector error: %v", err)})
	e.bus.PublishStatus(e.location, eventbus.StatusEvent{Status: eventbus.StatusError, Location: e.location})
}

// SaveCount applies operator-supplied deltas and persists the session. The
// value it returns for total is the engine's raw tracked total_count
// (|tracked_ids|), not the current_total = total_count - defect + correct
// written to the store row: the specification preserves this mismatch
// between the persisted total and the command's reported total as an
// observed quirk of the system it was distilled from, rather than
// "fixing" it into a recomputed value.
func (e *Engine) SaveCount(correctDelta, defectDelta int, customFields map[string]string, active bool, actor string) (total, defect, correct int, err error) {
	e.mu.Lock()
	e.defectCount += defectDelta
	e.correctCount += correctDelta
	e.currentCount += correctDelta - defectDelta
	trackedTotal := e.totalCount
	defect = e.defectCount
	correct = e.correctCount
	e.mu.Unlock()

	currentTotal := trackedTotal - defect + correct

	saveErr := e.store.SaveResult(e.location, currentTotal, trackedTotal, defect, correct, customFields, active)
	if saveErr != nil {
		e.bus.PublishNotification(e.location, eventbus.NotificationEvent{Type: eventbus.NotificationDanger, Message: fmt.Sprintf("save failed (%s): %v", actorLabel(actor), saveErr)})
		return trackedTotal, defect, correct, saveErr
	}
	e.bus.PublishNotification(e.location, eventbus.NotificationEvent{Type: eventbus.NotificationSuccess, Message: fmt.Sprintf("count saved by %s", actorLabel(actor))})
	return trackedTotal, defect, correct, nil
}

// ResetCount clears the passed set and all counters, and closes the active
// session. actor identifies the operator for the notification's audit
// trail; it is the authenticated username, or "operator" when auth is
// disabled.
func (e *Engine) ResetCount(actor string) error {
	e.mu.Lock()
	e.trackedIDs = make(map[int]bool)
	e.currentCount, e.totalCount, e.defectCount, e.correctCount = 0, 0, 0, 0
	e.mu.Unlock()

	_, err := e.store.CloseCurrentCount(e.location)
	e.bus.PublishNotification(e.location, eventbus.NotificationEvent{Type: eventbus.NotificationPrimary, Message: fmt.Sprintf("count reset by %s", actorLabel(actor))})
	return err
}

// ResetCountCurrent persists the current tallies as a part entry, then
// zeroes current_count while carrying the operator-supplied deltas forward.
func (e *Engine) ResetCountCurrent(correctDelta, defectDelta int, actor string) error {
	snap := e.Snapshot()
	total := snap.TrackedTotal - snap.Defect + snap.Correct
	if err := e.store.SavePartResult(e.location, snap.Current, total, snap.Defect, snap.Correct); err != nil {
		return err
	}

	e.mu.Lock()
	e.currentCount = 0
	e.defectCount += defectDelta
	e.correctCount += correctDelta
	e.mu.Unlock()

	e.bus.PublishCount(e.location, eventbus.CountEvent{Total: total, Current: 0, Defect: snap.Defect, Correct: snap.Correct})
	e.bus.PublishNotification(e.location, eventbus.NotificationEvent{Type: eventbus.NotificationPrimary, Message: fmt.Sprintf("current count archived by %s", actorLabel(actor))})
	return nil
}

// actorLabel returns a human-readable operator label for audit-trail
// notifications, falling back to "operator" when no authenticated identity
// is available (auth disabled, or the route ran open).
func actorLabel(actor string) string {
	if actor == "" {
		return "operator"
	}
	return actor
}

// SaveCapture grabs a frame directly from the video source and hands it to
// the dataset sampler unfiltered.
func (e *Engine) SaveCapture() error {
	if e.sampler == nil {
		return nil
	}
	frame, err := e.source.Read()
	if err != nil || frame == nil {
		return fmt.Errorf("engine: no frame available to capture")
	}
	return e.sampler.Sample(e.location, frame.Data)
}

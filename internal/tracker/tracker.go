// Package tracker associates per-frame detections across time and assigns
// each live object a stable integer track ID, the way a SORT-family
// tracker does: predict each existing track's box with a motion model,
// associate detections to tracks by IOU, age out tracks that go
// unmatched, and mint new tracks for leftover detections.
//
// There is no SORT implementation anywhere in the example pack this was
// grounded on; the per-axis Kalman smoothing (kalman.go) follows the
// scalar-filter style of a landmark tracker seen elsewhere in the pack,
// and the overall state machine (Idle/Running/Closed) follows
// that same tracker's State type.
package tracker

import (
	"errors"
	"sort"
	"sync"
)

// State is the lifecycle state of a Tracker instance.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var ErrClosed = errors.New("tracker: closed")

// Detection is one detector output: an axis-aligned box plus confidence.
type Detection struct {
	X1, Y1, X2, Y2 float32
	Confidence     float32
}

// Track is a detection that has been associated with a stable identity.
type Track struct {
	X1, Y1, X2, Y2 float32
	ID             int
}

// Params configure the association and retirement policy. Zero-value
// fields are replaced by the package defaults in New.
type Params struct {
	MaxAge        int     // frames a track may go unmatched before retirement
	MinHits       int     // total matches (not reset by a miss) required before a track is reported
	IOUThreshold  float32 // minimum IOU for a valid association
}

// DefaultParams matches the values named in the specification.
func DefaultParams() Params {
	return Params{MaxAge: 30, MinHits: 3, IOUThreshold: 0.3}
}

type track struct {
	id        int
	kx1, ky1  *kalman1D
	kx2, ky2  *kalman1D
	hits      int
	age       int // frames since last match
	confirmed bool
}

func (t *track) box() (x1, y1, x2, y2 float32) {
	return float32(t.kx1.x), float32(t.ky1.x), float32(t.kx2.x), float32(t.ky2.x)
}

// Tracker is a stateful, single-goroutine multi-object tracker. A Tracker
// must be driven by exactly one goroutine at a time; Update is not
// internally synchronized against concurrent callers, matching the
// specification's single-goroutine-per-engine contract. The mutex here
// only guards State() so a supervisor goroutine can observe lifecycle
// transitions without racing Update.
type Tracker struct {
	mu     sync.Mutex
	state  State
	params Params

	tracks map[int]*track
	nextID int
}

// New creates a Tracker with the given parameters. A zero Params uses
// DefaultParams.
func New(params Params) *Tracker {
	if params.MaxAge == 0 {
		params.MaxAge = DefaultParams().MaxAge
	}
	if params.MinHits == 0 {
		params.MinHits = DefaultParams().MinHits
	}
	if params.IOUThreshold == 0 {
		params.IOUThreshold = DefaultParams().IOUThreshold
	}
	return &Tracker{
		state:  StateIdle,
		params: params,
		tracks: make(map[int]*track),
		nextID: 1,
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Update associates detections with existing tracks, ages out tracks that
// exceed MaxAge without a match, and mints new tracks for unmatched
// detections. Track IDs are stable across calls while the track is alive
// and are never reused after retirement.
func (t *Tracker) Update(dets []Detection) ([]Track, error) {
	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	if t.state == StateIdle {
		t.state = StateRunning
	}
	t.mu.Unlock()

	for _, tr := range t.tracks {
		tr.kx1.predict()
		tr.ky1.predict()
		tr.kx2.predict()
		tr.ky2.predict()
	}

	matched, unmatchedDets, unmatchedTracks := t.associate(dets)

	for trackID, detIdx := range matched {
		tr := t.tracks[trackID]
		d := dets[detIdx]
		tr.kx1.update(float64(d.X1))
		tr.ky1.update(float64(d.Y1))
		tr.kx2.update(float64(d.X2))
		tr.ky2.update(float64(d.Y2))
		tr.hits++
		tr.age = 0
		if tr.hits >= t.params.MinHits {
			tr.confirmed = true
		}
	}

	for _, trackID := range unmatchedTracks {
		tr := t.tracks[trackID]
		tr.age++
		if tr.age > t.params.MaxAge {
			delete(t.tracks, trackID)
		}
	}

	for _, detIdx := range unmatchedDets {
		d := dets[detIdx]
		id := t.nextID
		t.nextID++
		tr := &track{
			id:  id,
			kx1: newKalman1D(), ky1: newKalman1D(),
			kx2: newKalman1D(), ky2: newKalman1D(),
			hits: 1,
		}
		tr.kx1.update(float64(d.X1))
		tr.ky1.update(float64(d.Y1))
		tr.kx2.update(float64(d.X2))
		tr.ky2.update(float64(d.Y2))
		if t.params.MinHits <= 1 {
			tr.confirmed = true
		}
		t.tracks[id] = tr
	}

	ids := make([]int, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]Track, 0, len(ids))
	for _, id := range ids {
		tr := t.tracks[id]
		if !tr.confirmed {
			continue
		}
		x1, y1, x2, y2 := tr.box()
		out = append(out, Track{X1: x1, Y1: y1, X2: x2, Y2: y2, ID: tr.id})
	}
	return out, nil
}

// Seed injects a synthetic track with a caller-chosen (typically negative)
// ID and no further motion history, used to populate tracked IDs from a
// configured start_total_count without those IDs ever having come from a
// real detection.
func (t *Tracker) Seed(id int, x1, y1, x2, y2 float32) {
	tr := &track{
		id:  id,
		kx1: newKalman1D(), ky1: newKalman1D(),
		kx2: newKalman1D(), ky2: newKalman1D(),
		hits: 1, confirmed: true,
	}
	tr.kx1.update(float64(x1))
	tr.ky1.update(float64(y1))
	tr.kx2.update(float64(x2))
	tr.ky2.update(float64(y2))
	t.tracks[id] = tr
}

// Close releases tracker state. A closed tracker rejects further Update
// calls.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateClosed
	t.tracks = nil
	return nil
}

// associate performs greedy IOU matching: at each step pick the
// highest-IOU (track, detection) pair above threshold, commit it, and
// repeat over the remaining tracks and detections. Simpler than the
// Hungarian algorithm a production SORT tracker would use, but sufficient
// for the frame rates and object counts this service targets.
func (t *Tracker) associate(dets []Detection) (matched map[int]int, unmatchedDets, unmatchedTracks []int) {
	matched = make(map[int]int)

	trackIDs := make([]int, 0, len(t.tracks))
	for id := range t.tracks {
		trackIDs = append(trackIDs, id)
	}
	sort.Ints(trackIDs)

	usedDet := make(map[int]bool, len(dets))
	usedTrack := make(map[int]bool, len(trackIDs))

	type pair struct {
		trackID int
		detIdx  int
		iou     float32
	}
	var pairs []pair
	for _, id := range trackIDs {
		tr := t.tracks[id]
		x1, y1, x2, y2 := tr.box()
		for di, d := range dets {
			score := iou(x1, y1, x2, y2, d.X1, d.Y1, d.X2, d.Y2)
			if score >= t.params.IOUThreshold {
				pairs = append(pairs, pair{trackID: id, detIdx: di, iou: score})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].iou > pairs[j].iou })

	for _, p := range pairs {
		if usedTrack[p.trackID] || usedDet[p.detIdx] {
			continue
		}
		matched[p.trackID] = p.detIdx
		usedTrack[p.trackID] = true
		usedDet[p.detIdx] = true
	}

	for _, id := range trackIDs {
		if !usedTrack[id] {
			unmatchedTracks = append(unmatchedTracks, id)
		}
	}
	for di := range dets {
		if !usedDet[di] {
			unmatchedDets = append(unmatchedDets, di)
		}
	}
	return matched, unmatchedDets, unmatchedTracks
}

func iou(ax1, ay1, ax2, ay2, bx1, by1, bx2, by2 float32) float32 {
	interX1 := max32(ax1, bx1)
	interY1 := max32(ay1, by1)
	interX2 := min32(ax2, bx2)
	interY2 := min32(ay2, by2)

	interW := interX2 - interX1
	interH := interY2 - interY1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	interArea := interW * interH

	areaA := (ax2 - ax1) * (ay2 - ay1)
	areaB := (bx2 - bx1) * (by2 - by1)
	union := areaA + areaB - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

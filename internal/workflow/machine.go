// Package workflow drives the per-scan entry/exit cycle: it takes decoded
// text pushed by the camera collaborator, holds an immutable state snapshot,
// and resolves at most one gate action per cycle against the remote backend.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qrgate/internal/codec"
	"qrgate/internal/model"
	"qrgate/pkg/backend"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Guard errors. A guarded Submit makes no network call and changes no state.
var (
	ErrNoScan          = errors.New("no scan result to submit")
	ErrBusy            = errors.New("a submission is already in flight")
	ErrAlreadyRecorded = errors.New("an action was already recorded for this scan")
	ErrUnknownAction   = errors.New("unknown action kind")
)

const scannedPrompt = "Code scanned. Record entry or exit."

// Notifier receives every new snapshot; websocket connections register here.
type Notifier interface {
	Notify(model.Snapshot)
}

// Recorder is the audit sink. It is advisory: failures are logged and the
// workflow carries on.
type Recorder interface {
	Record(cycleID, kind, rawText, encoded, outcome string) error
}

// Machine is the single workflow state machine for the terminal. All
// transitions happen under mu and replace the snapshot as a whole value.
type Machine struct {
	client   *backend.Client
	recorder Recorder
	log      *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	snap      model.Snapshot
	gen       uint64 // bumped by every scan and reset, stale responses check it
	notifiers []Notifier
}

func NewMachine(client *backend.Client, recorder Recorder, log *zap.Logger) *Machine {
	return &Machine{
		client:   client,
		recorder: recorder,
		log:      log,
		now:      time.Now,
		snap:     model.Snapshot{Phase: model.PhaseIdle},
	}
}

// Subscribe registers a notifier for snapshot pushes. The current snapshot is
// delivered immediately so a fresh connection starts in sync.
func (m *Machine) Subscribe(n Notifier) {
	m.mu.Lock()
	m.notifiers = append(m.notifiers, n)
	snap := m.snap
	m.mu.Unlock()
	n.Notify(snap)
}

// Unsubscribe removes a previously registered notifier.
func (m *Machine) Unsubscribe(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, have := range m.notifiers {
		if have == n {
			m.notifiers = append(m.notifiers[:i], m.notifiers[i+1:]...)
			return
		}
	}
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() model.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// OnScanSuccess starts a new cycle with the decoded text. A re-scan while a
// previous result is still displayed simply replaces it; any action recorded
// for the old text is cleared along with it.
func (m *Machine) OnScanSuccess(text string) model.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	m.snap = model.Snapshot{
		Phase:      model.PhaseScanned,
		CycleID:    uuid.NewString(),
		ScanText:   text,
		Encoded:    codec.Encode(text),
		Action:     model.ActionNone,
		Status:     scannedPrompt,
		Generation: m.gen,
	}
	m.record(m.snap.CycleID, "scan", text, m.snap.Encoded, "scanned")
	m.notifyLocked()
	return m.snap
}

// OnScanError swallows camera noise. The scanning collaborator fires its
// error callback on every frame without a code in it.
func (m *Machine) OnScanError(msg string) {
	m.log.Debug("scan frame without code", zap.String("detail", msg))
}

// Submit records the given action for the current scan. Guard violations
// return a typed error without touching the network or the snapshot. A
// completed attempt, recorded or rejected, returns nil and lands its outcome
// in the snapshot's status; a response arriving after reset or a newer scan
// is discarded.
func (m *Machine) Submit(ctx context.Context, kind model.Action) error {
	if kind != model.ActionEntry && kind != model.ActionExit {
		return ErrUnknownAction
	}

	m.mu.Lock()
	switch {
	case m.snap.ScanText == "":
		m.mu.Unlock()
		return ErrNoScan
	case m.snap.Phase == model.PhaseSubmitting:
		m.mu.Unlock()
		return ErrBusy
	case m.snap.Action != model.ActionNone:
		m.mu.Unlock()
		return ErrAlreadyRecorded
	}

	gen := m.gen
	cycleID := m.snap.CycleID
	payload := backend.Payload{
		Data:         m.snap.Encoded,
		OriginalData: m.snap.ScanText,
		Timestamp:    m.now().UTC().Format(time.RFC3339),
	}
	m.snap.Phase = model.PhaseSubmitting
	m.snap.Status = fmt.Sprintf("Submitting %s...", kind)
	m.notifyLocked()
	m.mu.Unlock()

	var err error
	if kind == model.ActionEntry {
		_, err = m.client.AllowEntry(ctx, payload)
	} else {
		_, err = m.client.Exit(ctx, payload)
	}

	m.resolve(gen, cycleID, kind, payload, err)
	return nil
}

// resolve lands the outcome of a finished backend call. The submitting phase
// is always cleared here, whatever the outcome, unless the generation moved
// on, in which case the snapshot already belongs to a newer cycle and the
// response is dropped.
func (m *Machine) resolve(gen uint64, cycleID string, kind model.Action, p backend.Payload, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		m.log.Info("discarding stale backend response",
			zap.Stringer("kind", kind),
			zap.Uint64("submitted_generation", gen),
			zap.Uint64("current_generation", m.gen))
		m.record(cycleID, "stale", p.OriginalData, p.Data, fmt.Sprintf("stale %s response discarded", kind))
		return
	}

	m.snap.Phase = model.PhaseResolved

	var apiErr *backend.APIError
	switch {
	case err == nil:
		m.snap.Action = kind
		m.snap.Status = successMessage(kind)
	case errors.As(err, &apiErr):
		m.snap.Status = rejectMessage(kind, apiErr.Message)
	default:
		m.snap.Status = fmt.Sprintf("Network error: %v", err)
	}

	m.record(cycleID, kind.String(), p.OriginalData, p.Data, m.snap.Status)
	m.notifyLocked()
}

// Reset clears the cycle and returns to idle. The camera keeps running; an
// in-flight submission for the old cycle will find the generation moved and
// discard itself.
func (m *Machine) Reset() model.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	m.snap = model.Snapshot{Phase: model.PhaseIdle, Generation: m.gen}
	m.notifyLocked()
	return m.snap
}

func successMessage(kind model.Action) string {
	if kind == model.ActionEntry {
		return "Entry recorded successfully."
	}
	return "Exit recorded successfully."
}

// rejectMessage hints at the most common cause for each kind. The hint is a
// terminal-side convenience, the backend only guarantees the message text.
func rejectMessage(kind model.Action, msg string) string {
	if kind == model.ActionEntry {
		return fmt.Sprintf("Entry rejected: %s (already entered?)", msg)
	}
	return fmt.Sprintf("Exit rejected: %s (not yet entered?)", msg)
}

func (m *Machine) record(cycleID, kind, rawText, encoded, outcome string) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.Record(cycleID, kind, rawText, encoded, outcome); err != nil {
		m.log.Warn("audit record failed", zap.String("kind", kind), zap.Error(err))
	}
}

// notifyLocked pushes the current snapshot to all notifiers. Callers hold mu;
// the snapshot is copied out first so a slow notifier sees a consistent value.
func (m *Machine) notifyLocked() {
	snap := m.snap
	for _, n := range m.notifiers {
		n.Notify(snap)
	}
}

package custody

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/models/evidence"
	"github.com/APTrust/evidence-services/util"
	"github.com/op/go-logging"
)

// Ledger keeps an append-only chain of custody for each tracked
// artifact. Each artifact has its own lock and its own writer
// goroutine, which saves the latest snapshot of the log to the
// artifact's custody sidecar after every change.
type Ledger struct {
	// Clock stamps new events. Tests replace it.
	Clock func() time.Time

	// Identity names the actor when Append isn't given one.
	Identity IdentityProvider

	Logger *logging.Logger

	closed    bool
	entries   map[string]*entry
	mutex     sync.Mutex
	waitGroup sync.WaitGroup
}

type entry struct {
	artifactID string
	events     []evidence.CustodyEvent
	path       string

	// mutex guards everything above plus the sequence counters.
	// cond is signalled on mutex whenever persistedSeq moves.
	mutex        sync.RWMutex
	cond         *sync.Cond
	appendSeq    uint64
	persistedSeq uint64
	lastErr      error
	stopped      bool

	// writeMutex serializes sidecar writes.
	writeMutex sync.Mutex

	pending chan struct{}
	stop    chan struct{}
}

// NewLedger returns an empty ledger that asks the OS who the current
// user is.
func NewLedger(logger *logging.Logger) *Ledger {
	return &Ledger{
		Clock:    func() time.Time { return time.Now().UTC() },
		Identity: OSUser{},
		Logger:   logger,
		entries:  make(map[string]*entry),
	}
}

// Track starts a custody log for artifactID, whose file is at
// artifactPath. Tracking an artifact that is already tracked just
// updates its path.
func (l *Ledger) Track(artifactID, artifactPath string) error {
	if artifactID == "" || artifactPath == "" {
		return common.NewError(common.ErrMisuse, "Track requires an artifact id and path", nil, false)
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return common.NewError(common.ErrMisuse, "Ledger is closed", nil, false)
	}
	if e, ok := l.entries[artifactID]; ok {
		e.setPath(artifactPath)
		return nil
	}
	e := &entry{
		artifactID: artifactID,
		events:     make([]evidence.CustodyEvent, 0),
		path:       artifactPath,
		pending:    make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mutex)
	l.entries[artifactID] = e
	l.waitGroup.Add(1)
	go l.persistLoop(e)
	return nil
}

// Relocate records that the artifact has moved. Later snapshots go
// to the sidecar next to the new path. The old sidecar is left alone.
func (l *Ledger) Relocate(artifactID, newPath string) error {
	e, err := l.entryFor(artifactID)
	if err != nil {
		return err
	}
	if newPath == "" {
		return common.NewError(common.ErrMisuse, "Relocate requires a path", nil, false)
	}
	e.setPath(newPath)
	e.mutex.Lock()
	e.appendSeq++
	e.mutex.Unlock()
	e.signal()
	return nil
}

// Path returns the artifact's current location.
func (l *Ledger) Path(artifactID string) (string, error) {
	e, err := l.entryFor(artifactID)
	if err != nil {
		return "", err
	}
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.path, nil
}

// Append adds an event to the artifact's log. If actor is omitted,
// the ledger's identity provider names one. The event is in memory
// when Append returns. It reaches disk shortly after, and a failure
// to write it is logged, not returned.
func (l *Ledger) Append(artifactID, action, details string, actor ...string) error {
	e, err := l.entryFor(artifactID)
	if err != nil {
		return err
	}
	who := ""
	if len(actor) > 0 {
		who = actor[0]
	}
	if who == "" {
		who = l.Identity.CurrentUser()
	}
	e.mutex.Lock()
	e.events = append(e.events, evidence.NewCustodyEvent(l.Clock(), action, details, who))
	e.appendSeq++
	e.mutex.Unlock()
	e.signal()
	return nil
}

// Events returns a copy of the artifact's log, oldest first. It
// returns an empty list for untracked artifacts.
func (l *Ledger) Events(artifactID string) []evidence.CustodyEvent {
	e, err := l.entryFor(artifactID)
	if err != nil {
		return make([]evidence.CustodyEvent, 0)
	}
	events, _, _ := e.snapshot()
	return events
}

// HasAction returns true if the artifact's log contains action.
func (l *Ledger) HasAction(artifactID, action string) bool {
	for _, event := range l.Events(artifactID) {
		if event.Action == action {
			return true
		}
	}
	return false
}

// ExportLog writes the artifact's log to its custody sidecar right
// away and returns the sidecar's path.
func (l *Ledger) ExportLog(artifactID string) (string, error) {
	e, err := l.entryFor(artifactID)
	if err != nil {
		return "", err
	}
	return e.write()
}

// VerifyIntegrity audits the artifact's log. See Audit.
func (l *Ledger) VerifyIntegrity(artifactID string) IntegrityReport {
	return Audit(l.Events(artifactID))
}

// Sign signs the artifact's log. See SignEvents.
func (l *Ledger) Sign(artifactID string, key *ecdsa.PrivateKey) (string, error) {
	if _, err := l.entryFor(artifactID); err != nil {
		return "", err
	}
	return SignEvents(l.Events(artifactID), key)
}

// Load replaces the in-memory log with the contents of the custody
// sidecar, if there is one. Unreadable entries are skipped.
func (l *Ledger) Load(artifactID string) error {
	e, err := l.entryFor(artifactID)
	if err != nil {
		return err
	}
	e.mutex.RLock()
	sidecarPath := util.CustodyLogPathFor(e.path)
	e.mutex.RUnlock()

	data, err := os.ReadFile(sidecarPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return common.IOError(fmt.Sprintf("Cannot read custody log %s", sidecarPath), err)
	}
	storedID, events, skipped, err := UnmarshalLog(data)
	if err != nil {
		return common.NewError(common.ErrMalformedResponse,
			fmt.Sprintf("Cannot parse custody log %s", sidecarPath), err, false)
	}
	if storedID != "" && storedID != artifactID {
		l.Logger.Warningf("Custody log %s belongs to artifact %s, loading it for %s", sidecarPath, storedID, artifactID)
	}
	if skipped > 0 {
		l.Logger.Warningf("Skipped %d unreadable events in %s", skipped, sidecarPath)
	}
	e.mutex.Lock()
	e.events = events
	e.mutex.Unlock()
	return nil
}

// Open tracks the artifact at artifactPath under the id recorded in
// its custody sidecar, loads the sidecar, and returns the id. It's for
// tools that start from a file on disk rather than a capture message.
func (l *Ledger) Open(artifactPath string) (string, error) {
	sidecarPath := util.CustodyLogPathFor(artifactPath)
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return "", common.IOError(fmt.Sprintf("Cannot read custody log %s", sidecarPath), err)
	}
	artifactID, _, _, err := UnmarshalLog(data)
	if err != nil {
		return "", common.NewError(common.ErrMalformedResponse,
			fmt.Sprintf("Cannot parse custody log %s", sidecarPath), err, false)
	}
	if artifactID == "" {
		return "", common.NewError(common.ErrMalformedResponse,
			fmt.Sprintf("Custody log %s has no artifact id", sidecarPath), nil, false)
	}
	if err = l.Track(artifactID, artifactPath); err != nil {
		return "", err
	}
	return artifactID, l.Load(artifactID)
}

// Flush blocks until every change made to the artifact's log before
// the call has been written, or the write attempted. It returns the
// error from the latest write attempt, if any.
func (l *Ledger) Flush(artifactID string) error {
	e, err := l.entryFor(artifactID)
	if err != nil {
		return err
	}
	e.mutex.Lock()
	defer e.mutex.Unlock()
	target := e.appendSeq
	for e.persistedSeq < target && !e.stopped {
		e.cond.Wait()
	}
	return e.lastErr
}

// Forget stops tracking the artifact. A pending write still finishes.
func (l *Ledger) Forget(artifactID string) error {
	l.mutex.Lock()
	e, ok := l.entries[artifactID]
	if l.closed || !ok {
		l.mutex.Unlock()
		return common.NewError(common.ErrMisuse,
			fmt.Sprintf("Artifact %s is not tracked", artifactID), nil, false)
	}
	delete(l.entries, artifactID)
	l.mutex.Unlock()
	close(e.stop)
	return nil
}

// Close writes any pending snapshots and stops all writer goroutines.
// The ledger can't be used afterward.
func (l *Ledger) Close() {
	l.mutex.Lock()
	if l.closed {
		l.mutex.Unlock()
		return
	}
	l.closed = true
	for _, e := range l.entries {
		close(e.stop)
	}
	l.entries = make(map[string]*entry)
	l.mutex.Unlock()
	l.waitGroup.Wait()
}

func (l *Ledger) entryFor(artifactID string) (*entry, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return nil, common.NewError(common.ErrMisuse, "Ledger is closed", nil, false)
	}
	e, ok := l.entries[artifactID]
	if !ok {
		return nil, common.NewError(common.ErrMisuse,
			fmt.Sprintf("Artifact %s is not tracked", artifactID), nil, false)
	}
	return e, nil
}

// persistLoop is the artifact's single writer. Each pass writes the
// latest snapshot, so bursts of appends collapse into one write.
func (l *Ledger) persistLoop(e *entry) {
	defer l.waitGroup.Done()
	for {
		select {
		case <-e.pending:
			l.persist(e)
		case <-e.stop:
			e.mutex.RLock()
			behind := e.persistedSeq < e.appendSeq
			e.mutex.RUnlock()
			if behind {
				l.persist(e)
			}
			e.mutex.Lock()
			e.stopped = true
			e.cond.Broadcast()
			e.mutex.Unlock()
			return
		}
	}
}

func (l *Ledger) persist(e *entry) {
	sidecarPath, err := e.write()
	if err != nil {
		l.Logger.Errorf("Failed to persist custody log for %s: %v", e.artifactID, err)
		return
	}
	l.Logger.Debugf("Persisted custody log for %s to %s", e.artifactID, sidecarPath)
}

func (e *entry) setPath(artifactPath string) {
	e.mutex.Lock()
	e.path = artifactPath
	e.mutex.Unlock()
}

func (e *entry) signal() {
	select {
	case e.pending <- struct{}{}:
	default:
	}
}

func (e *entry) snapshot() ([]evidence.CustodyEvent, string, uint64) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return evidence.CopyEvents(e.events), e.path, e.appendSeq
}

// write saves the latest snapshot to the sidecar. The snapshot is
// taken under writeMutex, so a later write never carries an older
// snapshot than an earlier one.
func (e *entry) write() (string, error) {
	e.writeMutex.Lock()
	defer e.writeMutex.Unlock()
	events, artifactPath, seq := e.snapshot()
	sidecarPath := util.CustodyLogPathFor(artifactPath)
	data, err := MarshalLog(e.artifactID, artifactPath, events)
	if err == nil {
		err = util.WriteFileAtomic(sidecarPath, data, 0644)
	}
	if err != nil {
		err = common.IOError(fmt.Sprintf("Cannot write custody log %s", sidecarPath), err)
	}
	e.mutex.Lock()
	if seq > e.persistedSeq {
		e.persistedSeq = seq
	}
	e.lastErr = err
	e.cond.Broadcast()
	e.mutex.Unlock()
	return sidecarPath, err
}

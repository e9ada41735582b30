package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/allen1211/bitpres/internal/registry"
	"github.com/allen1211/bitpres/internal/versioned"
	"github.com/allen1211/bitpres/pkg/common"
)

const maxSetStateAttempts = 5

// Ledger is the authoritative record of which files exist, their checksums
// and their upload state per replica.
type Ledger struct {
	store versioned.Store
	reg   *registry.Registry
	log   *logrus.Logger
	now   func() time.Time
}

func New(store versioned.Store, reg *registry.Registry, logger *logrus.Logger) *Ledger {
	return &Ledger{
		store: store,
		reg:   reg,
		log:   logger,
		now:   time.Now,
	}
}

func (l *Ledger) GetEntry(filename string) (*Entry, error) {
	rec, err := l.store.Get(filename)
	if errors.Is(err, versioned.ErrNotFound) {
		return nil, fmt.Errorf("file %s: %w", filename, common.ErrUnknownFile)
	} else if err != nil {
		return nil, err
	}
	return unmarshalEntry(rec.Key, rec.Edition, rec.Value)
}

// CreateEntry records a new file with UploadStarted on every target replica.
func (l *Ledger) CreateEntry(filename, checksum string, targets []string) (*Entry, error) {
	states := make(map[string]common.ReplicaStoreState, len(targets))
	for _, r := range targets {
		states[r] = common.UploadStarted
	}
	return l.CreateEntryWithStates(filename, checksum, states)
}

func (l *Ledger) CreateEntryWithStates(filename, checksum string, states map[string]common.ReplicaStoreState) (*Entry, error) {
	if filename == "" || checksum == "" {
		return nil, fmt.Errorf("filename and checksum are required: %w", common.ErrBadArgs)
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("file %s has no target replica: %w", filename, common.ErrBadArgs)
	}
	for r, s := range states {
		if !l.reg.Has(r) {
			return nil, fmt.Errorf("replica %s: %w", r, common.ErrUnknownReplica)
		}
		if !s.Valid() {
			return nil, fmt.Errorf("state %d for replica %s: %w", s, r, common.ErrBadArgs)
		}
	}

	now := l.now().UnixNano()
	e := &Entry{
		Filename: filename,
		Checksum: checksum,
		States:   states,
		Created:  now,
		Updated:  now,
	}
	rec, err := l.store.Create(filename, e.marshal())
	if errors.Is(err, versioned.ErrExists) {
		return nil, fmt.Errorf("file %s: %w", filename, common.ErrAlreadyExists)
	} else if err != nil {
		return nil, err
	}
	e.Edition = rec.Edition
	l.log.Debugf("ledger created %s checksum=%s targets=%v", filename, checksum, e.Replicas())
	return e.Clone(), nil
}

// SetState changes the state of one replica for a file. It carries no
// caller-held data, so an edition conflict is resolved by re-reading.
func (l *Ledger) SetState(filename, replicaId string, state common.ReplicaStoreState) error {
	if !l.reg.Has(replicaId) {
		return fmt.Errorf("replica %s: %w", replicaId, common.ErrUnknownReplica)
	}
	if !state.Valid() {
		return fmt.Errorf("state %d: %w", state, common.ErrBadArgs)
	}
	var err error
	for i := 0; i < maxSetStateAttempts; i++ {
		var e *Entry
		if e, err = l.GetEntry(filename); err != nil {
			return err
		}
		if _, ok := e.States[replicaId]; !ok {
			return fmt.Errorf("file %s is not tracked on replica %s: %w", filename, replicaId, common.ErrUnknownReplica)
		}
		if e.States[replicaId] == state {
			return nil
		}
		e.States[replicaId] = state
		if _, err = l.Update(e); err == nil {
			l.log.Debugf("ledger set %s on %s to %s", filename, replicaId, state)
			return nil
		} else if !errors.Is(err, common.ErrStaleEdition) {
			return err
		}
	}
	return err
}

// Update writes entry if its edition is still current. The returned entry
// carries the new edition.
func (l *Ledger) Update(entry *Entry) (*Entry, error) {
	for r, s := range entry.States {
		if !l.reg.Has(r) {
			return nil, fmt.Errorf("replica %s: %w", r, common.ErrUnknownReplica)
		}
		if !s.Valid() {
			return nil, fmt.Errorf("state %d for replica %s: %w", s, r, common.ErrBadArgs)
		}
	}
	e := entry.Clone()
	e.Updated = l.now().UnixNano()
	rec, err := l.store.Update(e.Filename, e.Edition, e.marshal())
	if errors.Is(err, versioned.ErrNotFound) {
		return nil, fmt.Errorf("file %s: %w", e.Filename, common.ErrUnknownFile)
	} else if err != nil {
		return nil, err
	}
	e.Edition = rec.Edition
	return e, nil
}

// NotifyUpload records the outcome reported by the ingest pipeline.
func (l *Ledger) NotifyUpload(filename, replicaId string, ok bool) error {
	state := common.UploadFailed
	if ok {
		state = common.UploadCompleted
	}
	return l.SetState(filename, replicaId, state)
}

func (l *Ledger) ForEach(fn func(e *Entry) bool) error {
	var decodeErr error
	err := l.store.Scan("", func(rec versioned.Record) bool {
		e, err := unmarshalEntry(rec.Key, rec.Edition, rec.Value)
		if err != nil {
			decodeErr = err
			return false
		}
		return fn(e)
	})
	if err != nil {
		return err
	}
	return decodeErr
}

// ExpectedOn maps every file the ledger expects on replicaId to its checksum.
func (l *Ledger) ExpectedOn(replicaId string) (map[string]string, error) {
	res := map[string]string{}
	err := l.ForEach(func(e *Entry) bool {
		if _, ok := e.States[replicaId]; ok {
			res[e.Filename] = e.Checksum
		}
		return true
	})
	return res, err
}

func (l *Ledger) Filenames() (map[string]struct{}, error) {
	res := map[string]struct{}{}
	err := l.ForEach(func(e *Entry) bool {
		res[e.Filename] = struct{}{}
		return true
	})
	return res, err
}

func (l *Ledger) Len() (int, error) {
	n := 0
	err := l.ForEach(func(e *Entry) bool {
		n++
		return true
	})
	return n, err
}

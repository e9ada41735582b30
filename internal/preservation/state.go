package preservation

import (
	"errors"
	"sort"
	"time"

	"github.com/allen1211/bitpres/internal/ledger"
	"github.com/allen1211/bitpres/pkg/common"
)

// ReplicaView is what is known about one file on one replica.
type ReplicaView struct {
	ReplicaId        string
	Kind             common.ReplicaKind
	Expected         bool
	State            common.ReplicaStoreState
	ListStatus       common.FileListStatus
	ListedAt         time.Time
	ObservedChecksum string
	ChecksumStatus   common.ChecksumStatus
	ChecksummedAt    time.Time
}

// PreservationState joins the ledger entry of a file with the latest scans
// of every replica. It is computed on demand and never stored.
type PreservationState struct {
	Filename     string
	Entry        *ledger.Entry
	LedgerReadAt time.Time
	ReferenceId  string
	Replicas     map[string]ReplicaView
}

func (s *PreservationState) ReferenceChecksum() string {
	return s.Replicas[s.ReferenceId].ObservedChecksum
}

// MajorityChecksum is the checksum reported by more than half of the
// replicas that reported one, or "" if there is none.
func (s *PreservationState) MajorityChecksum() string {
	votes := map[string]int{}
	total := 0
	for _, v := range s.Replicas {
		if v.ObservedChecksum == "" {
			continue
		}
		votes[v.ObservedChecksum]++
		total++
	}
	for sum, n := range votes {
		if 2*n > total {
			return sum
		}
	}
	return ""
}

// IsAdminDataOk reports whether every replica the file should reach has it
// completed, listed and with the ledger checksum.
func (s *PreservationState) IsAdminDataOk() bool {
	for _, v := range s.Replicas {
		if !v.Expected {
			continue
		}
		if v.State != common.UploadCompleted || v.ListStatus != common.FileListOK {
			return false
		}
		if v.Kind == common.BitarchiveReplica && v.ChecksumStatus != common.ChecksumOK {
			return false
		}
	}
	return true
}

func (s *PreservationState) ReplicaIds() []string {
	ids := make([]string, 0, len(s.Replicas))
	for id := range s.Replicas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetPreservationStateMap returns the state of each file, nil for files the
// ledger does not know. It never starts a scan.
func (e *Engine) GetPreservationStateMap(filenames ...string) (map[string]*PreservationState, error) {
	res := make(map[string]*PreservationState, len(filenames))
	refId := ""
	if ref, err := e.reg.Reference(); err == nil {
		refId = ref.Id
	}
	for _, name := range filenames {
		entry, err := e.ledger.GetEntry(name)
		if errors.Is(err, common.ErrUnknownFile) {
			res[name] = nil
			continue
		} else if err != nil {
			return nil, err
		}
		res[name] = e.stateOf(entry, refId)
	}
	return res, nil
}

func (e *Engine) GetPreservationState(filename string) (*PreservationState, error) {
	m, err := e.GetPreservationStateMap(filename)
	if err != nil {
		return nil, err
	}
	return m[filename], nil
}

func (e *Engine) stateOf(entry *ledger.Entry, refId string) *PreservationState {
	st := &PreservationState{
		Filename:     entry.Filename,
		Entry:        entry,
		LedgerReadAt: e.now(),
		ReferenceId:  refId,
		Replicas:     map[string]ReplicaView{},
	}
	for _, r := range e.reg.All() {
		v := ReplicaView{ReplicaId: r.Id, Kind: r.Kind}
		v.State, v.Expected = entry.StateOn(r.Id)

		if ms := e.cache.Missing(r.Id); ms != nil {
			v.ListedAt = ms.Date
			if ms.Has(entry.Filename) {
				v.ListStatus = common.FileListOK
			} else {
				v.ListStatus = common.FileListMissing
			}
		}
		if cs := e.cache.Changed(r.Id); cs != nil {
			v.ChecksummedAt = cs.Date
			if sum, ok := cs.Observed[entry.Filename]; ok {
				v.ObservedChecksum = sum
				if sum == entry.Checksum {
					v.ChecksumStatus = common.ChecksumOK
				} else {
					v.ChecksumStatus = common.ChecksumCorrupt
				}
			}
		}
		st.Replicas[r.Id] = v
	}
	return st
}

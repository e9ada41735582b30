package preservation

import (
	"fmt"
	"sort"

	"github.com/allen1211/bitpres/internal/ledger"
	"github.com/allen1211/bitpres/pkg/common"
)

// listingForAdminData picks the file listing used to detect files the ledger
// lacks: the reference replica's, else the first other data replica scanned.
func (e *Engine) listingForAdminData() (*MissingScan, error) {
	var candidates []string
	if ref, err := e.reg.Reference(); err == nil {
		candidates = append(candidates, ref.Id)
	}
	for _, r := range e.reg.All() {
		if r.Kind == common.BitarchiveReplica && !r.Reference {
			candidates = append(candidates, r.Id)
		}
	}
	for _, id := range candidates {
		if scan := e.cache.Missing(id); scan != nil {
			return scan, nil
		}
	}
	return nil, fmt.Errorf("no replica listing to compare the ledger with: %w", common.ErrNoData)
}

// GetMissingFilesForAdminData returns the files present on a replica that
// the ledger has no entry for.
func (e *Engine) GetMissingFilesForAdminData() ([]string, error) {
	scan, err := e.listingForAdminData()
	if err != nil {
		return nil, err
	}
	known, err := e.ledger.Filenames()
	if err != nil {
		return nil, err
	}
	res := make([]string, 0)
	for name := range scan.Present {
		if _, ok := known[name]; !ok {
			res = append(res, name)
		}
	}
	sort.Strings(res)
	return res, nil
}

// GetChangedFilesForAdminData returns the files whose ledger entry disagrees
// with what the replicas report: a checksum other than the majority one, or
// an upload state the latest listing contradicts.
func (e *Engine) GetChangedFilesForAdminData() ([]string, error) {
	hasEvidence := false
	for _, r := range e.reg.All() {
		if e.cache.Missing(r.Id) != nil || e.cache.Changed(r.Id) != nil {
			hasEvidence = true
			break
		}
	}
	if !hasEvidence {
		return nil, fmt.Errorf("no replica scans to compare the ledger with: %w", common.ErrNoData)
	}

	refId := ""
	if ref, err := e.reg.Reference(); err == nil {
		refId = ref.Id
	}
	res := make([]string, 0)
	err := e.ledger.ForEach(func(entry *ledger.Entry) bool {
		if e.ledgerDisagrees(e.stateOf(entry, refId)) {
			res = append(res, entry.Filename)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(res)
	return res, nil
}

func (e *Engine) ledgerDisagrees(st *PreservationState) bool {
	if majority := st.MajorityChecksum(); majority != "" && majority != st.Entry.Checksum {
		return true
	}
	for _, id := range st.ReplicaIds() {
		v := st.Replicas[id]
		if !v.Expected || v.ListStatus == common.NoFileListStatus {
			continue
		}
		if ms := e.cache.Missing(id); ms != nil && ms.Incomplete {
			continue
		}
		switch {
		case v.State == common.UploadCompleted && v.ListStatus == common.FileListMissing:
			return true
		case v.State != common.UploadCompleted && v.ListStatus == common.FileListOK &&
			v.ChecksumStatus == common.ChecksumOK:
			return true
		}
	}
	return false
}

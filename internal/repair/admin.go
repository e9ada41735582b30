package repair

import (
	"context"
	"errors"
	"fmt"

	"github.com/allen1211/bitpres/pkg/common"
)

// AddMissingFilesToAdminData creates ledger entries for files a replica holds
// but the ledger lacks. The checksum is the one the reference reports now.
// With no filenames every such file is added.
func (w *Workflows) AddMissingFilesToAdminData(ctx context.Context, filenames ...string) (*common.Report, error) {
	unknown, err := w.engine.GetMissingFilesForAdminData()
	if err != nil {
		return nil, err
	}
	ref, err := w.reg.Reference()
	if err != nil {
		return nil, err
	}
	if len(filenames) == 0 {
		filenames = unknown
	}
	isUnknown := make(map[string]bool, len(unknown))
	for _, name := range unknown {
		isUnknown[name] = true
	}

	out := newOutcome(common.OpAddToAdmin, "")
	for _, name := range filenames {
		if _, err := w.ledger.GetEntry(name); err == nil {
			out.skip(name, fmt.Errorf("ledger already has %s: %w", name, common.ErrAlreadyExists))
			continue
		} else if !errors.Is(err, common.ErrUnknownFile) {
			out.fail(name, PhaseVerifying, err)
			continue
		}
		if !isUnknown[name] {
			out.skip(name, fmt.Errorf("no replica listing shows %s: %w", name, common.ErrBadArgs))
			continue
		}
		sum, err := w.engine.VerifyChecksum(ctx, ref.Id, name)
		if err != nil {
			out.skip(name, err)
			continue
		}

		states := make(map[string]common.ReplicaStoreState)
		for _, r := range w.reg.All() {
			if ms := w.engine.Cache().Missing(r.Id); ms != nil && ms.Has(name) {
				states[r.Id] = common.UploadCompleted
			} else {
				states[r.Id] = common.UploadFailed
			}
		}
		if _, err := w.ledger.CreateEntryWithStates(name, sum, states); err != nil {
			if errors.Is(err, common.ErrAlreadyExists) {
				out.skip(name, err)
			} else {
				out.fail(name, PhaseRepairing, err)
			}
			continue
		}
		w.log.Infof("added %s with checksum %s to the ledger", name, sum)
		out.succeed(name)
	}
	return out.done(), nil
}

// ChangeStateForAdminData rewrites the per-replica states of filename from
// the latest scans. A replica without list evidence, or whose last list scan
// missed nodes, keeps its state. A concurrent ledger write surfaces as
// ErrStaleEdition.
func (w *Workflows) ChangeStateForAdminData(ctx context.Context, filename string) (*common.Report, error) {
	st, err := w.engine.GetPreservationState(filename)
	if err != nil {
		return nil, err
	}
	out := newOutcome(common.OpChangeState, "")
	if st == nil {
		err := fmt.Errorf("file %s: %w", filename, common.ErrUnknownFile)
		out.skip(filename, err)
		return out.done(), err
	}

	entry := st.Entry.Clone()
	changed := false
	for _, id := range st.ReplicaIds() {
		v := st.Replicas[id]
		if !v.Expected || v.ListStatus == common.NoFileListStatus {
			continue
		}
		if ms := w.engine.Cache().Missing(id); ms != nil && ms.Incomplete {
			continue
		}
		next := v.State
		switch {
		case v.ListStatus == common.FileListMissing:
			next = common.UploadFailed
		case v.ChecksumStatus == common.ChecksumCorrupt:
			next = common.UploadFailed
		case v.ChecksumStatus == common.ChecksumOK:
			next = common.UploadCompleted
		}
		if next != v.State {
			w.log.Infof("%s on replica %s: %s -> %s", filename, id, v.State, next)
			entry.States[id] = next
			changed = true
		}
	}
	if !changed {
		out.succeed(filename)
		return out.done(), nil
	}
	if _, err := w.ledger.Update(entry); err != nil {
		out.fail(filename, PhaseRepairing, err)
		return out.done(), err
	}
	out.succeed(filename)
	return out.done(), nil
}

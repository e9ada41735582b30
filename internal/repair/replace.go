package repair

import (
	"context"
	"errors"
	"fmt"

	"github.com/allen1211/bitpres/pkg/common"
)

// ReplaceChangedFile swaps the copy of filename on replicaId for the
// reference copy. badChecksum must be what the replica reports for the file
// right now, otherwise nothing is touched and ErrPermissionDenied is returned.
// The returned error is the outcome of the file, the report carries the phase.
func (w *Workflows) ReplaceChangedFile(ctx context.Context, replicaId, filename, credentials, badChecksum string) (*common.Report, error) {
	ref, err := w.target(replicaId)
	if err != nil {
		return nil, err
	}
	out := newOutcome(common.OpReplaceChanged, replicaId)
	skip := func(err error) (*common.Report, error) {
		out.skip(filename, err)
		return out.done(), err
	}
	fail := func(err error) (*common.Report, error) {
		out.fail(filename, PhaseRepairing, err)
		return out.done(), err
	}

	if !w.reg.CheckCredentials(replicaId, credentials) {
		return skip(fmt.Errorf("bad credentials for replica %s: %w", replicaId, common.ErrPermissionDenied))
	}
	entry, err := w.ledger.GetEntry(filename)
	if err != nil {
		return skip(err)
	}
	if badChecksum == entry.Checksum {
		return skip(fmt.Errorf("%s is the ledger checksum of %s: %w", badChecksum, filename, common.ErrBadArgs))
	}
	observed, err := w.engine.VerifyChecksum(ctx, replicaId, filename)
	if errors.Is(err, common.ErrUnknownFile) {
		return skip(fmt.Errorf("%s is not on replica %s, so it cannot have checksum %s: %w",
			filename, replicaId, badChecksum, common.ErrPermissionDenied))
	} else if err != nil {
		return skip(err)
	}
	if observed != badChecksum {
		return skip(fmt.Errorf("%s has checksum %s on replica %s, not %s: %w",
			filename, observed, replicaId, badChecksum, common.ErrPermissionDenied))
	}

	if err := w.copies.Acquire(ctx, 1); err != nil {
		return skip(err)
	}
	defer w.copies.Release(1)
	data, err := w.referenceCopy(ctx, ref.Id, entry)
	if err != nil {
		return skip(err)
	}

	if _, err := w.files.RemoveAndGetFile(ctx, replicaId, filename, badChecksum, credentials); err != nil {
		return fail(err)
	}
	w.log.Warnf("removed %s with checksum %s from replica %s", filename, badChecksum, replicaId)

	if err := w.files.Upload(ctx, replicaId, filename, data, entry.Checksum); err != nil {
		w.log.Errorf("%s removed from replica %s but the good copy was not uploaded: %v", filename, replicaId, err)
		w.markFailed(filename, replicaId)
		return fail(err)
	}
	got, err := w.engine.VerifyChecksum(ctx, replicaId, filename)
	if err == nil && got != entry.Checksum {
		err = fmt.Errorf("%s has checksum %s on replica %s after repair: %w", filename, got, replicaId, common.ErrFailed)
	}
	if err != nil {
		w.log.Errorf("verify %s on replica %s: %v", filename, replicaId, err)
		w.markFailed(filename, replicaId)
		return fail(err)
	}
	if err := w.ledger.SetState(filename, replicaId, common.UploadCompleted); err != nil {
		return fail(err)
	}
	w.log.Infof("replaced %s on replica %s with the copy from %s", filename, replicaId, ref.Id)
	out.succeed(filename)
	return out.done(), nil
}

func (w *Workflows) markFailed(filename, replicaId string) {
	if err := w.ledger.SetState(filename, replicaId, common.UploadFailed); err != nil {
		w.log.Errorf("set %s on replica %s to failed: %v", filename, replicaId, err)
	}
}

package repair

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/allen1211/bitpres/internal/preservation"
	"github.com/allen1211/bitpres/pkg/common"
)

// UploadMissingFiles copies files reported missing on replicaId from the
// reference replica. With no filenames every file of the last missing scan
// is repaired.
func (w *Workflows) UploadMissingFiles(ctx context.Context, replicaId string, filenames ...string) (*common.Report, error) {
	ref, err := w.target(replicaId)
	if err != nil {
		return nil, err
	}
	scan := w.engine.Cache().Missing(replicaId)
	if len(filenames) == 0 {
		if scan == nil {
			return nil, fmt.Errorf("replica %s was never scanned for missing files: %w", replicaId, common.ErrNoData)
		}
		filenames = scan.Files
	}

	out := newOutcome(common.OpUploadMissing, replicaId)
	var wg sync.WaitGroup
	for _, name := range filenames {
		if err := w.copies.Acquire(ctx, 1); err != nil {
			out.fail(name, PhaseDetected, err)
			continue
		}
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			defer w.copies.Release(1)
			w.uploadMissing(ctx, out, scan, ref.Id, replicaId, name)
		}(name)
	}
	wg.Wait()

	report := out.done()
	w.log.Infof("upload missing files to %s: %d repaired, %d failed, %d skipped",
		replicaId, len(report.Succeeded), len(report.Failed), len(report.Skipped))
	return report, nil
}

func (w *Workflows) uploadMissing(ctx context.Context, out *outcome, scan *preservation.MissingScan, refId, replicaId, name string) {
	switch {
	case scan == nil:
		out.skip(name, fmt.Errorf("replica %s was never scanned for missing files: %w", replicaId, common.ErrNoData))
		return
	case scan.Incomplete:
		out.skip(name, fmt.Errorf("last scan of replica %s missed some nodes: %w", replicaId, common.ErrNoData))
		return
	case !scan.IsMissing(name):
		out.skip(name, fmt.Errorf("%s is not reported missing on replica %s: %w", name, replicaId, common.ErrBadArgs))
		return
	}
	entry, err := w.ledger.GetEntry(name)
	if err != nil {
		out.skip(name, err)
		return
	}
	data, err := w.referenceCopy(ctx, refId, entry)
	if err != nil {
		out.skip(name, err)
		return
	}

	if err := w.files.Upload(ctx, replicaId, name, data, entry.Checksum); err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			out.skip(name, err)
			return
		}
		w.log.Errorf("upload %s to replica %s: %v", name, replicaId, err)
		out.fail(name, PhaseRepairing, err)
		return
	}
	if err := w.ledger.SetState(name, replicaId, common.UploadCompleted); err != nil {
		w.log.Errorf("%s uploaded to replica %s but the ledger was not updated: %v", name, replicaId, err)
		out.fail(name, PhaseRepairing, err)
		return
	}
	w.log.Infof("copied %s from %s to %s", name, refId, replicaId)
	out.succeed(name)
}

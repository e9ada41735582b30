package preservation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/allen1211/bitpres/internal/batch"
	"github.com/allen1211/bitpres/internal/ledger"
	"github.com/allen1211/bitpres/internal/registry"
	"github.com/allen1211/bitpres/pkg/common"
)

var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bitpres_engine",
		Name:      "scans_total",
		Help:      "Replica scans by kind and outcome",
	}, []string{"replica", "kind", "outcome"})
	missingGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bitpres_engine",
		Name:      "missing_files",
		Help:      "Missing files found by the last scan",
	}, []string{"replica"})
	changedGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bitpres_engine",
		Name:      "changed_files",
		Help:      "Changed files found by the last scan",
	}, []string{"replica"})
)

// Submitter runs a batch job on a replica.
type Submitter interface {
	Submit(ctx context.Context, job batch.Job, replicaId string) (*batch.Result, error)
}

// Engine compares what the ledger expects with what the replicas report.
// Scans only read the ledger. Their results go to the scan cache, which
// every Get* operation reads without doing I/O.
type Engine struct {
	ledger *ledger.Ledger
	reg    *registry.Registry
	gw     Submitter
	cache  *ScanCache
	log    *logrus.Logger
	now    func() time.Time
}

func NewEngine(l *ledger.Ledger, reg *registry.Registry, gw Submitter, logger *logrus.Logger) *Engine {
	return &Engine{
		ledger: l,
		reg:    reg,
		gw:     gw,
		cache:  NewScanCache(),
		log:    logger,
		now:    time.Now,
	}
}

func (e *Engine) Cache() *ScanCache {
	return e.cache
}

// FindMissingFiles lists replicaId and records the files the ledger expects
// there but the listing lacks. Without usable data the cache keeps the
// previous scan and ErrNoData is returned.
func (e *Engine) FindMissingFiles(ctx context.Context, replicaId string) (*MissingScan, error) {
	if _, err := e.reg.Get(replicaId); err != nil {
		return nil, err
	}
	expected, err := e.ledger.ExpectedOn(replicaId)
	if err != nil {
		return nil, err
	}
	res, err := e.gw.Submit(ctx, batch.NewFileListJob(batch.MatchAll), replicaId)
	if err != nil {
		return nil, err
	}
	if res.Empty() {
		e.log.Warnf("every node of replica %s answered with no files", replicaId)
	} else if !res.HasData() {
		scansTotal.WithLabelValues(replicaId, batch.KindFileList, "no_data").Inc()
		e.log.Warnf("file list of replica %s returned no data (processed=%d failed=%d timeout=%v)",
			replicaId, res.FilesProcessed, len(res.FilesFailed), res.TimedOut)
		return nil, fmt.Errorf("file list of replica %s: %w", replicaId, common.ErrNoData)
	}

	// a file that failed processing was still seen on the replica
	present := make(map[string]struct{}, len(res.Lines)+len(res.FilesFailed))
	for _, name := range res.Lines {
		present[name] = struct{}{}
	}
	for _, name := range res.FilesFailed {
		present[name] = struct{}{}
	}
	missing := make([]string, 0)
	for name := range expected {
		if _, ok := present[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	missingSet := make(map[string]struct{}, len(missing))
	for _, name := range missing {
		missingSet[name] = struct{}{}
	}

	scan := &MissingScan{
		Replica:    replicaId,
		JobId:      res.JobId,
		Date:       e.now(),
		Files:      missing,
		Present:    present,
		Missing:    missingSet,
		Failed:     res.FilesFailed,
		TotalFiles: int64(len(present)),
		Incomplete: len(res.NodeFailures) > 0,
	}
	e.cache.SetMissing(scan)

	scansTotal.WithLabelValues(replicaId, batch.KindFileList, "ok").Inc()
	missingGauge.WithLabelValues(replicaId).Set(float64(len(missing)))
	e.log.Infof("replica %s: %d files present, %d missing, %d failed", replicaId, len(present), len(missing), len(res.FilesFailed))
	return scan, nil
}

// FindChangedFiles checksums replicaId and records the files whose checksum
// differs from the ledger. Absent and unreadable files are not changed.
func (e *Engine) FindChangedFiles(ctx context.Context, replicaId string) (*ChangedScan, error) {
	if _, err := e.reg.Get(replicaId); err != nil {
		return nil, err
	}
	expected, err := e.ledger.ExpectedOn(replicaId)
	if err != nil {
		return nil, err
	}
	res, err := e.gw.Submit(ctx, batch.NewChecksumJob(batch.MatchAll), replicaId)
	if err != nil {
		return nil, err
	}
	if !res.HasData() {
		scansTotal.WithLabelValues(replicaId, batch.KindChecksum, "no_data").Inc()
		e.log.Warnf("checksum job on replica %s returned no data (processed=%d failed=%d timeout=%v)",
			replicaId, res.FilesProcessed, len(res.FilesFailed), res.TimedOut)
		return nil, fmt.Errorf("checksums of replica %s: %w", replicaId, common.ErrNoData)
	}

	observed, bad := res.Checksums()
	for _, line := range bad {
		e.log.Warnf("replica %s returned malformed checksum line %q", replicaId, line)
	}
	changed := make([]string, 0)
	for name, sum := range observed {
		if want, ok := expected[name]; ok && want != sum {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)

	scan := &ChangedScan{
		Replica:    replicaId,
		JobId:      res.JobId,
		Date:       e.now(),
		Files:      changed,
		Observed:   observed,
		Failed:     res.FilesFailed,
		Incomplete: len(res.NodeFailures) > 0,
	}
	e.cache.SetChanged(scan)

	scansTotal.WithLabelValues(replicaId, batch.KindChecksum, "ok").Inc()
	changedGauge.WithLabelValues(replicaId).Set(float64(len(changed)))
	e.log.Infof("replica %s: %d checksums observed, %d changed, %d failed", replicaId, len(observed), len(changed), len(res.FilesFailed))
	return scan, nil
}

// VerifyChecksum runs a checksum job restricted to one file and returns the
// checksum the replica reports for it.
func (e *Engine) VerifyChecksum(ctx context.Context, replicaId, filename string) (string, error) {
	res, err := e.gw.Submit(ctx, batch.NewChecksumJob(batch.FilterFor(filename)), replicaId)
	if err != nil {
		return "", err
	}
	if !res.HasData() {
		if res.FilesProcessed == 0 && !res.TimedOut && len(res.NodeFailures) == 0 {
			return "", fmt.Errorf("%s not on replica %s: %w", filename, replicaId, common.ErrUnknownFile)
		}
		return "", fmt.Errorf("checksum of %s on replica %s: %w", filename, replicaId, common.ErrNoData)
	}
	sums, _ := res.Checksums()
	sum, ok := sums[filename]
	if !ok {
		return "", fmt.Errorf("checksum of %s on replica %s: %w", filename, replicaId, common.ErrNoData)
	}
	return sum, nil
}

func (e *Engine) GetMissingFiles(replicaId string) ([]string, error) {
	if _, err := e.reg.Get(replicaId); err != nil {
		return nil, err
	}
	if scan := e.cache.Missing(replicaId); scan != nil {
		return append([]string(nil), scan.Files...), nil
	}
	return nil, nil
}

func (e *Engine) GetChangedFiles(replicaId string) ([]string, error) {
	if _, err := e.reg.Get(replicaId); err != nil {
		return nil, err
	}
	if scan := e.cache.Changed(replicaId); scan != nil {
		return append([]string(nil), scan.Files...), nil
	}
	return nil, nil
}

func (e *Engine) GetNumberOfMissingFiles(replicaId string) (int64, error) {
	files, err := e.GetMissingFiles(replicaId)
	return int64(len(files)), err
}

func (e *Engine) GetNumberOfChangedFiles(replicaId string) (int64, error) {
	files, err := e.GetChangedFiles(replicaId)
	return int64(len(files)), err
}

// GetNumberOfFiles is the file count of the latest scan of replicaId.
func (e *Engine) GetNumberOfFiles(replicaId string) (int64, error) {
	if _, err := e.reg.Get(replicaId); err != nil {
		return 0, err
	}
	ms, cs := e.cache.Missing(replicaId), e.cache.Changed(replicaId)
	switch {
	case ms != nil && (cs == nil || !cs.Date.After(ms.Date)):
		return ms.TotalFiles, nil
	case cs != nil:
		return int64(len(cs.Observed) + len(cs.Failed)), nil
	}
	return 0, nil
}

// GetDateForMissingFiles is the time of the latest missing-files scan, zero
// if the replica was never scanned.
func (e *Engine) GetDateForMissingFiles(replicaId string) (time.Time, error) {
	if _, err := e.reg.Get(replicaId); err != nil {
		return time.Time{}, err
	}
	if scan := e.cache.Missing(replicaId); scan != nil {
		return scan.Date, nil
	}
	return time.Time{}, nil
}

func (e *Engine) GetDateForChangedFiles(replicaId string) (time.Time, error) {
	if _, err := e.reg.Get(replicaId); err != nil {
		return time.Time{}, err
	}
	if scan := e.cache.Changed(replicaId); scan != nil {
		return scan.Date, nil
	}
	return time.Time{}, nil
}

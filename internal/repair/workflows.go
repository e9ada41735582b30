package repair

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/allen1211/bitpres/internal/ledger"
	"github.com/allen1211/bitpres/internal/preservation"
	"github.com/allen1211/bitpres/internal/registry"
	"github.com/allen1211/bitpres/pkg/common"
	"github.com/allen1211/bitpres/pkg/common/utils"
)

const DefaultMaxConcurrentCopies = 4

// Phase is where a repair of one file on one replica stands.
type Phase string

const (
	PhaseDetected           Phase = "Detected"
	PhaseVerifying          Phase = "Verifying"
	PhaseRepairing          Phase = "Repairing"
	PhaseRepaired           Phase = "Repaired"
	PhasePreconditionFailed Phase = "PreconditionFailed"
)

var repairedFiles = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bitpres_repair",
	Name:      "files_total",
	Help:      "Files handled by repair workflows by outcome",
}, []string{"operation", "outcome"})

// FileMover moves file bytes between replicas.
type FileMover interface {
	GetFile(ctx context.Context, replicaId, filename string) ([]byte, string, error)
	Upload(ctx context.Context, replicaId, filename string, data []byte, checksum string) error
	RemoveAndGetFile(ctx context.Context, replicaId, filename, checksum, credentials string) ([]byte, error)
}

// Workflows repairs replicas from the reference replica and brings the
// ledger in line with scan evidence. Every precondition is checked again
// right before acting, and a file failing one is reported, never mutated.
type Workflows struct {
	engine *preservation.Engine
	ledger *ledger.Ledger
	files  FileMover
	reg    *registry.Registry
	log    *logrus.Logger
	copies *semaphore.Weighted
}

func NewWorkflows(engine *preservation.Engine, l *ledger.Ledger, files FileMover, reg *registry.Registry,
	logger *logrus.Logger, maxConcurrentCopies int) *Workflows {
	if maxConcurrentCopies <= 0 {
		maxConcurrentCopies = DefaultMaxConcurrentCopies
	}
	return &Workflows{
		engine: engine,
		ledger: l,
		files:  files,
		reg:    reg,
		log:    logger,
		copies: semaphore.NewWeighted(int64(maxConcurrentCopies)),
	}
}

// outcome collects per-file results from concurrent copies.
type outcome struct {
	mu     sync.Mutex
	report common.Report
}

func newOutcome(op, replicaId string) *outcome {
	return &outcome{report: common.Report{Operation: op, Replica: replicaId}}
}

func (o *outcome) succeed(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.report.Succeed(name)
	repairedFiles.WithLabelValues(o.report.Operation, "succeeded").Inc()
}

func (o *outcome) skip(name string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.report.Skip(name, string(PhasePreconditionFailed), err)
	repairedFiles.WithLabelValues(o.report.Operation, "skipped").Inc()
}

func (o *outcome) fail(name string, phase Phase, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.report.Fail(name, string(phase), err)
	repairedFiles.WithLabelValues(o.report.Operation, "failed").Inc()
}

func (o *outcome) done() *common.Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.report
	sort.Strings(r.Succeeded)
	sort.Slice(r.Failed, func(i, j int) bool { return r.Failed[i].Filename < r.Failed[j].Filename })
	sort.Slice(r.Skipped, func(i, j int) bool { return r.Skipped[i].Filename < r.Skipped[j].Filename })
	return &r
}

// target checks that replicaId can be repaired and returns the reference.
func (w *Workflows) target(replicaId string) (registry.Replica, error) {
	if _, err := w.reg.Get(replicaId); err != nil {
		return registry.Replica{}, err
	}
	ref, err := w.reg.Reference()
	if err != nil {
		return registry.Replica{}, err
	}
	if ref.Id == replicaId {
		return registry.Replica{}, fmt.Errorf("replica %s is the reference and cannot be repaired from itself: %w",
			replicaId, common.ErrBadArgs)
	}
	return ref, nil
}

// referenceCopy reads filename from the reference replica and checks it
// against the ledger checksum.
func (w *Workflows) referenceCopy(ctx context.Context, refId string, entry *ledger.Entry) ([]byte, error) {
	data, _, err := w.files.GetFile(ctx, refId, entry.Filename)
	if err != nil {
		return nil, fmt.Errorf("reference replica %s: %w", refId, err)
	}
	if sum := utils.Checksum(data); sum != entry.Checksum {
		return nil, fmt.Errorf("reference copy of %s has checksum %s, ledger has %s: %w",
			entry.Filename, sum, entry.Checksum, common.ErrFailed)
	}
	return data, nil
}

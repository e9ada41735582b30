package master

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	graphite "github.com/cyberdelia/go-metrics-graphite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/allen1211/bitpres/internal/gateway"
	"github.com/allen1211/bitpres/internal/ledger"
	"github.com/allen1211/bitpres/internal/master/etc"
	"github.com/allen1211/bitpres/internal/netw"
	"github.com/allen1211/bitpres/internal/preservation"
	"github.com/allen1211/bitpres/internal/registry"
	"github.com/allen1211/bitpres/internal/repair"
	"github.com/allen1211/bitpres/internal/versioned"
	"github.com/allen1211/bitpres/pkg/common"
)

var (
	adminOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bitpres_master",
		Name:      "admin_ops_total",
		Help:      "Admin operations by op and result code",
	}, []string{"op", "err"})
	maintenanceRounds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bitpres_master",
		Name:      "maintenance_rounds_total",
		Help:      "Completed rounds of scheduled replica scans",
	})
)

const graphiteFlushInterval = 10 * time.Second

// Master owns the ledger and serves admin, repair and ingest operations
// over the replicas of the registry.
type Master struct {
	conf    etc.MasterConf
	reg     *registry.Registry
	store   versioned.Store
	ledger  *ledger.Ledger
	gw      *gateway.Gateway
	engine  *preservation.Engine
	wf      *repair.Workflows
	rpcServ *netw.RpcxServer
	httpSrv *http.Server

	scanning int32
	done     chan struct{}

	KilledC chan int
	killed  int32

	log *logrus.Logger
}

// NewMaster wires a master whose storage nodes are reached through dial.
// It starts no background work.
func NewMaster(conf etc.MasterConf, dial gateway.Dialer) (*Master, error) {
	m := &Master{
		conf:    conf,
		done:    make(chan struct{}),
		KilledC: make(chan int, 1),
	}
	var err error
	if m.log, err = common.InitLogger(conf.LogLevel, "Master"); err != nil {
		return nil, err
	}
	if m.reg, err = conf.Registry(); err != nil {
		return nil, fmt.Errorf("invalid replica configuration: %w", err)
	}
	if m.store, err = versioned.Open(conf.Ledger.Driver, conf.Ledger.Path); err != nil {
		return nil, fmt.Errorf("cannot open ledger: %v", err)
	}
	if m.gw, err = gateway.New(m.reg, dial, m.log, nil); err != nil {
		_ = m.store.Close()
		return nil, err
	}
	if conf.BatchTimeoutSec > 0 {
		m.gw.SetTimeout(time.Duration(conf.BatchTimeoutSec) * time.Second)
	}
	m.ledger = ledger.New(m.store, m.reg, m.log)
	m.engine = preservation.NewEngine(m.ledger, m.reg, m.gw, m.log)
	m.wf = repair.NewWorkflows(m.engine, m.ledger, m.gw, m.reg, m.log, conf.MaxConcurrentCopies)

	n, _ := m.ledger.Len()
	m.log.Infof("master opened %s ledger %s with %d entries, %d replicas", conf.Ledger.Driver, conf.Ledger.Path,
		n, len(m.reg.Ids()))
	return m, nil
}

// StartServer builds a master over rpcx and starts its metric endpoints and
// the scheduled scans.
func StartServer(conf etc.MasterConf) (*Master, error) {
	m, err := NewMaster(conf, gateway.RPCDialer)
	if err != nil {
		return nil, err
	}
	if conf.MetricAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		m.httpSrv = &http.Server{Addr: conf.MetricAddr, Handler: mux}
		go func() {
			if err := m.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.log.Errorf("metric server: %v", err)
			}
		}()
	}
	if conf.GraphiteAddr != "" {
		addr, err := net.ResolveTCPAddr("tcp", conf.GraphiteAddr)
		if err != nil {
			m.Kill()
			return nil, fmt.Errorf("graphite address %s: %v", conf.GraphiteAddr, err)
		}
		go graphite.Graphite(m.gw.Metrics(), graphiteFlushInterval, "bitpres.master", addr)
	}
	if conf.ScanIntervalSec > 0 {
		go m.maintainer(time.Duration(conf.ScanIntervalSec) * time.Second)
	}
	return m, nil
}

func (m *Master) maintainer(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.RunMaintenance(context.Background())
		case <-m.done:
			m.log.Infof("master has been killed, stop maintainer loop")
			return
		}
	}
}

// RunMaintenance scans every replica for missing and changed files. A round
// is skipped while the previous one still runs.
func (m *Master) RunMaintenance(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&m.scanning, 0, 1) {
		m.log.Warnf("previous maintenance round still running, skip")
		return
	}
	defer atomic.StoreInt32(&m.scanning, 0)

	start := time.Now()
	for _, id := range m.reg.Ids() {
		if m.Killed() {
			return
		}
		if _, err := m.engine.FindMissingFiles(ctx, id); err != nil {
			m.log.Warnf("maintenance: find missing files on %s: %v", id, err)
		}
		if _, err := m.engine.FindChangedFiles(ctx, id); err != nil {
			m.log.Warnf("maintenance: find changed files on %s: %v", id, err)
		}
	}
	maintenanceRounds.Inc()
	m.log.Infof("maintenance round over %d replicas took %v", len(m.reg.Ids()), time.Since(start))
}

func (m *Master) Engine() *preservation.Engine {
	return m.engine
}

func (m *Master) Ledger() *ledger.Ledger {
	return m.ledger
}

func (m *Master) Workflows() *repair.Workflows {
	return m.wf
}

func (m *Master) Kill() {
	if !atomic.CompareAndSwapInt32(&m.killed, 0, 1) {
		return
	}
	close(m.done)
	if m.rpcServ != nil {
		m.rpcServ.Stop()
	}
	if m.httpSrv != nil {
		_ = m.httpSrv.Close()
	}
	m.gw.Close()
	if err := m.store.Close(); err != nil {
		m.log.Errorf("close ledger: %v", err)
	}
	m.KilledC <- 1
}

func (m *Master) Killed() bool {
	return atomic.LoadInt32(&m.killed) == 1
}

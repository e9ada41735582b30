package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/allen1211/bitpres/internal/batch"
	"github.com/allen1211/bitpres/internal/netw"
	"github.com/allen1211/bitpres/internal/registry"
	"github.com/allen1211/bitpres/pkg/common"
)

// Dialer opens a connection to one storage node of a replica.
type Dialer func(replicaId string, node registry.Node) (netw.Caller, error)

// RPCDialer dials storage nodes over rpcx.
func RPCDialer(replicaId string, node registry.Node) (netw.Caller, error) {
	return netw.MakeRPCEnd(netw.NodeServiceName(replicaId, node.Id), node.Addr)
}

type NodeEnd struct {
	Id     int
	Caller netw.Caller
}

// Gateway dispatches batch jobs and file transfers to the storage nodes of
// a replica. It never holds a lock while a remote call is in flight.
type Gateway struct {
	reg     *registry.Registry
	ends    map[string][]NodeEnd
	log     *logrus.Logger
	metrics metrics.Registry
	timeout time.Duration
	tsr     common.ThreadSafeRand
}

func New(reg *registry.Registry, dial Dialer, logger *logrus.Logger, mr metrics.Registry) (*Gateway, error) {
	gw := &Gateway{
		reg:     reg,
		ends:    map[string][]NodeEnd{},
		log:     logger,
		metrics: mr,
		timeout: batch.DefaultTimeout,
		tsr:     common.MakeThreadSafeRand(time.Now().UnixNano()),
	}
	if gw.metrics == nil {
		gw.metrics = metrics.NewRegistry()
	}
	for _, r := range reg.All() {
		for _, node := range r.Nodes {
			c, err := dial(r.Id, node)
			if err != nil {
				gw.Close()
				return nil, fmt.Errorf("dial node %d of replica %s at %s: %v", node.Id, r.Id, node.Addr, err)
			}
			gw.ends[r.Id] = append(gw.ends[r.Id], NodeEnd{Id: node.Id, Caller: c})
		}
	}
	return gw, nil
}

// SetTimeout changes the bound on a whole batch run.
func (gw *Gateway) SetTimeout(d time.Duration) {
	if d > 0 {
		gw.timeout = d
	}
}

func (gw *Gateway) Metrics() metrics.Registry {
	return gw.metrics
}

func (gw *Gateway) Close() {
	for _, ends := range gw.ends {
		for _, end := range ends {
			end.Caller.Close()
		}
	}
}

func (gw *Gateway) nodesOf(replicaId string) ([]NodeEnd, error) {
	if _, err := gw.reg.Get(replicaId); err != nil {
		return nil, err
	}
	return gw.ends[replicaId], nil
}

// Submit runs job on every node of replicaId and merges the answers. A node
// that cannot be reached is recorded in NodeFailures. When the job times out
// the result carries nothing, since a partial listing is indistinguishable
// from missing files.
func (gw *Gateway) Submit(ctx context.Context, job batch.Job, replicaId string) (*batch.Result, error) {
	ends, err := gw.nodesOf(replicaId)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	jobId := uuid.NewString()
	args := batch.ToArgs(job, jobId, gw.timeout)
	res := &batch.Result{JobId: jobId, Kind: job.Kind(), ReplicaId: replicaId}

	ctx, cancel := context.WithTimeout(ctx, gw.timeout)
	defer cancel()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, end := range ends {
		end := end
		g.Go(func() error {
			var reply common.BatchReply
			err := end.Caller.Call(gctx, netw.ApiExecuteBatch, args, &reply)
			if err == nil && reply.Err != common.OK && reply.Err != common.ErrPartialBatchFailure {
				err = fmt.Errorf("node answered %s", reply.Err)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				gw.log.Warnf("batch job %s on node %d of replica %s failed: %v", jobId, end.Id, replicaId, err)
				metrics.GetOrRegisterCounter("gateway.node.failures", gw.metrics).Inc(1)
				res.AddNodeFailure(end.Id, err.Error())
				return nil
			}
			res.Merge(&reply)
			return nil
		})
	}
	_ = g.Wait()

	metrics.GetOrRegisterTimer("gateway.batch."+job.Kind(), gw.metrics).UpdateSince(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		gw.log.Errorf("batch job %s on replica %s timed out after %v", jobId, replicaId, gw.timeout)
		metrics.GetOrRegisterCounter("gateway.batch.timeouts", gw.metrics).Inc(1)
		return &batch.Result{JobId: jobId, Kind: job.Kind(), ReplicaId: replicaId, TimedOut: true}, nil
	} else if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	res.Normalize()
	gw.log.Infof("batch job %s kind=%s replica=%s processed=%d failed=%d node failures=%d in %v",
		jobId, job.Kind(), replicaId, res.FilesProcessed, len(res.FilesFailed), len(res.NodeFailures), time.Since(start))
	return res, nil
}

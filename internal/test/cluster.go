package test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/allen1211/bitpres/internal/bitarchive"
	bitetc "github.com/allen1211/bitpres/internal/bitarchive/etc"
	"github.com/allen1211/bitpres/internal/master"
	"github.com/allen1211/bitpres/internal/master/etc"
	"github.com/allen1211/bitpres/internal/netw"
	"github.com/allen1211/bitpres/internal/registry"
	"github.com/allen1211/bitpres/pkg/client"
	"github.com/allen1211/bitpres/pkg/common"
	"github.com/allen1211/bitpres/pkg/common/utils"
)

type ReplicaSpec struct {
	Id          string
	Kind        string
	Reference   bool
	Credentials string
	Nodes       int
}

func DefaultReplicas() []ReplicaSpec {
	return []ReplicaSpec{
		{Id: "R1", Kind: "bitarchive", Reference: true, Credentials: "s1", Nodes: 2},
		{Id: "R2", Kind: "bitarchive", Credentials: "s2", Nodes: 2},
		{Id: "CS", Kind: "checksum", Credentials: "s3", Nodes: 1},
	}
}

// Cluster is a master and its storage nodes living in one process. Every
// call between them still goes through the msgp codec.
type Cluster struct {
	Master *master.Master

	mu    sync.Mutex
	nodes map[string]map[int]*bitarchive.Node
	ends  map[string]map[int]*netw.LocalEnd
}

func MakeCluster(replicas []ReplicaSpec) (*Cluster, error) {
	c := &Cluster{
		nodes: make(map[string]map[int]*bitarchive.Node),
		ends:  make(map[string]map[int]*netw.LocalEnd),
	}
	specs := make(map[string]ReplicaSpec, len(replicas))

	conf := etc.MakeDefaultConfig()
	conf.LogLevel = "panic"
	conf.Ledger = etc.LedgerConf{Driver: "memory"}
	conf.MetricAddr = ""
	for _, rs := range replicas {
		specs[rs.Id] = rs
		rc := etc.ReplicaConf{Id: rs.Id, Name: rs.Id, Kind: rs.Kind, Reference: rs.Reference, Credentials: rs.Credentials}
		for i := 0; i < rs.Nodes; i++ {
			rc.Nodes = append(rc.Nodes, etc.NodeConf{Id: i})
		}
		conf.Replicas = append(conf.Replicas, rc)
	}

	dial := func(replicaId string, n registry.Node) (netw.Caller, error) {
		rs := specs[replicaId]
		nc := bitetc.MakeDefaultConfig()
		nc.NodeId, nc.ReplicaId, nc.Kind = n.Id, replicaId, rs.Kind
		nc.Credentials, nc.LogLevel = rs.Credentials, "panic"
		store, err := bitarchive.MakeMemLevelStore()
		if err != nil {
			return nil, err
		}
		node, err := bitarchive.NewNode(nc, store)
		if err != nil {
			return nil, err
		}
		end := netw.MakeLocalEnd(node.ServiceName(), node)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.nodes[replicaId] == nil {
			c.nodes[replicaId] = make(map[int]*bitarchive.Node)
			c.ends[replicaId] = make(map[int]*netw.LocalEnd)
		}
		c.nodes[replicaId][n.Id] = node
		c.ends[replicaId][n.Id] = end
		return end, nil
	}

	m, err := master.NewMaster(conf, dial)
	if err != nil {
		c.killNodes()
		return nil, err
	}
	c.Master = m
	return c, nil
}

// Client returns a client whose calls reach the master through the codec.
func (c *Cluster) Client(timeout time.Duration) *client.BitPresClient {
	return client.NewBitPresClient(netw.MakeLocalEnd(netw.MasterServiceName, c.Master), timeout)
}

func (c *Cluster) node(replicaId string, nodeId int) (*bitarchive.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[replicaId][nodeId]
	if !ok {
		return nil, fmt.Errorf("no node %d in replica %s", nodeId, replicaId)
	}
	return n, nil
}

// Put stores a file directly on one node, bypassing the master.
func (c *Cluster) Put(replicaId string, nodeId int, name string, data []byte) error {
	n, err := c.node(replicaId, nodeId)
	if err != nil {
		return err
	}
	var reply common.UploadReply
	args := common.UploadArgs{Filename: name, Data: data, Checksum: utils.Checksum(data)}
	if err := n.Upload(context.Background(), &args, &reply); err != nil {
		return err
	}
	if reply.Err != common.OK {
		return reply.Err
	}
	return nil
}

// Checksum reads a node's own view of a file's checksum.
func (c *Cluster) Checksum(replicaId string, nodeId int, name string) (string, error) {
	n, err := c.node(replicaId, nodeId)
	if err != nil {
		return "", err
	}
	return n.Checksum(name)
}

func (c *Cluster) SetNodeDown(replicaId string, nodeId int, down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if end, ok := c.ends[replicaId][nodeId]; ok {
		end.SetDown(down)
	}
}

func (c *Cluster) killNodes() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, nodes := range c.nodes {
		for _, n := range nodes {
			n.Kill()
		}
	}
}

func (c *Cluster) Shutdown() {
	if c.Master != nil {
		c.Master.Kill()
	}
	c.killNodes()
}

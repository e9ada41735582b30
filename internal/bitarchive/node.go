package bitarchive

import (
	"crypto/subtle"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/allen1211/bitpres/internal/bitarchive/etc"
	"github.com/allen1211/bitpres/internal/netw"
	"github.com/allen1211/bitpres/pkg/common"
	"github.com/allen1211/bitpres/pkg/common/utils"
)

var (
	filesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bitpres_node",
		Name:      "batch_files_total",
		Help:      "Files processed by batch jobs",
	}, []string{"replica", "kind"})
	filesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bitpres_node",
		Name:      "batch_files_failed_total",
		Help:      "Files a batch job could not process",
	}, []string{"replica", "kind"})
)

// Node is one storage application of a replica.
type Node struct {
	logger  *logrus.Logger
	mu      sync.Mutex
	rpcServ *netw.RpcxServer
	conf    etc.NodeConf

	Id        int
	ReplicaId string
	Kind      common.ReplicaKind
	Host      string
	Port      int

	store FileStore

	KilledC chan int
	killed  int32
}

func (n *Node) Addr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}

func (n *Node) ServiceName() string {
	return netw.NodeServiceName(n.ReplicaId, n.Id)
}

func MakeNode(conf etc.NodeConf) (*Node, error) {
	store, err := OpenStore(conf.Store.Driver, conf.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("cannot open file store: %v", err)
	}
	node, err := NewNode(conf, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	node.logger.Infof("node of %s replica %s opened %s store %s", node.Kind, conf.ReplicaId, conf.Store.Driver, conf.Store.Path)
	return node, nil
}

// NewNode builds a node over an already opened store.
func NewNode(conf etc.NodeConf, store FileStore) (*Node, error) {
	kind, err := common.ParseReplicaKind(conf.Kind)
	if err != nil {
		return nil, err
	}
	node := &Node{
		Id:        conf.NodeId,
		ReplicaId: conf.ReplicaId,
		Kind:      kind,
		Host:      conf.Host,
		Port:      conf.Port,
		conf:      conf,
		store:     store,
		KilledC:   make(chan int, 1),
	}
	if node.logger, err = common.InitLogger(conf.LogLevel, node.ServiceName()); err != nil {
		return nil, err
	}
	return node, nil
}

func (n *Node) Kill() {
	if !atomic.CompareAndSwapInt32(&n.killed, 0, 1) {
		return
	}
	if n.rpcServ != nil {
		n.rpcServ.Stop()
	}
	if err := n.store.Close(); err != nil {
		n.logger.Errorf("close store: %v", err)
	}
	n.KilledC <- 1
}

func (n *Node) Killed() bool {
	return atomic.LoadInt32(&n.killed) == 1
}

func (n *Node) from() common.FromReply {
	return common.FromReply{NodeId: n.Id, ReplicaId: n.ReplicaId}
}

func (n *Node) checkCredentials(credentials string) bool {
	if n.conf.Credentials == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(n.conf.Credentials), []byte(credentials)) == 1
}

// Filenames and Checksum let batch jobs run against the node's store.

func (n *Node) Filenames() ([]string, error) {
	return n.store.List()
}

func (n *Node) Checksum(name string) (string, error) {
	data, err := n.store.Get(name)
	if err != nil {
		return "", err
	}
	if n.Kind == common.ChecksumReplica {
		return string(data), nil
	}
	return utils.Checksum(data), nil
}

// store writes a file unless it already exists. For a checksum replica only
// the checksum is kept.
func (n *Node) storeFile(name string, data []byte, checksum string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if ok, err := n.store.Exists(name); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%s: %w", name, common.ErrAlreadyExists)
	}

	content := data
	if n.Kind == common.ChecksumReplica {
		if len(data) > 0 {
			sum := utils.Checksum(data)
			if checksum != "" && checksum != sum {
				return fmt.Errorf("%s: data has checksum %s, expected %s: %w", name, sum, checksum, common.ErrFailed)
			}
			checksum = sum
		}
		if checksum == "" {
			return fmt.Errorf("%s: no checksum to store: %w", name, common.ErrBadArgs)
		}
		content = []byte(checksum)
	} else if checksum != "" {
		if sum := utils.Checksum(data); sum != checksum {
			return fmt.Errorf("%s: data has checksum %s, expected %s: %w", name, sum, checksum, common.ErrFailed)
		}
	}
	return n.store.Put(name, content)
}

// removeFile deletes a file whose current checksum equals checksum and
// returns what was stored.
func (n *Node) removeFile(name, checksum, credentials string) ([]byte, error) {
	if !n.checkCredentials(credentials) {
		return nil, fmt.Errorf("bad credentials for replica %s: %w", n.ReplicaId, common.ErrPermissionDenied)
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	data, err := n.store.Get(name)
	if err != nil {
		return nil, err
	}
	curr := string(data)
	if n.Kind == common.BitarchiveReplica {
		curr = utils.Checksum(data)
	}
	if curr != checksum {
		return nil, fmt.Errorf("%s has checksum %s, not %s: %w", name, curr, checksum, common.ErrPermissionDenied)
	}
	if err := n.store.Delete(name); err != nil {
		return nil, err
	}
	return data, nil
}

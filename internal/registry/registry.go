package registry

import (
	"crypto/subtle"
	"fmt"

	"github.com/allen1211/bitpres/pkg/common"
)

type Node struct {
	Id   int
	Addr string
}

type Replica struct {
	Id          string
	Name        string
	Kind        common.ReplicaKind
	Reference   bool
	Nodes       []Node
	Credentials string
}

// Registry is the fixed set of replicas known to the system. It is built
// once at startup and only read afterwards.
type Registry struct {
	replicas  map[string]Replica
	order     []string
	reference string
}

func New(replicas []Replica) (*Registry, error) {
	reg := &Registry{
		replicas: make(map[string]Replica, len(replicas)),
		order:    make([]string, 0, len(replicas)),
	}
	for _, r := range replicas {
		if r.Id == "" {
			return nil, fmt.Errorf("replica with empty id: %w", common.ErrBadArgs)
		}
		if _, ok := reg.replicas[r.Id]; ok {
			return nil, fmt.Errorf("duplicate replica %s: %w", r.Id, common.ErrBadArgs)
		}
		if r.Reference {
			if reg.reference != "" {
				return nil, fmt.Errorf("replicas %s and %s are both reference: %w", reg.reference, r.Id, common.ErrBadArgs)
			}
			if r.Kind != common.BitarchiveReplica {
				return nil, fmt.Errorf("reference replica %s holds no data: %w", r.Id, common.ErrBadArgs)
			}
			reg.reference = r.Id
		}
		r.Nodes = append([]Node(nil), r.Nodes...)
		reg.replicas[r.Id] = r
		reg.order = append(reg.order, r.Id)
	}
	return reg, nil
}

func (reg *Registry) Get(id string) (Replica, error) {
	r, ok := reg.replicas[id]
	if !ok {
		return Replica{}, fmt.Errorf("replica %s: %w", id, common.ErrUnknownReplica)
	}
	return r, nil
}

func (reg *Registry) Has(id string) bool {
	_, ok := reg.replicas[id]
	return ok
}

// Reference returns the replica trusted as the source of bytes for repairs.
func (reg *Registry) Reference() (Replica, error) {
	if reg.reference == "" {
		return Replica{}, fmt.Errorf("no reference replica configured: %w", common.ErrUnknownReplica)
	}
	return reg.replicas[reg.reference], nil
}

// All returns the replicas in configuration order.
func (reg *Registry) All() []Replica {
	res := make([]Replica, 0, len(reg.order))
	for _, id := range reg.order {
		res = append(res, reg.replicas[id])
	}
	return res
}

func (reg *Registry) Ids() []string {
	return append([]string(nil), reg.order...)
}

func (reg *Registry) CheckCredentials(id, credentials string) bool {
	r, ok := reg.replicas[id]
	if !ok || r.Credentials == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(r.Credentials), []byte(credentials)) == 1
}

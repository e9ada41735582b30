package ledger

import (
	"fmt"
	"sort"

	"github.com/Allen1211/msgp/msgp"

	"github.com/allen1211/bitpres/pkg/common"
)

// Entry is the ledger's record of one file. Edition comes from the
// versioned store and must be handed back unchanged to Update.
type Entry struct {
	Filename string
	Checksum string
	Edition  int64
	States   map[string]common.ReplicaStoreState
	Created  int64
	Updated  int64
}

func (e *Entry) Clone() *Entry {
	c := *e
	c.States = make(map[string]common.ReplicaStoreState, len(e.States))
	for r, s := range e.States {
		c.States[r] = s
	}
	return &c
}

func (e *Entry) StateOn(replicaId string) (common.ReplicaStoreState, bool) {
	s, ok := e.States[replicaId]
	return s, ok
}

// Replicas returns the replicas the file is meant to reach, sorted.
func (e *Entry) Replicas() []string {
	res := make([]string, 0, len(e.States))
	for r := range e.States {
		res = append(res, r)
	}
	sort.Strings(res)
	return res
}

func (e *Entry) marshal() []byte {
	b := msgp.AppendArrayHeader(nil, 4)
	b = msgp.AppendString(b, e.Checksum)
	b = msgp.AppendInt64(b, e.Created)
	b = msgp.AppendInt64(b, e.Updated)
	b = msgp.AppendMapHeader(b, uint32(len(e.States)))
	for _, r := range e.Replicas() {
		b = msgp.AppendString(b, r)
		b = msgp.AppendInt(b, int(e.States[r]))
	}
	return b
}

func unmarshalEntry(filename string, edition int64, b []byte) (*Entry, error) {
	e := &Entry{Filename: filename, Edition: edition}
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	if sz != 4 {
		return nil, fmt.Errorf("ledger entry %s: %d fields, want 4", filename, sz)
	}
	if e.Checksum, b, err = msgp.ReadStringBytes(b); err != nil {
		return nil, err
	}
	if e.Created, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return nil, err
	}
	if e.Updated, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return nil, err
	}
	var n uint32
	if n, b, err = msgp.ReadMapHeaderBytes(b); err != nil {
		return nil, err
	}
	e.States = make(map[string]common.ReplicaStoreState, n)
	for i := uint32(0); i < n; i++ {
		var r string
		var s int
		if r, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, err
		}
		if s, b, err = msgp.ReadIntBytes(b); err != nil {
			return nil, err
		}
		e.States[r] = common.ReplicaStoreState(s)
	}
	return e, nil
}

package batch

import (
	"sort"

	"github.com/allen1211/bitpres/pkg/common"
)

type NodeFailure struct {
	NodeId int
	Cause  string
}

// Result is the aggregated outcome of one job over all nodes of a replica.
// FilesProcessed counts every file attempted, including failed ones.
type Result struct {
	JobId          string
	Kind           string
	ReplicaId      string
	FilesProcessed int64
	FilesFailed    []string
	Exceptions     []common.FileException
	Lines          []string
	NodeFailures   []NodeFailure
	NodesAnswered  int
	TimedOut       bool
}

// HasData reports whether the result carries any usable information.
func (r *Result) HasData() bool {
	return r.FilesProcessed > int64(len(r.FilesFailed))
}

// Empty reports whether every node answered and none holds a matching file.
// Unlike a result without data, it is evidence about the replica.
func (r *Result) Empty() bool {
	return r.NodesAnswered > 0 && r.FilesProcessed == 0 && len(r.NodeFailures) == 0 && !r.TimedOut
}

// Complete reports whether every node answered and no file failed.
func (r *Result) Complete() bool {
	return !r.TimedOut && len(r.FilesFailed) == 0 && len(r.NodeFailures) == 0
}

func (r *Result) Merge(reply *common.BatchReply) {
	r.NodesAnswered++
	r.FilesProcessed += reply.FilesProcessed
	r.FilesFailed = append(r.FilesFailed, reply.FilesFailed...)
	r.Exceptions = append(r.Exceptions, reply.Exceptions...)
	r.Lines = append(r.Lines, reply.Lines...)
}

func (r *Result) AddNodeFailure(nodeId int, cause string) {
	r.NodeFailures = append(r.NodeFailures, NodeFailure{NodeId: nodeId, Cause: cause})
}

// Normalize sorts lines and failures and drops duplicate failed names.
func (r *Result) Normalize() {
	sort.Strings(r.Lines)
	r.FilesFailed = dedupSorted(r.FilesFailed)
	sort.SliceStable(r.Exceptions, func(i, j int) bool {
		return r.Exceptions[i].Filename < r.Exceptions[j].Filename
	})
	sort.Slice(r.NodeFailures, func(i, j int) bool {
		return r.NodeFailures[i].NodeId < r.NodeFailures[j].NodeId
	})
}

func (r *Result) FailedSet() map[string]struct{} {
	res := make(map[string]struct{}, len(r.FilesFailed))
	for _, f := range r.FilesFailed {
		res[f] = struct{}{}
	}
	return res
}

// Checksums parses the lines of a checksum job. Malformed lines are returned
// separately.
func (r *Result) Checksums() (map[string]string, []string) {
	res := make(map[string]string, len(r.Lines))
	var bad []string
	for _, line := range r.Lines {
		name, sum, err := ParseChecksumLine(line)
		if err != nil {
			bad = append(bad, line)
			continue
		}
		res[name] = sum
	}
	return res, bad
}

func dedupSorted(ss []string) []string {
	if len(ss) == 0 {
		return nil
	}
	sort.Strings(ss)
	res := ss[:1]
	for _, s := range ss[1:] {
		if s != res[len(res)-1] {
			res = append(res, s)
		}
	}
	return res
}

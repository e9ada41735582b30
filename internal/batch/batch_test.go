package batch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/allen1211/bitpres/pkg/common"
)

type memFiles struct {
	sums   map[string]string
	broken map[string]bool
}

func (m *memFiles) Filenames() ([]string, error) {
	var res []string
	for name := range m.sums {
		res = append(res, name)
	}
	return res, nil
}

func (m *memFiles) Checksum(name string) (string, error) {
	if m.broken[name] {
		return "", fmt.Errorf("read %s: input/output error", name)
	}
	return m.sums[name], nil
}

func TestRunPartialFailure(t *testing.T) {
	files := &memFiles{
		sums: map[string]string{
			"a.warc": "s1", "b.warc": "s2", "c.warc": "s3", "d.warc": "s4", "e.warc": "s5",
		},
		broken: map[string]bool{"b.warc": true, "d.warc": true},
	}
	reply := Run(NewChecksumJob(""), files)

	if reply.FilesProcessed != 5 {
		t.Fatalf("processed = %d, want 5", reply.FilesProcessed)
	}
	if diff := cmp.Diff([]string{"b.warc", "d.warc"}, reply.FilesFailed); diff != "" {
		t.Fatalf("failed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a.warc##s1", "c.warc##s3", "e.warc##s5"}, reply.Lines); diff != "" {
		t.Fatalf("lines (-want +got):\n%s", diff)
	}
	if reply.Err != common.ErrPartialBatchFailure {
		t.Fatalf("err = %s", reply.Err)
	}

	var res Result
	res.Merge(reply)
	if !res.HasData() || res.Complete() {
		t.Fatalf("3 of 5 usable files: HasData=%v Complete=%v", res.HasData(), res.Complete())
	}
	sums, bad := res.Checksums()
	if len(bad) != 0 || sums["c.warc"] != "s3" || len(sums) != 3 {
		t.Fatalf("checksums = %v, bad = %v", sums, bad)
	}
}

func TestRunFilter(t *testing.T) {
	files := &memFiles{sums: map[string]string{"doc1.warc": "x", "doc10.warc": "y", "other.arc": "z"}}

	reply := Run(NewFileListJob(FilterFor("doc1.warc")), files)
	if diff := cmp.Diff([]string{"doc1.warc"}, reply.Lines); diff != "" {
		t.Fatalf("lines (-want +got):\n%s", diff)
	}

	reply = Run(NewFileListJob(`doc.*\.warc`), files)
	if reply.FilesProcessed != 2 {
		t.Fatalf("processed = %d, want 2", reply.FilesProcessed)
	}
}

func TestNoData(t *testing.T) {
	all := Result{FilesProcessed: 2, FilesFailed: []string{"a", "b"}}
	if all.HasData() {
		t.Fatalf("result with every file failed must carry no data")
	}
	if (&Result{}).HasData() {
		t.Fatalf("empty result must carry no data")
	}
}

func TestEmptyReplica(t *testing.T) {
	var answered Result
	answered.Merge(&common.BatchReply{Err: common.OK})
	answered.Merge(&common.BatchReply{Err: common.OK})
	if answered.HasData() || !answered.Empty() {
		t.Fatalf("two empty nodes: data=%v empty=%v", answered.HasData(), answered.Empty())
	}

	cases := map[string]Result{
		"no node answered": {},
		"node down":        {NodesAnswered: 1, NodeFailures: []NodeFailure{{NodeId: 1, Cause: "refused"}}},
		"timed out":        {TimedOut: true},
		"files failed":     {NodesAnswered: 1, FilesProcessed: 1, FilesFailed: []string{"a"}},
	}
	for name, res := range cases {
		if res.Empty() {
			t.Errorf("%s: reported as an empty replica", name)
		}
	}
}

func TestFromArgs(t *testing.T) {
	job, err := FromArgs(&common.BatchArgs{Kind: KindChecksum, Filter: "a.*"})
	if err != nil {
		t.Fatal(err)
	}
	if job.Kind() != KindChecksum || job.Filter() != "a.*" {
		t.Fatalf("rebuilt %s/%s", job.Kind(), job.Filter())
	}
	if _, err := FromArgs(&common.BatchArgs{Kind: "Nope"}); !errors.Is(err, common.ErrBadArgs) {
		t.Fatalf("expected ErrBadArgs, got %v", err)
	}
	if _, err := FromArgs(&common.BatchArgs{Kind: KindFileList, Filter: "("}); !errors.Is(err, common.ErrBadArgs) {
		t.Fatalf("expected ErrBadArgs for bad filter, got %v", err)
	}
	if diff := cmp.Diff([]string{KindChecksum, KindFileList}, Kinds()); diff != "" {
		t.Fatalf("kinds (-want +got):\n%s", diff)
	}
}

func TestParseChecksumLine(t *testing.T) {
	name, sum, err := ParseChecksumLine("doc##1.warc##abc123")
	if err != nil || name != "doc##1.warc" || sum != "abc123" {
		t.Fatalf("parsed %q %q %v", name, sum, err)
	}
	for _, bad := range []string{"doc1.warc", "##abc", "doc1.warc##"} {
		if _, _, err := ParseChecksumLine(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

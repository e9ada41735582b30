package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/allen1211/bitpres/pkg/common"
)

// fakeAPI answers the console with canned data. Methods it does not
// override panic through the nil embedded interface.
type fakeAPI struct {
	API
	calls []string
}

func (f *fakeAPI) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeAPI) ShowReplicas(ctx context.Context) ([]common.ReplicaRes, error) {
	f.record("replicas")
	return []common.ReplicaRes{{Id: "R1", Kind: "Bitarchive", Reference: true, Nodes: 2}}, nil
}

func (f *fakeAPI) GetNumberOfMissingFiles(ctx context.Context, replica string) (int64, error) {
	f.record("count missing %s", replica)
	return 3, nil
}

func (f *fakeAPI) ReplaceChangedFile(ctx context.Context, replica, filename, credentials, checksum string) (*common.Report, error) {
	f.record("replace %s %s %s %s", replica, filename, credentials, checksum)
	err := common.ReplyErr(common.ErrPermissionDenied, "doc1.warc has checksum abc123, not xyz999")
	return &common.Report{
		Operation: common.OpReplaceChanged,
		Replica:   replica,
		Skipped: []common.FileOutcome{{
			Filename: filename, Err: common.ErrPermissionDenied, Cause: err.Error(), Phase: "PreconditionFailed",
		}},
	}, err
}

func (f *fakeAPI) NotifyUpload(ctx context.Context, filename, replica string, ok bool) error {
	f.record("notify %s %s %v", filename, replica, ok)
	return nil
}

func (f *fakeAPI) CreateEntry(ctx context.Context, filename, checksum string, targets []string) error {
	f.record("create %s %s %v", filename, checksum, targets)
	return common.ReplyErr(common.ErrAlreadyExists, "file Doc1.WARC: ErrAlreadyExists")
}

func runConsole(t *testing.T, api API, input string) string {
	var out bytes.Buffer
	cc := MakeConsoleClient(api, bufio.NewScanner(strings.NewReader(input)), bufio.NewWriter(&out))
	cc.Start()
	return out.String()
}

func TestConsoleCommands(t *testing.T) {
	api := &fakeAPI{}
	out := runConsole(t, api, strings.Join([]string{
		"replicas",
		"COUNT missing R2",
		"replace R2 doc1.warc s2 xyz999",
		"notify doc1.warc R2 failed",
		"notify doc1.warc R2 UploadCompleted",
		"create Doc1.WARC abc123 R1 R2",
		"quit",
		"replicas",
	}, "\n"))

	want := []string{
		"replicas",
		"count missing R2",
		"replace R2 doc1.warc s2 xyz999",
		"notify doc1.warc R2 false",
		"notify doc1.warc R2 true",
		"create Doc1.WARC abc123 [R1 R2]",
	}
	if diff := cmp.Diff(want, api.calls); diff != "" {
		t.Fatalf("calls (-want +got):\n%s", diff)
	}
	for _, s := range []string{"R1", "> 3\n", "ErrPermissionDenied", "PreconditionFailed", "> OK\n", "ErrAlreadyExists"} {
		if !strings.Contains(out, s) {
			t.Fatalf("output lacks %q:\n%s", s, out)
		}
	}
}

func TestConsoleRejectsBadInput(t *testing.T) {
	api := &fakeAPI{}
	out := runConsole(t, api, "format_disk R1\nreplace R2 doc1.warc\ncount bytes R1\nnotify doc1.warc R2 maybe\nnotify doc1.warc R2 started\n")
	if len(api.calls) != 0 {
		t.Fatalf("bad input reached the master: %v", api.calls)
	}
	for _, s := range []string{"unsupported operation: format_disk", "not enough arguments for operation replace",
		"unsupported count of \"bytes\"", "parse error"} {
		if !strings.Contains(out, s) {
			t.Fatalf("output lacks %q:\n%s", s, out)
		}
	}
	if n := strings.Count(out, "parse error"); n != 2 {
		t.Fatalf("%d notify outcomes rejected, want 2:\n%s", n, out)
	}
}

package master

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/allen1211/bitpres/internal/bitarchive"
	bitetc "github.com/allen1211/bitpres/internal/bitarchive/etc"
	"github.com/allen1211/bitpres/internal/master/etc"
	"github.com/allen1211/bitpres/internal/netw"
	"github.com/allen1211/bitpres/internal/registry"
	"github.com/allen1211/bitpres/pkg/common"
	"github.com/allen1211/bitpres/pkg/common/utils"
)

type testMaster struct {
	m     *Master
	ck    *Clerk
	nodes map[string]*bitarchive.Node
}

func makeTestMaster(t *testing.T) *testMaster {
	conf := etc.MakeDefaultConfig()
	conf.LogLevel = "panic"
	conf.Ledger = etc.LedgerConf{Driver: "memory"}
	conf.MetricAddr = ""
	conf.Replicas = []etc.ReplicaConf{
		{Id: "R1", Kind: "bitarchive", Reference: true, Credentials: "s1", Nodes: []etc.NodeConf{{Id: 0}}},
		{Id: "R2", Kind: "bitarchive", Credentials: "s2", Nodes: []etc.NodeConf{{Id: 0}}},
		{Id: "CS", Kind: "checksum", Credentials: "s3", Nodes: []etc.NodeConf{{Id: 0}}},
	}
	tm := &testMaster{nodes: map[string]*bitarchive.Node{}}
	kinds := map[string]string{"R1": "bitarchive", "R2": "bitarchive", "CS": "checksum"}
	dial := func(replicaId string, n registry.Node) (netw.Caller, error) {
		nc := bitetc.MakeDefaultConfig()
		nc.NodeId, nc.ReplicaId, nc.Kind, nc.LogLevel = n.Id, replicaId, kinds[replicaId], "panic"
		store, err := bitarchive.MakeMemLevelStore()
		if err != nil {
			return nil, err
		}
		node, err := bitarchive.NewNode(nc, store)
		if err != nil {
			return nil, err
		}
		t.Cleanup(node.Kill)
		tm.nodes[replicaId] = node
		return netw.MakeLocalEnd(node.ServiceName(), node), nil
	}
	m, err := NewMaster(conf, dial)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Kill)
	tm.m = m
	tm.ck = MakeClerk(netw.MakeLocalEnd(netw.MasterServiceName, m), time.Second)
	return tm
}

func (tm *testMaster) put(t *testing.T, replicaId, name string, data []byte) {
	var reply common.UploadReply
	args := common.UploadArgs{Filename: name, Data: data, Checksum: utils.Checksum(data)}
	if err := tm.nodes[replicaId].Upload(context.Background(), &args, &reply); err != nil || reply.Err != common.OK {
		t.Fatalf("seed %s on %s: %v %s", name, replicaId, err, reply.Err)
	}
}

func TestIngestScanAndRepair(t *testing.T) {
	tm := makeTestMaster(t)
	ctx := context.Background()
	data := []byte("WARC/1.0 harvest 42")
	sum := utils.Checksum(data)

	if err := tm.ck.CreateEntry(ctx, "doc1.warc", sum, []string{"R1", "R2", "CS"}); err != nil {
		t.Fatal(err)
	}
	if err := tm.ck.CreateEntry(ctx, "doc1.warc", sum, []string{"R1"}); !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("second create: %v", err)
	}
	tm.put(t, "R1", "doc1.warc", data)
	tm.put(t, "CS", "doc1.warc", data)
	// a replica holding nothing at all answers no data
	tm.put(t, "R2", "seed.warc", []byte("seed"))
	for replica, ok := range map[string]bool{"R1": true, "R2": false, "CS": true} {
		if err := tm.ck.NotifyUpload(ctx, "doc1.warc", replica, ok); err != nil {
			t.Fatal(err)
		}
	}

	missing, err := tm.ck.FindMissingFiles(ctx, "R2")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"doc1.warc"}, missing); diff != "" {
		t.Fatalf("missing (-want +got):\n%s", diff)
	}
	if n, err := tm.ck.Count(ctx, common.OpCountMissing, "R2"); err != nil || n != 1 {
		t.Fatalf("count missing = %d, %v", n, err)
	}
	if d, err := tm.ck.Date(ctx, common.OpDateMissing, "R2"); err != nil || d.IsZero() {
		t.Fatalf("date missing = %v, %v", d, err)
	}
	if d, err := tm.ck.Date(ctx, common.OpDateChanged, "R2"); err != nil || !d.IsZero() {
		t.Fatalf("never checksummed, date = %v, %v", d, err)
	}

	report, err := tm.ck.UploadMissingFiles(ctx, "R2", "doc1.warc")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"doc1.warc"}, report.Succeeded); diff != "" {
		t.Fatalf("repaired (-want +got):\n%s", diff)
	}

	states, err := tm.ck.States(ctx, "doc1.warc", "nope.warc")
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 2 || !states[0].Found || states[1].Found {
		t.Fatalf("states = %+v", states)
	}
	for _, r := range states[0].Replicas {
		if r.State != common.UploadCompleted.String() {
			t.Fatalf("%s on %s is %s", states[0].Filename, r.ReplicaId, r.State)
		}
	}
}

func TestReplaceChangedFileRefused(t *testing.T) {
	tm := makeTestMaster(t)
	ctx := context.Background()
	good, bad := []byte("good"), []byte("bad")
	if err := tm.ck.CreateEntry(ctx, "doc1.warc", utils.Checksum(good), []string{"R1", "R2"}); err != nil {
		t.Fatal(err)
	}
	tm.put(t, "R1", "doc1.warc", good)
	tm.put(t, "R2", "doc1.warc", bad)

	changed, err := tm.ck.FindChangedFiles(ctx, "R2")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"doc1.warc"}, changed); diff != "" {
		t.Fatalf("changed (-want +got):\n%s", diff)
	}
	report, err := tm.ck.ReplaceChangedFile(ctx, "R2", "doc1.warc", "s2", "xyz999")
	if !errors.Is(err, common.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Phase != "PreconditionFailed" {
		t.Fatalf("report = %+v", report)
	}
}

func TestAdminErrors(t *testing.T) {
	tm := makeTestMaster(t)
	ctx := context.Background()

	var reply common.AdminReply
	if err := tm.m.Admin(ctx, &common.AdminArgs{Op: "format_disk"}, &reply); err != nil {
		t.Fatal(err)
	}
	if reply.Err != common.ErrBadArgs || reply.Cause == "" {
		t.Fatalf("unknown op reply = %+v", reply)
	}
	if _, err := tm.ck.FindMissingFiles(ctx, "R9"); !errors.Is(err, common.ErrUnknownReplica) {
		t.Fatalf("unknown replica: %v", err)
	}
	if _, err := tm.ck.AdminFiles(ctx, common.OpAdminMissing); !errors.Is(err, common.ErrNoData) {
		t.Fatalf("admin data without scans: %v", err)
	}
	if files, err := tm.ck.FindMissingFiles(ctx, "R2"); err != nil || len(files) != 0 {
		t.Fatalf("empty replica with empty ledger: %v, %v", files, err)
	}
	if _, err := tm.ck.FindChangedFiles(ctx, "R2"); !errors.Is(err, common.ErrNoData) {
		t.Fatalf("checksum of empty replica: %v", err)
	}
	if _, err := tm.ck.ChangeStateForAdminData(ctx, ""); !errors.Is(err, common.ErrBadArgs) {
		t.Fatalf("empty filename: %v", err)
	}

	tm.m.Kill()
	if err := tm.m.Admin(ctx, &common.AdminArgs{Op: common.OpShowReplicas}, &reply); err == nil {
		t.Fatalf("killed master answered")
	}
}

func TestShowReplicasAndMaintenance(t *testing.T) {
	tm := makeTestMaster(t)
	ctx := context.Background()

	replicas, err := tm.ck.Replicas(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []common.ReplicaRes{
		{Id: "R1", Kind: "Bitarchive", Reference: true, Nodes: 1},
		{Id: "R2", Kind: "Bitarchive", Nodes: 1},
		{Id: "CS", Kind: "Checksum", Nodes: 1},
	}
	if diff := cmp.Diff(want, replicas); diff != "" {
		t.Fatalf("replicas (-want +got):\n%s", diff)
	}

	tm.put(t, "R1", "orphan.warc", []byte("orphan"))
	tm.m.RunMaintenance(ctx)
	files, err := tm.ck.AdminFiles(ctx, common.OpAdminMissing)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"orphan.warc"}, files); diff != "" {
		t.Fatalf("unknown to the ledger (-want +got):\n%s", diff)
	}
	if n, err := tm.ck.Count(ctx, common.OpCountFiles, "R1"); err != nil || n != 1 {
		t.Fatalf("count files = %d, %v", n, err)
	}

	report, err := tm.ck.AddMissingFilesToAdminData(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"orphan.warc"}, report.Succeeded); diff != "" {
		t.Fatalf("added (-want +got):\n%s", diff)
	}
}

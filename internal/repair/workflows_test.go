package repair

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/allen1211/bitpres/internal/bitarchive"
	"github.com/allen1211/bitpres/internal/bitarchive/etc"
	"github.com/allen1211/bitpres/internal/gateway"
	"github.com/allen1211/bitpres/internal/ledger"
	"github.com/allen1211/bitpres/internal/netw"
	"github.com/allen1211/bitpres/internal/preservation"
	"github.com/allen1211/bitpres/internal/registry"
	"github.com/allen1211/bitpres/internal/versioned"
	"github.com/allen1211/bitpres/pkg/common"
	"github.com/allen1211/bitpres/pkg/common/utils"
)

var (
	good = []byte("WARC/1.0 good record")
	bad  = []byte("WARC/1.0 flipped bits")

	goodSum = utils.Checksum(good)
	badSum  = utils.Checksum(bad)
)

type testEnv struct {
	ledger *ledger.Ledger
	engine *preservation.Engine
	wf     *Workflows
	nodes  map[string][]*bitarchive.Node
	ends   map[string][]*netw.LocalEnd
}

func makeEnv(t *testing.T) *testEnv {
	reg, err := registry.New([]registry.Replica{
		{Id: "R1", Reference: true, Nodes: []registry.Node{{Id: 0}, {Id: 1}}, Credentials: "s1"},
		{Id: "R2", Nodes: []registry.Node{{Id: 0}, {Id: 1}}, Credentials: "s2"},
		{Id: "CS", Kind: common.ChecksumReplica, Nodes: []registry.Node{{Id: 0}}, Credentials: "s3"},
	})
	if err != nil {
		t.Fatal(err)
	}
	env := &testEnv{nodes: map[string][]*bitarchive.Node{}, ends: map[string][]*netw.LocalEnd{}}
	dial := func(replicaId string, n registry.Node) (netw.Caller, error) {
		r, _ := reg.Get(replicaId)
		conf := etc.MakeDefaultConfig()
		conf.NodeId, conf.ReplicaId, conf.Credentials, conf.LogLevel = n.Id, replicaId, r.Credentials, "panic"
		conf.Kind = r.Kind.String()
		store, err := bitarchive.MakeMemLevelStore()
		if err != nil {
			return nil, err
		}
		node, err := bitarchive.NewNode(conf, store)
		if err != nil {
			return nil, err
		}
		t.Cleanup(node.Kill)
		end := netw.MakeLocalEnd(node.ServiceName(), node)
		env.nodes[replicaId] = append(env.nodes[replicaId], node)
		env.ends[replicaId] = append(env.ends[replicaId], end)
		return end, nil
	}
	logger := common.MustInitLogger("panic", "Repair")
	gw, err := gateway.New(reg, dial, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(gw.Close)
	store, err := versioned.MakeMemLevelStore()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	env.ledger = ledger.New(store, reg, logger)
	env.engine = preservation.NewEngine(env.ledger, reg, gw, logger)
	env.wf = NewWorkflows(env.engine, env.ledger, gw, reg, logger, 2)
	return env
}

func (env *testEnv) put(t *testing.T, replicaId string, node int, name string, data []byte) {
	var reply common.UploadReply
	args := common.UploadArgs{Filename: name, Data: data, Checksum: utils.Checksum(data)}
	if err := env.nodes[replicaId][node].Upload(context.Background(), &args, &reply); err != nil || reply.Err != common.OK {
		t.Fatalf("seed %s on %s/%d: %v %s", name, replicaId, node, err, reply.Err)
	}
}

func (env *testEnv) entry(t *testing.T, name, sum string, states map[string]common.ReplicaStoreState) {
	if _, err := env.ledger.CreateEntryWithStates(name, sum, states); err != nil {
		t.Fatal(err)
	}
}

func (env *testEnv) stateOf(t *testing.T, name, replicaId string) common.ReplicaStoreState {
	e, err := env.ledger.GetEntry(name)
	if err != nil {
		t.Fatal(err)
	}
	return e.States[replicaId]
}

func outcomes(r *common.Report) map[string]common.Err {
	res := map[string]common.Err{}
	for _, f := range r.Succeeded {
		res[f] = common.OK
	}
	for _, o := range append(append([]common.FileOutcome(nil), r.Failed...), r.Skipped...) {
		res[o.Filename] = o.Err
	}
	return res
}

func TestUploadMissingFiles(t *testing.T) {
	env := makeEnv(t)
	ctx := context.Background()
	both := map[string]common.ReplicaStoreState{"R1": common.UploadCompleted, "R2": common.UploadFailed}

	env.put(t, "R1", 0, "doc1.warc", good)
	env.entry(t, "doc1.warc", goodSum, both)
	env.entry(t, "doc2.warc", goodSum, both)
	env.put(t, "R1", 1, "doc3.warc", bad)
	env.entry(t, "doc3.warc", goodSum, both)
	env.put(t, "R1", 0, "doc4.warc", good)
	env.put(t, "R2", 1, "doc4.warc", good)
	env.entry(t, "doc4.warc", goodSum, both)

	scan, err := env.engine.FindMissingFiles(ctx, "R2")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"doc1.warc", "doc2.warc", "doc3.warc"}, scan.Files); diff != "" {
		t.Fatalf("missing (-want +got):\n%s", diff)
	}

	report, err := env.wf.UploadMissingFiles(ctx, "R2", "doc1.warc", "doc2.warc", "doc3.warc", "doc4.warc")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]common.Err{
		"doc1.warc": common.OK,
		"doc2.warc": common.ErrUnknownFile,
		"doc3.warc": common.ErrFailed,
		"doc4.warc": common.ErrBadArgs,
	}
	if diff := cmp.Diff(want, outcomes(report)); diff != "" {
		t.Fatalf("outcomes (-want +got):\n%s", diff)
	}
	for _, o := range report.Skipped {
		if o.Phase != string(PhasePreconditionFailed) {
			t.Fatalf("%s skipped in phase %s", o.Filename, o.Phase)
		}
	}

	if s := env.stateOf(t, "doc1.warc", "R2"); s != common.UploadCompleted {
		t.Fatalf("doc1.warc on R2 is %s", s)
	}
	for _, name := range []string{"doc2.warc", "doc3.warc"} {
		if s := env.stateOf(t, name, "R2"); s != common.UploadFailed {
			t.Fatalf("skipped %s was mutated to %s", name, s)
		}
	}

	scan, err = env.engine.FindMissingFiles(ctx, "R2")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"doc2.warc", "doc3.warc"}, scan.Files); diff != "" {
		t.Fatalf("missing after repair (-want +got):\n%s", diff)
	}
}

func TestUploadMissingFilesAllFromScan(t *testing.T) {
	env := makeEnv(t)
	ctx := context.Background()
	for _, name := range []string{"a.warc", "b.warc", "c.warc"} {
		env.put(t, "R1", 0, name, []byte(name))
		env.entry(t, name, utils.Checksum([]byte(name)), map[string]common.ReplicaStoreState{
			"R1": common.UploadCompleted, "R2": common.UploadStarted, "CS": common.UploadStarted,
		})
	}
	env.put(t, "CS", 0, "a.warc", []byte("a.warc"))

	if _, err := env.engine.FindMissingFiles(ctx, "CS"); err != nil {
		t.Fatal(err)
	}
	report, err := env.wf.UploadMissingFiles(ctx, "CS")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b.warc", "c.warc"}, report.Succeeded); diff != "" {
		t.Fatalf("repaired (-want +got):\n%s", diff)
	}
	sum, err := env.engine.VerifyChecksum(ctx, "CS", "b.warc")
	if err != nil || sum != utils.Checksum([]byte("b.warc")) {
		t.Fatalf("checksum replica holds %q, %v", sum, err)
	}
}

func TestUploadMissingFilesRefused(t *testing.T) {
	env := makeEnv(t)
	ctx := context.Background()

	if _, err := env.wf.UploadMissingFiles(ctx, "R1", "doc1.warc"); !errors.Is(err, common.ErrBadArgs) {
		t.Fatalf("repairing the reference: %v", err)
	}
	if _, err := env.wf.UploadMissingFiles(ctx, "R9", "doc1.warc"); !errors.Is(err, common.ErrUnknownReplica) {
		t.Fatalf("unknown replica: %v", err)
	}
	if _, err := env.wf.UploadMissingFiles(ctx, "R2"); !errors.Is(err, common.ErrNoData) {
		t.Fatalf("no scan: %v", err)
	}
	report, err := env.wf.UploadMissingFiles(ctx, "R2", "doc1.warc")
	if err != nil {
		t.Fatal(err)
	}
	if got := outcomes(report)["doc1.warc"]; got != common.ErrNoData {
		t.Fatalf("never scanned: %s", got)
	}
}

func TestUploadMissingFilesIncompleteScan(t *testing.T) {
	env := makeEnv(t)
	ctx := context.Background()
	states := map[string]common.ReplicaStoreState{"R1": common.UploadCompleted, "R2": common.UploadCompleted}
	env.put(t, "R1", 0, "doc1.warc", good)
	env.put(t, "R2", 0, "doc0.warc", []byte("x"))
	env.put(t, "R2", 1, "doc1.warc", good)
	env.entry(t, "doc1.warc", goodSum, states)

	env.ends["R2"][1].SetDown(true)
	scan, err := env.engine.FindMissingFiles(ctx, "R2")
	if err != nil {
		t.Fatal(err)
	}
	if !scan.Incomplete || !scan.IsMissing("doc1.warc") {
		t.Fatalf("scan = %+v", scan)
	}
	env.ends["R2"][1].SetDown(false)

	report, err := env.wf.UploadMissingFiles(ctx, "R2", "doc1.warc")
	if err != nil {
		t.Fatal(err)
	}
	if got := outcomes(report)["doc1.warc"]; got != common.ErrNoData {
		t.Fatalf("acted on an incomplete scan: %s", got)
	}
}

func TestReplaceChangedFile(t *testing.T) {
	env := makeEnv(t)
	ctx := context.Background()
	env.put(t, "R1", 1, "doc1.warc", good)
	env.put(t, "R2", 0, "doc1.warc", bad)
	env.entry(t, "doc1.warc", goodSum, map[string]common.ReplicaStoreState{
		"R1": common.UploadCompleted, "R2": common.UploadCompleted,
	})

	scan, err := env.engine.FindChangedFiles(ctx, "R2")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"doc1.warc"}, scan.Files); diff != "" {
		t.Fatalf("changed (-want +got):\n%s", diff)
	}

	cases := []struct {
		name        string
		credentials string
		checksum    string
		want        common.Err
	}{
		{"bad credentials", "nope", badSum, common.ErrPermissionDenied},
		{"other replica's credentials", "s1", badSum, common.ErrPermissionDenied},
		{"stale bad checksum", "s2", "xyz999", common.ErrPermissionDenied},
		{"ledger checksum", "s2", goodSum, common.ErrBadArgs},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			report, err := env.wf.ReplaceChangedFile(ctx, "R2", "doc1.warc", c.credentials, c.checksum)
			if !errors.Is(err, c.want) {
				t.Fatalf("expected %s, got %v", c.want, err)
			}
			if len(report.Skipped) != 1 || report.Skipped[0].Err != c.want {
				t.Fatalf("report = %+v", report)
			}
			if sum, _ := env.engine.VerifyChecksum(ctx, "R2", "doc1.warc"); sum != badSum {
				t.Fatalf("refused repair changed the replica: %s", sum)
			}
		})
	}

	report, err := env.wf.ReplaceChangedFile(ctx, "R2", "doc1.warc", "s2", badSum)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"doc1.warc"}, report.Succeeded); diff != "" {
		t.Fatalf("succeeded (-want +got):\n%s", diff)
	}
	scan, err = env.engine.FindChangedFiles(ctx, "R2")
	if err != nil {
		t.Fatal(err)
	}
	if len(scan.Files) != 0 || scan.Observed["doc1.warc"] != goodSum {
		t.Fatalf("rescan after repair: %+v", scan)
	}
	if s := env.stateOf(t, "doc1.warc", "R2"); s != common.UploadCompleted {
		t.Fatalf("doc1.warc on R2 is %s", s)
	}

	edition := func() int64 {
		e, _ := env.ledger.GetEntry("doc1.warc")
		return e.Edition
	}
	before := edition()
	if _, err := env.wf.ReplaceChangedFile(ctx, "R2", "doc1.warc", "s2", badSum); !errors.Is(err, common.ErrPermissionDenied) {
		t.Fatalf("second repair: %v", err)
	}
	if edition() != before {
		t.Fatalf("refused repair wrote the ledger")
	}
}

func TestReplaceChangedFileOnChecksumReplica(t *testing.T) {
	env := makeEnv(t)
	ctx := context.Background()
	env.put(t, "R1", 0, "doc1.warc", good)
	env.put(t, "CS", 0, "doc1.warc", bad)
	env.entry(t, "doc1.warc", goodSum, map[string]common.ReplicaStoreState{
		"R1": common.UploadCompleted, "CS": common.UploadFailed,
	})

	if _, err := env.wf.ReplaceChangedFile(ctx, "CS", "doc1.warc", "s3", badSum); err != nil {
		t.Fatal(err)
	}
	if sum, err := env.engine.VerifyChecksum(ctx, "CS", "doc1.warc"); err != nil || sum != goodSum {
		t.Fatalf("checksum replica holds %q, %v", sum, err)
	}
	if s := env.stateOf(t, "doc1.warc", "CS"); s != common.UploadCompleted {
		t.Fatalf("doc1.warc on CS is %s", s)
	}
}

func TestReplaceChangedFileAbsentFromReplica(t *testing.T) {
	env := makeEnv(t)
	ctx := context.Background()
	env.put(t, "R1", 0, "doc1.warc", good)
	env.entry(t, "doc1.warc", goodSum, map[string]common.ReplicaStoreState{
		"R1": common.UploadCompleted, "R2": common.UploadFailed,
	})
	before, _ := env.ledger.GetEntry("doc1.warc")

	report, err := env.wf.ReplaceChangedFile(ctx, "R2", "doc1.warc", "s2", badSum)
	if !errors.Is(err, common.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Err != common.ErrPermissionDenied {
		t.Fatalf("report = %+v", report)
	}
	if _, err := env.engine.VerifyChecksum(ctx, "R2", "doc1.warc"); !errors.Is(err, common.ErrUnknownFile) {
		t.Fatalf("refused repair wrote to the replica: %v", err)
	}
	if after, _ := env.ledger.GetEntry("doc1.warc"); after.Edition != before.Edition {
		t.Fatalf("refused repair wrote the ledger")
	}
}

func TestAddMissingFilesToAdminData(t *testing.T) {
	env := makeEnv(t)
	ctx := context.Background()
	if _, err := env.wf.AddMissingFilesToAdminData(ctx); !errors.Is(err, common.ErrNoData) {
		t.Fatalf("without scans: %v", err)
	}

	env.put(t, "R1", 0, "orphan.warc", good)
	env.put(t, "R2", 1, "orphan.warc", good)
	env.put(t, "R1", 1, "known.warc", bad)
	env.entry(t, "known.warc", badSum, map[string]common.ReplicaStoreState{"R1": common.UploadCompleted})
	for _, r := range []string{"R1", "R2"} {
		if _, err := env.engine.FindMissingFiles(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	report, err := env.wf.AddMissingFilesToAdminData(ctx, "orphan.warc", "known.warc", "ghost.warc")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]common.Err{
		"orphan.warc": common.OK,
		"known.warc":  common.ErrAlreadyExists,
		"ghost.warc":  common.ErrBadArgs,
	}
	if diff := cmp.Diff(want, outcomes(report)); diff != "" {
		t.Fatalf("outcomes (-want +got):\n%s", diff)
	}

	e, err := env.ledger.GetEntry("orphan.warc")
	if err != nil {
		t.Fatal(err)
	}
	wantStates := map[string]common.ReplicaStoreState{
		"R1": common.UploadCompleted,
		"R2": common.UploadCompleted,
		"CS": common.UploadFailed,
	}
	if e.Checksum != goodSum {
		t.Fatalf("checksum = %s", e.Checksum)
	}
	if diff := cmp.Diff(wantStates, e.States); diff != "" {
		t.Fatalf("states (-want +got):\n%s", diff)
	}

	missing, err := env.engine.GetMissingFilesForAdminData()
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 0 {
		t.Fatalf("still unknown to the ledger: %v", missing)
	}
}

func TestChangeStateForAdminData(t *testing.T) {
	env := makeEnv(t)
	ctx := context.Background()
	env.put(t, "R1", 0, "doc1.warc", good)
	env.put(t, "R2", 0, "doc1.warc", good)
	env.entry(t, "doc1.warc", goodSum, map[string]common.ReplicaStoreState{
		"R1": common.UploadStarted, "R2": common.UploadFailed, "CS": common.UploadCompleted,
	})
	env.put(t, "CS", 0, "other.warc", []byte("other"))

	for _, r := range []string{"R2", "CS"} {
		if _, err := env.engine.FindMissingFiles(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := env.engine.FindChangedFiles(ctx, "R2"); err != nil {
		t.Fatal(err)
	}

	changed, err := env.engine.GetChangedFilesForAdminData()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"doc1.warc"}, changed); diff != "" {
		t.Fatalf("ledger disagreements (-want +got):\n%s", diff)
	}

	if _, err := env.wf.ChangeStateForAdminData(ctx, "doc1.warc"); err != nil {
		t.Fatal(err)
	}
	e, _ := env.ledger.GetEntry("doc1.warc")
	want := map[string]common.ReplicaStoreState{
		// R1 was never scanned
		"R1": common.UploadStarted,
		"R2": common.UploadCompleted,
		"CS": common.UploadFailed,
	}
	if diff := cmp.Diff(want, e.States); diff != "" {
		t.Fatalf("states (-want +got):\n%s", diff)
	}

	if _, err := env.wf.ChangeStateForAdminData(ctx, "nope.warc"); !errors.Is(err, common.ErrUnknownFile) {
		t.Fatalf("unknown file: %v", err)
	}
}

package bitarchive

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/allen1211/bitpres/internal/batch"
	"github.com/allen1211/bitpres/internal/bitarchive/etc"
	"github.com/allen1211/bitpres/pkg/common"
	"github.com/allen1211/bitpres/pkg/common/utils"
)

func makeTestNode(t *testing.T, replicaId, kind string) *Node {
	conf := etc.MakeDefaultConfig()
	conf.ReplicaId = replicaId
	conf.Kind = kind
	conf.Credentials = "secret"
	conf.LogLevel = "panic"
	conf.Store = etc.StoreConf{Driver: StoreMemory}
	node, err := MakeNode(conf)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(node.Kill)
	return node
}

func upload(t *testing.T, n *Node, name, content string) common.Err {
	var reply common.UploadReply
	args := common.UploadArgs{Filename: name, Data: []byte(content), Checksum: utils.Checksum([]byte(content))}
	if err := n.Upload(context.Background(), &args, &reply); err != nil {
		t.Fatal(err)
	}
	return reply.Err
}

func TestUploadAndGet(t *testing.T) {
	n := makeTestNode(t, "R1", "bitarchive")
	ctx := context.Background()

	if e := upload(t, n, "doc1.warc", "hello"); e != common.OK {
		t.Fatalf("upload = %s", e)
	}
	if e := upload(t, n, "doc1.warc", "hello again"); e != common.ErrAlreadyExists {
		t.Fatalf("second upload = %s, want ErrAlreadyExists", e)
	}

	var bad common.UploadReply
	_ = n.Upload(ctx, &common.UploadArgs{Filename: "doc2.warc", Data: []byte("x"), Checksum: "abc123"}, &bad)
	if bad.Err != common.ErrFailed {
		t.Fatalf("upload with wrong checksum = %s", bad.Err)
	}

	var got common.GetFileReply
	if err := n.GetFile(ctx, &common.GetFileArgs{Filename: "doc1.warc"}, &got); err != nil {
		t.Fatal(err)
	}
	if got.Err != common.OK || string(got.Data) != "hello" || got.Checksum != utils.Checksum([]byte("hello")) {
		t.Fatalf("unexpected reply %+v", got)
	}
	if got.ReplicaId != "R1" {
		t.Fatalf("reply not tagged with replica: %+v", got.FromReply)
	}

	var missing common.GetFileReply
	_ = n.GetFile(ctx, &common.GetFileArgs{Filename: "doc9.warc"}, &missing)
	if missing.Err != common.ErrUnknownFile {
		t.Fatalf("get missing = %s", missing.Err)
	}
}

func TestExecuteBatch(t *testing.T) {
	n := makeTestNode(t, "R1", "bitarchive")
	for i := 0; i < 3; i++ {
		upload(t, n, fmt.Sprintf("doc%d.warc", i), fmt.Sprintf("content %d", i))
	}

	var reply common.BatchReply
	args := batch.ToArgs(batch.NewChecksumJob(""), "job-1", batch.DefaultTimeout)
	if err := n.ExecuteBatch(context.Background(), args, &reply); err != nil {
		t.Fatal(err)
	}
	want := []string{
		batch.ChecksumLine("doc0.warc", utils.Checksum([]byte("content 0"))),
		batch.ChecksumLine("doc1.warc", utils.Checksum([]byte("content 1"))),
		batch.ChecksumLine("doc2.warc", utils.Checksum([]byte("content 2"))),
	}
	if diff := cmp.Diff(want, reply.Lines); diff != "" {
		t.Fatalf("lines (-want +got):\n%s", diff)
	}
	if reply.FilesProcessed != 3 || len(reply.FilesFailed) != 0 || reply.Err != common.OK {
		t.Fatalf("unexpected reply %+v", reply)
	}

	var unknown common.BatchReply
	_ = n.ExecuteBatch(context.Background(), &common.BatchArgs{Kind: "Nope"}, &unknown)
	if unknown.Err != common.ErrBadArgs {
		t.Fatalf("unknown job kind = %s", unknown.Err)
	}
}

func TestRemoveAndGetFile(t *testing.T) {
	n := makeTestNode(t, "R2", "bitarchive")
	ctx := context.Background()
	upload(t, n, "doc1.warc", "corrupted")
	sum := utils.Checksum([]byte("corrupted"))

	cases := []struct {
		name  string
		args  common.RemoveArgs
		want  common.Err
	}{
		{"bad credentials", common.RemoveArgs{Filename: "doc1.warc", Checksum: sum, Credentials: "guess"}, common.ErrPermissionDenied},
		{"wrong checksum", common.RemoveArgs{Filename: "doc1.warc", Checksum: "abc123", Credentials: "secret"}, common.ErrPermissionDenied},
		{"unknown file", common.RemoveArgs{Filename: "doc9.warc", Checksum: sum, Credentials: "secret"}, common.ErrUnknownFile},
		{"ok", common.RemoveArgs{Filename: "doc1.warc", Checksum: sum, Credentials: "secret"}, common.OK},
	}
	for _, c := range cases {
		var reply common.RemoveReply
		if err := n.RemoveAndGetFile(ctx, &c.args, &reply); err != nil {
			t.Fatal(err)
		}
		if reply.Err != c.want {
			t.Fatalf("%s: err = %s, want %s", c.name, reply.Err, c.want)
		}
		if c.want == common.OK && string(reply.Data) != "corrupted" {
			t.Fatalf("%s: removed data = %q", c.name, reply.Data)
		}
	}
	if ok, _ := n.store.Exists("doc1.warc"); ok {
		t.Fatalf("file survived removal")
	}
}

func TestChecksumReplica(t *testing.T) {
	n := makeTestNode(t, "CS", "checksum")
	ctx := context.Background()

	if e := upload(t, n, "doc1.warc", "hello"); e != common.OK {
		t.Fatalf("upload = %s", e)
	}
	var onlySum common.UploadReply
	_ = n.Upload(ctx, &common.UploadArgs{Filename: "doc2.warc", Checksum: "def456"}, &onlySum)
	if onlySum.Err != common.OK {
		t.Fatalf("checksum-only upload = %s", onlySum.Err)
	}

	var get common.GetFileReply
	_ = n.GetFile(ctx, &common.GetFileArgs{Filename: "doc1.warc"}, &get)
	if get.Err != common.ErrFailed {
		t.Fatalf("checksum replica served data: %s", get.Err)
	}

	var reply common.BatchReply
	_ = n.ExecuteBatch(ctx, batch.ToArgs(batch.NewChecksumJob(""), "job-2", batch.DefaultTimeout), &reply)
	want := []string{batch.ChecksumLine("doc1.warc", utils.Checksum([]byte("hello"))), "doc2.warc##def456"}
	if diff := cmp.Diff(want, reply.Lines); diff != "" {
		t.Fatalf("lines (-want +got):\n%s", diff)
	}
}

func TestKilledNodeRefuses(t *testing.T) {
	n := makeTestNode(t, "R1", "bitarchive")
	n.Kill()
	var reply common.GetFileReply
	if err := n.GetFile(context.Background(), &common.GetFileArgs{Filename: "x"}, &reply); err == nil {
		t.Fatalf("killed node answered")
	}
}

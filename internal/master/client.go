package master

//
// Preservation master clerk.
//

import (
	"context"
	"fmt"
	"time"

	"github.com/allen1211/bitpres/internal/netw"
	"github.com/allen1211/bitpres/pkg/common"
)

type Clerk struct {
	server  netw.Caller
	timeout time.Duration
}

// MakeClerk talks to the master through server. Every call except the
// scans and repairs, which can run for days, is bounded by timeout.
func MakeClerk(server netw.Caller, timeout time.Duration) *Clerk {
	return &Clerk{server: server, timeout: timeout}
}

func (ck *Clerk) Close() {
	ck.server.Close()
}

func (ck *Clerk) call(ctx context.Context, args *common.AdminArgs, bounded bool) (*common.AdminReply, error) {
	if bounded && ck.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ck.timeout)
		defer cancel()
	}
	var reply common.AdminReply
	if err := ck.server.Call(ctx, netw.ApiAdmin, args, &reply); err != nil {
		return nil, fmt.Errorf("call master op %s: %v: %w", args.Op, err, common.ErrFailed)
	}
	return &reply, common.ReplyErr(reply.Err, reply.Cause)
}

func timeOf(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(0, ts)
}

func (ck *Clerk) FindMissingFiles(ctx context.Context, replica string) ([]string, error) {
	reply, err := ck.call(ctx, &common.AdminArgs{Op: common.OpFindMissing, Replica: replica}, false)
	if err != nil {
		return nil, err
	}
	return reply.Files, nil
}

func (ck *Clerk) FindChangedFiles(ctx context.Context, replica string) ([]string, error) {
	reply, err := ck.call(ctx, &common.AdminArgs{Op: common.OpFindChanged, Replica: replica}, false)
	if err != nil {
		return nil, err
	}
	return reply.Files, nil
}

// Files returns the cached file list of op together with the scan time.
func (ck *Clerk) Files(ctx context.Context, op, replica string) ([]string, time.Time, error) {
	reply, err := ck.call(ctx, &common.AdminArgs{Op: op, Replica: replica}, true)
	if err != nil {
		return nil, time.Time{}, err
	}
	return reply.Files, timeOf(reply.Timestamp), nil
}

func (ck *Clerk) Count(ctx context.Context, op, replica string) (int64, error) {
	reply, err := ck.call(ctx, &common.AdminArgs{Op: op, Replica: replica}, true)
	if err != nil {
		return 0, err
	}
	return reply.Count, nil
}

func (ck *Clerk) Date(ctx context.Context, op, replica string) (time.Time, error) {
	reply, err := ck.call(ctx, &common.AdminArgs{Op: op, Replica: replica}, true)
	if err != nil {
		return time.Time{}, err
	}
	return timeOf(reply.Timestamp), nil
}

func (ck *Clerk) States(ctx context.Context, filenames ...string) ([]common.FileStateRes, error) {
	reply, err := ck.call(ctx, &common.AdminArgs{Op: common.OpStateMap, Filenames: filenames}, true)
	if err != nil {
		return nil, err
	}
	return reply.States, nil
}

func (ck *Clerk) AdminFiles(ctx context.Context, op string) ([]string, error) {
	reply, err := ck.call(ctx, &common.AdminArgs{Op: op}, true)
	if err != nil {
		return nil, err
	}
	return reply.Files, nil
}

func (ck *Clerk) UploadMissingFiles(ctx context.Context, replica string, filenames ...string) (*common.Report, error) {
	return ck.report(ctx, &common.AdminArgs{Op: common.OpUploadMissing, Replica: replica, Filenames: filenames})
}

func (ck *Clerk) ReplaceChangedFile(ctx context.Context, replica, filename, credentials, checksum string) (*common.Report, error) {
	return ck.report(ctx, &common.AdminArgs{
		Op:          common.OpReplaceChanged,
		Replica:     replica,
		Filenames:   []string{filename},
		Credentials: credentials,
		Checksum:    checksum,
	})
}

func (ck *Clerk) AddMissingFilesToAdminData(ctx context.Context, filenames ...string) (*common.Report, error) {
	return ck.report(ctx, &common.AdminArgs{Op: common.OpAddToAdmin, Filenames: filenames})
}

func (ck *Clerk) ChangeStateForAdminData(ctx context.Context, filename string) (*common.Report, error) {
	return ck.report(ctx, &common.AdminArgs{Op: common.OpChangeState, Filenames: []string{filename}})
}

func (ck *Clerk) report(ctx context.Context, args *common.AdminArgs) (*common.Report, error) {
	reply, err := ck.call(ctx, args, false)
	if reply == nil {
		return nil, err
	}
	return &reply.Report, err
}

func (ck *Clerk) CreateEntry(ctx context.Context, filename, checksum string, targets []string) error {
	_, err := ck.call(ctx, &common.AdminArgs{
		Op:        common.OpCreateEntry,
		Filenames: []string{filename},
		Checksum:  checksum,
		Targets:   targets,
	}, true)
	return err
}

func (ck *Clerk) NotifyUpload(ctx context.Context, filename, replica string, ok bool) error {
	_, err := ck.call(ctx, &common.AdminArgs{
		Op:        common.OpNotifyUpload,
		Filenames: []string{filename},
		Replica:   replica,
		Success:   ok,
	}, true)
	return err
}

func (ck *Clerk) Replicas(ctx context.Context) ([]common.ReplicaRes, error) {
	reply, err := ck.call(ctx, &common.AdminArgs{Op: common.OpShowReplicas}, true)
	if err != nil {
		return nil, err
	}
	return reply.Replicas, nil
}

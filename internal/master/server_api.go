package master

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allen1211/bitpres/internal/netw"
	"github.com/allen1211/bitpres/internal/preservation"
	"github.com/allen1211/bitpres/pkg/common"
)

func (m *Master) StartRPCServer() error {
	rpcServ := netw.MakeRpcxServer(netw.MasterServiceName, m.conf.Addr)
	if err := rpcServ.Register(netw.MasterServiceName, m); err != nil {
		return err
	}
	m.rpcServ = rpcServ
	go func() {
		if err := rpcServ.Start(); err != nil {
			m.log.Errorf("%v", err)
		}
	}()

	return nil
}

// Admin serves every admin, repair and ingest operation, selected by Op.
func (m *Master) Admin(ctx context.Context, args *common.AdminArgs, reply *common.AdminReply) error {
	if m.Killed() {
		return errors.New(string(common.ErrNodeClosed))
	}
	m.log.Debugf("receive admin op %s replica=%s files=%v", args.Op, args.Replica, args.Filenames)

	err := m.execute(ctx, args, reply)
	reply.Err = common.ToErr(err)
	if err != nil {
		reply.Cause = err.Error()
		m.log.Warnf("admin op %s replica=%s: %v", args.Op, args.Replica, err)
	}
	adminOps.WithLabelValues(args.Op, string(reply.Err)).Inc()
	return nil
}

func (m *Master) execute(ctx context.Context, args *common.AdminArgs, reply *common.AdminReply) error {
	switch args.Op {
	case common.OpFindMissing:
		scan, err := m.engine.FindMissingFiles(ctx, args.Replica)
		if err != nil {
			return err
		}
		reply.Files, reply.Count, reply.Timestamp = scan.Files, int64(len(scan.Files)), unixNano(scan.Date)

	case common.OpFindChanged:
		scan, err := m.engine.FindChangedFiles(ctx, args.Replica)
		if err != nil {
			return err
		}
		reply.Files, reply.Count, reply.Timestamp = scan.Files, int64(len(scan.Files)), unixNano(scan.Date)

	case common.OpGetMissing, common.OpCountMissing, common.OpDateMissing:
		files, err := m.engine.GetMissingFiles(args.Replica)
		if err != nil {
			return err
		}
		date, _ := m.engine.GetDateForMissingFiles(args.Replica)
		if args.Op == common.OpGetMissing {
			reply.Files = files
		}
		reply.Count, reply.Timestamp = int64(len(files)), unixNano(date)

	case common.OpGetChanged, common.OpCountChanged, common.OpDateChanged:
		files, err := m.engine.GetChangedFiles(args.Replica)
		if err != nil {
			return err
		}
		date, _ := m.engine.GetDateForChangedFiles(args.Replica)
		if args.Op == common.OpGetChanged {
			reply.Files = files
		}
		reply.Count, reply.Timestamp = int64(len(files)), unixNano(date)

	case common.OpCountFiles:
		n, err := m.engine.GetNumberOfFiles(args.Replica)
		if err != nil {
			return err
		}
		reply.Count = n

	case common.OpStateMap:
		states, err := m.engine.GetPreservationStateMap(args.Filenames...)
		if err != nil {
			return err
		}
		for _, name := range args.Filenames {
			reply.States = append(reply.States, toFileStateRes(name, states[name]))
		}

	case common.OpAdminMissing:
		files, err := m.engine.GetMissingFilesForAdminData()
		if err != nil {
			return err
		}
		reply.Files, reply.Count = files, int64(len(files))

	case common.OpAdminChanged:
		files, err := m.engine.GetChangedFilesForAdminData()
		if err != nil {
			return err
		}
		reply.Files, reply.Count = files, int64(len(files))

	case common.OpUploadMissing:
		report, err := m.wf.UploadMissingFiles(ctx, args.Replica, args.Filenames...)
		return withReport(reply, report, err)

	case common.OpReplaceChanged:
		name, err := single(args)
		if err != nil {
			return err
		}
		report, err := m.wf.ReplaceChangedFile(ctx, args.Replica, name, args.Credentials, args.Checksum)
		return withReport(reply, report, err)

	case common.OpAddToAdmin:
		report, err := m.wf.AddMissingFilesToAdminData(ctx, args.Filenames...)
		return withReport(reply, report, err)

	case common.OpChangeState:
		name, err := single(args)
		if err != nil {
			return err
		}
		report, err := m.wf.ChangeStateForAdminData(ctx, name)
		return withReport(reply, report, err)

	case common.OpCreateEntry:
		name, err := single(args)
		if err != nil {
			return err
		}
		entry, err := m.ledger.CreateEntry(name, args.Checksum, args.Targets)
		if err != nil {
			return err
		}
		m.log.Infof("ingest created %s checksum=%s targets=%v", name, entry.Checksum, entry.Replicas())

	case common.OpNotifyUpload:
		name, err := single(args)
		if err != nil {
			return err
		}
		return m.ledger.NotifyUpload(name, args.Replica, args.Success)

	case common.OpShowReplicas:
		for _, r := range m.reg.All() {
			reply.Replicas = append(reply.Replicas, common.ReplicaRes{
				Id:        r.Id,
				Name:      r.Name,
				Kind:      r.Kind.String(),
				Reference: r.Reference,
				Nodes:     len(r.Nodes),
			})
		}

	default:
		return fmt.Errorf("unknown admin op %q: %w", args.Op, common.ErrBadArgs)
	}
	return nil
}

func single(args *common.AdminArgs) (string, error) {
	if len(args.Filenames) != 1 || args.Filenames[0] == "" {
		return "", fmt.Errorf("op %s takes exactly one filename, got %d: %w", args.Op, len(args.Filenames), common.ErrBadArgs)
	}
	return args.Filenames[0], nil
}

func withReport(reply *common.AdminReply, report *common.Report, err error) error {
	if report != nil {
		reply.Report = *report
	}
	return err
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func toFileStateRes(name string, st *preservation.PreservationState) common.FileStateRes {
	if st == nil {
		return common.FileStateRes{Filename: name}
	}
	res := common.FileStateRes{
		Filename: name,
		Found:    true,
		Checksum: st.Entry.Checksum,
		Edition:  st.Entry.Edition,
	}
	for _, id := range st.ReplicaIds() {
		v := st.Replicas[id]
		res.Replicas = append(res.Replicas, common.ReplicaStateRes{
			ReplicaId:      id,
			State:          v.State.String(),
			ListStatus:     v.ListStatus.String(),
			ChecksumStatus: v.ChecksumStatus.String(),
			Observed:       v.ObservedChecksum,
		})
	}
	return res
}

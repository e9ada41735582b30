package bitarchive

import (
	"context"
	"errors"

	"github.com/allen1211/bitpres/internal/batch"
	"github.com/allen1211/bitpres/internal/netw"
	"github.com/allen1211/bitpres/pkg/common"
)

func (n *Node) StartRPCServer() error {
	name := n.ServiceName()
	rpcServ := netw.MakeRpcxServer(name, n.Addr())
	if err := rpcServ.Register(name, n); err != nil {
		return err
	}
	n.rpcServ = rpcServ
	go func() {
		if err := rpcServ.Start(); err != nil {
			n.logger.Errorf("%v", err)
		}
	}()

	return nil
}

func (n *Node) ExecuteBatch(ctx context.Context, args *common.BatchArgs, reply *common.BatchReply) error {
	if n.Killed() {
		return errors.New(string(common.ErrNodeClosed))
	}
	job, err := batch.FromArgs(args)
	if err != nil {
		n.logger.Errorf("RPC Call ExecuteBatch job %s: %v", args.JobId, err)
		reply.FromReply = n.from()
		reply.Err = common.ToErr(err)
		reply.Exceptions = []common.FileException{{Cause: err.Error()}}
		return nil
	}

	n.logger.Debugf("start batch job %s kind=%s filter=%s", args.JobId, args.Kind, job.Filter())
	res := batch.Run(job, n)
	*reply = *res
	reply.FromReply = n.from()

	filesProcessed.WithLabelValues(n.ReplicaId, job.Kind()).Add(float64(res.FilesProcessed))
	filesFailed.WithLabelValues(n.ReplicaId, job.Kind()).Add(float64(len(res.FilesFailed)))
	n.logger.Infof("batch job %s kind=%s processed=%d failed=%d", args.JobId, job.Kind(),
		res.FilesProcessed, len(res.FilesFailed))
	return nil
}

func (n *Node) GetFile(ctx context.Context, args *common.GetFileArgs, reply *common.GetFileReply) error {
	if n.Killed() {
		return errors.New(string(common.ErrNodeClosed))
	}
	reply.FromReply = n.from()
	if n.Kind == common.ChecksumReplica {
		reply.Err = common.ErrFailed
		return nil
	}
	data, err := n.store.Get(args.Filename)
	if err != nil {
		if !errors.Is(err, common.ErrUnknownFile) {
			n.logger.Errorf("RPC Call GetFile %s: %v", args.Filename, err)
		}
		reply.Err = common.ToErr(err)
		return nil
	}
	sum, _ := n.Checksum(args.Filename)
	reply.Err = common.OK
	reply.Data = data
	reply.Checksum = sum
	return nil
}

func (n *Node) Upload(ctx context.Context, args *common.UploadArgs, reply *common.UploadReply) error {
	if n.Killed() {
		return errors.New(string(common.ErrNodeClosed))
	}
	reply.FromReply = n.from()
	if err := n.storeFile(args.Filename, args.Data, args.Checksum); err != nil {
		n.logger.Warnf("RPC Call Upload %s refused: %v", args.Filename, err)
		reply.Err = common.ToErr(err)
		return nil
	}
	n.logger.Infof("stored %s checksum=%s", args.Filename, args.Checksum)
	reply.Err = common.OK
	return nil
}

func (n *Node) RemoveAndGetFile(ctx context.Context, args *common.RemoveArgs, reply *common.RemoveReply) error {
	if n.Killed() {
		return errors.New(string(common.ErrNodeClosed))
	}
	reply.FromReply = n.from()
	data, err := n.removeFile(args.Filename, args.Checksum, args.Credentials)
	if err != nil {
		if !errors.Is(err, common.ErrUnknownFile) {
			n.logger.Warnf("RPC Call RemoveAndGetFile %s refused: %v", args.Filename, err)
		}
		reply.Err = common.ToErr(err)
		return nil
	}
	n.logger.Warnf("removed %s with checksum %s", args.Filename, args.Checksum)
	reply.Err = common.OK
	reply.Data = data
	return nil
}

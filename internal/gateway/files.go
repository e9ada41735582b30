package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/allen1211/bitpres/internal/netw"
	"github.com/allen1211/bitpres/pkg/common"
)

// GetFile fetches a file from whichever node of the replica holds it. Nodes
// are tried in random order to spread reads.
func (gw *Gateway) GetFile(ctx context.Context, replicaId, filename string) ([]byte, string, error) {
	ends, err := gw.nodesOf(replicaId)
	if err != nil {
		return nil, "", err
	}
	args := common.GetFileArgs{Filename: filename}
	var lastErr error = fmt.Errorf("%s on replica %s: %w", filename, replicaId, common.ErrUnknownFile)
	for _, i := range gw.tsr.Perm(len(ends)) {
		end := ends[i]
		var reply common.GetFileReply
		if err := end.Caller.Call(ctx, netw.ApiGetFile, &args, &reply); err != nil {
			gw.log.Warnf("get %s from node %d of replica %s: %v", filename, end.Id, replicaId, err)
			lastErr = fmt.Errorf("node %d of replica %s: %v: %w", end.Id, replicaId, err, common.ErrFailed)
			continue
		}
		switch reply.Err {
		case common.OK:
			return reply.Data, reply.Checksum, nil
		case common.ErrUnknownFile:
			continue
		default:
			lastErr = fmt.Errorf("node %d of replica %s: %w", end.Id, replicaId, reply.Err)
		}
	}
	return nil, "", lastErr
}

// Upload stores a file on the first node of the replica that accepts it.
func (gw *Gateway) Upload(ctx context.Context, replicaId, filename string, data []byte, checksum string) error {
	ends, err := gw.nodesOf(replicaId)
	if err != nil {
		return err
	}
	if len(ends) == 0 {
		return fmt.Errorf("replica %s has no nodes: %w", replicaId, common.ErrFailed)
	}
	args := common.UploadArgs{Filename: filename, Data: data, Checksum: checksum}
	var lastErr error
	for _, i := range gw.tsr.Perm(len(ends)) {
		end := ends[i]
		var reply common.UploadReply
		if err := end.Caller.Call(ctx, netw.ApiUpload, &args, &reply); err != nil {
			lastErr = fmt.Errorf("node %d of replica %s: %v: %w", end.Id, replicaId, err, common.ErrFailed)
			continue
		}
		switch reply.Err {
		case common.OK:
			return nil
		case common.ErrAlreadyExists, common.ErrBadArgs:
			// another node accepting it would leave two copies
			return fmt.Errorf("upload %s to replica %s: %w", filename, replicaId, reply.Err)
		default:
			lastErr = fmt.Errorf("node %d of replica %s: %w", end.Id, replicaId, reply.Err)
		}
	}
	return lastErr
}

// RemoveAndGetFile removes a file from the replica if its checksum matches
// and returns the removed content.
func (gw *Gateway) RemoveAndGetFile(ctx context.Context, replicaId, filename, checksum, credentials string) ([]byte, error) {
	ends, err := gw.nodesOf(replicaId)
	if err != nil {
		return nil, err
	}
	args := common.RemoveArgs{Filename: filename, Checksum: checksum, Credentials: credentials}
	var lastErr error = fmt.Errorf("%s on replica %s: %w", filename, replicaId, common.ErrUnknownFile)
	for _, end := range ends {
		var reply common.RemoveReply
		if err := end.Caller.Call(ctx, netw.ApiRemoveAndGetFile, &args, &reply); err != nil {
			lastErr = fmt.Errorf("node %d of replica %s: %v: %w", end.Id, replicaId, err, common.ErrFailed)
			continue
		}
		if reply.Err == common.OK {
			return reply.Data, nil
		}
		if errors.Is(reply.Err, common.ErrPermissionDenied) {
			return nil, fmt.Errorf("remove %s from replica %s: %w", filename, replicaId, reply.Err)
		}
		if reply.Err != common.ErrUnknownFile {
			lastErr = fmt.Errorf("node %d of replica %s: %w", end.Id, replicaId, reply.Err)
		}
	}
	return nil, lastErr
}

package netw

import (
	"context"
	"fmt"
)

const (
	ApiExecuteBatch     = "ExecuteBatch"
	ApiGetFile          = "GetFile"
	ApiUpload           = "Upload"
	ApiRemoveAndGetFile = "RemoveAndGetFile"

	ApiAdmin = "Admin"
)

const MasterServiceName = "PreservationMaster"

func NodeServiceName(replicaId string, nodeId int) string {
	return fmt.Sprintf("Node-%s-%d", replicaId, nodeId)
}

// Caller sends one request to a remote service and fills reply.
type Caller interface {
	Call(ctx context.Context, apiName string, args interface{}, reply interface{}) error
	Close()
}

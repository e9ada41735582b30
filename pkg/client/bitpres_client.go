package client

import (
	"context"
	"time"

	"github.com/allen1211/bitpres/internal/master"
	"github.com/allen1211/bitpres/internal/netw"
	"github.com/allen1211/bitpres/pkg/client/etc"
	"github.com/allen1211/bitpres/pkg/common"
)

type API interface {
	FindMissingFiles(ctx context.Context, replica string) ([]string, error)
	FindChangedFiles(ctx context.Context, replica string) ([]string, error)
	GetMissingFiles(ctx context.Context, replica string) ([]string, time.Time, error)
	GetChangedFiles(ctx context.Context, replica string) ([]string, time.Time, error)
	GetNumberOfMissingFiles(ctx context.Context, replica string) (int64, error)
	GetNumberOfChangedFiles(ctx context.Context, replica string) (int64, error)
	GetNumberOfFiles(ctx context.Context, replica string) (int64, error)
	GetPreservationStateMap(ctx context.Context, filenames ...string) ([]common.FileStateRes, error)
	GetMissingFilesForAdminData(ctx context.Context) ([]string, error)
	GetChangedFilesForAdminData(ctx context.Context) ([]string, error)

	UploadMissingFiles(ctx context.Context, replica string, filenames ...string) (*common.Report, error)
	ReplaceChangedFile(ctx context.Context, replica, filename, credentials, checksum string) (*common.Report, error)
	AddMissingFilesToAdminData(ctx context.Context, filenames ...string) (*common.Report, error)
	ChangeStateForAdminData(ctx context.Context, filename string) (*common.Report, error)

	CreateEntry(ctx context.Context, filename, checksum string, targets []string) error
	NotifyUpload(ctx context.Context, filename, replica string, ok bool) error
	ShowReplicas(ctx context.Context) ([]common.ReplicaRes, error)

	Close()
}

type BitPresClient struct {
	mc *master.Clerk
}

func MakeBitPresClient(conf etc.ClientConf) (*BitPresClient, error) {
	end, err := netw.MakeRPCEnd(netw.MasterServiceName, conf.Master)
	if err != nil {
		return nil, err
	}
	return NewBitPresClient(end, time.Duration(conf.TimeoutSec)*time.Second), nil
}

// NewBitPresClient talks to the master through an already opened caller.
func NewBitPresClient(server netw.Caller, timeout time.Duration) *BitPresClient {
	return &BitPresClient{mc: master.MakeClerk(server, timeout)}
}

func (c *BitPresClient) FindMissingFiles(ctx context.Context, replica string) ([]string, error) {
	return c.mc.FindMissingFiles(ctx, replica)
}

func (c *BitPresClient) FindChangedFiles(ctx context.Context, replica string) ([]string, error) {
	return c.mc.FindChangedFiles(ctx, replica)
}

func (c *BitPresClient) GetMissingFiles(ctx context.Context, replica string) ([]string, time.Time, error) {
	return c.mc.Files(ctx, common.OpGetMissing, replica)
}

func (c *BitPresClient) GetChangedFiles(ctx context.Context, replica string) ([]string, time.Time, error) {
	return c.mc.Files(ctx, common.OpGetChanged, replica)
}

func (c *BitPresClient) GetNumberOfMissingFiles(ctx context.Context, replica string) (int64, error) {
	return c.mc.Count(ctx, common.OpCountMissing, replica)
}

func (c *BitPresClient) GetNumberOfChangedFiles(ctx context.Context, replica string) (int64, error) {
	return c.mc.Count(ctx, common.OpCountChanged, replica)
}

func (c *BitPresClient) GetNumberOfFiles(ctx context.Context, replica string) (int64, error) {
	return c.mc.Count(ctx, common.OpCountFiles, replica)
}

func (c *BitPresClient) GetPreservationStateMap(ctx context.Context, filenames ...string) ([]common.FileStateRes, error) {
	return c.mc.States(ctx, filenames...)
}

func (c *BitPresClient) GetMissingFilesForAdminData(ctx context.Context) ([]string, error) {
	return c.mc.AdminFiles(ctx, common.OpAdminMissing)
}

func (c *BitPresClient) GetChangedFilesForAdminData(ctx context.Context) ([]string, error) {
	return c.mc.AdminFiles(ctx, common.OpAdminChanged)
}

func (c *BitPresClient) UploadMissingFiles(ctx context.Context, replica string, filenames ...string) (*common.Report, error) {
	return c.mc.UploadMissingFiles(ctx, replica, filenames...)
}

func (c *BitPresClient) ReplaceChangedFile(ctx context.Context, replica, filename, credentials, checksum string) (*common.Report, error) {
	return c.mc.ReplaceChangedFile(ctx, replica, filename, credentials, checksum)
}

func (c *BitPresClient) AddMissingFilesToAdminData(ctx context.Context, filenames ...string) (*common.Report, error) {
	return c.mc.AddMissingFilesToAdminData(ctx, filenames...)
}

func (c *BitPresClient) ChangeStateForAdminData(ctx context.Context, filename string) (*common.Report, error) {
	return c.mc.ChangeStateForAdminData(ctx, filename)
}

func (c *BitPresClient) CreateEntry(ctx context.Context, filename, checksum string, targets []string) error {
	return c.mc.CreateEntry(ctx, filename, checksum, targets)
}

func (c *BitPresClient) NotifyUpload(ctx context.Context, filename, replica string, ok bool) error {
	return c.mc.NotifyUpload(ctx, filename, replica, ok)
}

func (c *BitPresClient) ShowReplicas(ctx context.Context) ([]common.ReplicaRes, error) {
	return c.mc.Replicas(ctx)
}

func (c *BitPresClient) Close() {
	c.mc.Close()
}

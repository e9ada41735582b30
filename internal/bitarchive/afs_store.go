package bitarchive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/allen1211/bitpres/pkg/common"
)

// AFSStore keeps one object per file under a base URL (file://, mem://, ...).
type AFSStore struct {
	fs      afs.Service
	baseURL string
}

func MakeAFSStore(baseURL string) (*AFSStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("afs store needs a base url")
	}
	return &AFSStore{fs: afs.New(), baseURL: baseURL}, nil
}

func (s *AFSStore) url(name string) string {
	return url.Join(s.baseURL, name)
}

func (s *AFSStore) Put(name string, data []byte) error {
	return s.fs.Upload(context.Background(), s.url(name), file.DefaultFileOsMode, bytes.NewReader(data))
}

func (s *AFSStore) Get(name string) ([]byte, error) {
	ctx := context.Background()
	URL := s.url(name)
	if ok, err := s.fs.Exists(ctx, URL); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%s: %w", name, common.ErrUnknownFile)
	}
	return s.fs.DownloadWithURL(ctx, URL)
}

func (s *AFSStore) Exists(name string) (bool, error) {
	return s.fs.Exists(context.Background(), s.url(name))
}

func (s *AFSStore) Delete(name string) error {
	return s.fs.Delete(context.Background(), s.url(name))
}

func (s *AFSStore) List() ([]string, error) {
	ctx := context.Background()
	if ok, err := s.fs.Exists(ctx, s.baseURL); err != nil || !ok {
		return nil, err
	}
	objects, err := s.fs.List(ctx, s.baseURL)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, object := range objects {
		if object.IsDir() {
			continue
		}
		names = append(names, object.Name())
	}
	return names, nil
}

func (s *AFSStore) Close() error {
	return nil
}

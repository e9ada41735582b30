package preservation

import (
	"sync"
	"time"
)

// MissingScan is the outcome of one completed file-list scan of a replica.
// It is never modified after it enters the cache.
type MissingScan struct {
	Replica    string
	JobId      string
	Date       time.Time
	Files      []string
	Present    map[string]struct{}
	// Missing holds the names in Files.
	Missing    map[string]struct{}
	Failed     []string
	TotalFiles int64
	// Incomplete is set when a storage node did not answer, so some present
	// files may be listed as missing.
	Incomplete bool
}

func (s *MissingScan) Has(filename string) bool {
	_, ok := s.Present[filename]
	return ok
}

func (s *MissingScan) IsMissing(filename string) bool {
	_, ok := s.Missing[filename]
	return ok
}

// ChangedScan is the outcome of one completed checksum scan of a replica.
type ChangedScan struct {
	Replica    string
	JobId      string
	Date       time.Time
	Files      []string
	Observed   map[string]string
	Failed     []string
	Incomplete bool
}

// ScanCache holds the latest scan of each kind per replica. Writers swap
// whole snapshots, readers never see a scan in progress.
type ScanCache struct {
	mu      sync.RWMutex
	missing map[string]*MissingScan
	changed map[string]*ChangedScan
}

func NewScanCache() *ScanCache {
	return &ScanCache{
		missing: map[string]*MissingScan{},
		changed: map[string]*ChangedScan{},
	}
}

func (c *ScanCache) Missing(replicaId string) *MissingScan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.missing[replicaId]
}

func (c *ScanCache) SetMissing(scan *MissingScan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missing[scan.Replica] = scan
}

func (c *ScanCache) Changed(replicaId string) *ChangedScan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.changed[replicaId]
}

func (c *ScanCache) SetChanged(scan *ChangedScan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changed[scan.Replica] = scan
}

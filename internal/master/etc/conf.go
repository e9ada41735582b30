package etc

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/allen1211/bitpres/internal/registry"
	"github.com/allen1211/bitpres/pkg/common"
	"github.com/allen1211/bitpres/pkg/common/utils"
)

type MasterConf struct {
	Addr                string        `json:"addr" toml:"addr"`
	LogLevel            string        `json:"log_level" toml:"log_level"`
	Ledger              LedgerConf    `json:"ledger" toml:"ledger"`
	Replicas            []ReplicaConf `json:"replicas" toml:"replicas"`
	BatchTimeoutSec     int64         `json:"batch_timeout_sec" toml:"batch_timeout_sec"`
	ScanIntervalSec     int64         `json:"scan_interval_sec" toml:"scan_interval_sec"`
	MaxConcurrentCopies int           `json:"max_concurrent_copies" toml:"max_concurrent_copies"`
	MetricAddr          string        `json:"metric_addr" toml:"metric_addr"`
	GraphiteAddr        string        `json:"graphite_addr" toml:"graphite_addr"`
}

type LedgerConf struct {
	Driver string `json:"driver" toml:"driver"`
	Path   string `json:"path" toml:"path"`
}

type ReplicaConf struct {
	Id          string     `json:"id" toml:"id"`
	Name        string     `json:"name" toml:"name"`
	Kind        string     `json:"kind" toml:"kind"`
	Reference   bool       `json:"reference" toml:"reference"`
	Credentials string     `json:"credentials" toml:"credentials"`
	Nodes       []NodeConf `json:"nodes" toml:"nodes"`
}

type NodeConf struct {
	Id   int    `json:"id" toml:"id"`
	Addr string `json:"addr" toml:"addr"`
}

func MakeDefaultConfig() MasterConf {
	return MasterConf{
		Addr:     "127.0.0.1:8000",
		LogLevel: "info",
		Ledger: LedgerConf{
			Driver: "leveldb",
			Path:   "/data/bitpres/ledger",
		},
		MaxConcurrentCopies: 4,
		MetricAddr:          "127.0.0.1:9200",
	}
}

// Registry builds the replica registry described by the configuration.
func (c *MasterConf) Registry() (*registry.Registry, error) {
	replicas := make([]registry.Replica, 0, len(c.Replicas))
	for _, rc := range c.Replicas {
		kind, err := common.ParseReplicaKind(rc.Kind)
		if err != nil {
			return nil, fmt.Errorf("replica %s: %v", rc.Id, err)
		}
		r := registry.Replica{
			Id:          rc.Id,
			Name:        rc.Name,
			Kind:        kind,
			Reference:   rc.Reference,
			Credentials: rc.Credentials,
		}
		for _, n := range rc.Nodes {
			r.Nodes = append(r.Nodes, registry.Node{Id: n.Id, Addr: n.Addr})
		}
		replicas = append(replicas, r)
	}
	return registry.New(replicas)
}

func ParseMasterConf(confPath string) MasterConf {
	conf := MakeDefaultConfig()
	if err := utils.DecodeConfFile(confPath, &conf); err != nil {
		log.Fatalf("failed to parse config file %s: %v", confPath, err)
	}
	if len(conf.Replicas) == 0 {
		log.Fatalf("config file %s: no replica configured", confPath)
	}
	return conf
}

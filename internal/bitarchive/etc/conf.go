package etc

import (
	log "github.com/sirupsen/logrus"

	"github.com/allen1211/bitpres/pkg/common/utils"
)

type NodeConf struct {
	NodeId      int       `json:"node_id" toml:"node_id"`
	ReplicaId   string    `json:"replica_id" toml:"replica_id"`
	Kind        string    `json:"kind" toml:"kind"`
	Host        string    `json:"host" toml:"host"`
	Port        int       `json:"port" toml:"port"`
	Credentials string    `json:"credentials" toml:"credentials"`
	LogLevel    string    `json:"log_level" toml:"log_level"`
	Store       StoreConf `json:"store" toml:"store"`
}

type StoreConf struct {
	Driver string `json:"driver" toml:"driver"`
	Path   string `json:"path" toml:"path"`
}

func MakeDefaultConfig() NodeConf {
	return NodeConf{
		Host:     "127.0.0.1",
		Port:     8800,
		Kind:     "bitarchive",
		LogLevel: "info",
		Store: StoreConf{
			Driver: "leveldb",
			Path:   "/data/bitpres/node",
		},
	}
}

func ParseNodeConf(confPath string) NodeConf {
	conf := MakeDefaultConfig()
	if err := utils.DecodeConfFile(confPath, &conf); err != nil {
		log.Fatalf("failed to parse config file %s: %v", confPath, err)
	}
	if conf.ReplicaId == "" {
		log.Fatalf("config file %s: replica_id is required", confPath)
	}
	return conf
}

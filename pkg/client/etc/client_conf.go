package etc

import (
	log "github.com/sirupsen/logrus"

	"github.com/allen1211/bitpres/pkg/common/utils"
)

type ClientConf struct {
	Master     string `json:"master" toml:"master"`
	LogLevel   string `json:"log_level" toml:"log_level"`
	TimeoutSec int64  `json:"timeout_sec" toml:"timeout_sec"`
}

func MakeDefaultConfig() ClientConf {
	return ClientConf{
		Master:     "127.0.0.1:8000",
		LogLevel:   "info",
		TimeoutSec: 30,
	}
}

func ParseClientConf(confPath string) ClientConf {
	conf := MakeDefaultConfig()
	if err := utils.DecodeConfFile(confPath, &conf); err != nil {
		log.Fatalf("failed to parse config file %s: %v", confPath, err)
	}
	return conf
}

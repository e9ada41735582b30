package main

import (
	"flag"

	log "github.com/sirupsen/logrus"

	"github.com/allen1211/bitpres/internal/master"
	"github.com/allen1211/bitpres/internal/master/etc"
)

func main() {
	conf := makeConfig()

	server := startServer(conf)

	<-server.KilledC
}

func makeConfig() etc.MasterConf {
	var confPath string
	flag.StringVar(&confPath, "c", "", "config file path")
	flag.Parse()

	if confPath == "" {
		log.Fatalf("no config file path provided")
	}

	return etc.ParseMasterConf(confPath)
}

func startServer(conf etc.MasterConf) *master.Master {
	server, err := master.StartServer(conf)
	if err != nil {
		log.Fatalf("Start Master Error: %v", err)
	}
	if err := server.StartRPCServer(); err != nil {
		log.Fatalf("Start Master RPC Server Error: %v", err)
	}

	return server
}

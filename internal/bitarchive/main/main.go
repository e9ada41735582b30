package main

import (
	"flag"

	log "github.com/sirupsen/logrus"

	"github.com/allen1211/bitpres/internal/bitarchive"
	"github.com/allen1211/bitpres/internal/bitarchive/etc"
)

func main() {
	conf := makeConfig()

	node, err := bitarchive.MakeNode(conf)
	if err != nil {
		log.Fatalf("Start Node Error: %v", err)
	}
	if err := node.StartRPCServer(); err != nil {
		log.Fatalf("Start Node RPC Server Error: %v", err)
	}

	<-node.KilledC
}

func makeConfig() etc.NodeConf {
	var confPath string
	flag.StringVar(&confPath, "c", "", "config file path")
	flag.Parse()

	if confPath == "" {
		log.Fatalf("no config file path provided")
	}

	return etc.ParseNodeConf(confPath)
}

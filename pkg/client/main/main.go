package main

import (
	"flag"

	log "github.com/sirupsen/logrus"

	"github.com/allen1211/bitpres/pkg/client"
	"github.com/allen1211/bitpres/pkg/client/etc"
)

func main() {
	conf := makeConfig()

	api, err := client.MakeBitPresClient(conf)
	if err != nil {
		log.Fatalf("cannot reach master %s: %v", conf.Master, err)
	}
	defer api.Close()

	cc := client.MakeConsoleClient(api, nil, nil)
	cc.Start()
}

func makeConfig() etc.ClientConf {
	var confPath, masterArg string
	flag.StringVar(&confPath, "c", "", "config file path")
	flag.StringVar(&masterArg, "master", "", "master server address")
	flag.Parse()

	conf := etc.MakeDefaultConfig()
	if confPath != "" {
		conf = etc.ParseClientConf(confPath)
	}
	if masterArg != "" {
		conf.Master = masterArg
	}
	return conf
}

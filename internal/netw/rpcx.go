package netw

import (
	"context"

	rpcx_client "github.com/smallnest/rpcx/client"
	"github.com/smallnest/rpcx/log"
	"github.com/smallnest/rpcx/protocol"
	"github.com/smallnest/rpcx/server"
	"github.com/smallnest/rpcx/share"

	"github.com/allen1211/bitpres/internal/netw/codec"
)

const SerializeMsgp = protocol.SerializeType(5)

func init() {

	log.SetDummyLogger()

	share.Codecs[SerializeMsgp] = &codec.MsgpCodec{}
}

type RpcxServer struct {
	Name		string
	Addr		string

	serv		*server.Server
}

func MakeRpcxServer(name, addr string) *RpcxServer {
	s := server.NewServer()
	return &RpcxServer{
		Name: name,
		Addr: addr,
		serv: s,
	}
}

func (s *RpcxServer) Register(name string, obj interface{}) error {
	return s.serv.RegisterName(name, obj, "")
}

func (s *RpcxServer) Start() error {
	return s.serv.Serve("tcp", s.Addr)
}

func (s *RpcxServer) Stop() {
	_ = s.serv.Close()
}

type ClientEnd struct {
	Name		string
	Addr		string
	client 		rpcx_client.XClient
}

func MakeRPCEnd(name, addr string) (*ClientEnd, error) {
	d, err := rpcx_client.NewPeer2PeerDiscovery("tcp@"+addr, "")
	if err != nil {
		return nil, err
	}
	option := rpcx_client.DefaultOption
	option.SerializeType = SerializeMsgp
	cli := rpcx_client.NewXClient(name, rpcx_client.Failfast, rpcx_client.RoundRobin, d, option)

	return &ClientEnd{
		Name:   name,
		Addr:   addr,
		client: cli,
	}, nil
}

func (ce *ClientEnd) Call(ctx context.Context, apiName string, args interface{}, reply interface{}) error {
	return ce.client.Call(ctx, apiName, args, reply)
}

func (ce *ClientEnd) Close() {
	if ce.client != nil {
		_ = ce.client.Close()
	}
}

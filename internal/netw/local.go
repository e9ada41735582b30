package netw

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/allen1211/bitpres/internal/netw/codec"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// LocalEnd is an in-process Caller. Arguments and replies go through the
// msgp codec, so the receiver never shares memory with the caller.
type LocalEnd struct {
	Name  string
	rcvr  reflect.Value
	codec codec.MsgpCodec
	down  int32
}

func MakeLocalEnd(name string, rcvr interface{}) *LocalEnd {
	return &LocalEnd{
		Name: name,
		rcvr: reflect.ValueOf(rcvr),
	}
}

// SetDown makes every following call fail as if the service were unreachable.
func (le *LocalEnd) SetDown(down bool) {
	if down {
		atomic.StoreInt32(&le.down, 1)
	} else {
		atomic.StoreInt32(&le.down, 0)
	}
}

func (le *LocalEnd) Call(ctx context.Context, apiName string, args interface{}, reply interface{}) error {
	if atomic.LoadInt32(&le.down) == 1 {
		return fmt.Errorf("dial %s: connection refused", le.Name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := le.rcvr.MethodByName(apiName)
	if !m.IsValid() {
		return fmt.Errorf("%s: can't find method %s", le.Name, apiName)
	}
	mt := m.Type()
	if mt.NumIn() != 3 || mt.NumOut() != 1 || mt.Out(0) != errorType ||
		mt.In(1).Kind() != reflect.Ptr || mt.In(2).Kind() != reflect.Ptr {
		return fmt.Errorf("%s: method %s has wrong signature", le.Name, apiName)
	}

	argv := reflect.New(mt.In(1).Elem())
	if err := le.transfer(args, argv.Interface()); err != nil {
		return err
	}
	replyv := reflect.New(mt.In(2).Elem())

	done := make(chan error, 1)
	go func() {
		out := m.Call([]reflect.Value{reflect.ValueOf(ctx), argv, replyv})
		err, _ := out[0].Interface().(error)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return errors.New(err.Error())
		}
	}
	return le.transfer(replyv.Interface(), reply)
}

func (le *LocalEnd) transfer(from, to interface{}) error {
	data, err := le.codec.Encode(from)
	if err != nil {
		return err
	}
	return le.codec.Decode(data, to)
}

func (le *LocalEnd) Close() {
}

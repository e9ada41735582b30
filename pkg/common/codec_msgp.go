package common

import (
	"fmt"

	"github.com/Allen1211/msgp/msgp"
)

// Wire types are encoded as msgpack arrays in field order.

func expectArray(dc *msgp.Reader, want uint32, name string) error {
	sz, err := dc.ReadArrayHeader()
	if err != nil {
		return err
	}
	if sz != want {
		return fmt.Errorf("%s: array of %d fields, want %d", name, sz, want)
	}
	return nil
}

func writeStrings(en *msgp.Writer, ss []string) error {
	if err := en.WriteArrayHeader(uint32(len(ss))); err != nil {
		return err
	}
	for _, s := range ss {
		if err := en.WriteString(s); err != nil {
			return err
		}
	}
	return nil
}

func readStrings(dc *msgp.Reader) ([]string, error) {
	sz, err := dc.ReadArrayHeader()
	if err != nil || sz == 0 {
		return nil, err
	}
	ss := make([]string, sz)
	for i := range ss {
		if ss[i], err = dc.ReadString(); err != nil {
			return nil, err
		}
	}
	return ss, nil
}

func readErr(dc *msgp.Reader) (Err, error) {
	s, err := dc.ReadString()
	return Err(s), err
}

func (z *FromReply) encode(en *msgp.Writer) error {
	if err := en.WriteInt(z.NodeId); err != nil {
		return err
	}
	return en.WriteString(z.ReplicaId)
}

func (z *FromReply) decode(dc *msgp.Reader) (err error) {
	if z.NodeId, err = dc.ReadInt(); err != nil {
		return
	}
	z.ReplicaId, err = dc.ReadString()
	return
}

func (z *BatchArgs) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(4); err != nil {
		return err
	}
	if err := en.WriteString(z.JobId); err != nil {
		return err
	}
	if err := en.WriteString(z.Kind); err != nil {
		return err
	}
	if err := en.WriteString(z.Filter); err != nil {
		return err
	}
	return en.WriteInt64(z.TimeoutMs)
}

func (z *BatchArgs) DecodeMsg(dc *msgp.Reader) (err error) {
	if err = expectArray(dc, 4, "BatchArgs"); err != nil {
		return
	}
	if z.JobId, err = dc.ReadString(); err != nil {
		return
	}
	if z.Kind, err = dc.ReadString(); err != nil {
		return
	}
	if z.Filter, err = dc.ReadString(); err != nil {
		return
	}
	z.TimeoutMs, err = dc.ReadInt64()
	return
}

func (z *BatchReply) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(7); err != nil {
		return err
	}
	if err := z.FromReply.encode(en); err != nil {
		return err
	}
	if err := en.WriteString(string(z.Err)); err != nil {
		return err
	}
	if err := en.WriteInt64(z.FilesProcessed); err != nil {
		return err
	}
	if err := writeStrings(en, z.FilesFailed); err != nil {
		return err
	}
	if err := en.WriteArrayHeader(uint32(len(z.Exceptions))); err != nil {
		return err
	}
	for _, e := range z.Exceptions {
		if err := en.WriteString(e.Filename); err != nil {
			return err
		}
		if err := en.WriteString(e.Cause); err != nil {
			return err
		}
	}
	return writeStrings(en, z.Lines)
}

func (z *BatchReply) DecodeMsg(dc *msgp.Reader) (err error) {
	if err = expectArray(dc, 7, "BatchReply"); err != nil {
		return
	}
	if err = z.FromReply.decode(dc); err != nil {
		return
	}
	if z.Err, err = readErr(dc); err != nil {
		return
	}
	if z.FilesProcessed, err = dc.ReadInt64(); err != nil {
		return
	}
	if z.FilesFailed, err = readStrings(dc); err != nil {
		return
	}
	var sz uint32
	if sz, err = dc.ReadArrayHeader(); err != nil {
		return
	}
	z.Exceptions = nil
	for i := uint32(0); i < sz; i++ {
		var e FileException
		if e.Filename, err = dc.ReadString(); err != nil {
			return
		}
		if e.Cause, err = dc.ReadString(); err != nil {
			return
		}
		z.Exceptions = append(z.Exceptions, e)
	}
	z.Lines, err = readStrings(dc)
	return
}

func (z *GetFileArgs) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(1); err != nil {
		return err
	}
	return en.WriteString(z.Filename)
}

func (z *GetFileArgs) DecodeMsg(dc *msgp.Reader) (err error) {
	if err = expectArray(dc, 1, "GetFileArgs"); err != nil {
		return
	}
	z.Filename, err = dc.ReadString()
	return
}

func (z *GetFileReply) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(5); err != nil {
		return err
	}
	if err := z.FromReply.encode(en); err != nil {
		return err
	}
	if err := en.WriteString(string(z.Err)); err != nil {
		return err
	}
	if err := en.WriteBytes(z.Data); err != nil {
		return err
	}
	return en.WriteString(z.Checksum)
}

func (z *GetFileReply) DecodeMsg(dc *msgp.Reader) (err error) {
	if err = expectArray(dc, 5, "GetFileReply"); err != nil {
		return
	}
	if err = z.FromReply.decode(dc); err != nil {
		return
	}
	if z.Err, err = readErr(dc); err != nil {
		return
	}
	if z.Data, err = dc.ReadBytes(nil); err != nil {
		return
	}
	z.Checksum, err = dc.ReadString()
	return
}

func (z *UploadArgs) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(3); err != nil {
		return err
	}
	if err := en.WriteString(z.Filename); err != nil {
		return err
	}
	if err := en.WriteBytes(z.Data); err != nil {
		return err
	}
	return en.WriteString(z.Checksum)
}

func (z *UploadArgs) DecodeMsg(dc *msgp.Reader) (err error) {
	if err = expectArray(dc, 3, "UploadArgs"); err != nil {
		return
	}
	if z.Filename, err = dc.ReadString(); err != nil {
		return
	}
	if z.Data, err = dc.ReadBytes(nil); err != nil {
		return
	}
	z.Checksum, err = dc.ReadString()
	return
}

func (z *UploadReply) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(3); err != nil {
		return err
	}
	if err := z.FromReply.encode(en); err != nil {
		return err
	}
	return en.WriteString(string(z.Err))
}

func (z *UploadReply) DecodeMsg(dc *msgp.Reader) (err error) {
	if err = expectArray(dc, 3, "UploadReply"); err != nil {
		return
	}
	if err = z.FromReply.decode(dc); err != nil {
		return
	}
	z.Err, err = readErr(dc)
	return
}

func (z *RemoveArgs) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(3); err != nil {
		return err
	}
	if err := en.WriteString(z.Filename); err != nil {
		return err
	}
	if err := en.WriteString(z.Checksum); err != nil {
		return err
	}
	return en.WriteString(z.Credentials)
}

func (z *RemoveArgs) DecodeMsg(dc *msgp.Reader) (err error) {
	if err = expectArray(dc, 3, "RemoveArgs"); err != nil {
		return
	}
	if z.Filename, err = dc.ReadString(); err != nil {
		return
	}
	if z.Checksum, err = dc.ReadString(); err != nil {
		return
	}
	z.Credentials, err = dc.ReadString()
	return
}

func (z *RemoveReply) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(4); err != nil {
		return err
	}
	if err := z.FromReply.encode(en); err != nil {
		return err
	}
	if err := en.WriteString(string(z.Err)); err != nil {
		return err
	}
	return en.WriteBytes(z.Data)
}

func (z *RemoveReply) DecodeMsg(dc *msgp.Reader) (err error) {
	if err = expectArray(dc, 4, "RemoveReply"); err != nil {
		return
	}
	if err = z.FromReply.decode(dc); err != nil {
		return
	}
	if z.Err, err = readErr(dc); err != nil {
		return
	}
	z.Data, err = dc.ReadBytes(nil)
	return
}

func (z *AdminArgs) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(7); err != nil {
		return err
	}
	if err := en.WriteString(z.Op); err != nil {
		return err
	}
	if err := en.WriteString(z.Replica); err != nil {
		return err
	}
	if err := writeStrings(en, z.Filenames); err != nil {
		return err
	}
	if err := en.WriteString(z.Checksum); err != nil {
		return err
	}
	if err := en.WriteString(z.Credentials); err != nil {
		return err
	}
	if err := writeStrings(en, z.Targets); err != nil {
		return err
	}
	return en.WriteBool(z.Success)
}

func (z *AdminArgs) DecodeMsg(dc *msgp.Reader) (err error) {
	if err = expectArray(dc, 7, "AdminArgs"); err != nil {
		return
	}
	if z.Op, err = dc.ReadString(); err != nil {
		return
	}
	if z.Replica, err = dc.ReadString(); err != nil {
		return
	}
	if z.Filenames, err = readStrings(dc); err != nil {
		return
	}
	if z.Checksum, err = dc.ReadString(); err != nil {
		return
	}
	if z.Credentials, err = dc.ReadString(); err != nil {
		return
	}
	if z.Targets, err = readStrings(dc); err != nil {
		return
	}
	z.Success, err = dc.ReadBool()
	return
}

func (z *FileOutcome) encode(en *msgp.Writer) error {
	if err := en.WriteString(z.Filename); err != nil {
		return err
	}
	if err := en.WriteString(string(z.Err)); err != nil {
		return err
	}
	if err := en.WriteString(z.Cause); err != nil {
		return err
	}
	return en.WriteString(z.Phase)
}

func (z *FileOutcome) decode(dc *msgp.Reader) (err error) {
	if z.Filename, err = dc.ReadString(); err != nil {
		return
	}
	if z.Err, err = readErr(dc); err != nil {
		return
	}
	if z.Cause, err = dc.ReadString(); err != nil {
		return
	}
	z.Phase, err = dc.ReadString()
	return
}

func writeOutcomes(en *msgp.Writer, outcomes []FileOutcome) error {
	if err := en.WriteArrayHeader(uint32(len(outcomes))); err != nil {
		return err
	}
	for i := range outcomes {
		if err := outcomes[i].encode(en); err != nil {
			return err
		}
	}
	return nil
}

func readOutcomes(dc *msgp.Reader) ([]FileOutcome, error) {
	sz, err := dc.ReadArrayHeader()
	if err != nil || sz == 0 {
		return nil, err
	}
	outcomes := make([]FileOutcome, sz)
	for i := range outcomes {
		if err := outcomes[i].decode(dc); err != nil {
			return nil, err
		}
	}
	return outcomes, nil
}

func (z *Report) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(5); err != nil {
		return err
	}
	if err := en.WriteString(z.Operation); err != nil {
		return err
	}
	if err := en.WriteString(z.Replica); err != nil {
		return err
	}
	if err := writeStrings(en, z.Succeeded); err != nil {
		return err
	}
	if err := writeOutcomes(en, z.Failed); err != nil {
		return err
	}
	return writeOutcomes(en, z.Skipped)
}

func (z *Report) DecodeMsg(dc *msgp.Reader) (err error) {
	if err = expectArray(dc, 5, "Report"); err != nil {
		return
	}
	if z.Operation, err = dc.ReadString(); err != nil {
		return
	}
	if z.Replica, err = dc.ReadString(); err != nil {
		return
	}
	if z.Succeeded, err = readStrings(dc); err != nil {
		return
	}
	if z.Failed, err = readOutcomes(dc); err != nil {
		return
	}
	z.Skipped, err = readOutcomes(dc)
	return
}

func (z *FileStateRes) encode(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(5); err != nil {
		return err
	}
	if err := en.WriteString(z.Filename); err != nil {
		return err
	}
	if err := en.WriteBool(z.Found); err != nil {
		return err
	}
	if err := en.WriteString(z.Checksum); err != nil {
		return err
	}
	if err := en.WriteInt64(z.Edition); err != nil {
		return err
	}
	if err := en.WriteArrayHeader(uint32(len(z.Replicas))); err != nil {
		return err
	}
	for _, r := range z.Replicas {
		for _, s := range []string{r.ReplicaId, r.State, r.ListStatus, r.ChecksumStatus, r.Observed} {
			if err := en.WriteString(s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (z *FileStateRes) decode(dc *msgp.Reader) (err error) {
	if err = expectArray(dc, 5, "FileStateRes"); err != nil {
		return
	}
	if z.Filename, err = dc.ReadString(); err != nil {
		return
	}
	if z.Found, err = dc.ReadBool(); err != nil {
		return
	}
	if z.Checksum, err = dc.ReadString(); err != nil {
		return
	}
	if z.Edition, err = dc.ReadInt64(); err != nil {
		return
	}
	var sz uint32
	if sz, err = dc.ReadArrayHeader(); err != nil {
		return
	}
	z.Replicas = nil
	for i := uint32(0); i < sz; i++ {
		var r ReplicaStateRes
		for _, p := range []*string{&r.ReplicaId, &r.State, &r.ListStatus, &r.ChecksumStatus, &r.Observed} {
			if *p, err = dc.ReadString(); err != nil {
				return
			}
		}
		z.Replicas = append(z.Replicas, r)
	}
	return
}

func (z *ReplicaRes) encode(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(5); err != nil {
		return err
	}
	if err := en.WriteString(z.Id); err != nil {
		return err
	}
	if err := en.WriteString(z.Name); err != nil {
		return err
	}
	if err := en.WriteString(z.Kind); err != nil {
		return err
	}
	if err := en.WriteBool(z.Reference); err != nil {
		return err
	}
	return en.WriteInt(z.Nodes)
}

func (z *ReplicaRes) decode(dc *msgp.Reader) (err error) {
	if err = expectArray(dc, 5, "ReplicaRes"); err != nil {
		return
	}
	if z.Id, err = dc.ReadString(); err != nil {
		return
	}
	if z.Name, err = dc.ReadString(); err != nil {
		return
	}
	if z.Kind, err = dc.ReadString(); err != nil {
		return
	}
	if z.Reference, err = dc.ReadBool(); err != nil {
		return
	}
	z.Nodes, err = dc.ReadInt()
	return
}

func (z *AdminReply) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(8); err != nil {
		return err
	}
	if err := en.WriteString(string(z.Err)); err != nil {
		return err
	}
	if err := en.WriteString(z.Cause); err != nil {
		return err
	}
	if err := writeStrings(en, z.Files); err != nil {
		return err
	}
	if err := en.WriteInt64(z.Count); err != nil {
		return err
	}
	if err := en.WriteInt64(z.Timestamp); err != nil {
		return err
	}
	if err := en.WriteArrayHeader(uint32(len(z.States))); err != nil {
		return err
	}
	for i := range z.States {
		if err := z.States[i].encode(en); err != nil {
			return err
		}
	}
	if err := z.Report.EncodeMsg(en); err != nil {
		return err
	}
	if err := en.WriteArrayHeader(uint32(len(z.Replicas))); err != nil {
		return err
	}
	for i := range z.Replicas {
		if err := z.Replicas[i].encode(en); err != nil {
			return err
		}
	}
	return nil
}

func (z *AdminReply) DecodeMsg(dc *msgp.Reader) (err error) {
	if err = expectArray(dc, 8, "AdminReply"); err != nil {
		return
	}
	if z.Err, err = readErr(dc); err != nil {
		return
	}
	if z.Cause, err = dc.ReadString(); err != nil {
		return
	}
	if z.Files, err = readStrings(dc); err != nil {
		return
	}
	if z.Count, err = dc.ReadInt64(); err != nil {
		return
	}
	if z.Timestamp, err = dc.ReadInt64(); err != nil {
		return
	}
	var sz uint32
	if sz, err = dc.ReadArrayHeader(); err != nil {
		return
	}
	z.States = nil
	for i := uint32(0); i < sz; i++ {
		var s FileStateRes
		if err = s.decode(dc); err != nil {
			return
		}
		z.States = append(z.States, s)
	}
	if err = z.Report.DecodeMsg(dc); err != nil {
		return
	}
	if sz, err = dc.ReadArrayHeader(); err != nil {
		return
	}
	z.Replicas = nil
	for i := uint32(0); i < sz; i++ {
		var r ReplicaRes
		if err = r.decode(dc); err != nil {
			return
		}
		z.Replicas = append(z.Replicas, r)
	}
	return
}

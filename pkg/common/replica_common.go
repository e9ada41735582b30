package common

// Messages exchanged between the gateway and the storage nodes of a replica.

type FromReply struct {
	NodeId    int
	ReplicaId string
}

type BatchArgs struct {
	JobId     string
	Kind      string
	Filter    string
	TimeoutMs int64
}

type FileException struct {
	Filename string
	Cause    string
}

type BatchReply struct {
	FromReply
	Err            Err
	FilesProcessed int64
	FilesFailed    []string
	Exceptions     []FileException
	Lines          []string
}

type GetFileArgs struct {
	Filename string
}

type GetFileReply struct {
	FromReply
	Err      Err
	Data     []byte
	Checksum string
}

type UploadArgs struct {
	Filename string
	Data     []byte
	Checksum string
}

type UploadReply struct {
	FromReply
	Err Err
}

// RemoveArgs asks a node to remove its copy of a file, which it only does
// when both the credentials and the current checksum match.
type RemoveArgs struct {
	Filename    string
	Checksum    string
	Credentials string
}

type RemoveReply struct {
	FromReply
	Err  Err
	Data []byte
}

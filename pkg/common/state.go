package common

import (
	"fmt"
	"strings"
)

type ReplicaKind int

const (
	BitarchiveReplica ReplicaKind = iota
	ChecksumReplica
)

func (k ReplicaKind) String() string {
	switch k {
	case BitarchiveReplica: return "Bitarchive"
	case ChecksumReplica:   return "Checksum"
	}
	return ""
}

func ParseReplicaKind(s string) (ReplicaKind, error) {
	switch strings.ToLower(s) {
	case "bitarchive", "bitarchive_replica", "":
		return BitarchiveReplica, nil
	case "checksum", "checksum_replica":
		return ChecksumReplica, nil
	}
	return 0, fmt.Errorf("unknown replica kind %q", s)
}

// ReplicaStoreState is the upload state of one file on one replica as
// recorded in the ledger.
type ReplicaStoreState int

const (
	UploadStateUnknown ReplicaStoreState = iota
	UploadStarted
	UploadCompleted
	UploadFailed
)

func (s ReplicaStoreState) String() string {
	switch s {
	case UploadStateUnknown: return "Unknown"
	case UploadStarted:      return "UploadStarted"
	case UploadCompleted:    return "UploadCompleted"
	case UploadFailed:       return "UploadFailed"
	}
	return ""
}

func (s ReplicaStoreState) Valid() bool {
	return s == UploadStarted || s == UploadCompleted || s == UploadFailed
}

// Terminal reports whether s is an upload outcome.
func (s ReplicaStoreState) Terminal() bool {
	return s == UploadCompleted || s == UploadFailed
}

func ParseReplicaStoreState(str string) (ReplicaStoreState, error) {
	switch strings.ToLower(str) {
	case "uploadstarted", "started":
		return UploadStarted, nil
	case "uploadcompleted", "completed", "ok":
		return UploadCompleted, nil
	case "uploadfailed", "failed":
		return UploadFailed, nil
	}
	return UploadStateUnknown, fmt.Errorf("unknown replica store state %q", str)
}

// FileListStatus is whether the last list scan of a replica saw a file.
type FileListStatus int

const (
	NoFileListStatus FileListStatus = iota
	FileListMissing
	FileListOK
)

func (s FileListStatus) String() string {
	switch s {
	case NoFileListStatus: return "NoStatus"
	case FileListMissing:  return "Missing"
	case FileListOK:       return "OK"
	}
	return ""
}

// ChecksumStatus is whether the last checksum scan of a replica agreed with
// the ledger for a file.
type ChecksumStatus int

const (
	ChecksumUnknown ChecksumStatus = iota
	ChecksumCorrupt
	ChecksumOK
)

func (s ChecksumStatus) String() string {
	switch s {
	case ChecksumUnknown: return "Unknown"
	case ChecksumCorrupt: return "Corrupt"
	case ChecksumOK:      return "OK"
	}
	return ""
}

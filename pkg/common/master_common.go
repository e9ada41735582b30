package common

// Admin operations served by the preservation master.
const (
	OpFindMissing    = "find_missing"
	OpFindChanged    = "find_changed"
	OpGetMissing     = "missing"
	OpGetChanged     = "changed"
	OpCountMissing   = "count_missing"
	OpCountChanged   = "count_changed"
	OpCountFiles     = "count_files"
	OpDateMissing    = "date_missing"
	OpDateChanged    = "date_changed"
	OpStateMap       = "state"
	OpAdminMissing   = "admin_missing"
	OpAdminChanged   = "admin_changed"
	OpUploadMissing  = "upload_missing"
	OpReplaceChanged = "replace_changed"
	OpAddToAdmin     = "add_to_admin"
	OpChangeState    = "change_state"
	OpCreateEntry    = "create"
	OpNotifyUpload   = "notify"
	OpShowReplicas   = "replicas"
)

type AdminArgs struct {
	Op          string
	Replica     string
	Filenames   []string
	Checksum    string
	Credentials string
	Targets     []string
	Success     bool
}

type AdminReply struct {
	Err       Err
	Cause     string
	Files     []string
	Count     int64
	Timestamp int64
	States    []FileStateRes
	Report    Report
	Replicas  []ReplicaRes
}

type FileStateRes struct {
	Filename string
	Found    bool
	Checksum string
	Edition  int64
	Replicas []ReplicaStateRes
}

type ReplicaStateRes struct {
	ReplicaId      string
	State          string
	ListStatus     string
	ChecksumStatus string
	Observed       string
}

type ReplicaRes struct {
	Id        string
	Name      string
	Kind      string
	Reference bool
	Nodes     int
}

// FileOutcome is the result of a repair or reconciliation step on one file.
type FileOutcome struct {
	Filename string
	Err      Err
	Cause    string
	// Phase is the repair step the file stopped in.
	Phase string
}

// Report summarizes a repair or reconciliation operation.
type Report struct {
	Operation string
	Replica   string
	Succeeded []string
	Failed    []FileOutcome
	Skipped   []FileOutcome
}

func (r *Report) Succeed(filename string) {
	r.Succeeded = append(r.Succeeded, filename)
}

func (r *Report) Fail(filename, phase string, err error) {
	r.Failed = append(r.Failed, FileOutcome{Filename: filename, Err: ToErr(err), Cause: errCause(err), Phase: phase})
}

func (r *Report) Skip(filename, phase string, err error) {
	r.Skipped = append(r.Skipped, FileOutcome{Filename: filename, Err: ToErr(err), Cause: errCause(err), Phase: phase})
}

func errCause(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

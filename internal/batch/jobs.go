package batch

import (
	"fmt"
	"strings"
)

const (
	KindFileList = "FileList"
	KindChecksum = "Checksum"
)

// ChecksumSeparator splits filename and checksum in a checksum job line.
const ChecksumSeparator = "##"

func init() {
	Register(KindFileList, func(filter string) Job { return NewFileListJob(filter) })
	Register(KindChecksum, func(filter string) Job { return NewChecksumJob(filter) })
}

type baseJob struct {
	filter string
}

func (j baseJob) Filter() string {
	if j.filter == "" {
		return MatchAll
	}
	return j.filter
}

// FileListJob reports the name of every file present.
type FileListJob struct {
	baseJob
}

func NewFileListJob(filter string) *FileListJob {
	return &FileListJob{baseJob{filter}}
}

func (j *FileListJob) Kind() string { return KindFileList }

func (j *FileListJob) Process(filename string, files FileAccess) (string, error) {
	return filename, nil
}

// ChecksumJob reports filename##checksum for every file present.
type ChecksumJob struct {
	baseJob
}

func NewChecksumJob(filter string) *ChecksumJob {
	return &ChecksumJob{baseJob{filter}}
}

func (j *ChecksumJob) Kind() string { return KindChecksum }

func (j *ChecksumJob) Process(filename string, files FileAccess) (string, error) {
	sum, err := files.Checksum(filename)
	if err != nil {
		return "", err
	}
	return ChecksumLine(filename, sum), nil
}

func ChecksumLine(filename, checksum string) string {
	return filename + ChecksumSeparator + checksum
}

func ParseChecksumLine(line string) (filename, checksum string, err error) {
	i := strings.LastIndex(line, ChecksumSeparator)
	if i <= 0 || i+len(ChecksumSeparator) == len(line) {
		return "", "", fmt.Errorf("malformed checksum line %q", line)
	}
	return line[:i], line[i+len(ChecksumSeparator):], nil
}

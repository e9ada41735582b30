package batch

import (
	"sort"

	"github.com/allen1211/bitpres/pkg/common"
)

// Run executes job over files on the node holding them. A failing file is
// recorded and the run moves on.
func Run(job Job, files FileAccess) *common.BatchReply {
	reply := &common.BatchReply{Err: common.OK}

	re, err := compileFilter(job.Filter())
	if err != nil {
		reply.Err = common.ErrBadArgs
		reply.Exceptions = append(reply.Exceptions, common.FileException{Cause: err.Error()})
		return reply
	}
	names, err := files.Filenames()
	if err != nil {
		reply.Err = common.ErrFailed
		reply.Exceptions = append(reply.Exceptions, common.FileException{Cause: err.Error()})
		return reply
	}
	sort.Strings(names)

	for _, name := range names {
		if !re.MatchString(name) {
			continue
		}
		reply.FilesProcessed++
		line, err := job.Process(name, files)
		if err != nil {
			reply.FilesFailed = append(reply.FilesFailed, name)
			reply.Exceptions = append(reply.Exceptions, common.FileException{Filename: name, Cause: err.Error()})
			continue
		}
		reply.Lines = append(reply.Lines, line)
	}
	if len(reply.FilesFailed) > 0 {
		reply.Err = common.ErrPartialBatchFailure
	}
	return reply
}

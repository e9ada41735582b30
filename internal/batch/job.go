package batch

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/allen1211/bitpres/pkg/common"
)

// DefaultTimeout bounds a whole batch run; full scans of large archives take days.
const DefaultTimeout = 14 * 24 * time.Hour

const MatchAll = ".*"

// FileAccess is what a job sees of the replica it runs on.
type FileAccess interface {
	Filenames() ([]string, error)
	Checksum(filename string) (string, error)
}

// Job is a unit of work run over every matching file of a replica. Process
// returns one result line per file.
type Job interface {
	Kind() string
	Filter() string
	Process(filename string, files FileAccess) (string, error)
}

type Factory func(filter string) Job

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a job kind available to FromArgs.
func Register(kind string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[kind] = f
}

func Kinds() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	res := make([]string, 0, len(factories))
	for k := range factories {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

// FromArgs rebuilds a job from its wire form.
func FromArgs(args *common.BatchArgs) (Job, error) {
	factoriesMu.RLock()
	f, ok := factories[args.Kind]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown batch job kind %q: %w", args.Kind, common.ErrBadArgs)
	}
	if _, err := compileFilter(args.Filter); err != nil {
		return nil, fmt.Errorf("bad filter %q: %v: %w", args.Filter, err, common.ErrBadArgs)
	}
	return f(args.Filter), nil
}

func ToArgs(job Job, jobId string, timeout time.Duration) *common.BatchArgs {
	return &common.BatchArgs{
		JobId:     jobId,
		Kind:      job.Kind(),
		Filter:    job.Filter(),
		TimeoutMs: timeout.Milliseconds(),
	}
}

func compileFilter(filter string) (*regexp.Regexp, error) {
	if filter == "" {
		filter = MatchAll
	}
	return regexp.Compile("^(?:" + filter + ")$")
}

// FilterFor builds a filter matching exactly the given filenames.
func FilterFor(filenames ...string) string {
	if len(filenames) == 0 {
		return MatchAll
	}
	quoted := make([]string, len(filenames))
	for i, f := range filenames {
		quoted[i] = regexp.QuoteMeta(f)
	}
	sort.Strings(quoted)
	res := quoted[0]
	for _, q := range quoted[1:] {
		res += "|" + q
	}
	return res
}

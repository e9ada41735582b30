package client

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/liushuochen/gotable"
	"github.com/liushuochen/gotable/cell"

	"github.com/allen1211/bitpres/pkg/common"
)

type Operation string

const (
	NoOp           = ""
	OpReplicas     = "replicas"
	OpFindMissing  = "find_missing"
	OpFindChanged  = "find_changed"
	OpMissing      = "missing"
	OpChanged      = "changed"
	OpCount        = "count"
	OpState        = "state"
	OpAdminMissing = "admin_missing"
	OpAdminChanged = "admin_changed"
	OpUpload       = "upload"
	OpReplace      = "replace"
	OpAddAdmin     = "add_admin"
	OpChangeState  = "change_state"
	OpCreate       = "create"
	OpNotify       = "notify"

	OpHelp = "help"
	OpQuit = "quit"
)

type OpDesc struct {
	argc  int
	usage string
	desc  string
}

var opMap = map[string]OpDesc{
	NoOp:           {0, "", ""},
	OpReplicas:     {0, "replicas", "list the configured replicas"},
	OpFindMissing:  {1, "find_missing [replica]", "scan a replica for files it should hold but lacks"},
	OpFindChanged:  {1, "find_changed [replica]", "scan a replica for files whose checksum differs from the ledger"},
	OpMissing:      {1, "missing [replica]", "show the missing files found by the last scan"},
	OpChanged:      {1, "changed [replica]", "show the changed files found by the last scan"},
	OpCount:        {2, "count [missing|changed|files] [replica]", "count files of the last scan"},
	OpState:        {1, "state [file0] [file1]...", "show the preservation state of files"},
	OpAdminMissing: {0, "admin_missing", "files held by a replica but unknown to the ledger"},
	OpAdminChanged: {0, "admin_changed", "files whose ledger entry disagrees with the replicas"},
	OpUpload:       {1, "upload [replica] [file0]...", "copy missing files from the reference replica"},
	OpReplace:      {4, "replace [replica] [file] [credentials] [bad checksum]", "replace a corrupt copy with the reference copy"},
	OpAddAdmin:     {0, "add_admin [file0]...", "add files unknown to the ledger"},
	OpChangeState:  {1, "change_state [file]", "recompute the ledger states of a file from the last scans"},
	OpCreate:       {3, "create [file] [checksum] [replica0]...", "record a new file in the ledger"},
	OpNotify:       {3, "notify [file] [replica] [ok|failed]", "record the outcome of an upload"},
	OpQuit:         {0, "quit", "exit"},
	OpHelp:         {0, "help", "print this guide"},
}

var guideOrder = []Operation{OpHelp, OpQuit, OpReplicas, OpFindMissing, OpFindChanged, OpMissing, OpChanged,
	OpCount, OpState, OpAdminMissing, OpAdminChanged, OpUpload, OpReplace, OpAddAdmin, OpChangeState,
	OpCreate, OpNotify}

type ConsoleClient struct {
	api API

	stdin  *bufio.Scanner
	stdout *bufio.Writer
}

func MakeConsoleClient(api API, in *bufio.Scanner, out *bufio.Writer) *ConsoleClient {
	if in == nil {
		in = bufio.NewScanner(os.Stdin)
	}
	if out == nil {
		out = bufio.NewWriter(os.Stdout)
	}
	return &ConsoleClient{
		api:    api,
		stdin:  in,
		stdout: out,
	}
}

// Start reads commands until quit or the end of input.
func (cc *ConsoleClient) Start() {
	printUserGuide(cc.stdout)

	_, _ = cc.stdout.WriteString("\n" + cc.slash())
	_ = cc.stdout.Flush()
	for cc.stdin.Scan() {
		op, args, err := cc.parseInput(cc.stdin.Text())
		if err != nil {
			cc.output(err.Error())
			continue
		}
		if op == OpQuit {
			return
		}
		cc.process(context.Background(), op, args)
	}
}

func (cc *ConsoleClient) process(ctx context.Context, op Operation, args []string) {
	opDesc := opMap[string(op)]

	if len(args) < opDesc.argc {
		cc.output(
			fmt.Sprintf("not enough arguments for operation %s, require: %d, given: %d", op, opDesc.argc, len(args)),
			opDesc.usage,
		)
		return
	}

	switch op {

	case NoOp:
		cc.output()
	case OpHelp:
		printUserGuide(cc.stdout)
		cc.output()

	case OpReplicas:
		replicas, err := cc.api.ShowReplicas(ctx)
		if err != nil {
			cc.output(err.Error())
			return
		}
		cc.printReplicas(replicas)
		cc.output()

	case OpFindMissing, OpFindChanged:
		find := cc.api.FindMissingFiles
		if op == OpFindChanged {
			find = cc.api.FindChangedFiles
		}
		files, err := find(ctx, args[0])
		if err != nil {
			cc.output(err.Error())
			return
		}
		cc.printFiles(files, time.Now())
		cc.output()

	case OpMissing, OpChanged:
		get := cc.api.GetMissingFiles
		if op == OpChanged {
			get = cc.api.GetChangedFiles
		}
		files, date, err := get(ctx, args[0])
		if err != nil {
			cc.output(err.Error())
			return
		}
		cc.printFiles(files, date)
		cc.output()

	case OpCount:
		var n int64
		var err error
		switch args[0] {
		case "missing":
			n, err = cc.api.GetNumberOfMissingFiles(ctx, args[1])
		case "changed":
			n, err = cc.api.GetNumberOfChangedFiles(ctx, args[1])
		case "files":
			n, err = cc.api.GetNumberOfFiles(ctx, args[1])
		default:
			cc.output(fmt.Sprintf("unsupported count of \"%s\"", args[0]), opDesc.usage)
			return
		}
		if err != nil {
			cc.output(err.Error())
			return
		}
		cc.output(strconv.FormatInt(n, 10))

	case OpState:
		states, err := cc.api.GetPreservationStateMap(ctx, args...)
		if err != nil {
			cc.output(err.Error())
			return
		}
		cc.printStates(states)
		cc.output()

	case OpAdminMissing, OpAdminChanged:
		list := cc.api.GetMissingFilesForAdminData
		if op == OpAdminChanged {
			list = cc.api.GetChangedFilesForAdminData
		}
		files, err := list(ctx)
		if err != nil {
			cc.output(err.Error())
			return
		}
		cc.printFiles(files, time.Time{})
		cc.output()

	case OpUpload:
		cc.printReport(cc.api.UploadMissingFiles(ctx, args[0], args[1:]...))
	case OpReplace:
		cc.printReport(cc.api.ReplaceChangedFile(ctx, args[0], args[1], args[2], args[3]))
	case OpAddAdmin:
		cc.printReport(cc.api.AddMissingFilesToAdminData(ctx, args...))
	case OpChangeState:
		cc.printReport(cc.api.ChangeStateForAdminData(ctx, args[0]))

	case OpCreate:
		err := cc.api.CreateEntry(ctx, args[0], args[1], args[2:])
		cc.output(string(common.ToErr(err)))

	case OpNotify:
		st, err := common.ParseReplicaStoreState(args[2])
		if err != nil || !st.Terminal() {
			cc.output(fmt.Sprintf("argument [ok|failed] parse error: %q", args[2]))
			return
		}
		err = cc.api.NotifyUpload(ctx, args[0], args[1], st == common.UploadCompleted)
		cc.output(string(common.ToErr(err)))
	}
}

func (cc *ConsoleClient) output(lines ...string) {
	for _, line := range lines {
		_, _ = cc.stdout.WriteString(line)
		_, _ = cc.stdout.WriteString("\n")
	}
	if len(lines) == 0 {
		_, _ = cc.stdout.WriteString("\n")
	}
	_, _ = cc.stdout.WriteString(cc.slash())
	_ = cc.stdout.Flush()
}

// parseInput lowers only the operation, filenames and checksums keep their case.
func (cc *ConsoleClient) parseInput(line string) (op Operation, args []string, err error) {
	ss := strings.Fields(line)
	if len(ss) == 0 {
		return NoOp, nil, nil
	}
	opStr := strings.ToLower(ss[0])
	if _, ok := opMap[opStr]; !ok {
		return NoOp, nil, fmt.Errorf("unsupported operation: %s", opStr)
	}
	return Operation(opStr), ss[1:], nil
}

func (cc *ConsoleClient) slash() string {
	return "> "
}

func printUserGuide(stdout *bufio.Writer) {
	cols := []string{"cmd", "usage", "describe"}

	table, err := gotable.Create(cols...)
	if err != nil {
		panic(err)
	}
	for _, col := range cols {
		table.Align(col, cell.AlignLeft)
	}
	table.CloseBorder()

	for _, op := range guideOrder {
		opDesc := opMap[string(op)]
		if err := table.AddRow([]string{string(op), opDesc.usage, opDesc.desc}); err != nil {
			panic(err)
		}
	}
	_, _ = stdout.WriteString("----------BITPRES ADMIN GUIDE----------\n")
	_, _ = stdout.WriteString(table.String())
	_ = stdout.Flush()
}

func (cc *ConsoleClient) printReplicas(replicas []common.ReplicaRes) {
	table, err := gotable.Create("Id", "Name", "Kind", "Reference", "Nodes")
	if err != nil {
		panic(err)
	}
	for _, r := range replicas {
		row := []string{r.Id, r.Name, r.Kind, strconv.FormatBool(r.Reference), strconv.Itoa(r.Nodes)}
		if err := table.AddRow(row); err != nil {
			panic(err)
		}
	}
	_, _ = cc.stdout.WriteString(table.String())
}

func (cc *ConsoleClient) printFiles(files []string, date time.Time) {
	if !date.IsZero() {
		_, _ = cc.stdout.WriteString(fmt.Sprintf("Scanned at %s\n", date.Format("2006/01/02 15:04:05")))
	}
	_, _ = cc.stdout.WriteString(fmt.Sprintf("%d file(s)\n", len(files)))
	for _, f := range files {
		_, _ = cc.stdout.WriteString(f + "\n")
	}
}

func (cc *ConsoleClient) printStates(states []common.FileStateRes) {
	table, err := gotable.Create("File", "Checksum", "Replica", "State", "Listed", "Checksummed", "Observed")
	if err != nil {
		panic(err)
	}
	for _, st := range states {
		if !st.Found {
			if err := table.AddRow([]string{st.Filename, "-", "-", "not in ledger", "-", "-", "-"}); err != nil {
				panic(err)
			}
			continue
		}
		for _, r := range st.Replicas {
			row := []string{st.Filename, st.Checksum, r.ReplicaId, r.State, r.ListStatus, r.ChecksumStatus, r.Observed}
			if err := table.AddRow(row); err != nil {
				panic(err)
			}
		}
	}
	_, _ = cc.stdout.WriteString(table.String())
}

func (cc *ConsoleClient) printReport(report *common.Report, err error) {
	if report == nil {
		cc.output(err.Error())
		return
	}
	table, terr := gotable.Create("File", "Result", "Phase", "Cause")
	if terr != nil {
		panic(terr)
	}
	for _, f := range report.Succeeded {
		if err := table.AddRow([]string{f, string(common.OK), "Repaired", ""}); err != nil {
			panic(err)
		}
	}
	for _, outcomes := range [][]common.FileOutcome{report.Failed, report.Skipped} {
		for _, o := range outcomes {
			if err := table.AddRow([]string{o.Filename, string(o.Err), o.Phase, o.Cause}); err != nil {
				panic(err)
			}
		}
	}
	_, _ = cc.stdout.WriteString(fmt.Sprintf("%s %s: %d succeeded, %d failed, %d skipped\n", report.Operation,
		report.Replica, len(report.Succeeded), len(report.Failed), len(report.Skipped)))
	_, _ = cc.stdout.WriteString(table.String())
	cc.output()
}

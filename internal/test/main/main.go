package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/allen1211/bitpres/internal/test"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		fmt.Printf("%s [perf/...]\n", args[0])
		os.Exit(1)
	}
	program := args[1]
	if program == "perf" {
		runPerformanceTest(args[2:])
	} else {
		fmt.Printf("%s [perf/...]\n", args[0])
		os.Exit(1)
	}
}

func runPerformanceTest(args []string) {
	var total, threads, rounds, page int
	var master, testFunc string
	flagSet := flag.NewFlagSet("perf", flag.ExitOnError)
	flagSet.StringVar(&master, "master", "", "master server address")
	flagSet.IntVar(&total, "total", -1, "number of ledger entries")
	flagSet.IntVar(&threads, "thread", 1, "number of test threads")
	flagSet.IntVar(&rounds, "rounds", 16, "number of replica scans")
	flagSet.IntVar(&page, "page", 100, "filenames per state map request")
	flagSet.StringVar(&testFunc, "test", "", "prepare/ingest/scan/state")
	_ = flagSet.Parse(args)

	if master == "" {
		fmt.Printf("require argument master\n")
		os.Exit(1)
	}
	if testFunc == "" {
		fmt.Printf("require test function: prepare, ingest, scan or state\n")
		os.Exit(1)
	}

	performanceTest, err := test.MakePerformanceTest(master, threads, total)
	if err != nil {
		fmt.Printf("cannot reach master %s: %v\n", master, err)
		os.Exit(1)
	}
	defer performanceTest.Close()

	switch testFunc {
	case "prepare":
		performanceTest.Prepare()
	case "ingest":
		performanceTest.TestIngest()
	case "scan":
		performanceTest.TestScan(rounds)
	case "state":
		performanceTest.TestStateMap(page)
	default:
		fmt.Printf("unknown test function %s\n", testFunc)
	}
}

package test

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/allen1211/bitpres/pkg/client"
	"github.com/allen1211/bitpres/pkg/client/etc"
	"github.com/allen1211/bitpres/pkg/common/utils"
)

const (
	defaultTotal = 1 << 12
)

// PerformanceTest drives a running master with several clients at once. The
// ledger entries it creates are named perf-<n>.warc.
type PerformanceTest struct {
	master   string
	threads  int
	total    int
	replicas []string
	clients  []client.API
}

func MakePerformanceTest(master string, threads, total int) (*PerformanceTest, error) {
	if total == -1 {
		total = defaultTotal
	}
	if threads <= 0 {
		threads = 1
	}
	pt := &PerformanceTest{
		master:  master,
		threads: threads,
		total:   total,
		clients: make([]client.API, threads),
	}
	conf := etc.MakeDefaultConfig()
	conf.Master = master
	for i := 0; i < pt.threads; i++ {
		ck, err := client.MakeBitPresClient(conf)
		if err != nil {
			pt.Close()
			return nil, err
		}
		pt.clients[i] = ck
	}

	replicas, err := pt.clients[0].ShowReplicas(context.Background())
	if err != nil {
		pt.Close()
		return nil, err
	}
	for _, r := range replicas {
		pt.replicas = append(pt.replicas, r.Id)
	}
	if len(pt.replicas) == 0 {
		pt.Close()
		return nil, fmt.Errorf("master %s reports no replicas", master)
	}
	return pt, nil
}

func (pt *PerformanceTest) Close() {
	for _, ck := range pt.clients {
		if ck != nil {
			ck.Close()
		}
	}
}

func perfFilename(i int) string {
	return fmt.Sprintf("perf-%d.warc", i)
}

// split runs fn over [0, total) with the range cut into one slice per thread.
func (pt *PerformanceTest) split(total int, fn func(ck client.API, from, to int)) {
	from, to := 0, total/pt.threads+total%pt.threads
	var wg sync.WaitGroup
	for j := 0; j < pt.threads; j++ {
		wg.Add(1)
		go func(ck client.API, from, to int) {
			defer wg.Done()
			fn(ck, from, to)
		}(pt.clients[j], from, to)
		from = to
		to += total / pt.threads
	}
	wg.Wait()
}

// Prepare fills the ledger with entries expected on every replica.
func (pt *PerformanceTest) Prepare() {
	pt.split(pt.total, func(ck client.API, from, to int) {
		for i := from; i < to; i++ {
			sum := utils.Checksum(randBytes(64))
			if err := ck.CreateEntry(context.Background(), perfFilename(i), sum, pt.replicas); err != nil {
				fmt.Println(err)
			}
		}
	})
}

// TestIngest measures ledger writes: one entry creation followed by an
// upload notification per replica.
func (pt *PerformanceTest) TestIngest() {
	stat := MakePerformanceStat()
	go stat.run()
	pt.split(pt.total, func(ck client.API, from, to int) {
		for i := from; i < to; i++ {
			ctx := context.Background()
			name := fmt.Sprintf("ingest-%d-%d.warc", time.Now().UnixNano(), i)
			begin := time.Now()
			err := ck.CreateEntry(ctx, name, utils.Checksum(randBytes(64)), pt.replicas)
			for _, r := range pt.replicas {
				if err != nil {
					break
				}
				err = ck.NotifyUpload(ctx, name, r, true)
			}
			if err != nil {
				fmt.Println(err)
				stat.incrFail()
				continue
			}
			stat.incrSuccess(1, time.Since(begin).Nanoseconds())
		}
	})
	stat.stop()
}

// TestScan runs rounds list and checksum scans over all replicas.
func (pt *PerformanceTest) TestScan(rounds int) {
	stat := MakePerformanceStat()
	go stat.run()
	pt.split(rounds, func(ck client.API, from, to int) {
		for i := from; i < to; i++ {
			replica := pt.replicas[i%len(pt.replicas)]
			ctx := context.Background()
			begin := time.Now()
			_, err := ck.FindMissingFiles(ctx, replica)
			if err == nil {
				_, err = ck.FindChangedFiles(ctx, replica)
			}
			if err != nil {
				fmt.Printf("scan %s: %v\n", replica, err)
				stat.incrFail()
				continue
			}
			n, err := ck.GetNumberOfFiles(ctx, replica)
			if err != nil {
				n = 0
			}
			stat.incrSuccess(n, time.Since(begin).Nanoseconds())
		}
	})
	stat.stop()
}

// TestStateMap reads preservation states of the prepared entries in pages.
func (pt *PerformanceTest) TestStateMap(page int) {
	if page <= 0 {
		page = 100
	}
	stat := MakePerformanceStat()
	go stat.run()
	pt.split(pt.total, func(ck client.API, from, to int) {
		for i := from; i < to; i += page {
			names := make([]string, 0, page)
			for k := i; k < to && k < i+page; k++ {
				names = append(names, perfFilename(k))
			}
			begin := time.Now()
			states, err := ck.GetPreservationStateMap(context.Background(), names...)
			if err != nil {
				fmt.Println(err)
				stat.incrFail()
				continue
			}
			found := 0
			for _, st := range states {
				if st.Found {
					found++
				}
			}
			stat.incrSuccess(int64(found), time.Since(begin).Nanoseconds())
		}
	})
	stat.stop()
}

func randBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = crand.Read(b)
	return b
}

// PerformanceStat prints per second and overall rates of a running test.
// Files is the number of files a request covered.
type PerformanceStat struct {
	success      int64
	fail         int64
	files        int64
	totalSuccess int64
	totalFail    int64
	totalFiles   int64

	lat      int64
	totalLat int64

	begin time.Time
	done  chan int
}

func MakePerformanceStat() *PerformanceStat {
	return &PerformanceStat{
		begin: time.Now(),
		done:  make(chan int),
	}
}

func (stat *PerformanceStat) incrSuccess(files, cost int64) {
	atomic.AddInt64(&stat.success, 1)
	atomic.AddInt64(&stat.totalSuccess, 1)
	atomic.AddInt64(&stat.files, files)
	atomic.AddInt64(&stat.totalFiles, files)
	atomic.AddInt64(&stat.lat, cost)
	atomic.AddInt64(&stat.totalLat, cost)
}

func (stat *PerformanceStat) incrFail() {
	atomic.AddInt64(&stat.fail, 1)
	atomic.AddInt64(&stat.totalFail, 1)
}

func (stat *PerformanceStat) stop() {
	stat.done <- 1

	totalCost := time.Since(stat.begin).Seconds()
	succ := atomic.LoadInt64(&stat.totalSuccess)
	total := succ + atomic.LoadInt64(&stat.totalFail)
	if total == 0 {
		fmt.Println("no requests issued")
		return
	}
	qps := float64(succ) / totalCost
	success := float64(succ) / float64(total) * 100
	filesPerSec := float64(atomic.LoadInt64(&stat.totalFiles)) / totalCost
	var lat int64
	if succ > 0 {
		lat = (atomic.LoadInt64(&stat.totalLat) / 1000000) / succ
	}

	fmt.Printf("total=%d, average qps=%.1f \t files=%.1f/s \t latency=%dms \t success=%.1f%%\n",
		total, qps, filesPerSec, lat, success)
}

func (stat *PerformanceStat) run() {
	for {
		select {
		case <-stat.done:
			return

		case <-time.After(time.Second):
			success := atomic.SwapInt64(&stat.success, 0)
			fail := atomic.SwapInt64(&stat.fail, 0)
			files := atomic.SwapInt64(&stat.files, 0)
			lat := atomic.SwapInt64(&stat.lat, 0)
			if success == 0 && fail == 0 {
				continue
			}
			if success > 0 {
				lat = (lat / 1000000) / success
			}
			fmt.Printf("qps=%d \t files=%d/s \t latency=%dms \t success=%.2f%%\n", success, files, lat,
				float64(success)/float64(success+fail)*100)
		}
	}
}

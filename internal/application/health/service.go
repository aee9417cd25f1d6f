// Package health reports dependency status and the request counters kept by the
// HealthMarker middleware.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"brokerdesk-backend/internal/middleware"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	StatusOK    = "ok"
	StatusIssue = "issue"
)

// Report is the /health/json body.
type Report struct {
	Service      string               `json:"service"`
	Status       string               `json:"status"`
	Runtime      RuntimeInfo          `json:"runtime"`
	Traffic      TrafficInfo          `json:"traffic"`
	Dependencies map[string]DepStatus `json:"dependencies"`
}

type RuntimeInfo struct {
	UptimeSeconds int64  `json:"uptimeSeconds"`
	HeapMB        int    `json:"heapMb"`
	Goroutines    int    `json:"goroutines"`
	Platform      string `json:"platform"`
	GoVersion     string `json:"goVersion"`
}

type TrafficInfo struct {
	TotalRequests   int64       `json:"totalRequests"`
	SuccessCount    int64       `json:"successCount"`
	FailedCount     int64       `json:"failedCount"`
	SuccessRate     string      `json:"successRate"`
	AvgResponseTime string      `json:"avgResponseTime"`
	LastRequest     interface{} `json:"lastRequest"`
}

type DepStatus struct {
	Status string `json:"status"`
	PingMs *int64 `json:"pingMs"`
}

// Service collects health data. Probes are optional external URLs (payments API, KYC
// provider, support desk) checked with a plain GET; they never affect Status.
type Service struct {
	Name    string
	DB      *gorm.DB
	Rdb     *redis.Client
	Probes  map[string]string
	Timeout time.Duration
	Client  *http.Client
}

func (s *Service) Collect(ctx context.Context) Report {
	r := Report{Service: s.Name, Dependencies: map[string]DepStatus{}}
	if r.Service == "" {
		r.Service = "brokerdesk-api"
	}
	var mu sync.Mutex
	set := func(name string, d DepStatus) {
		mu.Lock()
		r.Dependencies[name] = d
		mu.Unlock()
	}

	var g errgroup.Group
	g.Go(func() error {
		set("database", s.pingDB(ctx))
		return nil
	})
	g.Go(func() error {
		set("redis", s.pingRedis(ctx))
		return nil
	})
	names := make([]string, 0, len(s.Probes))
	for name := range s.Probes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		name, url := name, s.Probes[name]
		g.Go(func() error {
			set(name, s.probe(ctx, url))
			return nil
		})
	}
	_ = g.Wait()

	var started int64
	r.Traffic, started = s.traffic(ctx)
	r.Runtime = runtimeInfo(started)
	r.Status = StatusIssue
	if r.Dependencies["database"].Status == "connected" && r.Dependencies["redis"].Status == "connected" {
		r.Status = StatusOK
	}
	return r
}

func (s *Service) pingDB(ctx context.Context) DepStatus {
	if s.DB == nil {
		return DepStatus{Status: "disconnected"}
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return DepStatus{Status: "error"}
	}
	start := time.Now()
	if err := sqlDB.PingContext(ctx); err != nil {
		return DepStatus{Status: "error"}
	}
	return connected(start)
}

func (s *Service) pingRedis(ctx context.Context) DepStatus {
	if s.Rdb == nil {
		return DepStatus{Status: "disconnected"}
	}
	start := time.Now()
	if err := s.Rdb.Ping(ctx).Err(); err != nil {
		return DepStatus{Status: "error"}
	}
	return connected(start)
}

func (s *Service) probe(ctx context.Context, url string) DepStatus {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	client := s.Client
	if client == nil {
		client = &http.Client{}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return DepStatus{Status: "unreachable"}
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return DepStatus{Status: "unreachable"}
	}
	resp.Body.Close()
	d := connected(start)
	d.Status = "reachable"
	return d
}

func connected(start time.Time) DepStatus {
	ms := time.Since(start).Milliseconds()
	return DepStatus{Status: "connected", PingMs: &ms}
}

// traffic reads the HealthMarker counters and returns them with the stats start time (ms).
func (s *Service) traffic(ctx context.Context) (TrafficInfo, int64) {
	t := TrafficInfo{SuccessRate: "100", AvgResponseTime: "0"}
	now := time.Now().UnixMilli()
	if s.Rdb == nil {
		return t, now
	}
	vals, err := s.Rdb.MGet(ctx, middleware.KeyReqTotal, middleware.KeyReqErrors, middleware.KeyResTime,
		middleware.KeyResCount, middleware.KeyStartTime, middleware.KeyLastReq).Result()
	if err != nil {
		return t, now
	}
	str := func(i int) string {
		v, _ := vals[i].(string)
		return v
	}
	t.TotalRequests, _ = strconv.ParseInt(str(0), 10, 64)
	t.FailedCount, _ = strconv.ParseInt(str(1), 10, 64)
	t.SuccessCount = t.TotalRequests - t.FailedCount
	if t.TotalRequests > 0 {
		t.SuccessRate = strconv.FormatFloat(float64(t.SuccessCount)/float64(t.TotalRequests)*100, 'f', 1, 64)
	}
	timeSum, _ := strconv.ParseFloat(str(2), 64)
	if count, _ := strconv.ParseInt(str(3), 10, 64); count > 0 {
		t.AvgResponseTime = strconv.FormatFloat(timeSum/float64(count), 'f', 2, 64)
	}
	started := now
	if v, err := strconv.ParseInt(str(4), 10, 64); err == nil {
		started = v
	} else {
		s.Rdb.SetNX(ctx, middleware.KeyStartTime, now, 0)
	}
	if raw := str(5); raw != "" {
		var last map[string]interface{}
		if json.Unmarshal([]byte(raw), &last) == nil {
			t.LastRequest = last
		}
	}
	return t, started
}

func runtimeInfo(startedMs int64) RuntimeInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	up := (time.Now().UnixMilli() - startedMs) / 1000
	if up < 0 {
		up = 0
	}
	return RuntimeInfo{
		UptimeSeconds: up,
		HeapMB:        int(m.HeapInuse / 1024 / 1024),
		Goroutines:    runtime.NumGoroutine(),
		Platform:      runtime.GOOS + " (" + runtime.GOARCH + ")",
		GoVersion:     runtime.Version(),
	}
}

// Errors returns up to n of the most recent 5xx entries, newest first.
func (s *Service) Errors(ctx context.Context, n int64) ([]map[string]interface{}, error) {
	out := []map[string]interface{}{}
	if s.Rdb == nil {
		return out, nil
	}
	entries, err := s.Rdb.LRange(ctx, middleware.KeyErrorLog, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		var m map[string]interface{}
		if json.Unmarshal([]byte(e), &m) == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

// Reset clears the counters and the error log and restarts the uptime clock.
func (s *Service) Reset(ctx context.Context) error {
	pipe := s.Rdb.TxPipeline()
	pipe.Del(ctx, middleware.KeyReqTotal, middleware.KeyReqErrors, middleware.KeyResTime,
		middleware.KeyResCount, middleware.KeyLastReq, middleware.KeyErrorLog)
	pipe.Set(ctx, middleware.KeyStartTime, time.Now().UnixMilli(), 0)
	_, err := pipe.Exec(ctx)
	return err
}

package health

import (
	"context"
	"slices"
	"sync"
	"time"
)

const defaultCheckTimeout = 3 * time.Second

// Aggregator 汇总 BLE 会话与旁路存储的健康状态
type Aggregator struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

func NewAggregator(checkers ...Checker) *Aggregator {
	return &Aggregator{checkers: checkers, timeout: defaultCheckTimeout}
}

// AddChecker 启用可选组件后追加
func (a *Aggregator) AddChecker(checker Checker) {
	a.mu.Lock()
	a.checkers = append(a.checkers, checker)
	a.mu.Unlock()
}

// CheckAll 并发执行全部检查，整轮共用一个超时
func (a *Aggregator) CheckAll(ctx context.Context) map[string]CheckResult {
	a.mu.RLock()
	checkers := slices.Clone(a.checkers)
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]CheckResult, len(checkers))
	)
	for _, c := range checkers {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := c.Check(ctx)
			mu.Lock()
			results[c.Name()] = r
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// overall 取最差状态；旁路输出的 Unhealthy 计为 Degraded
func overall(results map[string]CheckResult) Status {
	worst := StatusHealthy
	for name, r := range results {
		s := r.Status
		if s == StatusUnhealthy && sideOutput(name) {
			s = StatusDegraded
		}
		if severity(s) > severity(worst) {
			worst = s
		}
	}
	return worst
}

// HealthReport 健康报告
type HealthReport struct {
	Status    Status                 `json:"status"`
	Ready     bool                   `json:"ready"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Report 执行一轮检查；只有会话不可用时才不就绪
func (a *Aggregator) Report(ctx context.Context) HealthReport {
	results := a.CheckAll(ctx)
	status := overall(results)
	return HealthReport{
		Status:    status,
		Ready:     status != StatusUnhealthy,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

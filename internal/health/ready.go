package health

import "sync/atomic"

// Readiness 就绪状态：会话状态机已运行，且启用的存储均已连通
type Readiness struct {
	sessionReady atomic.Bool
	storageReady atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetSessionReady(v bool) { r.sessionReady.Store(v) }
func (r *Readiness) SetStorageReady(v bool) { r.storageReady.Store(v) }

// Ready 总体就绪
func (r *Readiness) Ready() bool {
	return r.sessionReady.Load() && r.storageReady.Load()
}

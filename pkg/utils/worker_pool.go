package utils

import "sync"

// Pool 限制同时运行的任务数量
type Pool struct {
	slots   chan struct{}
	wg      sync.WaitGroup
	onPanic func(any)
}

type PoolOption func(*Pool)

// WithPanicHandler 任务 panic 时调用 h,不设置时 panic 照常传播
func WithPanicHandler(h func(any)) PoolOption {
	return func(p *Pool) { p.onPanic = h }
}

// NewPool size 为 0 时使用 4
func NewPool(size uint, opts ...PoolOption) *Pool {
	if size == 0 {
		size = 4
	}
	p := &Pool{slots: make(chan struct{}, size)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Go 提交任务,立即返回;任务在拿到空位后才开始执行
func (p *Pool) Go(task func()) {
	p.wg.Go(func() {
		p.slots <- struct{}{}
		defer func() { <-p.slots }()
		if p.onPanic != nil {
			defer func() {
				if r := recover(); r != nil {
					p.onPanic(r)
				}
			}()
		}
		task()
	})
}

func (p *Pool) Wait() { p.wg.Wait() }

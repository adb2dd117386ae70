package uploader

import "sync/atomic"

const (
	abortNotRequested int32 = iota
	abortRequested
	abortConsumed
)

// abortFlag 电平触发的中止标记,被某次传输消费后保持 consumed 直到下一个文件开始
type abortFlag struct {
	state atomic.Int32
}

func (f *abortFlag) request() { f.state.Store(abortRequested) }

func (f *abortFlag) reset() { f.state.Store(abortNotRequested) }

// consume 若已请求中止则标记为已消费并返回 true
func (f *abortFlag) consume() bool {
	return f.state.CompareAndSwap(abortRequested, abortConsumed)
}

func (f *abortFlag) load() int32 { return f.state.Load() }

package uploader

import "time"

// Outcome 单个文件的处理结果
type Outcome string

const (
	OutcomeSkipped Outcome = "skipped"
	OutcomeResumed Outcome = "resumed"
	OutcomeSent    Outcome = "sent"
)

// Reporter 接收上传过程中的统计事件,实现必须是并发安全的
type Reporter interface {
	// FileDone bytes 为本次实际发送的字节数
	FileDone(outcome Outcome, bytes uint64)
	ListingRetried()
	UploadDone(err error, elapsed time.Duration)
}

type nopReporter struct{}

func (nopReporter) FileDone(Outcome, uint64) {}
func (nopReporter) ListingRetried() {}
func (nopReporter) UploadDone(error, time.Duration) {}

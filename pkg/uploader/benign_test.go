package uploader

import (
	"errors"
	"fmt"
	"testing"

	"github.com/wentf9/mirrorup/pkg/session"
)

func TestBenignCompletion(t *testing.T) {
	def := NewBenignCompletion(DefaultBenignMarkers...)
	tests := []struct {
		name string
		b    BenignCompletion
		err  error
		want bool
	}{
		{"nil error", def, nil, false},
		{"transfer ok", def, &session.MalformedReplyError{Reply: "Transfer OK"}, true},
		{"transfer complete", def, fmt.Errorf("stor a: %w", &session.MalformedReplyError{Reply: "226 Transfer complete."}), true},
		{"no marker", def, &session.MalformedReplyError{Reply: "???"}, false},
		// 文件名里的片段不参与匹配
		{"marker only in file name", def, fmt.Errorf("stor book.txt: %w", &session.MalformedReplyError{Reply: "???"}), false},
		{"plain malformed sentinel", def, fmt.Errorf("%w: completed", session.ErrMalformedReply), true},
		{"not malformed", def, errors.New("transfer complete but connection reset"), false},
		{"reply code", def, &session.ReplyError{Code: 426, Msg: "ok"}, false},
		{"disabled", NewBenignCompletion(), &session.MalformedReplyError{Reply: "ok"}, false},
		{"blank markers ignored", NewBenignCompletion(" ", ""), &session.MalformedReplyError{Reply: "ok"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.Match(tt.err); got != tt.want {
				t.Errorf("Match(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestAbortFlag(t *testing.T) {
	var f abortFlag
	if f.consume() {
		t.Fatal("nothing requested yet")
	}
	f.request()
	f.request()
	if !f.consume() {
		t.Fatal("request should be observed")
	}
	if f.consume() || f.load() != abortConsumed {
		t.Error("a request is consumed once")
	}
	f.request()
	f.reset()
	if f.consume() || f.load() != abortNotRequested {
		t.Error("reset clears a pending request")
	}
}

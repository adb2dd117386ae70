package uploader

import (
	"errors"
	"strings"

	"github.com/wentf9/mirrorup/pkg/session"
)

// DefaultBenignMarkers 部分服务端在传输成功后返回无法解析的应答,
// 应答文本中包含这些片段时视为传输已完成
var DefaultBenignMarkers = []string{"ok", "complete"}

// BenignCompletion 判断完成传输时的错误是否为误报。
// 只对无法解析的应答生效,匹配忽略大小写;零值不匹配任何错误。
type BenignCompletion struct {
	markers []string
}

func NewBenignCompletion(markers ...string) BenignCompletion {
	b := BenignCompletion{}
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			b.markers = append(b.markers, m)
		}
	}
	return b
}

func (b BenignCompletion) Enabled() bool { return len(b.markers) > 0 }

func (b BenignCompletion) Match(err error) bool {
	if err == nil || !b.Enabled() || !errors.Is(err, session.ErrMalformedReply) {
		return false
	}
	text := err.Error()
	var me *session.MalformedReplyError
	if errors.As(err, &me) {
		text = me.Reply
	}
	text = strings.ToLower(text)
	for _, m := range b.markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

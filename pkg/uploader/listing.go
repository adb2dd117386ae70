package uploader

import (
	"context"
	"strings"

	"github.com/wentf9/mirrorup/pkg/retry"
	"github.com/wentf9/mirrorup/pkg/session"
)

const listAttempts = 4

// listing 当前远程目录的快照,名字到条目
type listing map[string]session.Entry

// listMode 服务端为 UNIX 系时使用严格解析
func listMode(systemType string) session.ListMode {
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(systemType)), "UNIX") {
		return session.ListStrict
	}
	return session.ListLenient
}

// list 获取当前远程目录快照,失败最多重试 3 次
func (j *job) list(ctx context.Context, remoteDir string) (listing, error) {
	mode := listMode(j.sess.SystemType())
	var entries []session.Entry
	err := retry.Do(ctx, j.u.retry, "list "+remoteDir, func() error {
		var err error
		entries, err = j.sess.List(mode)
		return err
	}, func(attempt int, err error) {
		j.u.reporter.ListingRetried()
		j.log.Warn("listing failed, retrying", "dir", remoteDir, "attempt", attempt, "mode", mode, "error", err)
	})
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, newError(ErrAborted, "list", remoteDir, cerr)
		}
		return nil, newError(ErrListing, "list", remoteDir, err)
	}

	out := make(listing, len(entries))
	for _, e := range entries {
		out[e.Name] = e
	}
	j.log.Debug("listed remote directory", "dir", remoteDir, "entries", len(out), "mode", mode)
	return out, nil
}

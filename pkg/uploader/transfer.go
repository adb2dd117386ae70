package uploader

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

var errRemoteIsDir = errors.New("remote entry with the same name is a directory")

// plan 根据远程大小决定传输起点
type plan struct {
	outcome Outcome
	offset  uint64
}

func (j *job) planFor(localSize, remoteSize uint64, remotePath string) (plan, error) {
	switch {
	case remoteSize == 0:
		return plan{outcome: OutcomeSent}, nil
	case remoteSize == localSize:
		return plan{outcome: OutcomeSkipped, offset: remoteSize}, nil
	case remoteSize < localSize:
		return plan{outcome: OutcomeResumed, offset: remoteSize}, nil
	}
	if j.u.oversize == OversizeFail {
		return plan{}, newError(ErrSizeMismatch, "transfer", remotePath, nil)
	}
	j.log.Warn("remote file is larger than local, uploading again",
		"file", remotePath, "remote_size", remoteSize, "local_size", localSize)
	return plan{outcome: OutcomeSent}, nil
}

// checkpoint 中止请求或 ctx 取消时返回 ErrAborted
func (j *job) checkpoint(ctx context.Context, remotePath string) error {
	if j.u.abort.consume() {
		return newError(ErrAborted, "transfer", remotePath, nil)
	}
	if err := ctx.Err(); err != nil {
		return newError(ErrAborted, "transfer", remotePath, err)
	}
	return nil
}

// transferFile 把一个本地文件上传到当前远程目录
func (j *job) transferFile(ctx context.Context, localPath string, info fs.FileInfo, remote listing, remoteDir string) error {
	// 上一个文件遗留的中止请求不影响本文件
	j.u.abort.reset()

	name := filepath.Base(localPath)
	remotePath := joinRemote(remoteDir, name)
	localSize := uint64(info.Size())

	if fl, ok := j.l.(FileListener); ok {
		fl.OnFile(remotePath, localSize)
	}

	entry, exists := remote[name]
	if exists && entry.IsDir {
		return newError(ErrTransfer, "transfer", remotePath, errRemoteIsDir)
	}
	p, err := j.planFor(localSize, entry.Size, remotePath)
	if err != nil {
		return err
	}

	if p.outcome == OutcomeSkipped {
		j.log.Debug("already uploaded, skipping", "file", remotePath, "size", localSize)
		j.l.OnBytesTransferred(p.offset, p.offset, p.offset)
		j.u.reporter.FileDone(OutcomeSkipped, 0)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return newError(ErrAborted, "transfer", remotePath, err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return newError(ErrTransfer, "open", localPath, err)
	}
	defer f.Close()

	if p.offset > 0 {
		if _, err := f.Seek(int64(p.offset), io.SeekStart); err != nil {
			return newError(ErrTransfer, "seek", localPath, err)
		}
		j.log.Info("resuming upload", "file", remotePath, "offset", p.offset, "size", localSize)
		if rl, ok := j.l.(ResumeListener); ok {
			rl.OnResume(remotePath, p.offset)
		}
	} else {
		j.log.Debug("uploading", "file", remotePath, "size", localSize)
	}
	j.sess.SetRestartOffset(p.offset)

	w, err := j.sess.OpenWriteStream(name)
	if err != nil {
		return newError(ErrTransfer, "open stream", remotePath, err)
	}

	sent, err := j.copy(ctx, w, f, localSize-p.offset, remotePath)
	if err != nil {
		if aerr := j.sess.AbortPendingTransfer(); aerr != nil {
			j.log.Debug("closing interrupted stream", "file", remotePath, "error", aerr)
		}
		return err
	}

	if err := j.sess.CompletePendingTransfer(); err != nil {
		if !j.u.benign.Match(err) {
			return newError(ErrTransfer, "complete", remotePath, err)
		}
		j.log.Info("ignoring completion reply that reports success", "file", remotePath, "reply", err)
	}
	j.u.reporter.FileDone(p.outcome, sent)
	j.log.Debug("uploaded", "file", remotePath, "bytes", sent)
	return nil
}

// copy 分块写入,每块前后检查中止请求
func (j *job) copy(ctx context.Context, w io.Writer, r io.Reader, streamSize uint64, remotePath string) (uint64, error) {
	buf := make([]byte, j.u.chunkSize)
	var total uint64
	for {
		if err := j.checkpoint(ctx, remotePath); err != nil {
			return total, err
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			if werr == nil && wn != n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return total, newError(ErrTransfer, "write", remotePath, werr)
			}
			total += uint64(n)
			j.l.OnBytesTransferred(total, uint64(n), streamSize)
			if err := j.checkpoint(ctx, remotePath); err != nil {
				return total, err
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, newError(ErrTransfer, "read", remotePath, rerr)
		}
	}
}

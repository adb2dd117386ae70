package uploader

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

var errBadDirName = errors.New("directory has no usable remote name")

// syncDirectory 在当前远程目录下镜像 localDir,返回前总会回到父目录
func (j *job) syncDirectory(ctx context.Context, localDir string, parent listing, parentDir string) (err error) {
	name := filepath.Base(filepath.Clean(localDir))
	remoteDir := joinRemote(parentDir, name)
	// 这些名字会让 ChangeDir 停在原地或越过父目录,返回时无法回到原位置
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return newError(ErrTransfer, "sync", localDir, errBadDirName)
	}

	_, exists := parent[name]
	created := false
	if !exists {
		// 创建失败可能只是目录已存在,真正不可用时下面的 ChangeDir 会报错
		if mkErr := j.sess.MakeDir(name); mkErr != nil {
			j.log.Debug("could not create directory, it may already exist", "dir", remoteDir, "error", mkErr)
		} else {
			created = true
			j.log.Debug("created directory", "dir", remoteDir)
		}
	}

	if cdErr := j.sess.ChangeDir(name); cdErr != nil {
		return newError(ErrTransfer, "cd", remoteDir, cdErr)
	}
	defer func() {
		if upErr := j.sess.ChangeDirToParent(); upErr != nil {
			j.log.Warn("could not return to parent directory", "dir", remoteDir, "error", upErr)
			if err == nil {
				err = newError(ErrTransfer, "cd ..", remoteDir, upErr)
			}
		}
	}()

	// 新建的目录一定是空的
	remote := listing{}
	if !created {
		if remote, err = j.list(ctx, remoteDir); err != nil {
			return err
		}
	}
	return j.syncChildren(ctx, localDir, remote, remoteDir)
}

// syncChildren 先处理子目录再处理文件,各自按名字排序
func (j *job) syncChildren(ctx context.Context, localDir string, remote listing, remoteDir string) error {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return newError(ErrTransfer, "readdir", localDir, err)
	}

	var dirs []string
	type file struct {
		path string
		info fs.FileInfo
	}
	var files []file
	for _, e := range entries {
		p := filepath.Join(localDir, e.Name())
		switch {
		case e.IsDir():
			dirs = append(dirs, p)
		case e.Type().IsRegular():
			info, err := e.Info()
			if err != nil {
				return newError(ErrTransfer, "stat", p, err)
			}
			files = append(files, file{p, info})
		case e.Type()&fs.ModeSymlink != 0:
			// 跟随指向普通文件的链接,指向目录的链接可能成环,不处理
			info, err := os.Stat(p)
			if err != nil || !info.Mode().IsRegular() {
				j.log.Debug("skipping symlink", "path", p)
				continue
			}
			files = append(files, file{p, info})
		default:
			j.log.Debug("skipping special file", "path", p)
		}
	}

	for _, d := range dirs {
		if err := j.syncDirectory(ctx, d, remote, remoteDir); err != nil {
			return err
		}
	}
	for _, f := range files {
		if err := j.transferFile(ctx, f.path, f.info, remote, remoteDir); err != nil {
			return err
		}
	}
	return nil
}

package uploader

import "errors"

// 错误类别,用 errors.Is 判断
var (
	ErrConfig       = errors.New("invalid configuration")
	ErrConnection   = errors.New("connection failed")
	ErrInvalidLogin = errors.New("invalid login")
	ErrListing      = errors.New("remote listing failed")
	ErrTransfer     = errors.New("transfer failed")
	ErrAborted      = errors.New("transfer aborted")
	ErrSizeMismatch = errors.New("remote file is larger than local file")
)

// Error 上传器返回的所有失败都是该类型
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

func newError(kind error, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// asTransferError 已分类的错误原样返回,其余归为 ErrTransfer
func asTransferError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return newError(ErrTransfer, op, path, err)
}

// KindOf 返回错误类别的简短名字,用于日志和指标
func KindOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAborted):
		return "aborted"
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrInvalidLogin):
		return "invalid_login"
	case errors.Is(err, ErrListing):
		return "listing"
	case errors.Is(err, ErrSizeMismatch):
		return "size_mismatch"
	default:
		return "transfer"
	}
}

package uploader

// Listener 接收单个文件的传输进度。
//
// total 为本次写入流已发送的字节数,chunk 为本次回调对应的块大小,
// streamSize 为本次写入流的总长度。跳过的文件会收到一次 total、chunk、
// streamSize 都等于远程大小的通知。
type Listener interface {
	OnBytesTransferred(total, chunk, streamSize uint64)
}

type ListenerFunc func(total, chunk, streamSize uint64)

func (f ListenerFunc) OnBytesTransferred(total, chunk, streamSize uint64) {
	f(total, chunk, streamSize)
}

// ResumeListener 可选,续传开始前收到远程已有的字节数
type ResumeListener interface {
	OnResume(remotePath string, offset uint64)
}

// FileListener 可选,每个文件处理前收到远程路径和本地大小
type FileListener interface {
	OnFile(remotePath string, size uint64)
}

type nopListener struct{}

func (nopListener) OnBytesTransferred(total, chunk, streamSize uint64) {}

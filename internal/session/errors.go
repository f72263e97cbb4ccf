package session

import "errors"

var (
	// ErrTransport 传输层连接/订阅/写入失败，连接已复位为断开
	ErrTransport = errors.New("session: transport error")
	// ErrNotConnected 断开状态下请求发送命令
	ErrNotConnected = errors.New("session: not connected")
	// ErrAlreadyConnected 已有连接时再次请求连接
	ErrAlreadyConnected = errors.New("session: already connected")
	// ErrVerificationRejected 设备拒绝连接验证，保持等待验证，由调用方决定是否重发
	ErrVerificationRejected = errors.New("session: verification rejected")
	// ErrMachineStopped 状态机协程已退出
	ErrMachineStopped = errors.New("session: machine stopped")
)

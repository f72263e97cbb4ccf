package session

import "context"

// Transport BLE 特征值的收发通道，由外部实现（BlueZ、测试桩）
type Transport interface {
	// Connect 建立连接并订阅通知；notify 在传输层的协程里被调用，每次一个通知载荷
	Connect(ctx context.Context, notify func([]byte)) error
	// Write 写入一帧原始字节
	Write(ctx context.Context, b []byte) error
	// Close 断开连接，重复调用无副作用
	Close(ctx context.Context) error
}

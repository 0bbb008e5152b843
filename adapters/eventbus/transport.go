package eventbus

import (
	"context"
	"errors"
)

// ErrConnClosed 表示連線已關閉
var ErrConnClosed = errors.New("connection is closed")

// Conn 代表一條已建立的事件連線。
// 同一條連線上的訊息依序送達（FIFO），連線關閉時 Receive 回傳的通道會被關閉。
type Conn interface {
	// Send 送出一筆已序列化的訊息
	Send(data []byte) error
	// Receive 回傳接收訊息的唯讀通道
	Receive() <-chan []byte
	// Close 關閉連線，可以重複呼叫
	Close() error
}

// Transport 負責建立事件連線。
// Channel 透過這個介面與實際的傳輸方式解耦，
// 開發環境用 Loopback，正式環境用 redis stream。
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

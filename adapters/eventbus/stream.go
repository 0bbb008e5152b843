package eventbus

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/chanx"
	"github.com/vmihailenco/msgpack/v5"
)

type streamOptions struct {
	logger       *slog.Logger
	bufferSize   int
	blockTimeout time.Duration
}

type StreamOption func(*streamOptions)

// WithStreamLogger 設置日誌記錄器
func WithStreamLogger(logger *slog.Logger) StreamOption {
	return func(o *streamOptions) {
		o.logger = logger
	}
}

// WithStreamBufferSize 設置下游channel的緩衝大小
func WithStreamBufferSize(size int) StreamOption {
	return func(o *streamOptions) {
		o.bufferSize = size
	}
}

// WithStreamBlockTimeout 設置阻塞讀取超時時間
func WithStreamBlockTimeout(d time.Duration) StreamOption {
	return func(o *streamOptions) {
		o.blockTimeout = d
	}
}

// StreamTransport 以 redis stream 作為事件的傳輸。
// 每條連線從建立當下開始讀取新訊息，不回放歷史；
// 送出的訊息寫進同一條 stream，所以自己送的訊息也會被自己讀到。
type StreamTransport struct {
	client  *redis.Client
	stream  string
	options streamOptions
}

// NewStreamTransport 建立 redis stream 傳輸
func NewStreamTransport(client *redis.Client, stream string, opts ...StreamOption) (*StreamTransport, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	// 默認選項
	options := streamOptions{
		logger:       slog.Default(),
		bufferSize:   100,
		blockTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &StreamTransport{
		client:  client,
		stream:  stream,
		options: options,
	}, nil
}

// Dial 建立一條 stream 連線，先以 PING 確認 redis 可用
func (t *StreamTransport) Dial(ctx context.Context) (Conn, error) {
	const op = "StreamTransport.Dial"
	if err := t.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("[%s] Fail to ping redis, err=%w", op, err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	conn := &streamConn{
		client: t.client,
		stream: t.stream,
		lastID: "$",
		recv:   make(chan []byte, t.options.bufferSize),
		ctx:    connCtx,
		cancel: cancel,
		logger: t.options.logger.With(
			slog.String("caller", "streamConn"),
			slog.String("stream", t.stream)),
		blockTimeout: t.options.blockTimeout,
	}
	conn.upstream = chanx.NewUnboundedChan[[]byte](connCtx, t.options.bufferSize)

	conn.wg.Add(2)
	go conn.readLoop()
	go conn.writeLoop()
	return conn, nil
}

type streamConn struct {
	client       *redis.Client
	stream       string
	lastID       string
	recv         chan []byte
	upstream     *chanx.UnboundedChan[[]byte]
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	closeOnce    sync.Once
	logger       *slog.Logger
	blockTimeout time.Duration
}

func (c *streamConn) Send(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnClosed
	default:
	}
	c.upstream.In <- data
	return nil
}

func (c *streamConn) Receive() <-chan []byte {
	return c.recv
}

// Close 關閉連線並等待讀寫 goroutine 結束
func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
	return nil
}

// readLoop 阻塞讀取 stream 上的新訊息。
// redis 連續出錯達到上限時視為連線中斷，關閉接收通道讓上層走重連流程。
func (c *streamConn) readLoop() {
	defer c.wg.Done()
	defer close(c.recv)

	const maxConsecutiveErrors = 3
	failures := 0

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		streams, err := c.client.XRead(c.ctx, &redis.XReadArgs{
			Streams: []string{c.stream, c.lastID},
			Count:   1,
			Block:   c.blockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				failures = 0
				continue
			}
			if errors.Is(err, context.Canceled) {
				return
			}
			failures++
			c.logger.Error("fetch message error",
				slog.Int("failures", failures),
				slog.Any("error", err))
			if failures >= maxConsecutiveErrors {
				c.cancel()
				return
			}
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		failures = 0
		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			continue
		}

		message := streams[0].Messages[0]
		c.lastID = message.ID
		data, err := decodeStreamMessage(message.Values)
		if err != nil {
			c.logger.Error("failed to parse message",
				slog.String("messageId", message.ID),
				slog.Any("error", err))
			continue
		}

		select {
		case <-c.ctx.Done():
			return
		case c.recv <- data:
		}
	}
}

// writeLoop 把待送訊息寫進 stream，無界通道確保 Send 不會阻塞呼叫端
func (c *streamConn) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case data, ok := <-c.upstream.Out:
			if !ok {
				return
			}
			values, err := encodeStreamMessage(data)
			if err != nil {
				c.logger.Error("encode message error", slog.Any("error", err))
				continue
			}
			id, err := c.client.XAdd(c.ctx, &redis.XAddArgs{
				Stream: c.stream,
				Values: values,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				c.logger.Error("publish message error", slog.Any("error", err))
				continue
			}
			c.logger.Debug("message published", slog.String("messageId", id))
		}
	}
}

// streamFrame 是寫進 stream 的訊息格式
type streamFrame struct {
	Body []byte `msgpack:"body"`
}

// encodeStreamMessage 將訊息封裝成 stream 的欄位：msgpack 序列化後做 base64 編碼
func encodeStreamMessage(data []byte) (map[string]any, error) {
	bytes, err := msgpack.Marshal(streamFrame{Body: data})
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal error: %w", err)
	}
	return map[string]any{
		"data": base64.StdEncoding.EncodeToString(bytes),
	}, nil
}

// decodeStreamMessage 還原 encodeStreamMessage 封裝的訊息
func decodeStreamMessage(message map[string]any) ([]byte, error) {
	dataStr, ok := message["data"].(string)
	if !ok {
		return nil, errors.New("data field not found or invalid type")
	}
	bytes, err := base64.StdEncoding.DecodeString(dataStr)
	if err != nil {
		return nil, fmt.Errorf("base64 decode error: %w", err)
	}
	var frame streamFrame
	if err := msgpack.Unmarshal(bytes, &frame); err != nil {
		return nil, fmt.Errorf("msgpack unmarshal error: %w", err)
	}
	return frame.Body, nil
}

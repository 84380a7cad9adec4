package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"wikivault/pkg/metrics"
)

// DefaultTimeout 是读取一条消息的最长时间
const DefaultTimeout = 500 * time.Millisecond

// Handler 处理一条合法的推送通知
type Handler func(ctx context.Context, u Update) error

// Listener 串行处理推送通知：一次只处理一个连接
type Listener struct {
	ln      net.Listener
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

// Listen 删除残留的 socket 文件并重新绑定
func Listen(path string, timeout time.Duration, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}

	logger.Info("push listener started", slog.String("socket", path))
	return &Listener{ln: ln, path: path, timeout: timeout, logger: logger}, nil
}

// Addr 返回 socket 路径
func (l *Listener) Addr() string { return l.path }

// Serve 循环接收连接直到 ctx 取消
// 坏消息只记日志，不会让监听器退出
func (l *Listener) Serve(ctx context.Context, handle Handler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.ln.Close()
		case <-done:
		}
	}()
	defer os.Remove(l.path)

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Warn("ipc accept error", slog.String("error", err.Error()))
			continue
		}

		u, err := l.receive(conn)
		if err != nil {
			l.logger.Warn("dropping push notification", slog.String("error", err.Error()))
			continue
		}

		l.logger.Info("push notification received",
			slog.String("parent", u.ParentRevision.Short()),
			slog.String("new", u.NewRevision.Short()))

		// 重建本身是串行的，不为每个连接开 goroutine
		if err := handle(ctx, u); err != nil {
			l.logger.Error("push handler failed", slog.String("error", err.Error()))
		}
	}
}

func (l *Listener) receive(conn net.Conn) (Update, error) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(l.timeout))

	u, err := ReadFrame(conn)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			metrics.PushNotifications.WithLabelValues("timeout").Inc()
			return Update{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		metrics.PushNotifications.WithLabelValues("malformed").Inc()
		return Update{}, err
	}
	metrics.PushNotifications.WithLabelValues("ok").Inc()
	return u, nil
}

// Close 停止监听
func (l *Listener) Close() error {
	return l.ln.Close()
}

package ipc

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"wikivault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hash(c string) types.Hash {
	return types.Hash(strings.Repeat(c, 64))
}

// socketPath 返回一个足够短的 socket 路径 (sun_path 有长度限制)
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "wv-ipc")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

// startListener 启动监听器，把收到的通知转发到 channel
func startListener(t *testing.T) (string, <-chan Update) {
	t.Helper()
	path := socketPath(t)
	l, err := Listen(path, 100*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Update, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Serve(ctx, func(_ context.Context, u Update) error {
			got <- u
			return nil
		})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return path, got
}

func rawFrame(body []byte) []byte {
	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[4:], body)
	return buf
}

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := Update{ParentRevision: hash("a"), NewRevision: hash("b")}
	require.NoError(t, WriteFrame(&buf, in))

	// 长度头是大端的 JSON 长度
	assert.Equal(t, uint32(buf.Len()-4), binary.BigEndian.Uint32(buf.Bytes()[:4]))
	assert.Contains(t, buf.String(), `"parent_revision":"`+string(hash("a"))+`"`)

	out, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadFrame_Malformed(t *testing.T) {
	tooLong := make([]byte, 4)
	binary.BigEndian.PutUint32(tooLong, MaxFrameSize+1)

	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"short header", []byte{0, 0}},
		{"zero length", rawFrame(nil)},
		{"too long", tooLong},
		{"truncated body", rawFrame([]byte(`{"new_revision":"`))[:10]},
		{"not json", rawFrame([]byte("hello"))},
		{"bad revision", rawFrame([]byte(`{"parent_revision":"","new_revision":"xyz"}`))},
		{"missing new revision", rawFrame([]byte(`{"parent_revision":"` + string(hash("a")) + `"}`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestListener_SurvivesBadClients(t *testing.T) {
	path, got := startListener(t)

	// 1. 发垃圾
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	_, _ = conn.Write(rawFrame([]byte("{not json")))
	conn.Close()

	// 2. 连上后什么都不发，等服务端超时
	idle, err := net.Dial("unix", path)
	require.NoError(t, err)
	time.Sleep(150 * time.Millisecond)
	idle.Close()

	// 3. 合法消息仍然被处理
	want := Update{ParentRevision: hash("1"), NewRevision: hash("2")}
	require.NoError(t, Send(context.Background(), path, want))

	select {
	case u := <-got:
		assert.Equal(t, want, u)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not deliver the valid update")
	}
	assert.Empty(t, got, "malformed messages must be dropped")
}

func TestListener_ReplacesStaleSocket(t *testing.T) {
	path := socketPath(t)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0600))

	l, err := Listen(path, 0, nil)
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, path, l.Addr())
}

func TestListener_StopsOnCancel(t *testing.T) {
	path := socketPath(t)
	l, err := Listen(path, 0, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx, func(context.Context, Update) error { return nil }) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "socket file should be removed")
}

func TestListener_CloseWithoutCancel(t *testing.T) {
	path := socketPath(t)
	l, err := Listen(path, 0, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel() // 只在测试结束时取消

	baseline := runtime.NumGoroutine()
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx, func(context.Context, Update) error { return nil }) }()

	require.NoError(t, l.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Close")
	}

	// ctx 还没取消，监听 ctx 的 goroutine 也必须退出
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunHook_OnlyTrackedRef(t *testing.T) {
	path, got := startListener(t)

	stdin := strings.Join([]string{
		string(hash("0")) + " " + string(hash("a")) + " refs/heads/feature",
		string(hash("1")) + " " + string(hash("2")) + " refs/heads/main",
		"garbage line",
	}, "\n")

	res, err := RunHook(context.Background(), strings.NewReader(stdin), path, "refs/heads/main", time.Second)
	require.NoError(t, err)
	require.Len(t, res.Sent, 1)

	select {
	case u := <-got:
		assert.Equal(t, hash("1"), u.ParentRevision)
		assert.Equal(t, hash("2"), u.NewRevision)
	case <-time.After(2 * time.Second):
		t.Fatal("hook update not delivered")
	}
}

func TestRunHook_NewBranchHasNoParent(t *testing.T) {
	path, got := startListener(t)

	stdin := string(hash("0")) + " " + string(hash("c")) + " refs/heads/main\n"
	_, err := RunHook(context.Background(), strings.NewReader(stdin), path, "refs/heads/main", time.Second)
	require.NoError(t, err)

	select {
	case u := <-got:
		assert.True(t, u.ParentRevision.IsZero())
		assert.Equal(t, hash("c"), u.NewRevision)
	case <-time.After(2 * time.Second):
		t.Fatal("hook update not delivered")
	}
}

func TestSend_NoServer(t *testing.T) {
	err := Send(context.Background(), socketPath(t), Update{NewRevision: hash("f")})
	assert.Error(t, err)
}

package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nixxel-company-limited/todo-receipts/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockTransport records every delivered job
type MockTransport struct {
	mu       sync.Mutex
	jobs     [][]byte
	err      error
	active   int
	overlaps int
	delay    time.Duration
}

func (m *MockTransport) Deliver(ctx context.Context, data []byte) error {
	m.mu.Lock()
	m.active++
	if m.active > 1 {
		m.overlaps++
	}
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active--
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, append([]byte(nil), data...))
	return nil
}

func (m *MockTransport) String() string { return "mock" }

func (m *MockTransport) Jobs() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.jobs...)
}

func startServer(t *testing.T, transport adapter.Transport) (*Server, adapter.TCP) {
	t.Helper()
	server := NewWithLogger(transport, "127.0.0.1:0", zap.NewNop())
	require.NoError(t, server.StartAsync())
	t.Cleanup(func() { server.Stop() })

	addr := server.Addr().(*net.TCPAddr)
	return server, adapter.TCP{Host: "127.0.0.1", Port: addr.Port}
}

func send(t *testing.T, spec adapter.TCP, data []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, adapter.NewTCPTransport(spec).Deliver(ctx, data))
}

func TestNewServer(t *testing.T) {
	mock := &MockTransport{}
	address := "localhost:9100"

	server := New(mock, address)

	assert.NotNil(t, server)
	assert.Equal(t, address, server.Address())
	assert.False(t, server.IsRunning())
	assert.Nil(t, server.Addr())
	assert.Equal(t, mock, server.GetTransport())
}

func TestServerStartStop(t *testing.T) {
	server := NewWithLogger(&MockTransport{}, "127.0.0.1:0", zap.NewNop())

	err := server.StartAsync()
	require.NoError(t, err)
	assert.True(t, server.IsRunning())
	assert.NotNil(t, server.Addr())

	// Test double start
	err = server.StartAsync()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	err = server.Stop()
	require.NoError(t, err)
	assert.False(t, server.IsRunning())

	// Test double stop (should not error)
	assert.NoError(t, server.Stop())
}

func TestServerListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	server := NewWithLogger(&MockTransport{}, ln.Addr().String(), zap.NewNop())
	err = server.StartAsync()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start server")
	assert.False(t, server.IsRunning())
}

func TestServerBlockingStart(t *testing.T) {
	server := NewWithLogger(&MockTransport{}, "127.0.0.1:0", zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- server.Start() }()

	require.Eventually(t, server.IsRunning, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, server.Stop())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestServerRelaysJob(t *testing.T) {
	mock := &MockTransport{}
	_, spec := startServer(t, mock)

	job := []byte{0x1B, 0x40, 'H', 'e', 'l', 'l', 'o', 0x0A, 0x1D, 0x56, 0x42, 0x03}
	send(t, spec, job)

	require.Eventually(t, func() bool { return len(mock.Jobs()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, job, mock.Jobs()[0])
}

func TestServerMultipleConnections(t *testing.T) {
	mock := &MockTransport{delay: 20 * time.Millisecond}
	_, spec := startServer(t, mock)

	numConnections := 3
	var wg sync.WaitGroup
	for i := 0; i < numConnections; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			send(t, spec, []byte{byte(i + 1)})
		}(i)
	}
	wg.Wait()

	require.Eventually(t, func() bool { return len(mock.Jobs()) == numConnections }, 2*time.Second, 10*time.Millisecond)
	for _, job := range mock.Jobs() {
		assert.Len(t, job, 1)
	}
	mock.mu.Lock()
	assert.Zero(t, mock.overlaps)
	mock.mu.Unlock()
}

func TestServerEmptyConnection(t *testing.T) {
	mock := &MockTransport{}
	_, spec := startServer(t, mock)

	conn, err := net.Dial("tcp", spec.Address())
	require.NoError(t, err)
	conn.Close()

	send(t, spec, []byte("after"))
	require.Eventually(t, func() bool { return len(mock.Jobs()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte("after"), mock.Jobs()[0])
}

func TestServerSurvivesTransportFailure(t *testing.T) {
	mock := &MockTransport{err: errors.New("printer offline")}
	server, spec := startServer(t, mock)

	send(t, spec, []byte("lost"))
	time.Sleep(50 * time.Millisecond)
	assert.True(t, server.IsRunning())

	mock.mu.Lock()
	mock.err = nil
	mock.mu.Unlock()

	send(t, spec, []byte("kept"))
	require.Eventually(t, func() bool { return len(mock.Jobs()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte("kept"), mock.Jobs()[0])
}

func TestServerStopClosesIdleClients(t *testing.T) {
	server, spec := startServer(t, &MockTransport{})

	conn, err := net.Dial("tcp", spec.Address())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("partial"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		server.mu.Lock()
		defer server.mu.Unlock()
		return len(server.conns) == 1
	}, 2*time.Second, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		server.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on an idle client")
	}
}

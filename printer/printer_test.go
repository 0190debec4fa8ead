package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nixxel-company-limited/todo-receipts/adapter"
	"github.com/nixxel-company-limited/todo-receipts/receipt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recorder is a transport that keeps every delivered job.
type recorder struct {
	mu   sync.Mutex
	jobs [][]byte
	err  error
}

func (r *recorder) Deliver(_ context.Context, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, append([]byte(nil), data...))
	return nil
}

func (r *recorder) String() string { return "recorder" }

func withRecorder(r *recorder, specs *[]adapter.Spec) Option {
	return WithTransports(func(spec adapter.Spec) (adapter.Transport, error) {
		if specs != nil {
			*specs = append(*specs, spec)
		}
		return r, nil
	})
}

func sampleData() receipt.Data {
	todos := []receipt.TodoItem{
		{ID: 1, Title: "Buy milk", TimeEstimate: "15m"},
		{ID: 2, Title: "Write quarterly planning document", Completed: true},
	}
	return receipt.NewData(todos, time.Date(2024, time.January, 3, 9, 5, 0, 0, time.UTC), nil)
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.NRGBA{A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestRenderFraming(t *testing.T) {
	p := New(WithLogger(zap.NewNop()))
	buf, err := p.Render(sampleData())
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(buf, []byte{0x1B, 0x40}))
	assert.True(t, bytes.HasSuffix(buf, []byte{0x1D, 0x56, 0x42, 0x03}))
	assert.Contains(t, string(buf), "[ ] BUY MILK")
	assert.Contains(t, string(buf), "[ ] WRITE QUARTERLY PLANN...")
	assert.Contains(t, string(buf), "Date: 01/03/24    Time: 09:05")
	assert.NotContains(t, string(buf), "\x1D\x76\x30")
}

func TestRenderMissingLogo(t *testing.T) {
	p := New(
		WithLogger(zap.NewNop()),
		WithLogo(filepath.Join(t.TempDir(), "logo.png"), 200),
	)
	buf, err := p.Render(sampleData())
	require.NoError(t, err)
	assert.NotContains(t, string(buf), "\x1D\x76\x30")
}

func TestRenderWithLogo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logo.png")
	writePNG(t, path)

	p := New(WithLogger(zap.NewNop()), WithLogo(path, 16))
	buf, err := p.Render(sampleData())
	require.NoError(t, err)

	// 16 dots wide is 2 bytes per row, 16 rows
	header := []byte{0x1D, 0x76, 0x30, 0x00, 2, 0, 16, 0}
	i := bytes.Index(buf, header)
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 32), buf[i+len(header):i+len(header)+32])
}

func TestRenderCorruptLogo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logo.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	p := New(WithLogger(zap.NewNop()), WithLogo(path, 200))
	_, err := p.Render(sampleData())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode logo")
}

func TestPrintDelivers(t *testing.T) {
	rec := &recorder{}
	var specs []adapter.Spec
	p := New(WithLogger(zap.NewNop()), withRecorder(rec, &specs))

	require.NoError(t, p.Print(context.Background(), sampleData(), "Kitchen"))

	require.Len(t, rec.jobs, 1)
	require.Len(t, specs, 1)
	assert.Equal(t, adapter.CUPS{Name: "Kitchen"}, specs[0])

	want, err := p.Render(sampleData())
	require.NoError(t, err)
	assert.Equal(t, want, rec.jobs[0])
}

func TestPrintEmptySpec(t *testing.T) {
	rec := &recorder{}
	p := New(WithLogger(zap.NewNop()), withRecorder(rec, nil))

	err := p.Print(context.Background(), sampleData(), "")
	assert.ErrorIs(t, err, adapter.ErrEmptySpec)
	assert.Empty(t, rec.jobs)
}

func TestPrintBadSpec(t *testing.T) {
	rec := &recorder{}
	p := New(WithLogger(zap.NewNop()), withRecorder(rec, nil))

	err := p.Print(context.Background(), sampleData(), "usb:zz:01")
	require.Error(t, err)
	assert.Empty(t, rec.jobs)
}

func TestPrintCorruptLogoSendsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logo.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0o644))

	rec := &recorder{}
	p := New(WithLogger(zap.NewNop()), WithLogo(path, 200), withRecorder(rec, nil))

	require.Error(t, p.Print(context.Background(), sampleData(), "Kitchen"))
	assert.Empty(t, rec.jobs)
}

func TestPrintTransportError(t *testing.T) {
	boom := errors.New("paper jam")
	rec := &recorder{err: boom}
	p := New(WithLogger(zap.NewNop()), withRecorder(rec, nil))

	err := p.Print(context.Background(), sampleData(), "Kitchen")
	assert.ErrorIs(t, err, boom)
}

func TestPrintOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		data, _ := io.ReadAll(conn)
		conn.Close()
		received <- data
	}()

	p := New(WithLogger(zap.NewNop()))
	iface := "tcp://" + ln.Addr().String()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Print(ctx, sampleData(), iface))

	want, err := p.Render(sampleData())
	require.NoError(t, err)
	select {
	case got := <-received:
		assert.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatal("printer did not receive the job")
	}
}

func TestPrintConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logo.png")
	writePNG(t, path)

	const workers = 8
	recorders := make(map[string]*recorder, workers)
	for i := 0; i < workers; i++ {
		recorders[fmt.Sprintf("Queue-%d", i)] = &recorder{}
	}

	p := New(
		WithLogger(zap.NewNop()),
		WithLogo(path, 16),
		WithTransports(func(spec adapter.Spec) (adapter.Transport, error) {
			return recorders[spec.String()], nil
		}),
	)
	want, err := p.Render(sampleData())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for name := range recorders {
		wg.Add(2)
		go func(name string) {
			defer wg.Done()
			errs <- p.Print(context.Background(), sampleData(), name)
		}(name)
		go func() {
			defer wg.Done()
			buf, err := p.Render(sampleData())
			if err == nil && !bytes.Equal(want, buf) {
				err = errors.New("concurrent render differs")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	for name, rec := range recorders {
		require.Len(t, rec.jobs, 1, name)
		assert.Equal(t, want, rec.jobs[0], name)
	}
}

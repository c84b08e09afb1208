package output

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mjpegsw/mjpegsw/internal/frame"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func decodeSize(t *testing.T, data []byte) image.Point {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("not a valid JPEG: %v", err)
	}
	return img.Bounds().Size()
}

func TestEncoderCachesBySequence(t *testing.T) {
	store := frame.NewStore()
	enc := NewEncoder(80)

	store.Publish(testImage(16, 16))
	f, _ := store.Latest()
	a, err := enc.Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	b, err := enc.Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	if enc.Encodes() != 1 || &a[0] != &b[0] {
		t.Errorf("same frame encoded %d times, want 1", enc.Encodes())
	}

	store.Publish(testImage(8, 8))
	f, _ = store.Latest()
	c, err := enc.Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	if enc.Encodes() != 2 {
		t.Errorf("encodes = %d, want 2", enc.Encodes())
	}
	if got := decodeSize(t, c); got != image.Pt(8, 8) {
		t.Errorf("decoded size = %v, want 8x8", got)
	}
}

func TestEncoderQualityAndNilFrame(t *testing.T) {
	if q := NewEncoder(0).Quality(); q != DefaultQuality {
		t.Errorf("quality 0 -> %d, want default", q)
	}
	if q := NewEncoder(101).Quality(); q != DefaultQuality {
		t.Errorf("quality 101 -> %d, want default", q)
	}
	if _, err := NewEncoder(50).Encode(nil); err != ErrNoFrame {
		t.Errorf("Encode(nil) error = %v, want ErrNoFrame", err)
	}
}

func TestPartFormat(t *testing.T) {
	got := string(Part([]byte("JPEGDATA")))
	want := "--frame\r\nContent-Type: image/jpeg\r\n\r\nJPEGDATA\r\n"
	if got != want {
		t.Errorf("Part() = %q, want %q", got, want)
	}
}

func collect(ctx context.Context, p *Producer) [][]byte {
	var out [][]byte
	for chunk := range p.Chunks(ctx) {
		out = append(out, chunk)
	}
	return out
}

func TestProducerYieldsNothingWithoutFrame(t *testing.T) {
	p := NewProducer(frame.NewStore(), NewEncoder(90), 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	if chunks := collect(ctx, p); len(chunks) != 0 {
		t.Errorf("got %d chunks from an empty store", len(chunks))
	}
}

func TestProducerOnePublishThenStop(t *testing.T) {
	store := frame.NewStore()
	store.Publish(testImage(32, 24))
	store.Stop()

	p := NewProducer(store, NewEncoder(90), 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	chunks := collect(ctx, p)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks after stop, want exactly 1", len(chunks))
	}

	prefix := "--frame\r\nContent-Type: image/jpeg\r\n\r\n"
	chunk := chunks[0]
	if !bytes.HasPrefix(chunk, []byte(prefix)) || !bytes.HasSuffix(chunk, []byte("\r\n")) {
		t.Fatalf("malformed chunk %q", chunk[:min(len(chunk), 60)])
	}
	data := chunk[len(prefix) : len(chunk)-2]
	if got := decodeSize(t, data); got != image.Pt(32, 24) {
		t.Errorf("decoded size = %v, want 32x24", got)
	}
}

func TestProducerRepeatsWhileCapturing(t *testing.T) {
	store := frame.NewStore()
	store.Publish(testImage(4, 4))
	enc := NewEncoder(90)
	p := NewProducer(store, enc, 2*time.Millisecond)

	n := 0
	for range p.Chunks(context.Background()) {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("got %d chunks, want 3", n)
	}
	if enc.Encodes() != 1 {
		t.Errorf("unchanged frame encoded %d times, want 1", enc.Encodes())
	}
}

func TestProducerEndsOnCancel(t *testing.T) {
	store := frame.NewStore()
	store.Publish(testImage(4, 4))
	p := NewProducer(store, NewEncoder(90), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int)
	go func() {
		done <- len(collect(ctx, p))
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case n := <-done:
		if n != 1 {
			t.Errorf("got %d chunks, want 1", n)
		}
	case <-time.After(time.Second):
		t.Fatal("producer did not end after cancellation")
	}
}

func TestStreamHandler(t *testing.T) {
	store := frame.NewStore()
	store.Publish(testImage(40, 30))
	outs := New(store, Config{PollInterval: 5 * time.Millisecond, JPEGQuality: 75})

	srv := httptest.NewServer(outs.Stream)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); !strings.Contains(cc, "no-cache") {
		t.Errorf("Cache-Control = %q", cc)
	}
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/x-mixed-replace" || params["boundary"] != Boundary {
		t.Fatalf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}

	mr := multipart.NewReader(resp.Body, params["boundary"])
	for i := 0; i < 2; i++ {
		part, err := mr.NextPart()
		if err != nil {
			t.Fatalf("part %d: %v", i, err)
		}
		if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("part Content-Type = %q", ct)
		}
		data, err := io.ReadAll(part)
		if err != nil {
			t.Fatal(err)
		}
		if got := decodeSize(t, data); got != image.Pt(40, 30) {
			t.Errorf("decoded size = %v, want 40x30", got)
		}
	}

	if v := outs.Viewers(); v != 1 {
		t.Errorf("viewers = %d, want 1", v)
	}

	cancel()
	resp.Body.Close()
	deadline := time.Now().Add(time.Second)
	for outs.Viewers() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if v := outs.Viewers(); v != 0 {
		t.Errorf("viewers after disconnect = %d, want 0", v)
	}
}

func TestSnapshotWithoutFrameIsEmpty(t *testing.T) {
	store := frame.NewStore()
	h := NewSnapshotHandler(store, NewEncoder(90))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snap.jpg", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body length = %d, want 0", rec.Body.Len())
	}
}

func TestSnapshotAfterStopIsEmpty(t *testing.T) {
	store := frame.NewStore()
	store.Publish(testImage(10, 10))
	store.Stop()

	rec := httptest.NewRecorder()
	NewSnapshotHandler(store, NewEncoder(90)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snap.jpg", nil))

	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("status = %d, body = %d bytes; want 200 and empty", rec.Code, rec.Body.Len())
	}
}

func TestSnapshotReturnsLatestFrame(t *testing.T) {
	store := frame.NewStore()
	store.Publish(testImage(64, 48))

	rec := httptest.NewRecorder()
	NewSnapshotHandler(store, NewEncoder(90)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snap.jpg", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeSize(t, rec.Body.Bytes()); got != image.Pt(64, 48) {
		t.Errorf("decoded size = %v, want 64x48", got)
	}
	if store.Stats().Published != 1 || !store.IsCapturing() {
		t.Error("snapshot mutated the store")
	}
}

func TestSnapshotEncodeFailure(t *testing.T) {
	store := frame.NewStore()
	// JPEG cannot encode images 65536 pixels wide
	store.Publish(image.NewRGBA(image.Rect(0, 0, 1<<16, 1)))

	rec := httptest.NewRecorder()
	NewSnapshotHandler(store, NewEncoder(90)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snap.jpg", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestWebSocketHandlerSendsBinaryJPEG(t *testing.T) {
	store := frame.NewStore()
	store.Publish(testImage(20, 10))
	outs := New(store, Config{PollInterval: 5 * time.Millisecond})

	srv := httptest.NewServer(outs.WebSocket)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if mt != websocket.BinaryMessage {
		t.Errorf("message type = %d, want binary", mt)
	}
	if got := decodeSize(t, data); got != image.Pt(20, 10) {
		t.Errorf("decoded size = %v, want 20x10", got)
	}
}

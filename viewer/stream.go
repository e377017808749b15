// Package viewer displays annotated frames in a local window or streams them
// as MJPEG over HTTP.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"github.com/hashicorp/go-hclog"
	"gocv.io/x/gocv"
	"net"
	"net/http"
	"sync"
	"time"
)

// DefaultQuality is the JPEG quality of streamed frames
const DefaultQuality = 80

// ErrStreamClosed is returned when publishing to a closed stream
var ErrStreamClosed = errors.New("stream closed")

// Stream broadcasts the most recent annotated frame to every connected MJPEG
// client.  Slow clients skip frames rather than queue them.
type Stream struct {
	mu      sync.Mutex
	frame   []byte
	seq     uint64
	changed chan struct{}
	closed  bool
	clients int
	quality int
	l       hclog.Logger
}

// Option configures a Stream
type Option func(*Stream)

// WithQuality sets the JPEG encoding quality
func WithQuality(q int) Option {
	return func(s *Stream) {
		s.quality = q
	}
}

// WithLogger sets the stream logger
func WithLogger(l hclog.Logger) Option {
	return func(s *Stream) {
		s.l = l
	}
}

// NewStream returns a stream without any frame
func NewStream(opts ...Option) *Stream {

	s := &Stream{
		changed: make(chan struct{}),
		quality: DefaultQuality,
		l:       hclog.NewNullLogger(),
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// Publish encodes the image as JPEG and makes it the current frame
func (s *Stream) Publish(img gocv.Mat) error {

	if img.Empty() {
		return nil
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img,
		[]int{gocv.IMWriteJpegQuality, s.quality})

	if err != nil {
		return fmt.Errorf("error encoding frame: %w", err)
	}

	defer buf.Close()

	// copy out of the native buffer before it is released
	jpg := append([]byte(nil), buf.GetBytes()...)

	return s.PublishJPEG(jpg)
}

// PublishJPEG makes an encoded JPEG the current frame
func (s *Stream) PublishJPEG(jpg []byte) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}

	s.frame = jpg
	s.seq++

	// wake every waiting client
	close(s.changed)
	s.changed = make(chan struct{})

	return nil
}

// Frame returns the current encoded frame and its sequence number, zero
// before the first frame
func (s *Stream) Frame() ([]byte, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.seq
}

// Clients returns the number of connected clients
func (s *Stream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients
}

// next waits for a frame newer than seq
func (s *Stream) next(ctx context.Context, seq uint64) ([]byte, uint64, bool) {

	for {
		s.mu.Lock()

		if s.closed {
			s.mu.Unlock()
			return nil, seq, false
		}

		if s.seq != seq && s.frame != nil {
			frame, cur := s.frame, s.seq
			s.mu.Unlock()
			return frame, cur, true
		}

		changed := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, seq, false
		case <-changed:
		}
	}
}

// ServeHTTP writes frames to the client as a multipart MJPEG response until
// the client disconnects or the stream is closed
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	s.mu.Lock()
	s.clients++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.clients--
		s.mu.Unlock()
	}()

	s.l.Info("New client connection established", "remote", r.RemoteAddr)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	flusher, canFlush := w.(http.Flusher)

	// send headers before the first frame is available
	if canFlush {
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
	}

	var seq uint64

	for {
		frame, cur, ok := s.next(r.Context(), seq)

		if !ok {
			s.l.Info("Client disconnected", "remote", r.RemoteAddr)
			return
		}

		seq = cur

		// write the image to the response writer
		if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
			len(frame)); err != nil {
			return
		}

		if _, err := w.Write(frame); err != nil {
			return
		}

		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}

		if canFlush {
			flusher.Flush()
		}
	}
}

// Close ends every client response and rejects further frames
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.changed)
	}
}

// Server serves a Stream over HTTP at /stream
type Server struct {
	server *http.Server
	addr   net.Addr
}

// Serve starts an HTTP server for the stream on addr
func Serve(addr string, s *Stream, l hclog.Logger) (*Server, error) {

	if l == nil {
		l = hclog.NewNullLogger()
	}

	ln, err := net.Listen("tcp", addr)

	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/stream", s)

	srv := &Server{
		server: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		addr:   ln.Addr(),
	}

	go func() {
		if err := srv.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("Stream server error", "err", err)
		}
	}()

	l.Info(fmt.Sprintf("Open browser and view video at http://%s/stream", srv.addr))

	return srv, nil
}

// Addr returns the address the server listens on
func (srv *Server) Addr() string {
	return srv.addr.String()
}

// Close shuts the server down
func (srv *Server) Close(ctx context.Context) error {
	return srv.server.Shutdown(ctx)
}

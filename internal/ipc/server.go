package ipc

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jantman/claude-permission-daemon/internal/logging"
)

// firstFrameTimeout bounds how long a connected hook may take to deliver
// its single request frame.
const firstFrameTimeout = 30 * time.Second

// Handler receives classified frames from the server.
//
// HandlePermission takes ownership of conn and must eventually write one
// response and close it. HandleNotification is called after the connection
// is already closed; the hook never waits on a notification.
type Handler interface {
	HandlePermission(frame *Frame, conn net.Conn)
	HandleNotification(note Notification)
}

// Server accepts hook connections on the daemon's endpoint and routes one
// frame per connection.
type Server struct {
	endpoint string
	handler  Handler
	ignored  map[string]struct{}
	logger   *logging.Logger

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer creates an IPC server for the given endpoint. Notifications
// whose type is in ignored are dropped before reaching the handler.
func NewServer(endpoint string, handler Handler, ignored map[string]struct{}, logger *logging.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		endpoint: endpoint,
		handler:  handler,
		ignored:  ignored,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start claims the endpoint and begins accepting connections.
func (s *Server) Start() error {
	listener, err := Listen(s.endpoint)
	if err != nil {
		return err
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info().Str("endpoint", s.endpoint).Msg("IPC server listening")
	return nil
}

// Stop closes the listener, waits for frame handlers in flight, and removes
// the endpoint. Permission connections already handed to the coordinator
// are not touched; draining those is the coordinator's job.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	Cleanup(s.endpoint)
}

// Endpoint returns the address the server listens on.
func (s *Server) Endpoint() string {
	return s.endpoint
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Warn().Err(err).Msg("accept error")
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection reads and routes the connection's single frame.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	conn.SetReadDeadline(time.Now().Add(firstFrameTimeout))
	reader := bufio.NewReader(conn)

	data, err := reader.ReadBytes('\n')
	if err != nil {
		if err != io.EOF {
			s.logger.Warn().Err(err).Msg("failed to read request frame")
		}
		conn.Close()
		return
	}

	frame, err := DecodeFrame(data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("malformed request frame")
		conn.Close()
		return
	}

	switch frame.Classify() {
	case KindPermission:
		// Clear the read deadline: the connection may now be held open
		// for the full request timeout while chat answers.
		conn.SetReadDeadline(time.Time{})
		s.handler.HandlePermission(frame, conn)

	case KindNotification:
		conn.Close()
		note := Notification{
			Type:       frame.NotificationType,
			Message:    frame.Message,
			CWD:        frame.CWD,
			ReceivedAt: time.Now(),
		}
		if _, drop := s.ignored[note.Type]; drop {
			s.logger.Debug().Str("notification_type", note.Type).Msg("dropping filtered notification")
			return
		}
		s.handler.HandleNotification(note)

	default:
		s.logger.Warn().Msg("frame is neither a permission request nor a notification")
		conn.Close()
	}
}

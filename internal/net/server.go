package net

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"ampere/internal/events"
	"ampere/internal/identity"
	"ampere/internal/ledger"
	"ampere/internal/trade"
	"ampere/internal/utils"
)

const (
	maxLineSize        = 64 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = 30 * time.Second
)

var ErrImproperConversion = errors.New("improper type conversion")

// session is one long-lived client connection with its buffered reader.
type session struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Server accepts TCP clients speaking the JSON-line protocol and drives the
// lifecycle coordinator. Events produced by each operation are published to
// the sink before the response is written.
type Server struct {
	address string
	port    int

	coord    *trade.Coordinator
	registry *identity.Registry
	tokens   *ledger.Memory
	sink     events.Sink

	pool         utils.WorkerPool
	cancel       context.CancelFunc
	sessions     map[string]*session
	sessionsLock sync.Mutex
}

func New(
	address string,
	port int,
	coord *trade.Coordinator,
	registry *identity.Registry,
	tokens *ledger.Memory,
	sink events.Sink,
) *Server {
	return &Server{
		address:  address,
		port:     port,
		coord:    coord,
		registry: registry,
		tokens:   tokens,
		sink:     sink,
		pool:     utils.NewWorkerPool(defaultNWorkers),
		sessions: make(map[string]*session),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	s.cancel()
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	s.pool.Setup(t, s.handleSession)

	log.Info().Str("address", listener.Addr().String()).Msg("server running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			log.Info().
				Str("address", conn.RemoteAddr().String()).
				Msg("new client added")
			sess := s.addSession(conn)
			s.requeue(sess)
		}
	}
}

// handleSession is a short-lived worker method which reads the next request
// off the connection, dispatches it and writes the response. The session is
// re-queued for its next message; a dead connection is cleaned up here.
func (s *Server) handleSession(t *tomb.Tomb, task any) error {
	sess, ok := task.(*session)
	if !ok {
		return ErrImproperConversion
	}

	if err := sess.conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		s.dropSession(sess)
		return nil
	}

	select {
	case <-t.Dying():
		return nil
	default:
	}

	line, err := sess.reader.ReadBytes('\n')
	if err != nil {
		s.dropSession(sess)
		return nil
	}
	if len(line) > maxLineSize {
		s.dropSession(sess)
		return nil
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.write(sess, fail(err))
		s.requeue(sess)
		return nil
	}

	resp, evs := s.dispatch(req)
	if len(evs) > 0 {
		if err := s.sink.Publish(t.Context(context.Background()), evs); err != nil {
			log.Error().Err(err).Msg("event publish failed")
		}
	}

	s.write(sess, resp)
	s.requeue(sess)
	return nil
}

// requeue schedules the session's next read without blocking the caller. A
// worker blocking on a full task channel would deadlock the pool once every
// worker is trying to re-queue, so an over-full queue sheds the session
// instead.
func (s *Server) requeue(sess *session) {
	if s.pool.TryAddTask(sess) {
		return
	}
	log.Warn().
		Str("address", sess.conn.RemoteAddr().String()).
		Msg("task queue full, dropping client")
	s.dropSession(sess)
}

func (s *Server) write(sess *session, resp Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msg("response encoding failed")
		return
	}
	if _, err := sess.conn.Write(append(b, '\n')); err != nil {
		s.dropSession(sess)
	}
}

func (s *Server) addSession(conn net.Conn) *session {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()

	sess := &session{conn: conn, reader: bufio.NewReader(conn)}
	s.sessions[conn.RemoteAddr().String()] = sess
	return sess
}

func (s *Server) dropSession(sess *session) {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()

	if err := sess.conn.Close(); err != nil {
		log.Debug().Err(err).Msg("closing client connection")
	}
	delete(s.sessions, sess.conn.RemoteAddr().String())
}

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"demoreel/internal/analysis"
	"demoreel/internal/demo"
	"demoreel/internal/metrics"
	"demoreel/internal/model"
	"demoreel/internal/protocol"
)

const outQueue = 32

type Config struct {
	Pipeline  analysis.Config
	Validator *protocol.Validator
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Server streams damage traces back to a client that sends a demo message
// stream one frame per message: HEADER first, then messages, then END.
type Server struct {
	cfg Config
	log *zap.Logger

	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg: cfg,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if m := s.cfg.Metrics; m != nil {
			m.WSConnected()
			defer m.WSDisconnected()
		}

		dec := demo.NewLineDecoder(s.cfg.Validator)
		header, ok := s.handshake(conn, dec)
		if !ok {
			return
		}

		cfg := s.cfg.Pipeline
		if src := strings.TrimSpace(r.URL.Query().Get("source")); src != "" {
			cfg.SourceIdentity = src
		}
		if cfg.Logger == nil {
			cfg.Logger = s.log
		}
		cfg.Logger = cfg.Logger.With(zap.String("remote", r.RemoteAddr), zap.String("map", header.Map))
		if s.cfg.Metrics != nil {
			cfg.Observer = s.cfg.Metrics
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, outQueue)
		written := make(chan struct{})

		// Writer goroutine.
		go func() {
			defer close(written)
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		send := func(v any) error {
			b, err := json.Marshal(v)
			if err != nil {
				return err
			}
			select {
			case out <- b:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		started := time.Now()
		res, err := analysis.Run(ctx, header, &frameSource{conn: conn, dec: dec}, cfg, func(t model.DamageTrace) error {
			return send(protocol.TraceMsg{Type: protocol.TypeTrace, Trace: t})
		})
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RunFinished(time.Since(started), err)
		}
		if err != nil {
			s.log.Info("stream rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
			_ = send(protocol.ErrorMsg{Type: protocol.TypeError, Message: err.Error()})
			close(out)
			<-written
			reason := "bad message"
			if errors.Is(err, demo.ErrTickOrder) {
				reason = "tick went backwards"
			}
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
			return
		}

		_ = send(protocol.DoneMsg{Type: protocol.TypeDone, Summary: res.Summary()})
		close(out)
		<-written
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}
}

func (s *Server) handshake(conn *websocket.Conn, dec *demo.LineDecoder) (protocol.Header, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.Header{}, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHeader {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.Rejected("no_header")
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HEADER"), time.Now().Add(time.Second))
		return protocol.Header{}, false
	}
	h, err := dec.Header(msg)
	if err != nil {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.Rejected("bad_header")
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad HEADER"), time.Now().Add(time.Second))
		return protocol.Header{}, false
	}
	return h, true
}

// frameSource reads one message per text frame until END.
type frameSource struct {
	conn *websocket.Conn
	dec  *demo.LineDecoder
}

func (f *frameSource) Next() (protocol.Message, error) {
	for {
		_ = f.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := f.conn.ReadMessage()
		if err != nil {
			return protocol.Message{}, err
		}
		if len(strings.TrimSpace(string(msg))) == 0 {
			continue
		}
		base, err := protocol.DecodeBase(msg)
		if err == nil && base.Type == protocol.TypeEnd {
			return protocol.Message{}, io.EOF
		}
		return f.dec.Message(msg)
	}
}

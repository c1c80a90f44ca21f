package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"voxelparallax.ai/internal/protocol"
	"voxelparallax.ai/internal/sim/dimension"
	"voxelparallax.ai/internal/sim/mathx"
	"voxelparallax.ai/internal/sim/parallax"
)

// Backend is the engine surface the query server reads.
type Backend interface {
	Session() *parallax.Session
	Seed() int64
	Dimension() *dimension.Dimension
	ParallaxSize() int
	FluidHeight() int
	GetHighest(x, z int, ignoreFluid bool) int
	IsUnderwater(x, z int) bool
	IsSolid(x, y, z int) bool
	BiomeAt(x, z int) *dimension.Biome
	GenerateParallaxArea(x, z int) bool
	Get(x, y, z int) string
	InsertParallax(cx, cz int, fn func(x, y, z int, block string)) bool
}

type Options struct {
	PackDigest string
	Registry   prometheus.Registerer
	Logger     *log.Logger
}

type Server struct {
	eng        Backend
	log        *log.Logger
	packDigest string

	queries *prometheus.CounterVec

	upgrader websocket.Upgrader
}

func NewServer(eng Backend, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		eng:        eng,
		log:        logger,
		packDigest: opts.PackDigest,
		queries: promauto.With(opts.Registry).NewCounterVec(prometheus.CounterOpts{
			Name: "parallax_ws_queries_total",
			Help: "Websocket queries by kind and result code.",
		}, []string{"query", "code"}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		client, out := s.handshake(conn)
		if out == nil {
			return
		}
		s.log.Printf("ws: client %q connected from %s", client, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for ctx.Err() == nil {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			resp := s.handle(msg)
			b, err := json.Marshal(resp)
			if err != nil {
				s.log.Printf("ws: encode response: %v", err)
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
		}
		cancel()
		<-done
		s.log.Printf("ws: client %q disconnected", client)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (client string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		_ = writeJSON(conn, protocol.NewError("", protocol.ErrProtoBadRequest, err.Error()))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.NewError("", protocol.ErrProtoVersion, "unsupported protocol_version "+hello.ProtocolVersion))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	client = strings.TrimSpace(hello.ClientName)
	if client == "" {
		client = "client"
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       s.eng.Session().ID,
		Dimension:       s.eng.Dimension().Name,
		Seed:            s.eng.Seed(),
		ParallaxSize:    s.eng.ParallaxSize(),
		FluidHeight:     s.eng.FluidHeight(),
		ChunkSize:       mathx.ChunkSize,
		PackDigest:      s.packDigest,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}
	return client, out
}

// handle answers one client message. It never fails the connection: every
// problem becomes an ERROR message.
func (s *Server) handle(msg []byte) (resp any) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return s.fail(protocol.QueryMsg{}, protocol.ErrProtoBadRequest, "malformed json")
	}
	if base.Type != protocol.TypeQuery {
		return s.fail(protocol.QueryMsg{}, protocol.ErrProtoBadRequest, "expected QUERY, got "+base.Type)
	}
	var q protocol.QueryMsg
	if err := json.Unmarshal(msg, &q); err != nil {
		return s.fail(q, protocol.ErrProtoBadRequest, err.Error())
	}
	if q.ProtocolVersion != protocol.Version {
		return s.fail(q, protocol.ErrProtoVersion, "unsupported protocol_version "+q.ProtocolVersion)
	}
	if err := protocol.Validate(protocol.TypeQuery, msg); err != nil {
		return s.fail(q, protocol.ErrBadRequest, err.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Printf("ws: query %s %s panicked: %v", q.ID, q.Query, r)
			resp = s.fail(q, protocol.ErrInternal, fmt.Sprint(r))
		}
	}()

	v, ok := s.answer(q)
	if !ok {
		return s.fail(q, protocol.ErrUnknownQuery, "unknown query "+q.Query)
	}
	s.queries.WithLabelValues(q.Query, "ok").Inc()
	return protocol.NewResult(q, v)
}

func (s *Server) answer(q protocol.QueryMsg) (any, bool) {
	switch q.Query {
	case protocol.QueryHighest:
		return s.eng.GetHighest(q.X, q.Z, q.IgnoreFluid), true
	case protocol.QueryUnderwater:
		return s.eng.IsUnderwater(q.X, q.Z), true
	case protocol.QuerySolid:
		return s.eng.IsSolid(q.X, q.Y, q.Z), true
	case protocol.QueryBiome:
		if b := s.eng.BiomeAt(q.X, q.Z); b != nil {
			return b.Name, true
		}
		return "", true
	case protocol.QueryBlock:
		return s.eng.Get(q.X, q.Y, q.Z), true
	case protocol.QueryGenerateArea:
		generated := s.eng.GenerateParallaxArea(q.X, q.Z)
		cx, cz := mathx.ChunkOf(q.X), mathx.ChunkOf(q.Z)
		return protocol.AreaResult{
			Generated: generated,
			Chunk:     [2]int{cx, cz},
			State:     s.eng.Session().Markers.State(cx, cz).String(),
		}, true
	case protocol.QueryChunk:
		cx, cz := mathx.ChunkOf(q.X), mathx.ChunkOf(q.Z)
		blocks := []protocol.ChunkBlock{}
		s.eng.InsertParallax(cx, cz, func(x, y, z int, block string) {
			blocks = append(blocks, protocol.ChunkBlock{Pos: [3]int{x, y, z}, Block: block})
		})
		return blocks, true
	}
	return nil, false
}

func (s *Server) fail(q protocol.QueryMsg, code, msg string) protocol.ErrorMsg {
	s.queries.WithLabelValues(q.Query, code).Inc()
	return protocol.NewError(q.ID, code, msg)
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

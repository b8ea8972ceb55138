package app

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/tactile_viewer/internal/field"
	"github.com/relabs-tech/tactile_viewer/internal/fusion"
	"github.com/relabs-tech/tactile_viewer/internal/surface"
)

const (
	socketBufferSize  = 1024
	messageBufferSize = 16
	writeWait         = 2 * time.Second

	// Point sprites are drawn with this radius and pushed this far along
	// their normal, both in units of the lattice spacing.
	baseRadiusFactor = 0.22
	normalPushFactor = 0.3

	fieldFrameMagic   = 'F'
	fieldFrameVersion = 1
	fieldHeaderSize   = 24
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  socketBufferSize,
	WriteBufferSize: socketBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true // the viewer is served to the local network only
	},
}

// WSMessage is a control request from a browser.
type WSMessage struct {
	Action string `json:"action"` // connect, disconnect, calibrate, resample
}

// WSResponse is every JSON message sent to browsers.
type WSResponse struct {
	Type    string    `json:"type"` // state, points, ack, error
	State   *State    `json:"state,omitempty"`
	Points  *PointSet `json:"points,omitempty"`
	Action  string    `json:"action,omitempty"`
	Message string    `json:"message,omitempty"`
}

// PointSet is the render description of a sampled surface, sent once per
// generation. Positions and normals are flattened xyz triples.
type PointSet struct {
	JobID      string    `json:"job_id"`
	Spacing    float64   `json:"spacing"`
	BaseRadius float64   `json:"base_radius"`
	Push       float64   `json:"push"`
	Count      int       `json:"count"`
	Positions  []float32 `json:"positions"`
	Normals    []float32 `json:"normals"`
	Message    string    `json:"message"`
}

func newPointSet(id uuid.UUID, res surface.Result) *PointSet {
	ps := &PointSet{
		JobID:      id.String(),
		Spacing:    res.Spacing,
		BaseRadius: baseRadiusFactor * res.Spacing,
		Push:       normalPushFactor * res.Spacing,
		Count:      len(res.Points),
		Positions:  make([]float32, 0, 3*len(res.Points)),
		Normals:    make([]float32, 0, 3*len(res.Points)),
		Message:    res.Message(),
	}
	for _, p := range res.Points {
		ps.Positions = append(ps.Positions, float32(p.Position.X), float32(p.Position.Y), float32(p.Position.Z))
		ps.Normals = append(ps.Normals, float32(p.Normal.X), float32(p.Normal.Y), float32(p.Normal.Z))
	}
	return ps
}

type wsFrame struct {
	kind int
	data []byte
}

// Hub fans engine output out to websocket clients and forwards their
// commands to the engine.
type Hub struct {
	submit func(Command) error
	logger *zap.SugaredLogger

	forward chan wsFrame
	join    chan *wsClient
	leave   chan *wsClient
	done    chan struct{}
	clients map[*wsClient]bool
	count   atomic.Int32
	dropped atomic.Uint64

	mu         sync.RWMutex
	lastState  []byte
	lastPoints []byte
	pointSet   []byte

	// owned by the engine goroutine
	idle    bool
	scratch []byte
}

// NewHub returns a hub passing client commands to submit. maxPoints sizes
// the field frame buffer.
func NewHub(submit func(Command) error, maxPoints int, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		submit:  submit,
		logger:  logger,
		scratch: make([]byte, 0, fieldFrameSize(max(maxPoints, 0))),
		forward: make(chan wsFrame, messageBufferSize),
		join:    make(chan *wsClient),
		leave:   make(chan *wsClient),
		done:    make(chan struct{}),
		clients: make(map[*wsClient]bool),
	}
}

// Run serves joins, leaves and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for c := range h.clients {
			close(c.send)
		}
		h.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-h.join:
			h.clients[c] = true
			h.count.Store(int32(len(h.clients)))
			h.mu.RLock()
			for _, msg := range [][]byte{h.lastState, h.lastPoints} {
				if msg != nil {
					c.offer(wsFrame{kind: websocket.TextMessage, data: msg})
				}
			}
			h.mu.RUnlock()
			h.logger.Infow("websocket client joined", "clients", len(h.clients))
		case c := <-h.leave:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				h.count.Store(int32(len(h.clients)))
				h.logger.Infow("websocket client left", "clients", len(h.clients))
			}
		case msg := <-h.forward:
			for c := range h.clients {
				if !c.offer(msg) {
					h.dropped.Add(1)
				}
			}
		}
	}
}

// Clients is the number of connected browsers.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// PointSet returns the JSON of the latest PointSet, or nil before the first one.
func (h *Hub) PointSet() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.pointSet
}

func (h *Hub) broadcast(msg wsFrame) {
	select {
	case h.forward <- msg:
	case <-h.done:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hub) OnState(s State) {
	b, err := json.Marshal(WSResponse{Type: "state", State: &s})
	if err != nil {
		h.logger.Errorw("marshal state", "error", err)
		return
	}
	h.mu.Lock()
	h.lastState = b
	h.mu.Unlock()
	h.broadcast(wsFrame{kind: websocket.TextMessage, data: b})
}

func (h *Hub) OnReading(fusion.Reading) {}

func (h *Hub) OnPoints(id uuid.UUID, res surface.Result) {
	ps := newPointSet(id, res)
	b, err := json.Marshal(WSResponse{Type: "points", Points: ps})
	if err != nil {
		h.logger.Errorw("marshal points", "error", err)
		return
	}
	raw, _ := json.Marshal(ps)
	h.mu.Lock()
	h.lastPoints = b
	h.pointSet = raw
	h.mu.Unlock()
	h.idle = false
	h.broadcast(wsFrame{kind: websocket.TextMessage, data: b})
}

// OnTick sends a binary field frame. Consecutive frames without a press are
// sent once.
func (h *Hub) OnTick(f *field.Field, r fusion.Reading) {
	if h.Clients() == 0 {
		h.idle = false
		return
	}
	_, _, pressed := f.Press()
	if !pressed && h.idle {
		return
	}
	h.idle = !pressed
	h.scratch = AppendFieldFrame(h.scratch[:0], f, r)
	h.broadcast(wsFrame{kind: websocket.BinaryMessage, data: bytes.Clone(h.scratch)})
}

// EncodeFieldFrame packs the field into a little-endian binary frame:
//
//	byte    'F'
//	byte    version
//	uint16  reserved
//	uint32  point count n
//	float32 contact x, contact y, intensity
//	int32   press center index, -1 without a press
//	float32 influence[n]
//	float32 rgb[3n]
func EncodeFieldFrame(f *field.Field, r fusion.Reading) []byte {
	return AppendFieldFrame(make([]byte, 0, fieldFrameSize(len(f.Influence()))), f, r)
}

// AppendFieldFrame appends the EncodeFieldFrame layout to dst.
func AppendFieldFrame(dst []byte, f *field.Field, r fusion.Reading) []byte {
	influence, colors := f.Influence(), f.Colors()
	center, _, _ := f.Press()

	le := binary.LittleEndian
	dst = append(dst, fieldFrameMagic, fieldFrameVersion)
	dst = le.AppendUint16(dst, 0)
	dst = le.AppendUint32(dst, uint32(len(influence)))
	dst = le.AppendUint32(dst, math.Float32bits(float32(r.X)))
	dst = le.AppendUint32(dst, math.Float32bits(float32(r.Y)))
	dst = le.AppendUint32(dst, math.Float32bits(float32(r.Intensity)))
	dst = le.AppendUint32(dst, uint32(int32(center)))
	for _, v := range influence {
		dst = le.AppendUint32(dst, math.Float32bits(v))
	}
	for _, v := range colors {
		dst = le.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// fieldFrameSize is the encoded size of a frame over n points.
func fieldFrameSize(n int) int {
	return fieldHeaderSize + 4*4*n
}

// ServeHTTP upgrades the request and serves the client until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade error", "error", err)
		return
	}
	c := &wsClient{socket: socket, send: make(chan wsFrame, messageBufferSize), hub: h}
	select {
	case h.join <- c:
	case <-h.done:
		socket.Close()
		return
	}
	defer func() {
		select {
		case h.leave <- c:
		case <-h.done:
		}
	}()
	go c.write()
	c.read()
}

type wsClient struct {
	socket *websocket.Conn
	send   chan wsFrame
	hub    *Hub
}

// offer queues msg without blocking and reports whether it was queued.
func (c *wsClient) offer(msg wsFrame) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *wsClient) read() {
	for {
		var msg WSMessage
		if err := c.socket.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debugw("websocket read error", "error", err)
			}
			return
		}
		resp := WSResponse{Type: "ack", Action: msg.Action}
		cmd, err := ParseCommand(msg.Action)
		if err == nil {
			err = c.hub.submit(cmd)
		}
		if err != nil {
			resp.Type, resp.Message = "error", err.Error()
		}
		b, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		c.hub.reply(c, wsFrame{kind: websocket.TextMessage, data: b})
	}
}

// reply queues msg for a single client. Holding mu keeps Run from closing
// the send channel underneath us.
func (h *Hub) reply(c *wsClient, msg wsFrame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	select {
	case <-h.done:
	default:
		c.offer(msg)
	}
}

func (c *wsClient) write() {
	defer c.socket.Close()
	for msg := range c.send {
		c.socket.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.socket.WriteMessage(msg.kind, msg.data); err != nil {
			return
		}
	}
	c.socket.SetWriteDeadline(time.Now().Add(writeWait))
	c.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

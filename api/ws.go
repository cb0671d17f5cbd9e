package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"kwh-exchange/eventbus"
	"kwh-exchange/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true }, // CORS already gates browsers; WS has no preflight
}

func channelForKind(kind eventbus.Kind) string {
	switch kind {
	case eventbus.KindOrderAdded, eventbus.KindOrderUpdated, eventbus.KindOrderRemoved, eventbus.KindBookSnapshotTaken:
		return "orderbook"
	case eventbus.KindTradeExecuted:
		return "trades"
	case eventbus.KindSettlementStateChanged:
		return "settlements"
	default:
		return ""
	}
}

// wsHub fans out event bus events to every connected WebSocket client,
// filtered to the channels each client subscribed to. A slow client is
// dropped from its own queue the same way eventbus.Bus drops slow
// subscribers: never block the fan-out.
type wsHub struct {
	bus         *eventbus.Bus
	queueCap    int
	register    chan *wsClient
	unregister  chan *wsClient
	clients     map[*wsClient]bool
}

func newWSHub(bus *eventbus.Bus, queueCap int) *wsHub {
	return &wsHub{
		bus:        bus,
		queueCap:   queueCap,
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		clients:    make(map[*wsClient]bool),
	}
}

func (h *wsHub) run(ctx context.Context) {
	_, events := h.bus.Subscribe()
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	collector := metrics.GetCollector()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = true
			collector.RecordWSConnection(1)
			collector.SetEventBusSubscribers(h.bus.SubscriberCount())
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				collector.RecordWSConnection(-1)
				collector.SetEventBusSubscribers(h.bus.SubscriberCount())
			}
		case evt, ok := <-events:
			if !ok {
				return
			}
			channel := channelForKind(evt.Kind)
			if channel == "" {
				continue
			}
			frame := wsFrame{Channel: channel, Seq: evt.Seq, TS: evt.Timestamp, Payload: evt.Payload}
			for c := range h.clients {
				c.offer(channel, frame, collector)
			}
		case <-statsTicker.C:
			frame := wsFrame{Channel: "stats", TS: time.Now()}
			for c := range h.clients {
				c.offer("stats", frame, collector)
			}
		}
	}
}

type wsClient struct {
	hub      *wsHub
	conn     *websocket.Conn
	send     chan wsFrame
	channels map[string]bool
}

func (c *wsClient) offer(channel string, frame wsFrame, collector *metrics.Collector) {
	if !c.channels[channel] {
		return
	}
	select {
	case c.send <- frame:
	default:
		collector.RecordEventBusDrop(channel)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		// the feed is push-only; any client frame is ignored
	}
}

func parseChannels(raw string) map[string]bool {
	channels := map[string]bool{"orderbook": true, "trades": true, "stats": true, "settlements": true}
	if raw == "" {
		return channels
	}
	selected := make(map[string]bool)
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		if channels[c] {
			selected[c] = true
		}
	}
	if len(selected) == 0 {
		return channels
	}
	return selected
}

// serveWS implements `WS /ws`: upgrade, register with the hub, and stream
// frames for the requested channels until the client disconnects.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	channels := parseChannels(r.URL.Query().Get("channels"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{hub: s.hub, conn: conn, send: make(chan wsFrame, s.wsCfg.QueueCapacity), channels: channels}
	s.hub.register <- client

	go client.writePump()
	client.readPump()
}

package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/slog"

	"islanding_simulator/internal/config"
	"islanding_simulator/internal/simulator"
	"islanding_simulator/internal/store"
)

var errRunInProgress = errors.New("a run is already in progress")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler manages WebSocket connections, starts scenario runs and answers
// result queries from the store.
type Handler struct {
	hub    *Hub
	cfg    *config.Config
	env    simulator.Environment
	store  *store.Store
	bridge *Bridge
	// extra receives the same events as the bridge, e.g. a metrics recorder.
	extra  simulator.Callback

	// Workers bounds concurrent scenarios per run (zero means one per CPU).
	Workers int

	running atomic.Bool
	wg      sync.WaitGroup
	log     *slog.Logger
}

func NewHandler(hub *Hub, cfg *config.Config, env simulator.Environment, st *store.Store, extra simulator.Callback) *Handler {
	return &Handler{
		hub:    hub,
		cfg:    cfg,
		env:    env,
		store:  st,
		bridge: NewBridge(hub),
		extra:  extra,
		log:    slog.Default().With("component", "ws"),
	}
}

// Bridge returns the callback that streams runs to connected clients.
func (h *Handler) Bridge() *Bridge { return h.bridge }

// Wait blocks until the current run, if any, has finished.
func (h *Handler) Wait() { h.wg.Wait() }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade", "error", err)
		return
	}

	client := &Client{
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.hub.Register(client)
	go client.writePump()

	h.reply(client, TypeScenarioList, h.listPayload())

	h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read", "error", err)
			}
			return
		}

		h.handleMessage(c, msg)
	}
}

func (h *Handler) handleMessage(c *Client, msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		h.replyError(c, "", err)
		return
	}

	switch env.Type {
	case TypeScenarioRun:
		var p ScenarioRunPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				h.replyError(c, "", err)
				return
			}
		}
		if err := h.startRun(p.Scenarios); err != nil {
			h.replyError(c, "", err)
		}

	case TypeResultsGet:
		var p ResultsGetPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.replyError(c, "", err)
			return
		}
		data, ok := h.results(p)
		if !ok {
			h.replyError(c, p.Scenario, errors.New("no results for scenario"))
			return
		}
		h.reply(c, TypeResultsData, data)

	default:
		h.log.Warn("unknown message type", "type", env.Type)
	}
}

// startRun resolves the selectors and runs the scenarios in the background.
// Only one run is active at a time.
func (h *Handler) startRun(selectors []string) error {
	scenarios, err := h.cfg.Select(selectors)
	if err != nil {
		return err
	}
	if !h.running.CompareAndSwap(false, true) {
		return errRunInProgress
	}

	cb := simulator.MultiCallback{h.bridge}
	if h.extra != nil {
		cb = append(cb, h.extra)
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.running.Store(false)

		h.log.Info("run started", "scenarios", len(scenarios))
		outcomes := simulator.RunAll(scenarios, h.env, h.Workers, cb)
		h.store.AddOutcomes(outcomes)
		for _, o := range outcomes {
			if o.Err != nil {
				h.bridge.OnError(o.Scenario, o.Err)
			}
		}
		h.broadcastList()
	}()
	return nil
}

func (h *Handler) results(p ResultsGetPayload) (ResultsDataPayload, bool) {
	run, ok := h.store.Run(p.Scenario)
	if !ok {
		return ResultsDataPayload{}, false
	}
	to := p.To
	if to <= 0 || to > run.Series.Len() {
		to = run.Series.Len()
	}
	from := p.From
	if from < 0 {
		from = 0
	}
	return ResultsDataPayload{
		Scenario: p.Scenario,
		From:     from,
		To:       to,
		Steps:    h.store.StepsInRange(p.Scenario, from, to),
		Summary:  run.Summary,
	}, true
}

func (h *Handler) listPayload() ScenarioListPayload {
	return ScenarioListPayload{
		Scenarios: scenarioInfos(h.cfg.Scenarios),
		Stored:    h.store.Scenarios(),
	}
}

func (h *Handler) broadcastList() {
	msg, err := NewEnvelope(TypeScenarioList, h.listPayload())
	if err != nil {
		h.log.Error("marshal scenario list", "error", err)
		return
	}
	h.hub.Broadcast(msg)
}

func (h *Handler) reply(c *Client, msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		h.log.Error("marshal message", "type", msgType, "error", err)
		return
	}
	c.trySend(msg)
}

func (h *Handler) replyError(c *Client, scenario string, err error) {
	h.reply(c, TypeScenarioError, ScenarioErrorPayload{Scenario: scenario, Error: err.Error()})
}

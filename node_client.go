package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type negotiationResponse struct {
	OK    bool   `json:"ok"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

type wsBlock struct {
	ShortHash string `json:"short_hash"`
	Height    int64  `json:"height"`
}

// wsMessage is the superset of every inbound frame. Replies to submissions
// are the only frames carrying a numeric id.
type wsMessage struct {
	Type      string   `json:"type"`
	Event     string   `json:"event"`
	ID        *uint64  `json:"id"`
	OK        bool     `json:"ok"`
	Error     string   `json:"error"`
	Work      uint64   `json:"work"`
	NewWork   uint64   `json:"new_work"`
	Block     *wsBlock `json:"block"`
	LastBlock *wsBlock `json:"last_block"`
}

type submitMessage struct {
	Type    string `json:"type"`
	ID      uint64 `json:"id"`
	Address string `json:"address"`
	Nonce   string `json:"nonce"`
}

// nodeHooks are optional lifecycle observers. All fields may be nil.
type nodeHooks struct {
	onConnect    func()
	onDisconnect func()
	onSubmit     func(nonce string)
	onSolved     func(t target)
	onRejected   func(reason string)
}

// nodeClient owns the link to the Krist node: it negotiates the WebSocket
// URL over HTTP, keeps one session goroutine reading frames, and relays
// solutions from the submission broker. Device workers never touch the
// socket.
type nodeClient struct {
	nodeURL   string
	state     *miningState
	broker    *submissionBroker
	httpc     *http.Client
	dialer    *websocket.Dialer
	reconnect bool
	minDelay  time.Duration
	maxDelay  time.Duration
	hooks     nodeHooks
}

func newNodeClient(nodeURL string, state *miningState, broker *submissionBroker, reconnect bool, minDelay, maxDelay time.Duration) *nodeClient {
	return &nodeClient{
		nodeURL:   nodeURL,
		state:     state,
		broker:    broker,
		httpc:     &http.Client{Timeout: negotiationTimeout},
		dialer:    websocket.DefaultDialer,
		reconnect: reconnect,
		minDelay:  minDelay,
		maxDelay:  maxDelay,
	}
}

// negotiate POSTs the configured node URL and returns the WebSocket URL the
// node hands back.
func (nc *nodeClient) negotiate(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, nc.nodeURL, nil)
	if err != nil {
		return "", fmt.Errorf("negotiation request: %w", err)
	}
	resp, err := nc.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("negotiate websocket url: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read negotiation response: %w", err)
	}
	var nr negotiationResponse
	if err := fastJSONUnmarshal(body, &nr); err != nil {
		return "", fmt.Errorf("decode negotiation response: %w", err)
	}
	if !nr.OK {
		return "", fmt.Errorf("node refused websocket negotiation: %s", nr.Error)
	}
	if nr.URL == "" {
		return "", fmt.Errorf("node negotiation returned no url")
	}
	return nr.URL, nil
}

// run drives sessions until the context is cancelled, reconnecting with
// exponential backoff between the configured bounds. The backoff resets
// whenever a session reaches hello.
func (nc *nodeClient) run(ctx context.Context) error {
	delay := nc.minDelay
	for {
		gotHello, err := nc.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if !nc.reconnect {
			if err != nil {
				return err
			}
			return fmt.Errorf("node closed the connection")
		}
		if gotHello {
			delay = nc.minDelay
		}
		logger.Warn("node connection lost", "error", err, "retry_in", delay.String())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > nc.maxDelay {
			delay = nc.maxDelay
		}
	}
}

// session runs one connect-to-disconnect cycle. On any exit the target is
// cleared (workers idle until the next hello) and an in-flight submission is
// dropped so its worker unblocks.
func (nc *nodeClient) session(ctx context.Context) (gotHello bool, err error) {
	wsURL, err := nc.negotiate(ctx)
	if err != nil {
		return false, err
	}

	conn, _, err := nc.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("open websocket: %w", err)
	}

	logger.Info("connected to node", "url", wsURL)
	if nc.hooks.onConnect != nil {
		nc.hooks.onConnect()
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		_ = conn.Close()
		nc.state.clearTarget()
		nc.broker.drop()
		if nc.hooks.onDisconnect != nil {
			nc.hooks.onDisconnect()
		}
	}()

	// Unblock the blocking read when the process shuts down.
	go func() {
		<-sessionCtx.Done()
		_ = conn.Close()
	}()

	go nc.submitLoop(sessionCtx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return gotHello, nil
			}
			return gotHello, fmt.Errorf("read frame: %w", err)
		}
		logNetMessage("recv", data)

		var msg wsMessage
		if err := fastJSONUnmarshal(data, &msg); err != nil {
			logger.Warn("undecodable frame from node", "error", err)
			continue
		}
		if nc.handleMessage(&msg) {
			gotHello = true
		}
	}
}

// handleMessage dispatches one inbound frame. Returns true for hello frames
// so the caller can reset its backoff.
func (nc *nodeClient) handleMessage(msg *wsMessage) bool {
	switch {
	case msg.Type == "hello":
		if msg.LastBlock == nil {
			logger.Warn("hello frame without last_block")
			return false
		}
		t, err := makeTarget(msg.Work, msg.LastBlock.ShortHash)
		if err != nil {
			logger.Warn("bad hello target", "error", err)
			return false
		}
		logger.Info("mining target installed", "work", t.work, "block", string(t.prevBlock[:]))
		nc.state.setTarget(t)
		return true

	case msg.Type == "event" && msg.Event == "block":
		if msg.Block == nil {
			logger.Warn("block event without block")
			return false
		}
		t, err := makeTarget(msg.NewWork, msg.Block.ShortHash)
		if err != nil {
			logger.Warn("bad block target", "error", err)
			return false
		}
		logger.Info("new block", "work", t.work, "block", string(t.prevBlock[:]))
		nc.state.setTarget(t)
		return false

	case msg.Type == "keepalive":
		return false

	case msg.ID != nil:
		nc.handleReply(msg)
		return false

	default:
		logger.Debug("ignoring frame", "type", msg.Type, "event", msg.Event)
		return false
	}
}

// handleReply correlates a submission reply against the broker's single
// slot. Acceptance installs the node's fresh target before the producer is
// released; rejection reinstates the old one via the solve callback's false
// return.
func (nc *nodeClient) handleReply(msg *wsMessage) {
	if _, ok := nc.broker.peek(); !ok || *msg.ID != nc.broker.currentID() {
		logger.Debug("reply with no matching submission", "id", *msg.ID)
		return
	}

	if msg.OK {
		if msg.Block != nil {
			if t, err := makeTarget(msg.Work, msg.Block.ShortHash); err == nil {
				logger.Info("block accepted", "height", msg.Block.Height, "next_work", t.work)
				nc.state.setTarget(t)
				if nc.hooks.onSolved != nil {
					nc.hooks.onSolved(t)
				}
			} else {
				logger.Warn("accepted reply with bad follow-up target", "error", err)
			}
		} else {
			logger.Info("block accepted")
		}
		nc.broker.clear(true)
		return
	}

	logger.Warn("solution rejected", "reason", msg.Error)
	if nc.hooks.onRejected != nil {
		nc.hooks.onRejected(msg.Error)
	}
	nc.broker.clear(false)
}

// submitLoop is the only writer on the socket. It wakes on broker activity,
// sends the pending solution tagged with the broker's current id, and leaves
// the slot full until the reply or the disconnect clears it.
func (nc *nodeClient) submitLoop(ctx context.Context, conn *websocket.Conn) {
	var lastSent uint64
	for {
		if sol, ok := nc.broker.peek(); ok {
			if id := nc.broker.currentID(); id != lastSent {
				msg := submitMessage{
					Type:    "submit_block",
					ID:      id,
					Address: string(nc.state.address[:]),
					Nonce:   string(sol[:]),
				}
				data, err := fastJSONMarshal(msg)
				if err != nil {
					logger.Error("encode submit_block", "error", err)
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					logger.Warn("send submit_block", "error", err)
					_ = conn.Close()
					return
				}
				logNetMessage("send", data)
				lastSent = id
				logger.Info("solution submitted", "id", id, "nonce", string(sol[:]))
				if nc.hooks.onSubmit != nil {
					nc.hooks.onSubmit(string(sol[:]))
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-nc.broker.wake():
		}
	}
}

func makeTarget(work uint64, shortHash string) (target, error) {
	prev, err := parseShortHash(shortHash)
	if err != nil {
		return target{}, err
	}
	return target{work: work, prevBlock: prev}, nil
}

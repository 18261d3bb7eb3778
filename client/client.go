/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package client implements the mirror of package server's session state
// machine from the connecting side: dial, handshake, request the dump/
// forward stream for a set of known providers, and apply the resulting
// AI/PI blocks and stats indications in order.
package client

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tomzo/nxtvepgd/blockqueue"
	"github.com/tomzo/nxtvepgd/dbcontext"
	"github.com/tomzo/nxtvepgd/nettransport"
	"github.com/tomzo/nxtvepgd/wire"
)

// State is one step of the client's connection lifecycle.
type State uint8

const (
	StateOff State = iota
	StateWaitConnect
	StateWaitConCnf
	StateWaitFwdCnf
	StateWaitBlocks
	StateRetry
	StateError
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "OFF"
	case StateWaitConnect:
		return "WAIT_CONNECT"
	case StateWaitConCnf:
		return "WAIT_CON_CNF"
	case StateWaitFwdCnf:
		return "WAIT_FWD_CNF"
	case StateWaitBlocks:
		return "WAIT_BLOCKS"
	case StateRetry:
		return "RETRY"
	case StateError:
		return "ERROR"
	default:
		return "?"
	}
}

// RetryInterval is how long the RETRY state waits before reconnecting.
const RetryInterval = 20 * time.Second

// ProviderCursor is one (cni, last-seen) pair the client sends in its
// FORWARD_REQ so the server only streams what changed.
type ProviderCursor struct {
	CNI      uint16
	LastSeen uint32
}

// Config configures one Client.
type Config struct {
	Host       string
	Port       int
	UseTCP     bool
	ForwardCNI uint16 // 0 = whatever the server is currently acquiring
	Providers  []ProviderCursor
	ExtStats   bool
	WantTsc    bool
	WantVpsPdc bool
}

// EventSink receives the GUI-facing notifications a Client produces.
// Implementations must not block.
type EventSink interface {
	// StatsUpdate fires once on FORWARD_CNF (first-contact synchronisation)
	// and again every time a queued STATS_IND is applied.
	StatsUpdate()
	// Reconnecting fires on entry to RETRY with the wait before the next
	// connect attempt.
	Reconnecting(wait time.Duration)
	// ConnectionError fires on entry to ERROR.
	ConnectionError(err error)
	// BlockReceived fires for every AI/PI/OI/... block applied from the
	// wire, so the GUI/db layer can store it.
	BlockReceived(b *blockqueue.Block)
}

// Client drives one outbound connection through the OFF -> WAIT_CONNECT
// -> WAIT_CON_CNF -> WAIT_FWD_CNF -> WAIT_BLOCKS lifecycle, with ERROR and
// RETRY as recovery states.
type Client struct {
	cfg   Config
	sink  EventSink
	conn  *nettransport.Conn
	state State

	swap bool

	retryAt time.Time
	lastErr error

	in           *blockqueue.Queue // blocks received, pending application
	pendingStats []pendingStat
	latestStats  pendingStat
	haveStats    bool
}

// New constructs a Client in state OFF; call Dial to start connecting.
func New(cfg Config, sink EventSink) *Client {
	return &Client{cfg: cfg, sink: sink, state: StateOff, in: blockqueue.New()}
}

// State returns the client's current lifecycle state.
func (c *Client) State() State { return c.state }

// Err returns the error that drove the most recent ERROR/RETRY
// transition, or nil if none has occurred yet.
func (c *Client) Err() error { return c.lastErr }

// Dial begins a non-blocking outbound connection attempt.
func (c *Client) Dial() error {
	conn, err := nettransport.Connect(c.cfg.Host, c.cfg.Port, c.cfg.UseTCP)
	if err != nil {
		c.enterError(err)
		return err
	}
	c.conn = conn
	c.state = StateWaitConnect
	return nil
}

// Fd returns the connection's file descriptor, or -1 if not connected.
func (c *Client) Fd() int {
	if c.conn == nil {
		return -1
	}
	return c.conn.Fd
}

// WantsWrite reports whether the poller should watch for writability:
// true while connecting (to detect completion) or while bytes are
// queued to send.
func (c *Client) WantsWrite() bool {
	if c.state == StateWaitConnect {
		return true
	}
	return c.conn != nil && c.conn.HasPendingWrite()
}

// Pump advances the state machine given one readiness observation.
func (c *Client) Pump(now time.Time, readable, writable bool) {
	switch c.state {
	case StateOff, StateError:
		return
	case StateRetry:
		if !now.Before(c.retryAt) {
			if err := c.Dial(); err != nil {
				c.scheduleRetry(now)
			}
		}
		return
	case StateWaitConnect:
		if !writable {
			return
		}
		if err := nettransport.ConnectComplete(c.conn.Fd); err != nil {
			c.scheduleRetryAfterClose(now, fmt.Errorf("connect: %w", err))
			return
		}
		c.sendConnectReq()
		c.state = StateWaitConCnf
		return
	}

	if c.conn == nil {
		return
	}
	if err := c.conn.HandleIO(readable, writable); err != nil {
		c.scheduleRetryAfterClose(now, err)
		return
	}
	for _, frame := range c.conn.TakeMessages() {
		if err := c.handleFrame(frame); err != nil {
			c.scheduleRetryAfterClose(now, err)
			return
		}
	}
}

// Idle checks for a stalled in-flight I/O and for RETRY expiry; call
// once per tick regardless of fd readiness.
func (c *Client) Idle(now time.Time) {
	if c.state == StateRetry {
		c.Pump(now, false, false)
		return
	}
	if c.conn != nil && c.conn.CheckTimeout(now) {
		c.scheduleRetryAfterClose(now, nettransport.ErrTimeout)
	}
}

func (c *Client) sendConnectReq() {
	req := wire.ConnectMessage{
		EndianMagic:   wire.EndianMagic,
		CompatVersion: wire.CompatVersionPacked,
		SwVersion:     wire.SwVersion,
		Pid:           uint32(os.Getpid()),
		UTF8:          true,
	}
	frame, err := wire.Build(wire.MsgConnectReq, req.Marshal())
	if err != nil {
		log.Errorf("client: build CONNECT_REQ: %v", err)
		return
	}
	c.conn.QueueWrite(frame)
}

func (c *Client) sendForwardReq() {
	cnis := make([]uint16, len(c.cfg.Providers))
	lastSeen := make([]uint32, len(c.cfg.Providers))
	for i, p := range c.cfg.Providers {
		cnis[i] = p.CNI
		lastSeen[i] = p.LastSeen
	}
	req := wire.ForwardReq{
		ForwardCni: c.cfg.ForwardCNI,
		Cnis:       cnis,
		LastSeen:   lastSeen,
		ExtStats:   c.cfg.ExtStats,
		WantTsc:    c.cfg.WantTsc,
		WantVpsPdc: c.cfg.WantVpsPdc,
	}
	body := req.Marshal()
	if c.swap {
		if err := wire.SwapForwardReq(body); err != nil {
			log.Errorf("client: swap FORWARD_REQ: %v", err)
			return
		}
	}
	frame, err := wire.Build(wire.MsgForwardReq, body)
	if err != nil {
		log.Errorf("client: build FORWARD_REQ: %v", err)
		return
	}
	c.conn.QueueWrite(frame)
}

func (c *Client) handleFrame(frame []byte) error {
	h, err := wire.DecodeHeader(frame[:wire.HeaderSize])
	if err != nil {
		return err
	}
	body := frame[wire.HeaderSize:]
	if c.swap {
		wire.SwapBody(h.Type, body)
	}
	switch h.Type {
	case wire.MsgConnectCnf:
		return c.handleConnectCnf(body)
	case wire.MsgForwardCnf:
		return c.handleForwardCnf(body)
	case wire.MsgForwardInd:
		ind, err := wire.UnmarshalForwardInd(body)
		if err != nil {
			return err
		}
		log.Infof("client: server now acquiring CNI %#04x", ind.Cni)
		return nil
	case wire.MsgBlockInd:
		return c.handleBlockInd(body)
	case wire.MsgStatsInd:
		return c.handleStatsInd(body)
	case wire.MsgVpsPdcInd, wire.MsgDbUpdInd, wire.MsgDumpInd:
		return nil
	case wire.MsgCloseInd:
		ci, _ := wire.UnmarshalCloseInd(body)
		return fmt.Errorf("server closed connection: reason %d", ci.Reason)
	default:
		return fmt.Errorf("%w: unexpected message %s in state %s", wire.ErrBadType, h.Type, c.state)
	}
}

func (c *Client) handleConnectCnf(body []byte) error {
	needSwap, err := wire.DetectSwap(body)
	if err != nil {
		return err
	}
	c.swap = needSwap
	if needSwap {
		wire.SwapBody(wire.MsgConnectCnf, body)
	}
	cnf, magic, err := wire.UnmarshalConnect(body)
	if err != nil {
		return err
	}
	if err := wire.ValidateServiceMagic(magic); err != nil {
		return err
	}
	if err := wire.CheckVersion(wire.FormatPackedVersion(cnf.CompatVersion)); err != nil {
		return err
	}
	if cnf.Compat32 {
		return fmt.Errorf("%w: server insists on 16-bit-compat stats width", wire.ErrBadLength)
	}
	c.sendForwardReq()
	c.state = StateWaitFwdCnf
	return nil
}

func (c *Client) handleForwardCnf(body []byte) error {
	cnf, err := wire.UnmarshalForwardCnf(body)
	if err != nil {
		return err
	}
	if !cnf.OK {
		return fmt.Errorf("server rejected FORWARD_REQ: reason %d", cnf.Reason)
	}
	c.state = StateWaitBlocks
	c.sink.StatsUpdate()
	return nil
}

func (c *Client) handleBlockInd(body []byte) error {
	bh, err := wire.UnmarshalBlockIndHeader(body)
	if err != nil {
		return err
	}
	payload := body[wire.BlockIndHeaderLen:]
	blk := &blockqueue.Block{Type: blockqueue.BlockType(bh.BlockType), Cni: bh.Cni}
	switch blk.Type {
	case blockqueue.BlockAI:
		ai, err := dbcontext.DecodeAIBlock(payload)
		if err != nil {
			return fmt.Errorf("decode AI block: %w", err)
		}
		blk.Payload = ai
	case blockqueue.BlockPI:
		pi, err := dbcontext.DecodePIBlock(payload)
		if err != nil {
			return fmt.Errorf("decode PI block: %w", err)
		}
		blk.Payload = pi
	default:
		blk.Payload = payload
	}
	c.in.Add(blk)
	c.drainBlocks()
	return nil
}

// drainBlocks hands every queued block to the sink immediately: unlike
// stats, blocks carry their own ordering and have no reason to wait.
func (c *Client) drainBlocks() {
	for b := c.in.Get(); b != nil; b = c.in.Get() {
		c.sink.BlockReceived(b)
	}
}

func (c *Client) enterError(err error) {
	c.lastErr = err
	c.state = StateError
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.sink.ConnectionError(err)
}

func (c *Client) scheduleRetry(now time.Time) {
	c.state = StateRetry
	c.retryAt = now.Add(RetryInterval)
	c.sink.Reconnecting(RetryInterval)
}

func (c *Client) scheduleRetryAfterClose(now time.Time, err error) {
	c.lastErr = err
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	log.Warningf("client: %v, reconnecting in %s", err, RetryInterval)
	c.scheduleRetry(now)
}

// Close tears down the connection without scheduling a retry.
func (c *Client) Close() {
	c.state = StateOff
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

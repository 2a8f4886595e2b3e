package main

import (
	"context"
	"log/slog"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/pkg/errors"
)

var (
	ErrNoPayload  = errors.New("message has no payload")
	ErrBadPayload = errors.New("payload is not numeric")
)

// maxDatagram is the largest UDP payload the inbox reads.
const maxDatagram = 65535

// decodeValue reads the first argument of msg as a number.
func decodeValue(msg *osc.Message) (float64, error) {
	if msg == nil || len(msg.Arguments) == 0 {
		return 0, ErrNoPayload
	}
	switch v := msg.Arguments[0].(type) {
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, errors.Wrapf(ErrBadPayload, "%s argument 0 has type %T", msg.Address, v)
	}
}

// Inbox receives OSC datagrams and keeps the newest message per control
// address until the listener collects it.
type Inbox struct {
	conn  net.PacketConn
	boxes map[string]chan *osc.Message
	log   *slog.Logger
}

// ListenInbox binds the control channel on a UDP address such as "127.0.0.1:4559".
func ListenInbox(addr string, log *slog.Logger) (*Inbox, error) {
	ib, err := newInbox(log)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}
	ib.conn = conn
	return ib, nil
}

func newInbox(log *slog.Logger) (*Inbox, error) {
	ib := &Inbox{
		boxes: make(map[string]chan *osc.Message, numParams),
		log:   log.With("component", "inbox"),
	}
	for _, p := range AllParams() {
		ib.boxes[p.Address()] = make(chan *osc.Message, 1)
	}
	return ib, nil
}

// Addr is the bound local address.
func (ib *Inbox) Addr() net.Addr { return ib.conn.LocalAddr() }

// Serve reads datagrams until ctx is done or the socket fails.
func (ib *Inbox) Serve(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ib.conn.Close()
		case <-stop:
		}
	}()

	ib.log.Info("control channel open", "addr", ib.conn.LocalAddr().String())
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := ib.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "read control datagram")
		}
		ib.handleDatagram(buf[:n], from)
	}
}

// Close releases the socket.
func (ib *Inbox) Close() error {
	return ib.conn.Close()
}

func (ib *Inbox) handleDatagram(data []byte, from net.Addr) {
	pkt, err := osc.ParsePacket(string(data))
	if err != nil {
		ib.log.Warn("dropping malformed datagram", "from", addrString(from), "bytes", len(data), "err", err)
		return
	}
	ib.route(pkt)
}

// route delivers every message in pkt to the mailbox of its exact address.
// Addresses are not patterns: /osc/echo or / reach no channel.
func (ib *Inbox) route(pkt osc.Packet) {
	switch p := pkt.(type) {
	case *osc.Message:
		box, ok := ib.boxes[p.Address]
		if !ok {
			ib.log.Debug("ignoring unknown address", "address", p.Address)
			return
		}
		deliverLatest(box, p)
	case *osc.Bundle:
		for _, msg := range p.Messages {
			ib.route(msg)
		}
		for _, b := range p.Bundles {
			ib.route(b)
		}
	}
}

// Receive implements Receiver.
func (ib *Inbox) Receive(ctx context.Context, address string, wait time.Duration) (*osc.Message, bool) {
	box, ok := ib.boxes[address]
	if !ok {
		return nil, false
	}
	select {
	case msg := <-box:
		return msg, true
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case msg := <-box:
		return msg, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// deliverLatest puts msg in a one-slot mailbox, replacing anything not yet read.
func deliverLatest(box chan *osc.Message, msg *osc.Message) {
	for {
		select {
		case box <- msg:
			return
		default:
		}
		select {
		case <-box:
		default:
		}
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// Sender emits control messages to a running controller.
type Sender struct {
	client *osc.Client
	addr   string
}

func NewSender(addr string) (*Sender, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "control address %q", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, errors.Wrapf(err, "control port %q", portStr)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return &Sender{client: osc.NewClient(host, port), addr: addr}, nil
}

// Send writes one value to the channel of p. Mode goes out as an integer,
// everything else as a float; a mode that is not a whole number is rejected
// rather than truncated.
func (s *Sender) Send(p Param, v float64) error {
	if p == Mode && (v != math.Trunc(v) || math.Abs(v) > math.MaxInt32) {
		return errors.Errorf("mode must be a whole number, got %g", v)
	}
	return errors.Wrapf(s.client.Send(controlMessage(p, v)), "send %s to %s", p.Address(), s.addr)
}

func controlMessage(p Param, v float64) *osc.Message {
	msg := osc.NewMessage(p.Address())
	if p == Mode {
		msg.Append(int32(v))
	} else {
		msg.Append(float32(v))
	}
	return msg
}

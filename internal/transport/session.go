package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sheepfriend/p2p-player/internal/netx"
	"github.com/sheepfriend/p2p-player/internal/proto"
)

// ConnectTo dials addr and, once the Hello handshake completes, admits the
// remote side as a peer.
func (n *Node) ConnectTo(addr netx.Addr) error {
	conn, err := n.cfg.Network.Dial(addr)
	if err != nil {
		n.log.Warnf("dial %s failed: %v", addr, err)
		return err
	}
	go n.handleConn(conn, false)
	return nil
}

func (n *Node) handleConn(rawConn netx.Conn, inbound bool) {
	p, err := n.establishPeer(rawConn, inbound)
	if err != nil {
		n.log.Debugf("conn setup failed (inbound=%v): %v", inbound, err)
		_ = rawConn.Close()
		return
	}
	if p == nil {
		_ = rawConn.Close()
		return
	}
	defer n.removePeer(p.id)

	n.log.Infof("connected peer id=%s addr=%s inbound=%v", p.id, p.addr, inbound)
	n.runPeerReadLoop(p)
}

func (n *Node) establishPeer(rawConn netx.Conn, inbound bool) (*peer, error) {
	dec := json.NewDecoder(bufio.NewReader(rawConn))
	enc := json.NewEncoder(rawConn)

	if err := n.sendHello(enc); err != nil {
		return nil, err
	}

	env, err := readEnvelopeWithTimeout(rawConn, dec, 5*time.Second)
	if err != nil {
		return nil, err
	}
	if env.Type != proto.MsgHello {
		return nil, errors.New("transport: expected hello, got " + string(env.Type))
	}
	var hello proto.Hello
	if err := json.Unmarshal(env.Payload, &hello); err != nil {
		return nil, err
	}

	pctx, cancel := context.WithCancel(n.ctx)
	p := &peer{
		id:     env.FromID,
		addr:   netx.Addr(hello.Listen),
		conn:   rawConn,
		writer: enc,
		sendCh: make(chan proto.Envelope, 128),
		ctx:    pctx,
		cancel: cancel,
	}
	if !n.addPeer(p) {
		cancel()
		return nil, nil
	}
	go n.peerWriteLoop(p)
	return p, nil
}

func (n *Node) runPeerReadLoop(p *peer) {
	dec := json.NewDecoder(bufio.NewReader(p.conn))
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-p.ctx.Done():
			return
		default:
		}
		var env proto.Envelope
		if err := dec.Decode(&env); err != nil {
			n.log.Debugf("read from %s failed: %v", p.id, err)
			return
		}
		if n.handler != nil {
			n.handler(p.id, string(p.addr), env)
		}
	}
}

func (n *Node) peerWriteLoop(p *peer) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case env, ok := <-p.sendCh:
			if !ok {
				return
			}
			if err := p.writer.Encode(env); err != nil {
				n.log.Debugf("write to %s failed: %v", p.id, err)
				go n.removePeer(p.id)
				return
			}
		}
	}
}

func (n *Node) sendHello(enc *json.Encoder) error {
	h := proto.Hello{NodeID: n.cfg.SelfID, Listen: string(n.addr)}
	env := proto.Envelope{
		Type:    proto.MsgHello,
		FromID:  n.cfg.SelfID,
		Payload: proto.MustMarshal(h),
	}
	return enc.Encode(env)
}

type deadlineConn interface {
	SetReadDeadline(t time.Time) error
}

func readEnvelopeWithTimeout(rawConn netx.Conn, dec *json.Decoder, timeout time.Duration) (proto.Envelope, error) {
	if dc, ok := rawConn.(deadlineConn); ok {
		_ = dc.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = dc.SetReadDeadline(time.Time{}) }()
		var env proto.Envelope
		err := dec.Decode(&env)
		return env, err
	}

	type result struct {
		env proto.Envelope
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var env proto.Envelope
		err := dec.Decode(&env)
		ch <- result{env: env, err: err}
	}()

	select {
	case r := <-ch:
		return r.env, r.err
	case <-time.After(timeout):
		_ = rawConn.Close()
		return proto.Envelope{}, errors.New("transport: hello read timeout")
	}
}

package transport

func (n *Node) acceptLoop() {
	for {
		select {
		case <-n.ctx.Done():
			return
		default:
		}
		conn, err := n.cfg.Network.Accept()
		if err != nil {
			n.log.Warnf("accept error: %v", err)
			return
		}
		go n.handleConn(conn, true)
	}
}

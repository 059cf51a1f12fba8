package p2p

func (n *Node) Logf(format string, args ...any) {
	if !n.cfg.Debug {
		return
	}
	n.sugar.Debugf(format, args...)
}

//go:build !linux

package netwatch

// New returns a Poller; only Linux has a push channel.
func New() Notifier {
	return NewPoller()
}

package services

// Broadcaster pushes balance changes to connected clients. Implementations
// must not block.
type Broadcaster interface {
	BroadcastBalance(userID string, balance int64)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastBalance(string, int64) {}

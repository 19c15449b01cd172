package application

import (
	"time"

	"github.com/Shugur-Network/torstatus/internal/config"
	"github.com/Shugur-Network/torstatus/internal/storage"
)

// Store returns the node's relay store.
func (n *Node) Store() storage.Store {
	return n.store
}

// Config returns the node's configuration.
func (n *Node) Config() *config.Config {
	return n.config
}

// ExitIndex returns the node's exit index.
func (n *Node) ExitIndex() *storage.ExitIndex {
	return n.exits
}

// GetStartTime returns when the node was started.
func (n *Node) GetStartTime() time.Time {
	return n.startTime
}

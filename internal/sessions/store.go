// Package sessions persists conversation sessions and their message
// history, and serialises per-session execution through LaneManager.
package sessions

import (
	"context"
	"fmt"

	"github.com/cratos-run/cratos/pkg/models"
)

// Store persists sessions and their ordered message history. LaneManager
// layers lane bookkeeping (active execution, pending queue) on top; the
// store itself only holds durable rows.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	GetByKey(ctx context.Context, key string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	List(ctx context.Context, ownerUserID string) ([]*models.Session, error)

	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error
	GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)

	Close() error
}

// SessionKey builds the stable lookup key for a channel-originated
// session: one lane per (agent, channel, peer).
func SessionKey(agentID string, channel models.ChannelType, channelID string) string {
	return fmt.Sprintf("%s:%s:%s", agentID, channel, channelID)
}

// GetOrCreate returns the session for key, creating it when absent.
func GetOrCreate(ctx context.Context, store Store, key, agentID string, channel models.ChannelType, channelID string, mint func() *models.Session) (*models.Session, error) {
	if session, err := store.GetByKey(ctx, key); err == nil && session != nil {
		return session, nil
	}
	session := mint()
	session.Key = key
	session.AgentID = agentID
	session.Channel = channel
	session.ChannelID = channelID
	if err := store.Create(ctx, session); err != nil {
		// Lost a create race: fall back to the winner's row.
		if existing, lookupErr := store.GetByKey(ctx, key); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return session, nil
}

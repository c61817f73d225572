package session

import (
	"sync"
	"time"
)

// Session models one locally-managed client identity's durable state: its
// active subscriptions and its unacknowledged outbound QoS 1/2 packets. It
// is not a broker's view of a connected client — there is no will message,
// no expiry interval, no takeover semantics, because a client library only
// ever has one local identity to track.
type Session struct {
	mu sync.RWMutex

	ClientID       string
	CleanSession   bool
	CreatedAt      time.Time
	LastAccessedAt time.Time

	// Subscription data
	Subscriptions map[string]*Subscription // topic filter -> subscription

	// QoS message state
	PendingPublish map[uint16]*PendingMessage // PacketID -> message (QoS 1,2 outbound not acked)
	PendingPubrel  map[uint16]struct{}        // PacketID -> marker (QoS 2 inbound waiting for PUBREL)
	PendingPubcomp map[uint16]struct{}        // PacketID -> marker (QoS 2 outbound waiting for PUBCOMP)

	// Packet ID generator
	nextPacketID uint16
}

// Subscription represents a topic subscription held by this client.
type Subscription struct {
	TopicFilter  string
	QoS          byte
	SubscribedAt time.Time
}

// PendingMessage represents a message waiting for acknowledgment.
type PendingMessage struct {
	PacketID  uint16
	Topic     string
	Payload   []byte
	QoS       byte
	Retain    bool
	DUP       bool
	Timestamp time.Time
}

// New creates a new session for the given client identity.
func New(clientID string, cleanSession bool) *Session {
	now := time.Now()
	return &Session{
		ClientID:       clientID,
		CleanSession:   cleanSession,
		CreatedAt:      now,
		LastAccessedAt: now,
		Subscriptions:  make(map[string]*Subscription),
		PendingPublish: make(map[uint16]*PendingMessage),
		PendingPubrel:  make(map[uint16]struct{}),
		PendingPubcomp: make(map[uint16]struct{}),
		nextPacketID:   1,
	}
}

// Touch updates the last accessed time
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastAccessedAt = time.Now()
}

// AddSubscription adds a subscription to the session
func (s *Session) AddSubscription(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Subscriptions[sub.TopicFilter] = sub
}

// RemoveSubscription removes a subscription from the session
func (s *Session) RemoveSubscription(topicFilter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Subscriptions, topicFilter)
}

// GetSubscription returns a subscription by topic filter
func (s *Session) GetSubscription(topicFilter string) (*Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.Subscriptions[topicFilter]
	return sub, ok
}

// GetAllSubscriptions returns all subscriptions
func (s *Session) GetAllSubscriptions() map[string]*Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := make(map[string]*Subscription, len(s.Subscriptions))
	for k, v := range s.Subscriptions {
		subs[k] = v
	}
	return subs
}

// ClearSubscriptions removes all subscriptions
func (s *Session) ClearSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Subscriptions = make(map[string]*Subscription)
}

// NextPacketID generates the next outbound packet ID, skipping any still
// awaiting acknowledgment.
func (s *Session) NextPacketID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		id := s.nextPacketID
		s.nextPacketID++
		if s.nextPacketID == 0 {
			s.nextPacketID = 1
		}

		if _, ok := s.PendingPublish[id]; !ok {
			if _, ok := s.PendingPubrel[id]; !ok {
				if _, ok := s.PendingPubcomp[id]; !ok {
					return id
				}
			}
		}
	}
}

// AddPendingPublish adds a pending publish message
func (s *Session) AddPendingPublish(msg *PendingMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PendingPublish[msg.PacketID] = msg
}

// RemovePendingPublish removes a pending publish message
func (s *Session) RemovePendingPublish(packetID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.PendingPublish, packetID)
}

// GetPendingPublish returns a pending publish message
func (s *Session) GetPendingPublish(packetID uint16) (*PendingMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.PendingPublish[packetID]
	return msg, ok
}

// GetAllPendingPublish returns all pending publish messages
func (s *Session) GetAllPendingPublish() map[uint16]*PendingMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make(map[uint16]*PendingMessage, len(s.PendingPublish))
	for k, v := range s.PendingPublish {
		msgs[k] = v
	}
	return msgs
}

// AddPendingPubrel adds a pending PUBREL marker
func (s *Session) AddPendingPubrel(packetID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PendingPubrel[packetID] = struct{}{}
}

// RemovePendingPubrel removes a pending PUBREL marker
func (s *Session) RemovePendingPubrel(packetID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.PendingPubrel, packetID)
}

// HasPendingPubrel checks if a PUBREL is pending
func (s *Session) HasPendingPubrel(packetID uint16) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.PendingPubrel[packetID]
	return ok
}

// AddPendingPubcomp adds a pending PUBCOMP marker
func (s *Session) AddPendingPubcomp(packetID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PendingPubcomp[packetID] = struct{}{}
}

// RemovePendingPubcomp removes a pending PUBCOMP marker
func (s *Session) RemovePendingPubcomp(packetID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.PendingPubcomp, packetID)
}

// HasPendingPubcomp checks if a PUBCOMP is pending
func (s *Session) HasPendingPubcomp(packetID uint16) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.PendingPubcomp[packetID]
	return ok
}

// Clear clears all session data, as happens on a clean-session reconnect.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Subscriptions = make(map[string]*Subscription)
	s.PendingPublish = make(map[uint16]*PendingMessage)
	s.PendingPubrel = make(map[uint16]struct{})
	s.PendingPubcomp = make(map[uint16]struct{})
}

// GetClientID returns the client ID
func (s *Session) GetClientID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ClientID
}

// GetCleanSession returns the clean session flag
func (s *Session) GetCleanSession() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CleanSession
}

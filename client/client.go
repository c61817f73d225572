package client

import (
	"context"
	"sync"
	"time"

	"github.com/axmqtt/mqttc/encoding"
	"github.com/axmqtt/mqttc/hook"
	"github.com/axmqtt/mqttc/network"
	"github.com/axmqtt/mqttc/qos"
	"github.com/axmqtt/mqttc/session"
	"github.com/axmqtt/mqttc/topic"
	"github.com/axmqtt/mqttc/types/message"
)

// Client is a single MQTT 3.1.1 connection to one broker: one
// network.Connection, one encoding.Decoder feeding a read loop, one
// qos.Handler for outbound retransmission, one topic.Router for inbound
// dispatch, one session.Store for durability across reconnects, one
// hook.Manager for lifecycle observation, and (when KeepAlive is set) one
// network.KeepAlive timer.
type Client struct {
	address string
	opts    *Options
	dialer  *network.Dialer
	hooks   *hook.Manager

	writeMu sync.Mutex

	mu            sync.Mutex
	conn          *network.Connection
	decoder       *encoding.Decoder
	sess          *session.Session
	qosH          *qos.Handler
	router        *topic.Router
	keepAlive     *network.KeepAlive
	reconnector   *network.Reconnector
	connected     bool
	closed        bool
	disconnecting bool

	packetIDMu   sync.Mutex
	nextPacketID uint16

	pendingMu sync.Mutex
	connack   chan connackResult
	subacks   map[uint16]chan *subackBody
	unsubacks map[uint16]chan *unsubackBody
	pingResp  chan struct{}

	readDone  chan struct{}
	closeOnce sync.Once
}

type connackResult struct {
	body *connackBody
	err  error
}

// NewClient constructs a Client bound to address, not yet connected.
func NewClient(address string, opts Options) (*Client, error) {
	if address == "" {
		return nil, ErrInvalidAddress
	}
	o := opts.withDefaults()
	if err := o.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		address: address,
		opts:    o,
		hooks:   hook.NewManager(),
		dialer: &network.Dialer{
			TLSConfig:   o.TLSConfig,
			DialTimeout: o.DialTimeout,
		},
		router:    topic.NewRouter(),
		subacks:   make(map[uint16]chan *subackBody),
		unsubacks: make(map[uint16]chan *unsubackBody),
		pingResp:  make(chan struct{}, 1),
	}

	return c, nil
}

// Hooks returns the lifecycle hook manager so callers can Add/Remove hooks
// before Connect.
func (c *Client) Hooks() *hook.Manager {
	return c.hooks
}

// Connect dials the broker, performs the CONNECT/CONNACK handshake, and
// starts the read loop and keep-alive timer. Connect is not reentrant: call
// it once per Client, or after a clean Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, c.address)
	if err != nil {
		return err
	}

	if err := c.handshake(ctx, conn); err != nil {
		return err
	}

	if c.opts.AutoReconnect {
		connectFn := func() (*network.Connection, error) {
			return c.dialer.Dial(context.Background(), c.address)
		}
		reconnector, err := network.NewReconnector(context.Background(), &network.RecoveryConfig{
			BackoffConfig:  c.opts.ReconnectConfig,
			EnableRecovery: true,
		}, connectFn)
		if err == nil {
			c.mu.Lock()
			c.reconnector = reconnector
			c.mu.Unlock()
		}
	}

	return nil
}

// handshake dials having already happened: it wires a fresh decoder, QoS
// handler and read loop around conn, performs the CONNECT/CONNACK exchange,
// and starts the keep-alive timer on success.
func (c *Client) handshake(ctx context.Context, conn *network.Connection) error {
	hookOpts := &hook.ConnectOptions{
		ClientID:     c.opts.ClientID,
		CleanSession: c.opts.CleanSession,
		KeepAlive:    c.opts.KeepAlive,
	}
	if err := c.hooks.OnConnect(hookOpts); err != nil {
		conn.Close()
		return err
	}

	sess, sessionPresent, err := c.loadOrCreateSession()
	if err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.sess = sess
	c.connack = make(chan connackResult, 1)
	c.qosH = qos.NewHandler(c.opts.QoSConfig)
	c.decoder = encoding.NewDecoder(c.onPacket)
	c.mu.Unlock()

	c.wirePublishCallbacks()

	c.readDone = make(chan struct{})
	go c.readLoop(conn)

	connectPkt, err := encoding.EncodeConnect(encoding.ConnectOptions{
		ClientID:     c.opts.ClientID,
		CleanSession: c.opts.CleanSession,
		KeepAlive:    c.opts.KeepAlive,
		HasUsername:  c.opts.Username != "",
		Username:     c.opts.Username,
		HasPassword:  len(c.opts.Password) > 0,
		Password:     c.opts.Password,
		HasWill:      c.opts.WillTopic != "",
		WillTopic:    c.opts.WillTopic,
		WillMessage:  c.opts.WillMessage,
		WillQoS:      c.opts.WillQoS,
		WillRetain:   c.opts.WillRetain,
	})
	if err != nil {
		conn.Close()
		return err
	}

	if err := c.writePacket(connectPkt); err != nil {
		conn.Close()
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	select {
	case res := <-c.connack:
		if res.err != nil {
			conn.Close()
			return res.err
		}
		if res.body.ReturnCode != 0 {
			conn.Close()
			return &ConnackError{Code: res.body.ReturnCode}
		}
		sessionPresent = res.body.SessionPresent
	case <-connectCtx.Done():
		conn.Close()
		return ErrConnectTimeout
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	if c.opts.KeepAlive > 0 {
		c.startKeepAlive()
	}

	c.hooks.OnConnected(sessionPresent)
	c.opts.Logger.Info("connected", "client_id", c.opts.ClientID, "address", c.address, "session_present", sessionPresent)

	return nil
}

// reconnect is invoked from the read loop once a connection drops
// unexpectedly while AutoReconnect is enabled. It redials with backoff and
// replays the CONNECT handshake, then re-subscribes every filter the
// router still holds for this client identity.
func (c *Client) reconnect() {
	c.mu.Lock()
	reconnector := c.reconnector
	closed := c.closed
	c.mu.Unlock()

	if reconnector == nil || closed {
		return
	}

	c.hooks.OnReconnect(1, c.opts.ReconnectConfig.InitialInterval)
	c.opts.Logger.Warn("reconnecting", "client_id", c.opts.ClientID, "address", c.address)

	conn, err := reconnector.Connect()
	if err != nil {
		c.opts.Logger.Error("reconnect failed", "client_id", c.opts.ClientID, "err", err)
		return
	}

	if err := c.handshake(context.Background(), conn); err != nil {
		c.opts.Logger.Error("reconnect handshake failed", "client_id", c.opts.ClientID, "err", err)
		return
	}

	for _, sub := range c.router.GetClientSubscriptions(c.opts.ClientID) {
		pkt, err := encoding.EncodeSubscribe(c.allocatePacketID(), []encoding.SubscribeEntry{{TopicFilter: sub.TopicFilter, QoS: encoding.QoS(sub.QoS)}})
		if err == nil {
			_ = c.writePacket(pkt)
		}
	}
}

func (c *Client) loadOrCreateSession() (*session.Session, bool, error) {
	if c.opts.Store == nil || c.opts.CleanSession {
		if c.opts.Store != nil {
			_ = c.opts.Store.Delete(context.Background(), c.opts.ClientID)
		}
		return session.New(c.opts.ClientID, c.opts.CleanSession), false, nil
	}

	existing, err := c.opts.Store.Load(context.Background(), c.opts.ClientID)
	if err == nil {
		return existing, true, nil
	}
	if err != session.ErrSessionNotFound {
		return nil, false, err
	}
	return session.New(c.opts.ClientID, c.opts.CleanSession), false, nil
}

func (c *Client) wirePublishCallbacks() {
	c.qosH.SetDeliverCallback(func(msg *message.Message) error {
		c.deliverMessage(msg.Topic, msg.Payload, byte(msg.QoS), msg.Retain)
		return nil
	})
	c.qosH.SetPublishCallback(func(msg *message.Message) error {
		pkt, err := encoding.EncodePublish(msg.QoS, msg.DUP, msg.Retain, msg.PacketID, msg.Topic, msg.Payload)
		if err != nil {
			return err
		}
		return c.writePacket(pkt)
	})
	c.qosH.SetPubackCallback(func(packetID uint16) error {
		pkt, err := encoding.EncodePublishAck(packetID)
		if err != nil {
			return err
		}
		return c.writePacket(pkt)
	})
	c.qosH.SetPubrecCallback(func(packetID uint16) error {
		pkt, err := encoding.EncodePublishReceived(packetID)
		if err != nil {
			return err
		}
		return c.writePacket(pkt)
	})
	c.qosH.SetPubrelCallback(func(packetID uint16) error {
		pkt, err := encoding.EncodePublishRelease(packetID)
		if err != nil {
			return err
		}
		return c.writePacket(pkt)
	})
	c.qosH.SetPubcompCallback(func(packetID uint16) error {
		pkt, err := encoding.EncodePublishComplete(packetID)
		if err != nil {
			return err
		}
		return c.writePacket(pkt)
	})
}

func (c *Client) writePacket(pkt []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	_, err := conn.Write(pkt)
	return err
}

func (c *Client) readLoop(conn *network.Connection) {
	defer close(c.readDone)

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if feedErr := c.decoder.Feed(buf[:n]); feedErr != nil {
				c.opts.Logger.Error("malformed packet, closing connection", "client_id", c.opts.ClientID, "err", feedErr)
				c.hooks.OnDisconnect(feedErr)
				return
			}
		}
		if err != nil {
			c.mu.Lock()
			c.connected = false
			autoReconnect := c.opts.AutoReconnect && !c.closed && !c.disconnecting
			c.mu.Unlock()
			c.opts.Logger.Warn("connection lost", "client_id", c.opts.ClientID, "err", err)
			c.hooks.OnDisconnect(err)
			if autoReconnect {
				go c.reconnect()
			}
			return
		}
	}
}

// onPacket is the encoding.Decoder completion callback, invoked synchronously
// from the read loop goroutine for every fully reassembled packet.
func (c *Client) onPacket(packetType encoding.PacketType, flags byte, body []byte) {
	switch packetType {
	case encoding.CONNACK:
		cb, err := parseConnack(body)
		c.pendingMu.Lock()
		ch := c.connack
		c.pendingMu.Unlock()
		if ch != nil {
			select {
			case ch <- connackResult{body: cb, err: err}:
			default:
			}
		}

	case encoding.PUBLISH:
		pb, qos, dup, retain, err := parsePublish(flags, body)
		if err != nil {
			return
		}
		msg := message.NewMessage(pb.PacketID, pb.Topic, pb.Payload, qos, retain)
		msg.DUP = dup
		_ = c.qosH.HandlePublish(msg)

	case encoding.PUBACK:
		if id, err := parsePacketID(body); err == nil {
			_ = c.qosH.HandlePuback(id)
		}

	case encoding.PUBREC:
		if id, err := parsePacketID(body); err == nil {
			_ = c.qosH.HandlePubrec(id)
		}

	case encoding.PUBREL:
		if id, err := parsePacketID(body); err == nil {
			_ = c.qosH.HandlePubrel(id)
		}

	case encoding.PUBCOMP:
		if id, err := parsePacketID(body); err == nil {
			_ = c.qosH.HandlePubcomp(id)
		}

	case encoding.SUBACK:
		sb, err := parseSuback(body)
		if err != nil {
			return
		}
		c.pendingMu.Lock()
		ch, ok := c.subacks[sb.PacketID]
		if ok {
			delete(c.subacks, sb.PacketID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- sb
		}

	case encoding.UNSUBACK:
		ub, err := parseUnsuback(body)
		if err != nil {
			return
		}
		c.pendingMu.Lock()
		ch, ok := c.unsubacks[ub.PacketID]
		if ok {
			delete(c.unsubacks, ub.PacketID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- ub
		}

	case encoding.PINGRESP:
		c.mu.Lock()
		ka := c.keepAlive
		c.mu.Unlock()
		if ka != nil {
			ka.OnPong()
		}
		select {
		case c.pingResp <- struct{}{}:
		default:
		}
	}
}

func (c *Client) deliverMessage(topicName string, payload []byte, qos byte, retain bool) {
	c.hooks.OnMessage(&hook.PublishMessage{
		Topic:   topicName,
		Payload: payload,
		QoS:     encoding.QoS(qos),
		Retain:  retain,
	})

	for _, sub := range c.router.Match(topicName) {
		if sub.Handler != nil {
			sub.Handler(topicName, payload, qos, retain)
		}
	}
}

func (c *Client) startKeepAlive() {
	interval := time.Duration(c.opts.KeepAlive) * time.Second
	cfg := &network.KeepAliveConfig{
		Interval:   interval,
		Timeout:    interval,
		MaxRetries: 3,
		PingHandler: func(*network.Connection) error {
			pkt, err := encoding.EncodePing()
			if err != nil {
				return err
			}
			return c.writePacket(pkt)
		},
	}

	ka := network.NewKeepAlive(c.conn, cfg)
	c.mu.Lock()
	c.keepAlive = ka
	c.mu.Unlock()
	ka.Start()
}

// allocatePacketID allocates a SUBSCRIBE/UNSUBSCRIBE packet id, independent
// of the PUBLISH ids qos.Handler allocates for QoS 1/2.
func (c *Client) allocatePacketID() uint16 {
	c.packetIDMu.Lock()
	defer c.packetIDMu.Unlock()
	c.nextPacketID++
	if c.nextPacketID == 0 {
		c.nextPacketID = 1
	}
	return c.nextPacketID
}

// Publish sends a PUBLISH. For qos 0 it writes directly to the wire; for
// qos 1/2 it is handed to qos.Handler, which allocates the packet id and
// keeps it for retry bookkeeping; the packet id is not returned.
func (c *Client) Publish(ctx context.Context, topicName string, payload []byte, qosLevel encoding.QoS, retain bool) error {
	if !c.isConnected() {
		return ErrNotConnected
	}

	if err := c.hooks.OnPublish(&hook.PublishMessage{Topic: topicName, Payload: payload, QoS: qosLevel, Retain: retain}); err != nil {
		return err
	}

	switch qosLevel {
	case encoding.QoS0:
		pkt, err := encoding.EncodePublish(encoding.QoS0, false, retain, 0, topicName, payload)
		if err != nil {
			return err
		}
		return c.writePacket(pkt)
	case encoding.QoS1:
		_, err := c.qosH.PublishQoS1(topicName, payload, retain)
		return err
	case encoding.QoS2:
		_, err := c.qosH.PublishQoS2(topicName, payload, retain)
		return err
	default:
		return encoding.ErrInvalidQoS
	}
}

// Subscribe sends a SUBSCRIBE for filter and registers handler to be
// invoked for each matching inbound PUBLISH, once the broker's SUBACK
// confirms the subscription.
func (c *Client) Subscribe(ctx context.Context, filter string, qosLevel encoding.QoS, handler topic.HandlerFunc) error {
	if !c.isConnected() {
		return ErrNotConnected
	}

	packetID := c.allocatePacketID()
	ch := make(chan *subackBody, 1)

	c.pendingMu.Lock()
	c.subacks[packetID] = ch
	c.pendingMu.Unlock()

	pkt, err := encoding.EncodeSubscribe(packetID, []encoding.SubscribeEntry{{TopicFilter: filter, QoS: qosLevel}})
	if err != nil {
		c.pendingMu.Lock()
		delete(c.subacks, packetID)
		c.pendingMu.Unlock()
		return err
	}

	if err := c.writePacket(pkt); err != nil {
		c.pendingMu.Lock()
		delete(c.subacks, packetID)
		c.pendingMu.Unlock()
		return err
	}

	select {
	case sb := <-ch:
		if sb.ReturnCodes[0] == 0x80 {
			return ErrSubscribeRefused
		}
	case <-ctx.Done():
		return ErrSubscribeTimeout
	}

	sub := &topic.Subscription{
		ClientID:    c.opts.ClientID,
		TopicFilter: filter,
		QoS:         byte(qosLevel),
		Handler:     handler,
	}
	if err := c.router.Subscribe(sub); err != nil {
		return err
	}

	c.sess.AddSubscription(&session.Subscription{TopicFilter: filter, QoS: byte(qosLevel), SubscribedAt: time.Now()})

	return nil
}

// Unsubscribe sends an UNSUBSCRIBE for filter and removes the local
// subscription once the broker's UNSUBACK confirms it.
func (c *Client) Unsubscribe(ctx context.Context, filter string) error {
	if !c.isConnected() {
		return ErrNotConnected
	}

	packetID := c.allocatePacketID()
	ch := make(chan *unsubackBody, 1)

	c.pendingMu.Lock()
	c.unsubacks[packetID] = ch
	c.pendingMu.Unlock()

	pkt, err := encoding.EncodeUnsubscribe(packetID, []string{filter})
	if err != nil {
		c.pendingMu.Lock()
		delete(c.unsubacks, packetID)
		c.pendingMu.Unlock()
		return err
	}

	if err := c.writePacket(pkt); err != nil {
		c.pendingMu.Lock()
		delete(c.unsubacks, packetID)
		c.pendingMu.Unlock()
		return err
	}

	select {
	case <-ch:
	case <-ctx.Done():
		return ErrUnsubscribeTimeout
	}

	c.router.Unsubscribe(c.opts.ClientID, filter)
	c.sess.RemoveSubscription(filter)

	return nil
}

// Ping sends a PINGREQ and waits for the matching PINGRESP.
func (c *Client) Ping(ctx context.Context) error {
	if !c.isConnected() {
		return ErrNotConnected
	}

	pkt, err := encoding.EncodePing()
	if err != nil {
		return err
	}
	if err := c.writePacket(pkt); err != nil {
		return err
	}

	select {
	case <-c.pingResp:
		return nil
	case <-ctx.Done():
		return ErrPingTimeout
	}
}

// Disconnect sends a DISCONNECT, persists the session (when a Store is
// configured and CleanSession is false), and tears down the connection.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	ka := c.keepAlive
	sess := c.sess
	c.connected = false
	c.disconnecting = true
	c.mu.Unlock()

	pkt, err := encoding.EncodeDisconnect()
	if err == nil {
		_ = c.writePacket(pkt)
	}

	if ka != nil {
		ka.Stop()
	}

	if c.opts.Store != nil && !c.opts.CleanSession && sess != nil {
		_ = c.opts.Store.Save(ctx, sess)
	}

	closeErr := conn.Close()
	<-c.readDone

	c.hooks.OnDisconnect(nil)
	c.opts.Logger.Info("disconnected", "client_id", c.opts.ClientID)

	return closeErr
}

// Close releases the QoS handler's background goroutines. Call it once a
// Client is no longer needed, typically after Disconnect.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		qosH := c.qosH
		c.mu.Unlock()

		if qosH != nil {
			err = qosH.Close()
		}
		c.hooks.Clear()
	})
	return err
}

func (c *Client) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && !c.closed
}

package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.dedis.ch/statetree/envelope"
	"go.dedis.ch/statetree/id"
	"go.dedis.ch/statetree/log"
	"go.dedis.ch/statetree/state"
	"golang.org/x/xerrors"
)

const (
	stateChangeExchange       = "state_change"
	stateNotificationExchange = "state_notification"
)

// EnvelopeFormat picks the on-wire encoding used by the broker
// transport, selected by the `broker.envelope_format` key.
type EnvelopeFormat string

const (
	// FormatText uses the JSON envelope codec.
	FormatText EnvelopeFormat = "text"
	// FormatBinary uses the length-prefixed binary envelope codec.
	FormatBinary EnvelopeFormat = "binary"
)

func encode(format EnvelopeFormat, e envelope.Envelope) ([]byte, error) {
	if format == FormatBinary {
		return envelope.EncodeBinary(e)
	}
	return envelope.EncodeText(e)
}

func decode(format EnvelopeFormat, b []byte) (envelope.Envelope, error) {
	if format == FormatBinary {
		return envelope.DecodeBinary(b)
	}
	return envelope.DecodeText(b)
}

// BrokerConfig configures the Broker transport.
type BrokerConfig struct {
	URL         string
	RPCTimeout  time.Duration
	Format      EnvelopeFormat
	Validation  bool
	PortRange   envelope.PortRange
	RetryPolicy RetryPolicy
	// GetDelay is the artificial pause applied before answering a
	// GetState RPC, the broker-side equivalent of the direct
	// transport's delayed GET response.
	GetDelay time.Duration
}

// Broker is the topic-exchange publish + RPC transport: state changes
// and notifications flow through two topic exchanges keyed by the
// recipient's routing key, and state queries use a reply-queue RPC with
// correlation ids.
type Broker struct {
	self id.NodeId
	cfg  BrokerConfig

	mu       sync.Mutex
	conn     *amqp.Connection
	pubCh    *amqp.Channel
	closed   bool
	doneChan chan struct{}
}

// NewBroker dials the broker at cfg.URL and declares the two topic
// exchanges this transport depends on.
func NewBroker(self id.NodeId, cfg BrokerConfig) (*Broker, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Errorf("broker: dial %s: %w", cfg.URL, err)
	}
	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Errorf("broker: open publish channel: %w", err)
	}
	for _, ex := range []string{stateChangeExchange, stateNotificationExchange} {
		if err := pubCh.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, xerrors.Errorf("broker: declare exchange %s: %w", ex, err)
		}
	}
	return &Broker{
		self:     self,
		cfg:      cfg,
		conn:     conn,
		pubCh:    pubCh,
		doneChan: make(chan struct{}),
	}, nil
}

func (b *Broker) publish(exchange, routingKey string, e envelope.Envelope) error {
	body, err := encode(b.cfg.Format, e)
	if err != nil {
		return xerrors.Errorf("broker: encode %s: %w", e.Tag, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.pubCh.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/octet-stream",
		Body:        body,
	})
}

func (b *Broker) publishWithRetry(exchange, routingKey string, e envelope.Envelope) {
	var lastErr error
	for attempt := 0; attempt < b.cfg.RetryPolicy.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-b.doneChan:
				return
			case <-time.After(b.cfg.RetryPolicy.Backoff):
			}
		}
		if err := b.publish(exchange, routingKey, e); err != nil {
			lastErr = err
			continue
		}
		log.Lvl3("broker: sent ", e.Tag, " -> ", routingKey)
		return
	}
	log.Warnf("broker: publish to %s (%s) dropped after retries: %v", routingKey, exchange, lastErr)
}

// SendStart publishes Orange(Running, p) to dst's routing key on the
// state_change exchange.
func (b *Broker) SendStart(dst id.NodeId, p float64) {
	go b.publishWithRetry(stateChangeExchange, dst.RoutingKey(), envelope.NewOrangeStart(p))
}

// SendStop publishes Orange(Stopped) to dst and returns once the
// publish has been written to the broker connection, with its error.
// Publisher confirms are not enabled, so no broker acknowledgement is
// awaited, and a failed publish is not retried.
func (b *Broker) SendStop(dst id.NodeId) error {
	return b.publish(stateChangeExchange, dst.RoutingKey(), envelope.NewOrangeStop())
}

// Notify publishes a Red notification to dst on the state_notification
// exchange.
func (b *Broker) Notify(dst id.NodeId, sender id.NodeId, s state.Kind, ts float64) {
	go b.publishWithRetry(stateNotificationExchange, dst.RoutingKey(), envelope.NewRed(sender, s, ts))
}

// GetState issues a White RPC request to dst's rpc_queue and waits up
// to cfg.RPCTimeout for a matching Blue reply.
func (b *Broker) GetState(dst id.NodeId) (state.Kind, bool) {
	replyQueue, err := b.pubCh.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		log.Warnf("broker: GetState(%s): declaring reply queue: %v", dst, err)
		return 0, false
	}
	msgs, err := b.pubCh.Consume(replyQueue.Name, "", true, true, false, false, nil)
	if err != nil {
		log.Warnf("broker: GetState(%s): consuming reply queue: %v", dst, err)
		return 0, false
	}

	corrID := uuid.New().String()
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.RPCTimeout)
	defer cancel()

	body, err := encode(b.cfg.Format, envelope.NewWhite())
	if err != nil {
		return 0, false
	}
	err = b.pubCh.PublishWithContext(ctx, "", rpcQueueName(dst), false, false, amqp.Publishing{
		ContentType:   "application/octet-stream",
		CorrelationId: corrID,
		ReplyTo:       replyQueue.Name,
		Body:          body,
	})
	if err != nil {
		return 0, false
	}

	for {
		select {
		case <-ctx.Done():
			return 0, false
		case msg, ok := <-msgs:
			if !ok {
				return 0, false
			}
			if msg.CorrelationId != corrID {
				continue
			}
			e, err := decode(b.cfg.Format, msg.Body)
			if err != nil || e.Tag != envelope.Blue {
				return 0, false
			}
			s, err := state.Parse(e.BlueMsg.State)
			if err != nil {
				return 0, false
			}
			return s, true
		}
	}
}

func rpcQueueName(n id.NodeId) string {
	return "rpc_queue:" + n.RoutingKey()
}

// Serve binds a queue to both topic exchanges on self's routing key
// and starts the RPC responder on rpc_queue:<self>.
func (b *Broker) Serve(recv Receiver) error {
	consumeCh, err := b.conn.Channel()
	if err != nil {
		return xerrors.Errorf("broker: open consume channel: %w", err)
	}
	key := b.self.RoutingKey()

	q, err := consumeCh.QueueDeclare("node:"+key, true, false, false, false, nil)
	if err != nil {
		return xerrors.Errorf("broker: declare queue: %w", err)
	}
	if err := consumeCh.QueueBind(q.Name, key, stateChangeExchange, false, nil); err != nil {
		return xerrors.Errorf("broker: bind %s to %s: %w", q.Name, stateChangeExchange, err)
	}
	if err := consumeCh.QueueBind(q.Name, key, stateNotificationExchange, false, nil); err != nil {
		return xerrors.Errorf("broker: bind %s to %s: %w", q.Name, stateNotificationExchange, err)
	}
	deliveries, err := consumeCh.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		return xerrors.Errorf("broker: consume %s: %w", q.Name, err)
	}

	rpcQ, err := consumeCh.QueueDeclare(rpcQueueName(b.self), true, false, false, false, nil)
	if err != nil {
		return xerrors.Errorf("broker: declare rpc queue: %w", err)
	}
	rpcDeliveries, err := consumeCh.Consume(rpcQ.Name, "", true, false, false, false, nil)
	if err != nil {
		return xerrors.Errorf("broker: consume rpc queue: %w", err)
	}

	go b.consumeLoop(deliveries, recv)
	go b.rpcLoop(consumeCh, rpcDeliveries, recv)
	return nil
}

func (b *Broker) consumeLoop(deliveries <-chan amqp.Delivery, recv Receiver) {
	for {
		select {
		case <-b.doneChan:
			return
		case msg, ok := <-deliveries:
			if !ok {
				return
			}
			e, err := decode(b.cfg.Format, msg.Body)
			if err != nil {
				log.Warnf("broker: dropping undecodable message on %s: %v", msg.RoutingKey, err)
				continue
			}
			if b.cfg.Validation {
				if err := envelope.Validate(e, b.cfg.PortRange); err != nil {
					log.Warnf("broker: dropping invalid %s: %v", e.Tag, err)
					continue
				}
			}
			b.dispatch(e, recv)
		}
	}
}

func (b *Broker) dispatch(e envelope.Envelope, recv Receiver) {
	switch e.Tag {
	case envelope.Orange:
		if e.OrangeMsg.Name == "Running" {
			recv.OnStart(e.OrangeMsg.ChanceToFail)
		} else {
			recv.OnStop()
		}
	case envelope.Red:
		sender, err := id.FromRoutingKey(e.RedMsg.Sender)
		if err != nil {
			log.Warnf("broker: dropping notification with bad sender %q: %v", e.RedMsg.Sender, err)
			return
		}
		s, err := state.Parse(e.RedMsg.ToState)
		if err != nil {
			log.Warnf("broker: dropping notification with bad state %q: %v", e.RedMsg.ToState, err)
			return
		}
		recv.OnNotification(sender, s, e.RedMsg.Ts)
	default:
		log.Warnf("broker: unexpected envelope kind %s on consume loop", e.Tag)
	}
}

func (b *Broker) rpcLoop(ch *amqp.Channel, deliveries <-chan amqp.Delivery, recv Receiver) {
	for {
		select {
		case <-b.doneChan:
			return
		case msg, ok := <-deliveries:
			if !ok {
				return
			}
			e, err := decode(b.cfg.Format, msg.Body)
			if err != nil || e.Tag != envelope.White {
				log.Warnf("broker: dropping malformed RPC request: %v", err)
				continue
			}
			if b.cfg.GetDelay > 0 {
				select {
				case <-b.doneChan:
					return
				case <-time.After(b.cfg.GetDelay):
				}
			}
			reply := envelope.NewBlue(recv.OnGetState())
			body, err := encode(b.cfg.Format, reply)
			if err != nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = ch.PublishWithContext(ctx, "", msg.ReplyTo, false, false, amqp.Publishing{
				ContentType:   "application/octet-stream",
				CorrelationId: msg.CorrelationId,
				Body:          body,
			})
			cancel()
			if err != nil {
				log.Warnf("broker: replying to %s: %v", msg.ReplyTo, err)
			}
		}
	}
}

// Close stops the consume/RPC loops and tears down the AMQP connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.doneChan)
	if err := b.pubCh.Close(); err != nil {
		log.Warnf("broker: closing publish channel: %v", err)
	}
	return b.conn.Close()
}

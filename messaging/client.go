// Package messaging publishes bomdesk domain events to Kafka or MQTT through a
// transactional outbox, and consumes propagation commands.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"bomdesk/config"
	"bomdesk/logging"
)

const (
	BackendKafka = "kafka"
	BackendMQTT  = "mqtt"
	BackendNone  = "none"
)

// ErrDisabled is returned by Publish when the backend is "none".
var ErrDisabled = errors.New("messaging disabled")

// Client is the unified messaging client (Kafka or MQTT).
type Client struct {
	mu       sync.RWMutex
	cfg      *config.MessagingConfig
	log      *zap.Logger
	mqttConn mqtt.Client
	kafkaW   *kafka.Writer
	readers  []*kafka.Reader
	wg       sync.WaitGroup
}

func NewClient(cfg *config.MessagingConfig, log *zap.Logger) *Client {
	return &Client{cfg: cfg, log: logging.OrNop(log).Named("messaging")}
}

// Backend returns the configured backend name.
func (c *Client) Backend() string {
	if c.cfg.Backend == "" {
		return BackendNone
	}
	return c.cfg.Backend
}

// Connect establishes the messaging connection. The "none" backend connects
// to nothing and succeeds.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.Backend() {
	case BackendKafka:
		return c.connectKafka()
	case BackendMQTT:
		return c.connectMQTT()
	case BackendNone:
		return nil
	default:
		return fmt.Errorf("unknown messaging backend: %s", c.cfg.Backend)
	}
}

func (c *Client) connectKafka() error {
	if len(c.cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	// Verify at least one broker is reachable
	var conn *kafka.Conn
	var connErr error
	for _, broker := range c.cfg.Kafka.Brokers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, connErr = kafka.DialContext(ctx, "tcp", broker)
		cancel()
		if connErr == nil {
			c.log.Info("kafka connected", zap.String("broker", broker))
			break
		}
	}
	if connErr != nil {
		return fmt.Errorf("kafka connect: %w", connErr)
	}
	c.ensureTopics(conn, c.cfg.EventsTopic, c.cfg.CommandsTopic)
	conn.Close()

	c.kafkaW = &kafka.Writer{
		Addr:         kafka.TCP(c.cfg.Kafka.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	return nil
}

// ensureTopics creates Kafka topics if they don't already exist. Errors are
// logged only; brokers may auto-create topics anyway.
func (c *Client) ensureTopics(conn *kafka.Conn, topics ...string) {
	controller, err := conn.Controller()
	if err != nil {
		c.log.Warn("cannot find controller for topic creation", zap.Error(err))
		return
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		c.log.Warn("cannot connect to controller", zap.Error(err))
		return
	}
	defer controllerConn.Close()

	var configs []kafka.TopicConfig
	for _, t := range topics {
		if t == "" {
			continue
		}
		configs = append(configs, kafka.TopicConfig{Topic: t, NumPartitions: 1, ReplicationFactor: 1})
	}
	if err := controllerConn.CreateTopics(configs...); err != nil {
		c.log.Warn("topic auto-create", zap.Error(err))
	}
}

func (c *Client) connectMQTT() error {
	broker := fmt.Sprintf("tcp://%s:%d", c.cfg.MQTT.Broker, c.cfg.MQTT.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(c.cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt connect: timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.log.Info("mqtt connected", zap.String("broker", broker))
	c.mqttConn = client
	return nil
}

// Publish sends one message to topic.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.Backend() {
	case BackendKafka:
		if c.kafkaW == nil {
			return fmt.Errorf("kafka not connected")
		}
		return c.kafkaW.WriteMessages(ctx, kafka.Message{Topic: topic, Value: payload})
	case BackendMQTT:
		if c.mqttConn == nil || !c.mqttConn.IsConnected() {
			return fmt.Errorf("mqtt not connected")
		}
		token := c.mqttConn.Publish(topic, 1, false, payload)
		select {
		case <-token.Done():
			return token.Error()
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		return ErrDisabled
	}
}

// PublishEnvelope encodes and publishes an envelope to the given topic.
func (c *Client) PublishEnvelope(ctx context.Context, topic string, env *Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.Publish(ctx, topic, data)
}

// Subscribe registers a handler for messages on topic. Kafka readers run
// until Close.
func (c *Client) Subscribe(topic string, handler func(payload []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.Backend() {
	case BackendKafka:
		if c.kafkaW == nil {
			return fmt.Errorf("kafka not connected")
		}
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers: c.cfg.Kafka.Brokers,
			Topic:   topic,
			GroupID: c.cfg.Kafka.GroupID,
		})
		c.readers = append(c.readers, reader)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for {
				msg, err := reader.ReadMessage(context.Background())
				if err != nil {
					c.log.Debug("kafka reader stopped", zap.String("topic", topic), zap.Error(err))
					return
				}
				handler(msg.Value)
			}
		}()
		return nil
	case BackendMQTT:
		if c.mqttConn == nil {
			return fmt.Errorf("mqtt not connected")
		}
		token := c.mqttConn.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			handler(msg.Payload())
		})
		token.Wait()
		return token.Error()
	default:
		return ErrDisabled
	}
}

// IsConnected reports whether the client can publish.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.Backend() {
	case BackendKafka:
		return c.kafkaW != nil
	case BackendMQTT:
		return c.mqttConn != nil && c.mqttConn.IsConnected()
	default:
		return false
	}
}

// Close shuts down the connection and waits for reader goroutines to exit.
func (c *Client) Close() {
	c.mu.Lock()
	if c.mqttConn != nil {
		c.mqttConn.Disconnect(1000)
		c.mqttConn = nil
	}
	if c.kafkaW != nil {
		c.kafkaW.Close()
		c.kafkaW = nil
	}
	for _, r := range c.readers {
		r.Close()
	}
	c.readers = nil
	c.mu.Unlock()
	c.wg.Wait()
}

package messaging

import (
	"go.uber.org/zap"

	"bomdesk/logging"
)

// CommandHandler runs inbound propagation commands.
type CommandHandler interface {
	HandleRecompute(env *Envelope, cmd ProjectCommand)
	HandleSync(env *Envelope, cmd ProjectCommand)
	HandleRefresh(env *Envelope, cmd ProjectCommand)
}

// Consumer subscribes to the commands topic and routes messages to the handler.
type Consumer struct {
	client  *Client
	topic   string
	handler CommandHandler
	log     *zap.Logger
}

func NewConsumer(client *Client, topic string, handler CommandHandler, log *zap.Logger) *Consumer {
	return &Consumer{
		client:  client,
		topic:   topic,
		handler: handler,
		log:     logging.OrNop(log).Named("consumer"),
	}
}

func (c *Consumer) Start() error {
	return c.client.Subscribe(c.topic, c.HandleMessage)
}

// HandleMessage decodes one raw message and dispatches it.
func (c *Consumer) HandleMessage(payload []byte) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		c.log.Warn("decode error", zap.Error(err))
		return
	}
	cmd, _ := env.Payload.(ProjectCommand)
	switch env.MsgType {
	case TypeRecomputeRequest:
		c.handler.HandleRecompute(env, cmd)
	case TypeSyncRequest:
		c.handler.HandleSync(env, cmd)
	case TypeRefreshRequest:
		c.handler.HandleRefresh(env, cmd)
	}
}

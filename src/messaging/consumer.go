package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Message is a decoded fedora-messaging message.
type Message struct {
	ID    string
	Topic string
	Body  json.RawMessage
}

// TagBody is the body of a buildsys.tag message.
type TagBody struct {
	BuildID  int    `json:"build_id"`
	Name     string `json:"name"`
	Version  string `json:"version"`
	Release  string `json:"release"`
	Tag      string `json:"tag"`
	Instance string `json:"instance"`
	Owner    string `json:"owner"`
}

// NVR returns the name-version-release of the tagged build.
func (b TagBody) NVR() string {
	return b.Name + "-" + b.Version + "-" + b.Release
}

// RepoDoneBody is the body of a buildsys.repo.done message.
type RepoDoneBody struct {
	Tag    string `json:"tag"`
	RepoID int    `json:"repo_id"`
}

// IsTag reports whether topic is a koji build tag event.
func IsTag(topic string) bool {
	return strings.HasSuffix(topic, ".buildsys.tag")
}

// IsRepoDone reports whether topic is a koji repo regeneration event.
func IsRepoDone(topic string) bool {
	return strings.HasSuffix(topic, ".buildsys.repo.done")
}

// Tag decodes m as a tag message.
func (m Message) Tag() (TagBody, error) {
	var b TagBody
	if err := json.Unmarshal(m.Body, &b); err != nil {
		return b, fmt.Errorf("decoding tag message %s: %w", m.ID, err)
	}
	return b, nil
}

// RepoDone decodes m as a repo.done message.
func (m Message) RepoDone() (RepoDoneBody, error) {
	var b RepoDoneBody
	if err := json.Unmarshal(m.Body, &b); err != nil {
		return b, fmt.Errorf("decoding repo.done message %s: %w", m.ID, err)
	}
	return b, nil
}

// Handler processes a single message. Returning an error rejects it.
type Handler func(ctx context.Context, msg Message) error

// Consumer delivers messages from the configured queues to a Handler,
// reconnecting when the broker connection drops.
type Consumer struct {
	Config  *Config
	Logger  zerolog.Logger
	Backoff time.Duration

	dial func(url string, cfg amqp.Config) (*amqp.Connection, error)
}

// NewConsumer creates a consumer for cfg.
func NewConsumer(cfg *Config, logger zerolog.Logger) *Consumer {
	return &Consumer{Config: cfg, Logger: logger, Backoff: 5 * time.Second, dial: amqp.DialConfig}
}

// Consume runs until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	backoff := c.Backoff
	for {
		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		c.Logger.Error().Err(err).Dur("backoff", backoff).Msg("message consumer stopped, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context, handler Handler) error {
	tc, err := c.Config.TLSConfig()
	if err != nil {
		return err
	}
	props := amqp.NewConnectionProperties()
	for k, v := range c.Config.ClientProperties {
		props[k] = v
	}

	conn, err := c.dial(c.Config.AMQPURL, amqp.Config{
		TLSClientConfig: tc,
		Properties:      props,
		Heartbeat:       60 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.Config.QoS.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("setting qos: %w", err)
	}
	if err := c.declare(ch); err != nil {
		return err
	}

	deliveries := make(chan amqp.Delivery)
	done := make(chan struct{})
	defer close(done)
	for name := range c.Config.Queues {
		ds, err := ch.Consume(name, "", false, c.Config.Queues[name].Exclusive, false, false, nil)
		if err != nil {
			return fmt.Errorf("consuming from %s: %w", name, err)
		}
		go forward(done, ds, deliveries)
	}
	c.Logger.Info().Str("url", redact(c.Config.AMQPURL)).Int("queues", len(c.Config.Queues)).Msg("consuming messages")

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("connection closed")
			}
			return amqpErr
		case d := <-deliveries:
			msg := fromDelivery(d)
			if err := handler(ctx, msg); err != nil {
				c.Logger.Warn().Err(err).Str("id", msg.ID).Str("topic", msg.Topic).Msg("message rejected")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// forward copies deliveries from one queue into out until ds is drained or
// done is closed.
func forward(done <-chan struct{}, ds <-chan amqp.Delivery, out chan<- amqp.Delivery) {
	for d := range ds {
		select {
		case out <- d:
		case <-done:
			return
		}
	}
}

func (c *Consumer) declare(ch *amqp.Channel) error {
	for name, ex := range c.Config.Exchanges {
		kind := ex.Type
		if kind == "" {
			kind = amqp.ExchangeTopic
		}
		if err := ch.ExchangeDeclare(name, kind, ex.Durable, ex.AutoDelete, false, false, nil); err != nil {
			return fmt.Errorf("declaring exchange %s: %w", name, err)
		}
	}
	for name, q := range c.Config.Queues {
		if _, err := ch.QueueDeclare(name, q.Durable, q.AutoDelete, q.Exclusive, false, amqp.Table(q.Arguments)); err != nil {
			return fmt.Errorf("declaring queue %s: %w", name, err)
		}
	}
	for _, b := range c.Config.Bindings {
		for _, key := range b.RoutingKeys {
			if err := ch.QueueBind(b.Queue, key, b.Exchange, false, nil); err != nil {
				return fmt.Errorf("binding %s to %s: %w", b.Queue, key, err)
			}
		}
	}
	return nil
}

func fromDelivery(d amqp.Delivery) Message {
	id := d.MessageId
	if id == "" {
		if v, ok := d.Headers["fedora_messaging_message_id"].(string); ok {
			id = v
		}
	}
	return Message{ID: id, Topic: d.RoutingKey, Body: json.RawMessage(d.Body)}
}

// redact hides the password in an AMQP URL.
func redact(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return url
	}
	user, _, _ := strings.Cut(creds, ":")
	return scheme + "://" + user + ":***@" + host
}

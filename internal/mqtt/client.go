// Package mqtt subscribes to the broker relaying mesh traffic and feeds
// every message to a handler.
package mqtt

import (
	"context"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"meshmap/internal/logs"
)

// Handler receives every message published on the subscribed topic.
type Handler func(topic string, payload []byte)

// Options configures the broker connection.
type Options struct {
	Broker   string
	Topic    string
	Username string
	Password string

	// ClientID defaults to a fresh random id. Brokers disconnect the
	// older session when two clients share an id, so the default is
	// almost always right.
	ClientID string
}

// Client is a subscribing MQTT client. Reconnects and resubscribes are
// handled internally; the initial connect is the only fatal failure.
type Client struct {
	opts    Options
	handler Handler
	cli     paho.Client
}

func New(opts Options, h Handler) *Client {
	if opts.ClientID == "" {
		opts.ClientID = "meshmap-" + uuid.NewString()[:8]
	}
	c := &Client{opts: opts, handler: h}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	c.cli = paho.NewClient(po)
	return c
}

// Subscription happens in the connect handler so it is re-established
// after every reconnect.
func (c *Client) onConnect(cli paho.Client) {
	logs.L().WithField("broker", c.opts.Broker).Info("mqtt connected")

	token := cli.Subscribe(c.opts.Topic, 0, func(_ paho.Client, msg paho.Message) {
		c.handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		logs.L().WithField("topic", c.opts.Topic).WithError(err).Error("mqtt subscribe failed")
		return
	}
	logs.L().WithField("topic", c.opts.Topic).Info("mqtt subscribed")
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	logs.L().WithError(err).Warn("mqtt connection lost, reconnecting")
}

// Run connects and blocks until ctx is canceled. A failure to establish
// the initial connection is returned; later drops are retried forever by
// the paho reconnect loop.
func (c *Client) Run(ctx context.Context) error {
	token := c.cli.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", c.opts.Broker, err)
	}

	<-ctx.Done()
	c.cli.Disconnect(250)
	logs.L().Info("mqtt disconnected")
	return nil
}

// Package mqtt publishes access-grant events to an MQTT broker so home
// automation or door hardware can react to them.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"facegate/internal/config"
	"facegate/internal/core/engine"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Client wraps the paho MQTT connection for grant publishing.
type Client struct {
	config config.MQTTConfig
	client mqtt.Client
}

// grantMessage is the published payload.
type grantMessage struct {
	NationalID  string    `json:"cpf"`
	DisplayName string    `json:"nome"`
	Tier        string    `json:"nivel"`
	Distance    float64   `json:"distancia"`
	GrantedAt   time.Time `json:"concedido_em"`
}

// NewClient creates an unconnected client.
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{config: cfg}
}

// Start connects to the broker. A disabled configuration is a silent no-op.
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("MQTT connection lost: %v", err)
	})
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	c.client = mqtt.NewClient(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}
	return nil
}

// PublishGrant publishes one access grant. Failures are logged; a broker
// outage must never block the kiosk.
func (c *Client) PublishGrant(grant *engine.Grant) {
	if !c.config.Enabled || c.client == nil || !c.client.IsConnected() {
		return
	}

	payload, err := json.Marshal(grantMessage{
		NationalID:  grant.NationalID,
		DisplayName: grant.DisplayName,
		Tier:        grant.Tier,
		Distance:    grant.Distance,
		GrantedAt:   grant.At,
	})
	if err != nil {
		log.Errorf("Failed to encode grant message: %v", err)
		return
	}

	token := c.client.Publish(c.config.Topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		log.Errorf("Failed to publish grant to %s: %v", c.config.Topic, token.Error())
	}
}

// Stop disconnects from the broker.
func (c *Client) Stop() {
	if c.client != nil && c.client.IsConnected() {
		log.Info("Disconnecting MQTT client...")
		c.client.Disconnect(250)
	}
}

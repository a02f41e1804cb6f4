package broadcast

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/platewatch/platewatch-go/internal/conf"
	"github.com/platewatch/platewatch-go/internal/errors"
)

const (
	mqttConnectTimeout = 30 * time.Second
	mqttPublishTimeout = 5 * time.Second
)

// MQTTObserver relays new-detection events to an MQTT topic. It is a plain
// hub observer, so a broker outage degrades exactly like any other failing
// observer: logged and dropped, never failing the request.
type MQTTObserver struct {
	id     string
	topic  string
	client mqtt.Client
}

// NewMQTTObserver connects to the configured broker and returns an observer
// ready for registration on the hub.
func NewMQTTObserver(settings *conf.Settings) (*MQTTObserver, error) {
	cfg := settings.Realtime.MQTT

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(settings.Main.Name)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, errors.Newf("mqtt connection timeout").
			Component("broadcast").
			Category(errors.CategoryNetwork).
			Context("broker", cfg.Broker).
			Build()
	}
	if err := token.Error(); err != nil {
		return nil, errors.New(err).
			Component("broadcast").
			Category(errors.CategoryNetwork).
			Context("broker", cfg.Broker).
			Build()
	}

	return &MQTTObserver{
		id:     "mqtt:" + cfg.Broker,
		topic:  cfg.Topic,
		client: client,
	}, nil
}

// ID implements Observer.
func (o *MQTTObserver) ID() string {
	return o.id
}

// Send publishes new-detection events to the configured topic. Status events
// are skipped, they only matter to interactive observers.
func (o *MQTTObserver) Send(event Event) error {
	if event.Type != EventNewDetection {
		return nil
	}

	payload, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal detection event: %w", err)
	}

	token := o.client.Publish(o.topic, 0, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("mqtt publish timeout on topic %s", o.topic)
	}
	return token.Error()
}

// Close disconnects from the broker.
func (o *MQTTObserver) Close() {
	o.client.Disconnect(250)
}

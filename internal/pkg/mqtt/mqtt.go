package mqtt

import (
	"errors"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
)

const discoveryPrefix = "homeassistant"

// client is the part of paho_mqtt.Client this package uses.
type client interface {
	Connect() paho_mqtt.Token
	Publish(topic string, qos byte, retained bool, payload any) paho_mqtt.Token
}

type service struct {
	client client

	mu                sync.Mutex
	configuredSensors map[string]struct{}
}

func New(client client) *service {
	return &service{
		client:            client,
		configuredSensors: map[string]struct{}{},
	}
}

// NewClient builds a paho client for broker host with auto reconnect.
func NewClient(host, username, password string) paho_mqtt.Client {
	opts := paho_mqtt.NewClientOptions().
		AddBroker(host).
		SetClientID("homgar-integration").
		SetUsername(username).
		SetPassword(password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(5 * time.Second)
	return paho_mqtt.NewClient(opts)
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(time.Second * 5)
	if res {
		return token.Error()
	}
	if err := token.Error(); err != nil {
		return err
	}
	return errors.New("unable to connect in time")
}

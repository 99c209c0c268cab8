package clientmqtt

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected  = errors.New("mqtt: not connected")
	ErrPublishFailed = errors.New("mqtt: publish failed")
)

// MQTTConf client settings.
type MQTTConf struct {
	ClientID string // ClientID - уникальное имя клиента, пустое значение генерируется.
	Schema   string // Schema - тип подключения.
	Host     string // Host - адрес MQTT сервера.
	Port     string // Port - порт MQTT сервера.
	User     string // User - логин для подключения к MQTT серверу.
	Password string // Password - пароль для подключения к MQTT серверу.
	Qos      byte   // Qos - уровень доставки публикаций и подписок.
	Debug    bool   // Debug - выводить журнал paho.
}

func (c MQTTConf) broker() string {
	schema := c.Schema
	if schema == "" {
		schema = "tcp"
	}
	return fmt.Sprintf("%s://%s:%s", schema, c.Host, c.Port)
}

// EventKind type of a transport event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventConnectFailed
	EventConnectionLost
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventConnectFailed:
		return "connect-failed"
	case EventConnectionLost:
		return "connection-lost"
	case EventMessage:
		return "message"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is queued by paho callbacks and consumed by the main loop. Err is set
// for EventConnectFailed and EventConnectionLost, Topic, Payload and Retained
// for EventMessage.
type Event struct {
	Kind     EventKind
	Err      error
	Topic    string
	Payload  []byte
	Retained bool
}

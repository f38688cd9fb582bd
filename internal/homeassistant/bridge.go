package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"healthbox_bridge/internal/config"
	"healthbox_bridge/internal/entity"
	"healthbox_bridge/internal/logger"
	"healthbox_bridge/internal/models"
	"healthbox_bridge/internal/service"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	payloadOn      = "ON"
	payloadOff     = "OFF"
	payloadOnline  = "online"
	payloadOffline = "offline"

	defaultBoostLevel   = 100
	defaultBoostMinutes = 15

	commandTimeout = 15 * time.Second
)

// Publisher is the part of mqtt.Client the bridge uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Controller receives commands sent to the room command topics.
type Controller interface {
	StartRoomBoost(ctx context.Context, p service.BoostParams) error
	StopRoomBoost(ctx context.Context, roomID int) error
	ChangeRoomProfile(ctx context.Context, roomID int, profileName string) error
}

type Options struct {
	DiscoveryPrefix string
	TopicPrefix     string
}

// Bridge announces the entities of each snapshot over MQTT discovery,
// publishes their values and turns command messages into room actions.
type Bridge struct {
	client  Publisher
	control Controller
	opts    Options
	log     *logger.Logger

	mu         sync.Mutex
	serial     string
	announced  map[string]bool
	subscribed bool
}

func NewBridge(client Publisher, control Controller, opts Options, log *logger.Logger) *Bridge {
	if opts.DiscoveryPrefix == "" {
		opts.DiscoveryPrefix = "homeassistant"
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "healthbox"
	}
	opts.DiscoveryPrefix = strings.TrimRight(opts.DiscoveryPrefix, "/")
	opts.TopicPrefix = strings.TrimRight(opts.TopicPrefix, "/")
	return &Bridge{
		client:    client,
		control:   control,
		opts:      opts,
		log:       log.Named("mqtt"),
		announced: make(map[string]bool),
	}
}

// ClientOptions builds paho options from config. Subscriptions and discovery
// are (re)done from the OnConnect handler, so they survive reconnects.
func ClientOptions(cfg config.MQTTConfig, log *logger.Logger) *mqtt.ClientOptions {
	log = log.Named("mqtt")
	prefix := strings.TrimRight(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "healthbox"
	}
	return mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(10*time.Second).
		SetWill(prefix+"/status", payloadOffline, 1, true).
		SetConnectionLostHandler(func(client mqtt.Client, err error) {
			log.Warnw("mqtt_connection_lost", "error", err)
		}).
		SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
			log.Infow("mqtt_reconnecting")
		})
}

func (b *Bridge) availabilityTopic() string {
	return b.opts.TopicPrefix + "/status"
}

func (b *Bridge) stateTopic(serial, key string) string {
	return fmt.Sprintf("%s/%s/%s", b.opts.TopicPrefix, serial, key)
}

func (b *Bridge) discoveryTopic(platform, serial, key string) string {
	return fmt.Sprintf("%s/%s/healthbox_%s/%s/config", b.opts.DiscoveryPrefix, platform, serial, key)
}

func (b *Bridge) commandTopic(serial, command string) string {
	return fmt.Sprintf("%s/%s/room/+/%s/set", b.opts.TopicPrefix, serial, command)
}

// OnConnect marks the bridge online and forgets what was announced, so the
// next snapshot re-sends discovery and re-subscribes.
func (b *Bridge) OnConnect(_ mqtt.Client) {
	b.mu.Lock()
	b.announced = make(map[string]bool)
	b.subscribed = false
	serial := b.serial
	b.mu.Unlock()

	if err := b.publish(b.availabilityTopic(), true, payloadOnline); err != nil {
		b.log.Warnw("mqtt_publish_failed", "topic", b.availabilityTopic(), "error", err)
	}
	if serial != "" {
		b.subscribe(serial)
	}
}

// PublishSnapshot has the coordinator listener signature.
func (b *Bridge) PublishSnapshot(_ context.Context, snap models.DeviceSnapshot) {
	if snap.Serial == "" {
		b.log.Warnw("mqtt_snapshot_without_serial")
		return
	}

	b.mu.Lock()
	if b.serial != snap.Serial {
		b.serial = snap.Serial
		b.announced = make(map[string]bool)
		b.subscribed = false
	}
	needSubscribe := !b.subscribed
	b.mu.Unlock()

	if needSubscribe {
		b.subscribe(snap.Serial)
	}

	for _, d := range entity.Build(snap) {
		if err := b.announce(snap, d); err != nil {
			b.log.Warnw("mqtt_discovery_failed", "key", d.Key, "error", err)
			continue
		}
		v, ok := d.Resolve(snap)
		if !ok {
			continue
		}
		if err := b.publish(b.stateTopic(snap.Serial, d.Key), true, formatValue(v)); err != nil {
			b.log.Warnw("mqtt_publish_failed", "key", d.Key, "error", err)
		}
	}
}

func (b *Bridge) announce(snap models.DeviceSnapshot, d entity.Description) error {
	b.mu.Lock()
	done := b.announced[d.Key]
	b.mu.Unlock()
	if done {
		return nil
	}

	cfg := discoveryConfig{
		UniqueID:          "healthbox_" + snap.Serial + "_" + d.Key,
		ObjectID:          "healthbox_" + d.Key,
		Name:              d.Name,
		DeviceClass:       d.DeviceClass,
		StateClass:        d.StateClass,
		UnitOfMeasurement: d.Unit,
		Icon:              d.Icon,
		StateTopic:        b.stateTopic(snap.Serial, d.Key),
		AvailabilityTopic: b.availabilityTopic(),
		Device: deviceInfo{
			Identifiers:  []string{"healthbox_" + snap.Serial},
			Name:         "Healthbox",
			Manufacturer: manufacturer,
			Model:        snap.Description,
			SerialNumber: snap.Serial,
		},
	}
	if d.Platform == entity.PlatformBinarySensor {
		cfg.PayloadOn, cfg.PayloadOff = payloadOn, payloadOff
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := b.publish(b.discoveryTopic(d.Platform, snap.Serial, d.Key), true, payload); err != nil {
		return err
	}

	b.mu.Lock()
	b.announced[d.Key] = true
	b.mu.Unlock()
	return nil
}

func (b *Bridge) subscribe(serial string) {
	ok := true
	if t := b.client.Subscribe(b.commandTopic(serial, "boost"), 1, b.handleBoost); t.Wait() && t.Error() != nil {
		b.log.Warnw("mqtt_subscribe_failed", "command", "boost", "error", t.Error())
		ok = false
	}
	if t := b.client.Subscribe(b.commandTopic(serial, "profile"), 1, b.handleProfile); t.Wait() && t.Error() != nil {
		b.log.Warnw("mqtt_subscribe_failed", "command", "profile", "error", t.Error())
		ok = false
	}

	b.mu.Lock()
	if b.serial == serial {
		b.subscribed = ok
	}
	b.mu.Unlock()
}

func (b *Bridge) handleBoost(_ mqtt.Client, msg mqtt.Message) {
	roomID, err := roomFromTopic(msg.Topic())
	if err != nil {
		b.log.Warnw("mqtt_bad_command_topic", "topic", msg.Topic(), "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	payload := strings.TrimSpace(string(msg.Payload()))
	switch strings.ToUpper(payload) {
	case payloadOff:
		err = b.control.StopRoomBoost(ctx, roomID)
	case payloadOn:
		err = b.control.StartRoomBoost(ctx, service.BoostParams{RoomID: roomID, Level: defaultBoostLevel, TimeoutMinutes: defaultBoostMinutes})
	default:
		cmd := boostCommand{Level: defaultBoostLevel, TimeoutMinutes: defaultBoostMinutes}
		if err = json.Unmarshal([]byte(payload), &cmd); err != nil {
			b.log.Warnw("mqtt_bad_boost_payload", "room_id", roomID, "payload", payload, "error", err)
			return
		}
		err = b.control.StartRoomBoost(ctx, service.BoostParams{RoomID: roomID, Level: cmd.Level, TimeoutMinutes: cmd.TimeoutMinutes})
	}
	if err != nil {
		b.log.Warnw("mqtt_boost_command_failed", "room_id", roomID, "error", err)
	}
}

func (b *Bridge) handleProfile(_ mqtt.Client, msg mqtt.Message) {
	roomID, err := roomFromTopic(msg.Topic())
	if err != nil {
		b.log.Warnw("mqtt_bad_command_topic", "topic", msg.Topic(), "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := b.control.ChangeRoomProfile(ctx, roomID, string(msg.Payload())); err != nil {
		b.log.Warnw("mqtt_profile_command_failed", "room_id", roomID, "error", err)
	}
}

func (b *Bridge) publish(topic string, retained bool, payload interface{}) error {
	if t := b.client.Publish(topic, 0, retained, payload); t.Wait() && t.Error() != nil {
		return t.Error()
	}
	return nil
}

// roomFromTopic extracts the id from .../room/<id>/<command>/set.
func roomFromTopic(topic string) (int, error) {
	parts := strings.Split(topic, "/")
	for i := len(parts) - 4; i >= 0; i-- {
		if parts[i] != "room" {
			continue
		}
		id, err := strconv.Atoi(parts[i+1])
		if err != nil || id < 1 {
			return 0, fmt.Errorf("invalid room id %q", parts[i+1])
		}
		return id, nil
	}
	return 0, fmt.Errorf("no room segment in %q", topic)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return payloadOn
		}
		return payloadOff
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", v)
	}
}

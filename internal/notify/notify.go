// Package notify publishes prayer events to an MQTT broker so home
// automation can react to the adhan and iqama.
package notify

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/prayer"
)

// Notifier receives dashboard events. Implementations must not block.
type Notifier interface {
	Adhan(slot prayer.Slot, at prayer.TimeOfDay, now time.Time)
	Iqama(slot prayer.Slot, now time.Time)
	Schedule(s *prayer.Schedule, now time.Time)
	Close()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Adhan(prayer.Slot, prayer.TimeOfDay, time.Time) {}
func (Nop) Iqama(prayer.Slot, time.Time)                   {}
func (Nop) Schedule(*prayer.Schedule, time.Time)           {}
func (Nop) Close()                                         {}

// Options configures the MQTT connection.
type Options struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

const (
	qos            = 1
	publishTimeout = 5 * time.Second
	quiesceMillis  = 250
)

// PrayerEvent is the payload of the adhan and iqama topics.
type PrayerEvent struct {
	Prayer   string `json:"prayer"`
	PrayerAr string `json:"prayer_ar"`
	Time     string `json:"time,omitempty"`
	TS       int64  `json:"ts"`
}

// ScheduleEvent is the retained payload of the schedule topic.
type ScheduleEvent struct {
	Gregorian string            `json:"gregorian"`
	Hijri     string            `json:"hijri"`
	Imsak     string            `json:"imsak"`
	Times     map[string]string `json:"times"`
	TS        int64             `json:"ts"`
}

// Publisher sends events to topics under a common prefix.
type Publisher struct {
	client mqtt.Client
	prefix string
	log    *zap.Logger
	wg     sync.WaitGroup
}

// Connect dials the broker and returns a Publisher. The client reconnects
// on its own after the first successful connection.
func Connect(opts Options, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("mqtt")

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetUsername(opts.Username)
	co.SetPassword(opts.Password)
	co.SetAutoReconnect(true)
	co.SetConnectTimeout(10 * time.Second)
	co.OnConnect = func(mqtt.Client) {
		log.Info("connected to MQTT broker", zap.String("broker", opts.Broker))
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(co)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", opts.Broker, token.Error())
	}
	return newPublisher(client, opts.TopicPrefix, log), nil
}

func newPublisher(client mqtt.Client, prefix string, log *zap.Logger) *Publisher {
	return &Publisher{client: client, prefix: prefix, log: log}
}

// Topic returns the full topic for an event name.
func (p *Publisher) Topic(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + "/" + name
}

// Adhan announces that slot's time has arrived.
func (p *Publisher) Adhan(slot prayer.Slot, at prayer.TimeOfDay, now time.Time) {
	p.publish("adhan", false, PrayerEvent{
		Prayer:   slot.String(),
		PrayerAr: slot.Arabic(),
		Time:     at.String(),
		TS:       now.Unix(),
	})
}

// Iqama announces that the iqama countdown for slot reached zero.
func (p *Publisher) Iqama(slot prayer.Slot, now time.Time) {
	p.publish("iqama", false, PrayerEvent{
		Prayer:   slot.String(),
		PrayerAr: slot.Arabic(),
		TS:       now.Unix(),
	})
}

// Schedule publishes the day's times as a retained message.
func (p *Publisher) Schedule(s *prayer.Schedule, now time.Time) {
	times := make(map[string]string, prayer.SlotCount)
	for _, slot := range prayer.AllSlots {
		times[slot.String()] = s.Time(slot).String()
	}
	p.publish("schedule", true, ScheduleEvent{
		Gregorian: s.Gregorian,
		Hijri:     s.Hijri.Arabic(),
		Imsak:     s.Imsak.String(),
		Times:     times,
		TS:        now.Unix(),
	})
}

// publish hands the message to the client and logs the outcome off the
// caller's goroutine.
func (p *Publisher) publish(name string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.log.Error("failed to encode MQTT payload", zap.String("event", name), zap.Error(err))
		return
	}

	topic := p.Topic(name)
	token := p.client.Publish(topic, qos, retained, payload)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if !token.WaitTimeout(publishTimeout) {
			p.log.Warn("MQTT publish timed out", zap.String("topic", topic))
			return
		}
		if err := token.Error(); err != nil {
			p.log.Warn("MQTT publish failed", zap.String("topic", topic), zap.Error(err))
			return
		}
		p.log.Debug("MQTT event published", zap.String("topic", topic))
	}()
}

// Close waits for outstanding publishes and disconnects.
func (p *Publisher) Close() {
	p.wg.Wait()
	p.client.Disconnect(quiesceMillis)
}

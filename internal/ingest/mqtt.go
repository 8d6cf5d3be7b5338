package ingest

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"safewatch/internal/config"
	"safewatch/internal/model"
)

// StartMQTT subscribes to the readings topic. The client disconnects when ctx ends.
func StartMQTT(ctx context.Context, cfg *config.Manager, out chan<- model.Reading, logger *zap.Logger) error {
	current := cfg.Get().Ingest.MQTT
	if !current.Enabled {
		logger.Info("mqtt ingest disabled")
		return nil
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(current.Broker)
	opts.SetClientID(current.ClientID)
	if current.Username != "" {
		opts.SetUsername(current.Username)
	}
	if current.Password != "" {
		opts.SetPassword(current.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect mqtt broker: %w", token.Error())
	}
	handler := MQTTHandler(ctx, cfg, out, logger)
	if token := client.Subscribe(current.Topic, current.QoS, handler); token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return fmt.Errorf("subscribe %s: %w", current.Topic, token.Error())
	}
	logger.Info("mqtt ingest enabled", zap.String("broker", current.Broker), zap.String("topic", current.Topic))

	go func() {
		<-ctx.Done()
		client.Unsubscribe(current.Topic).Wait()
		client.Disconnect(250)
	}()
	return nil
}

func MQTTHandler(ctx context.Context, cfg *config.Manager, out chan<- model.Reading, logger *zap.Logger) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		logger.Debug("mqtt message", zap.String("topic", msg.Topic()), zap.Int("payload_size", len(msg.Payload())))
		decodeAndSend(ctx, msg.Payload(), "mqtt", cfg.Get(), out, logger)
	}
}

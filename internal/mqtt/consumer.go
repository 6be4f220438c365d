package mqtt

import (
	"fmt"
	"strings"

	mqttcommon "github.com/TechnoShed-dev/technoshed-ble-scanner/common/mqtt"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/service"

	"go.uber.org/zap"
)

// Consumer is the optional MQTT ingest bridge. Scanners on brokered sites
// publish the same JSON batches to ziggy/<scanner>/sightings instead of
// POSTing them; batches land in the raw capture store through the shared
// intake path, so validation is identical to HTTP.
type Consumer struct {
	client *mqttcommon.Client
	intake *service.Intake
	topic  string
	logger *zap.Logger
}

func NewConsumer(client *mqttcommon.Client, intake *service.Intake, topic string, logger *zap.Logger) *Consumer {
	return &Consumer{
		client: client,
		intake: intake,
		topic:  topic,
		logger: logger,
	}
}

// Start subscribes to the batch topic.
func (c *Consumer) Start() error {
	if c.topic == "" {
		return fmt.Errorf("mqtt ingest topic not configured")
	}
	if err := c.client.Subscribe(c.topic, 1, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to ingest topic: %w", err)
	}
	c.logger.Info("MQTT ingest bridge started", zap.String("topic", c.topic))
	return nil
}

func (c *Consumer) handleMessage(topic string, payload []byte) error {
	accepted, err := c.intake.AcceptJSON(payload, scannerFromTopic(topic))
	if err != nil {
		// Reject is final for MQTT: there is no status code to send, so
		// log and drop, same as the HTTP 400 path.
		c.logger.Warn("Rejected MQTT batch",
			zap.String("topic", topic),
			zap.Error(err))
		return nil
	}
	c.logger.Info("MQTT batch received",
		zap.String("topic", topic),
		zap.Int("records", accepted))
	return nil
}

// scannerFromTopic pulls the node name out of ziggy/<scanner>/sightings.
func scannerFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}

package kafka

import (
	"encoding/json"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

type Producer struct {
	producer sarama.SyncProducer
}

func NewProducer(broker string) *Producer {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	var producer sarama.SyncProducer
	var err error

	for i := 1; i <= 10; i++ {
		producer, err = sarama.NewSyncProducer([]string{broker}, config)
		if err == nil {
			log.Println("Kafka producer initialized")
			return &Producer{producer: producer}
		}

		log.Printf("Waiting for Kafka... (%d/10) Error: %v", i, err)
		time.Sleep(5 * time.Second)
	}

	log.Fatalf("Failed to start Kafka producer after retries: %v", err)
	return nil
}

type event struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
}

// Publish emits one event to the topic. Failures are logged and swallowed:
// event delivery is best-effort relative to the ledger, never a reason to
// fail the request that produced it.
func (p *Producer) Publish(topic, eventType string, data map[string]any) {
	payload, err := json.Marshal(event{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Data:      data,
	})
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", eventType, err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(payload),
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		log.Printf("Failed to publish %s event: %v", eventType, err)
	}
}

func (p *Producer) Close() error {
	return p.producer.Close()
}

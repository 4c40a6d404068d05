package report

import (
	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

type (
	// ContentionEvent is published once per contention group.
	ContentionEvent struct {
		AnalysisID string          `json:"analysis_id"`
		Group      ContentionGroup `json:"contention_group"`
	}
)

func GenerateKafkaMessageBatch(d Document) ([]kafka.Message, error) {
	messages := make([]kafka.Message, 0, len(d.ContentionGroups))
	for _, g := range d.ContentionGroups {
		b, err := json.Marshal(ContentionEvent{AnalysisID: d.ID, Group: g})
		if err != nil {
			return nil, err
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(d.ID),
			Value: b,
		})
	}
	return messages, nil
}

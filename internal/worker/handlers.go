package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"kbassist/internal/app"
	"kbassist/internal/model"
)

type MessageStore interface {
	Create(message *model.ChatMessage) error
}

// PersistMessages stores chat messages published by the chat service.
func PersistMessages(store MessageStore) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var msg model.ChatMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("decode chat message failed: %w", err)
		}
		msg.ID = 0
		return store.Create(&msg)
	}
}

type DocumentIngester interface {
	Ingest(ctx context.Context, documentID uint) error
}

// IngestDocuments runs document ingestion jobs.
func IngestDocuments(ingester DocumentIngester) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var job app.IngestJob
		if err := json.Unmarshal(body, &job); err != nil {
			return fmt.Errorf("decode ingest job failed: %w", err)
		}
		if job.DocumentID == 0 {
			return fmt.Errorf("ingest job without document id")
		}
		return ingester.Ingest(ctx, job.DocumentID)
	}
}

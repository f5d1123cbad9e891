package worker

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

// GenerationJob carries everything the generation endpoint needs. The json
// tags are the wire contract of the trigger call.
type GenerationJob struct {
	PurchaseID        string          `json:"purchaseId"`
	Email             string          `json:"email"`
	FormData          json.RawMessage `json:"formData"`
	CustomerReference string          `json:"customerReference"`
}

// Trigger starts downstream draft generation for one purchase.
type Trigger interface {
	TriggerGeneration(ctx context.Context, job GenerationJob) error
}

// Hub runs the fire-and-forget branch of the webhook: jobs enqueued after a
// purchase is recorded are executed here, after the webhook response has
// already gone out. A failed trigger is logged and left for out-of-band
// re-drive; nothing reports back to the original caller.
type Hub struct {
	Jobs    chan GenerationJob
	trigger Trigger
}

func NewHub(trigger Trigger) *Hub {
	return &Hub{
		Jobs:    make(chan GenerationJob, 64),
		trigger: trigger,
	}
}

// Enqueue hands a job to the hub without blocking the webhook path. A full
// queue drops the job with a log line rather than stalling the response.
func (h *Hub) Enqueue(job GenerationJob) {
	select {
	case h.Jobs <- job:
	default:
		log.WithFields(log.Fields{
			"purchase_id": job.PurchaseID,
			"reference":   job.CustomerReference,
		}).Warn("Generation queue full, dropping job")
	}
}

// Run consumes jobs until the Jobs channel is closed. Start it on its own
// goroutine from main.
func (h *Hub) Run() {
	for job := range h.Jobs {
		if err := h.trigger.TriggerGeneration(context.Background(), job); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"purchase_id": job.PurchaseID,
				"reference":   job.CustomerReference,
			}).Error("Failed to trigger speech generation")
			continue
		}
		log.WithFields(log.Fields{
			"purchase_id": job.PurchaseID,
			"reference":   job.CustomerReference,
		}).Info("Speech generation triggered")
	}
}

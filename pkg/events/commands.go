package events

// Side-effect commands addressed to their owning subsystems. Action steps
// complete optimistically once the command is durably enqueued; delivery
// outcomes come back later as message feedback events.

type SendMessage struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	TemplateID  string `json:"template_id"`
	Channel     string `json:"channel"`
}

func (c SendMessage) GetType() EventType { return SendMessageCommand }

type AwardPoints struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Points      int    `json:"points"`
}

func (c AwardPoints) GetType() EventType { return AwardPointsCommand }

type CallWebhook struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	URL         string         `json:"url"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func (c CallWebhook) GetType() EventType { return CallWebhookCommand }

type EnrollInSequence struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	SequenceID  string `json:"sequence_id"`
}

func (c EnrollInSequence) GetType() EventType { return EnrollInSequenceCommand }

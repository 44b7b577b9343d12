package models

// WebhookPayload represents the incoming JSON payload from WhatsApp
type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				MessagingProduct string `json:"messaging_product"`
				Metadata         struct {
					DisplayPhoneNumber string `json:"display_phone_number"`
					PhoneNumberID      string `json:"phone_number_id"`
				} `json:"metadata"`
				Statuses []struct {
					ID          string `json:"id"`
					Status      string `json:"status"`
					Timestamp   string `json:"timestamp"`
					RecipientID string `json:"recipient_id"`
				} `json:"statuses,omitempty"`
				// Template review decision fields
				Event                   string `json:"event,omitempty"`
				MessageTemplateName     string `json:"message_template_name,omitempty"`
				MessageTemplateLanguage string `json:"message_template_language,omitempty"`
				Reason                  string `json:"reason,omitempty"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// EventKind tags a validated inbound event.
type EventKind string

const (
	EventKindStatus           EventKind = "status"
	EventKindTemplateDecision EventKind = "template_decision"
)

// DeliveryStatus is a message delivery status update.
type DeliveryStatus struct {
	MessageID   string `json:"message_id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
	Timestamp   string `json:"timestamp"`
}

// TemplateDecision is an upstream template review outcome.
type TemplateDecision struct {
	UpstreamName string `json:"upstream_name"`
	Decision     string `json:"decision"`
	Reason       string `json:"reason,omitempty"`
}

// Event is the tagged union produced at the routing boundary. Exactly one
// of Status and Decision is set, according to Kind.
type Event struct {
	Kind          EventKind         `json:"kind"`
	PhoneNumberID string            `json:"phone_number_id"`
	Status        *DeliveryStatus   `json:"status,omitempty"`
	Decision      *TemplateDecision `json:"decision,omitempty"`
}

// ParseEvents flattens a webhook payload into validated events. Entries
// without a phone number id or with an unrecognized shape are skipped;
// a malformed entry never reaches component logic.
func ParseEvents(p WebhookPayload) []Event {
	var events []Event
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			phoneID := value.Metadata.PhoneNumberID
			if phoneID == "" {
				continue
			}

			switch change.Field {
			case "messages":
				for _, s := range value.Statuses {
					if s.ID == "" || s.Status == "" {
						continue
					}
					events = append(events, Event{
						Kind:          EventKindStatus,
						PhoneNumberID: phoneID,
						Status: &DeliveryStatus{
							MessageID:   s.ID,
							Status:      s.Status,
							RecipientID: s.RecipientID,
							Timestamp:   s.Timestamp,
						},
					})
				}
			case "message_template_status_update":
				if value.MessageTemplateName == "" || value.Event == "" {
					continue
				}
				events = append(events, Event{
					Kind:          EventKindTemplateDecision,
					PhoneNumberID: phoneID,
					Decision: &TemplateDecision{
						UpstreamName: value.MessageTemplateName,
						Decision:     value.Event,
						Reason:       value.Reason,
					},
				})
			}
		}
	}
	return events
}

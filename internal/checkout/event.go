package checkout

// EventTypeSessionCompleted is the only event type this service acts on.
// Everything else is acknowledged and logged as unhandled.
const EventTypeSessionCompleted = "checkout.session.completed"

// MetadataFormDataKey is the metadata key carrying the pending-input id
// that correlates a checkout session back to the submitted form.
const MetadataFormDataKey = "formDataId"

// Event is the webhook event envelope.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object Session `json:"object"`
	} `json:"data"`
}

// Session is the checkout session object inside a completed-checkout event.
type Session struct {
	ID            string            `json:"id"`
	CustomerEmail string            `json:"customer_email"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Metadata      map[string]string `json:"metadata"`
}

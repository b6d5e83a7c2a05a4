package processor

import "encoding/json"

// Intent statuses as reported by the processor.
const (
	IntentStatusRequiresConfirmation = "requires_confirmation"
	IntentStatusRequiresCapture      = "requires_capture"
	IntentStatusSucceeded            = "succeeded"
	IntentStatusFailed               = "failed"
	IntentStatusCanceled             = "canceled"
)

// CreateIntentRequest asks the processor to authorize-and-hold funds,
// earmarking the platform fee and the payee's destination account.
type CreateIntentRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	CustomerRef    string            `json:"customer"`
	FeeAmount      int64             `json:"application_fee_amount"`
	DestinationRef string            `json:"destination"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type ConfirmIntentRequest struct {
	MethodRef string `json:"payment_method"`
}

// CreateTransferRequest moves settled funds to a payee's destination
// account.
type CreateTransferRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	DestinationRef string            `json:"destination"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Transfer statuses as reported by the processor. A transfer created in
// pending settles asynchronously via payout webhooks.
const (
	TransferStatusPending = "pending"
	TransferStatusPaid    = "paid"
	TransferStatusFailed  = "failed"
)

type Transfer struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Event is the verified webhook envelope.
type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

package domain

// OutboundAttachment is one file attached to an outbound message. Content is
// base64-encoded, matching the provider's send contract.
type OutboundAttachment struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"contentType"`
	Content     string `json:"content" binding:"required"`
}

// OutboundRequest is a caller-constructed send request. It lives only for the
// duration of one Submit call and is never persisted. IdempotencyKey is the
// caller's best-effort dedup hint; when empty the client generates one so all
// retries of the same call still share a single key.
type OutboundRequest struct {
	To             []string             `json:"to" binding:"required,min=1"`
	From           string               `json:"from"`
	Subject        string               `json:"subject"`
	PlainBody      string               `json:"plainBody"`
	HTMLBody       string               `json:"htmlBody"`
	Attachments    []OutboundAttachment `json:"attachments,omitempty"`
	IdempotencyKey string               `json:"idempotencyKey,omitempty"`
}

// Validate enforces the send invariants: at least one recipient, every
// address well formed, and at least one non-empty body.
func (r *OutboundRequest) Validate() error {
	if len(r.To) == 0 {
		return ErrNoRecipients
	}
	for _, to := range r.To {
		if to == "" {
			return ErrNoRecipients
		}
		if err := ValidateAddress(to); err != nil {
			return err
		}
	}
	if r.From != "" {
		if err := ValidateAddress(r.From); err != nil {
			return err
		}
	}
	if r.PlainBody == "" && r.HTMLBody == "" {
		return ErrEmptyBody
	}
	return nil
}

// RecipientStatus is the provider's per-recipient acceptance record.
type RecipientStatus struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// SendAccepted is the successful outcome of a Submit call: the provider's
// stable message id plus per-recipient tokens.
type SendAccepted struct {
	MessageID  string                     `json:"messageId"`
	Recipients map[string]RecipientStatus `json:"recipients,omitempty"`
}

// ProviderMessage is the result of looking one message up by id against the
// provider. The provider has no list operation, so this is its only read
// surface.
type ProviderMessage struct {
	MessageID string   `json:"messageId"`
	From      string   `json:"from"`
	To        []string `json:"to"`
	Subject   string   `json:"subject"`
	PlainBody string   `json:"plainBody,omitempty"`
	HTMLBody  string   `json:"htmlBody,omitempty"`
	Status    string   `json:"status,omitempty"`
}

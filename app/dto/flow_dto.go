package dto

// FlowExchangeRequest is the encrypted envelope the gateway posts to the
// flow data exchange endpoint. All three fields are base64.
type FlowExchangeRequest struct {
	EncryptedFlowData string `json:"encrypted_flow_data" validate:"required"`
	EncryptedAESKey   string `json:"encrypted_aes_key" validate:"required"`
	InitialVector     string `json:"initial_vector" validate:"required"`
}

// FlowDataPayload is the decrypted request body of one exchange step
type FlowDataPayload struct {
	Version   string         `json:"version"`
	Action    string         `json:"action"` // ping, INIT, data_exchange, navigate
	Screen    string         `json:"screen,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	FlowToken string         `json:"flow_token,omitempty"`
}

// FlowExchangeResponsePayload is the plaintext response of one exchange
// step before encryption: the next screen and the data to render it with
type FlowExchangeResponsePayload struct {
	Version string         `json:"version,omitempty"`
	Screen  string         `json:"screen,omitempty"`
	Data    map[string]any `json:"data"`
}

// ProvisionFlowKeysRequest registers a gateway-hosted form and generates
// its encryption key pair
type ProvisionFlowKeysRequest struct {
	VendorID     uint         `json:"-"`
	RemoteFlowID string       `json:"remote_flow_id" validate:"required,max=128"`
	Name         string       `json:"name" validate:"required,max=255"`
	Screens      []FlowScreen `json:"screens" validate:"required,min=1,dive"`
}

// FlowScreen describes one screen of a registered form
type FlowScreen struct {
	ID       string `json:"id" validate:"required,max=128"`
	Title    string `json:"title,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`
}

// ProvisionFlowKeysResponse returns the public key to upload to the gateway
type ProvisionFlowKeysResponse struct {
	UUID         string `json:"uuid"`
	RemoteFlowID string `json:"remote_flow_id"`
	PublicKeyPEM string `json:"public_key_pem"`
}

// FlowResponseView is one form submission in listings
type FlowResponseView struct {
	FlowToken string `json:"flow_token"`
	Status    string `json:"status"`
	Data      any    `json:"data,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

package dto

// ConnectVendorRequest registers a messaging-gateway account. The access
// token is encrypted before it touches the database.
type ConnectVendorRequest struct {
	Name              string `json:"name" validate:"required,max=255"`
	PhoneNumberID     string `json:"phone_number_id" validate:"required,max=64"`
	BusinessAccountID string `json:"business_account_id" validate:"required,max=64"`
	DisplayPhone      string `json:"display_phone" validate:"omitempty,max=32"`
	AccessToken       string `json:"access_token" validate:"required"`
}

// ConnectVendorResponse returns the registered vendor and its API token
// for the management endpoints
type ConnectVendorResponse struct {
	Message          string `json:"message"`
	UUID             string `json:"uuid"`
	ConnectionStatus string `json:"connection_status"`
	APIToken         string `json:"api_token"`
}

// UpdateVendorCredentialsRequest rotates the vendor's gateway access token
type UpdateVendorCredentialsRequest struct {
	VendorID    uint   `json:"-"`
	AccessToken string `json:"access_token" validate:"required"`
}

// GetVendorResponse represents the vendor in responses. The access token
// is never echoed back.
type GetVendorResponse struct {
	UUID              string `json:"uuid"`
	Name              string `json:"name"`
	PhoneNumberID     string `json:"phone_number_id"`
	BusinessAccountID string `json:"business_account_id"`
	DisplayPhone      string `json:"display_phone,omitempty"`
	ConnectionStatus  string `json:"connection_status"`
	CreatedAt         string `json:"created_at"`
}

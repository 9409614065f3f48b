package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/chatrasa/chatrasa/app/dto"
	"github.com/chatrasa/chatrasa/app/services"
	"github.com/chatrasa/chatrasa/config"
	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/repository"
	"github.com/chatrasa/chatrasa/utils"
)

// VendorFlow handles gateway-account onboarding: registering a vendor
// with its access credential, rotating that credential, and provisioning
// the asymmetric key pair of an interactive form.
type VendorFlow interface {
	ConnectVendor(ctx context.Context, req *dto.ConnectVendorRequest, metadata *ClientMetadata) (*dto.ConnectVendorResponse, error)
	UpdateCredentials(ctx context.Context, req *dto.UpdateVendorCredentialsRequest, metadata *ClientMetadata) error
	ProvisionFlowKeys(ctx context.Context, req *dto.ProvisionFlowKeysRequest, metadata *ClientMetadata) (*dto.ProvisionFlowKeysResponse, error)
	GetVendor(ctx context.Context, vendorID uint) (*dto.GetVendorResponse, error)
}

// VendorFlowImpl implements VendorFlow.
type VendorFlowImpl struct {
	vendorRepo   repository.VendorRepository
	flowRepo     repository.FlowRepository
	activityRepo repository.ActivityLogRepository
	credentials  services.CredentialCipher
	flowCrypto   services.FlowCrypto
	tokens       services.TokenService
	cryptoConfig *config.CryptoConfig
}

// NewVendorFlow creates a new vendor flow instance.
func NewVendorFlow(
	vendorRepo repository.VendorRepository,
	flowRepo repository.FlowRepository,
	activityRepo repository.ActivityLogRepository,
	credentials services.CredentialCipher,
	flowCrypto services.FlowCrypto,
	tokens services.TokenService,
	cryptoConfig *config.CryptoConfig,
) VendorFlow {
	return &VendorFlowImpl{
		vendorRepo:   vendorRepo,
		flowRepo:     flowRepo,
		activityRepo: activityRepo,
		credentials:  credentials,
		flowCrypto:   flowCrypto,
		tokens:       tokens,
		cryptoConfig: cryptoConfig,
	}
}

// ConnectVendor registers a gateway account. The access token is
// encrypted before it touches the database and an API token for the
// management endpoints is minted in the response.
func (s *VendorFlowImpl) ConnectVendor(ctx context.Context, req *dto.ConnectVendorRequest, metadata *ClientMetadata) (*dto.ConnectVendorResponse, error) {
	existing, err := s.vendorRepo.ByPhoneNumberID(ctx, req.PhoneNumberID)
	if err != nil {
		return nil, NewBusinessError("VENDOR_LOOKUP_FAILED", "failed to look up vendor", err)
	}
	if existing != nil {
		return nil, NewBusinessError("VENDOR_ALREADY_EXISTS", "a vendor with this phone number id already exists", ErrVendorAlreadyExists)
	}

	tokenEnc, err := s.credentials.Encrypt(req.AccessToken)
	if err != nil {
		return nil, NewBusinessError("CREDENTIAL_ENCRYPT_FAILED", "failed to encrypt access token", err)
	}

	vendor := &models.Vendor{
		Name:              req.Name,
		PhoneNumberID:     req.PhoneNumberID,
		BusinessAccountID: req.BusinessAccountID,
		DisplayPhone:      req.DisplayPhone,
		AccessTokenEnc:    tokenEnc,
		ConnectionStatus:  models.VendorConnectionStatusConnected,
	}
	if err := s.vendorRepo.Save(ctx, vendor); err != nil {
		return nil, NewBusinessError("VENDOR_CREATION_FAILED", "failed to register vendor", err)
	}

	apiToken, err := s.tokens.GenerateAPIToken(vendor.ID)
	if err != nil {
		return nil, NewBusinessError("API_TOKEN_FAILED", "failed to issue API token", err)
	}

	s.logCredentialsSet(ctx, vendor, "vendor registered and connected", metadata)

	return &dto.ConnectVendorResponse{
		Message:          "Vendor connected successfully",
		UUID:             vendor.UUID.String(),
		ConnectionStatus: string(vendor.ConnectionStatus),
		APIToken:         apiToken,
	}, nil
}

// UpdateCredentials rotates the vendor's gateway access token and brings
// a vendor in the error state back to connected.
func (s *VendorFlowImpl) UpdateCredentials(ctx context.Context, req *dto.UpdateVendorCredentialsRequest, metadata *ClientMetadata) error {
	vendor, err := s.vendorRepo.ByID(ctx, req.VendorID)
	if err != nil {
		return NewBusinessError("VENDOR_LOOKUP_FAILED", "failed to look up vendor", err)
	}
	if vendor == nil {
		return NewBusinessError("VENDOR_NOT_FOUND", "vendor not found", ErrVendorNotFound)
	}

	tokenEnc, err := s.credentials.Encrypt(req.AccessToken)
	if err != nil {
		return NewBusinessError("CREDENTIAL_ENCRYPT_FAILED", "failed to encrypt access token", err)
	}

	vendor.AccessTokenEnc = tokenEnc
	vendor.ConnectionStatus = models.VendorConnectionStatusConnected
	if err := s.vendorRepo.Update(ctx, vendor); err != nil {
		return NewBusinessError("VENDOR_UPDATE_FAILED", "failed to update vendor credentials", err)
	}

	s.logCredentialsSet(ctx, vendor, "gateway access token rotated", metadata)
	return nil
}

// ProvisionFlowKeys generates the RSA key pair of a remote form. The
// public half goes back to the caller for upload to the gateway; the
// private half is stored encrypted at rest.
func (s *VendorFlowImpl) ProvisionFlowKeys(ctx context.Context, req *dto.ProvisionFlowKeysRequest, metadata *ClientMetadata) (*dto.ProvisionFlowKeysResponse, error) {
	vendor, err := s.vendorRepo.ByID(ctx, req.VendorID)
	if err != nil {
		return nil, NewBusinessError("VENDOR_LOOKUP_FAILED", "failed to look up vendor", err)
	}
	if vendor == nil {
		return nil, NewBusinessError("VENDOR_NOT_FOUND", "vendor not found", ErrVendorNotFound)
	}

	publicPEM, privatePEM, err := s.flowCrypto.GenerateKeyPair(s.cryptoConfig.FlowRSABits)
	if err != nil {
		return nil, NewBusinessError("FLOW_KEYGEN_FAILED", "failed to generate flow key pair", err)
	}
	privateEnc, err := s.credentials.Encrypt(privatePEM)
	if err != nil {
		return nil, NewBusinessError("CREDENTIAL_ENCRYPT_FAILED", "failed to encrypt flow private key", err)
	}

	screens := make([]models.FlowScreen, 0, len(req.Screens))
	for _, sc := range req.Screens {
		screens = append(screens, models.FlowScreen{ID: sc.ID, Title: sc.Title, Terminal: sc.Terminal})
	}

	flow := &models.Flow{
		VendorID:      vendor.ID,
		RemoteFlowID:  req.RemoteFlowID,
		Name:          req.Name,
		Screens:       models.FlowScreenGraph{Screens: screens},
		PublicKeyPEM:  publicPEM,
		PrivateKeyEnc: privateEnc,
	}
	if err := s.flowRepo.Save(ctx, flow); err != nil {
		return nil, NewBusinessError("FLOW_CREATION_FAILED", "failed to register flow", err)
	}

	s.logFlowKeys(ctx, vendor, flow, metadata)

	return &dto.ProvisionFlowKeysResponse{
		UUID:         flow.UUID.String(),
		RemoteFlowID: flow.RemoteFlowID,
		PublicKeyPEM: flow.PublicKeyPEM,
	}, nil
}

// GetVendor returns the vendor profile; the access token is never echoed
func (s *VendorFlowImpl) GetVendor(ctx context.Context, vendorID uint) (*dto.GetVendorResponse, error) {
	vendor, err := s.vendorRepo.ByID(ctx, vendorID)
	if err != nil {
		return nil, NewBusinessError("VENDOR_LOOKUP_FAILED", "failed to look up vendor", err)
	}
	if vendor == nil {
		return nil, NewBusinessError("VENDOR_NOT_FOUND", "vendor not found", ErrVendorNotFound)
	}
	resp := ToVendorDTO(*vendor)
	return &resp, nil
}

func (s *VendorFlowImpl) logCredentialsSet(ctx context.Context, vendor *models.Vendor, description string, metadata *ClientMetadata) {
	meta, _ := json.Marshal(map[string]any{"vendor_uuid": vendor.UUID.String(), "client": metadata})
	entry := &models.ActivityLog{
		VendorID:    &vendor.ID,
		Action:      models.ActivityActionVendorCredentialsSet,
		Description: description,
		Success:     utils.ToPtr(true),
		Metadata:    meta,
	}
	if err := s.activityRepo.Save(ctx, entry); err != nil {
		log.Printf("[VendorFlow] failed to write credentials audit log: %v", err)
	}
}

func (s *VendorFlowImpl) logFlowKeys(ctx context.Context, vendor *models.Vendor, flow *models.Flow, metadata *ClientMetadata) {
	meta, _ := json.Marshal(map[string]any{"flow_uuid": flow.UUID.String(), "remote_flow_id": flow.RemoteFlowID, "client": metadata})
	entry := &models.ActivityLog{
		VendorID:    &vendor.ID,
		Action:      models.ActivityActionFlowKeysProvisioned,
		Description: fmt.Sprintf("encryption keys provisioned for flow %s", flow.Name),
		Success:     utils.ToPtr(true),
		Metadata:    meta,
	}
	if err := s.activityRepo.Save(ctx, entry); err != nil {
		log.Printf("[VendorFlow] failed to write flow keys audit log: %v", err)
	}
}

package protocol

import "time"

// IdTagInfo is the authorization slot shared by several responses.
type IdTagInfo struct {
	Status      string     `json:"status"`
	ExpiryDate  *time.Time `json:"expiryDate,omitempty"`
	ParentIdTag string     `json:"parentIdTag,omitempty"`
}

// AuthorizeRequest payload.
type AuthorizeRequest struct {
	IdTag string `json:"idTag"`
}

// AuthorizeResponse payload.
type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

// BootNotificationRequest payload.
type BootNotificationRequest struct {
	ChargePointVendor string `json:"chargePointVendor"`
	ChargePointModel  string `json:"chargePointModel"`
	ChargePointSerial string `json:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerial   string `json:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion   string `json:"firmwareVersion,omitempty"`
}

// BootNotificationResponse payload.
type BootNotificationResponse struct {
	CurrentTime time.Time `json:"currentTime"`
	Interval    int       `json:"interval"`
	Status      string    `json:"status"`
}

// HeartbeatRequest is empty.
type HeartbeatRequest struct{}

// HeartbeatResponse returns server time.
type HeartbeatResponse struct {
	CurrentTime time.Time `json:"currentTime"`
}

// StatusNotificationRequest payload.
type StatusNotificationRequest struct {
	ConnectorID int       `json:"connectorId"`
	Status      string    `json:"status"`
	ErrorCode   string    `json:"errorCode"`
	Info        string    `json:"info,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	VendorID    string    `json:"vendorId,omitempty"`
}

// StatusNotificationResponse is an empty ack.
type StatusNotificationResponse struct{}

// StartTransactionRequest payload.
type StartTransactionRequest struct {
	ConnectorID   int       `json:"connectorId"`
	IdTag         string    `json:"idTag"`
	MeterStart    int64     `json:"meterStart"`
	ReservationID int       `json:"reservationId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// StartTransactionResponse payload.
type StartTransactionResponse struct {
	TransactionID int64     `json:"transactionId"`
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
}

// StopTransactionRequest payload.
type StopTransactionRequest struct {
	TransactionID   int64             `json:"transactionId"`
	IdTag           string            `json:"idTag,omitempty"`
	MeterStop       int64             `json:"meterStop"`
	Timestamp       time.Time         `json:"timestamp"`
	Reason          string            `json:"reason,omitempty"`
	TransactionData []MeterValueEntry `json:"transactionData,omitempty"`
}

// StopTransactionResponse payload.
type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

// SampledValue is one measured value inside a MeterValue entry.
type SampledValue struct {
	Value     string `json:"value"`
	Measurand string `json:"measurand,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Context   string `json:"context,omitempty"`
	Location  string `json:"location,omitempty"`
	Phase     string `json:"phase,omitempty"`
}

// MeterValueEntry groups sampled values taken at one instant.
type MeterValueEntry struct {
	Timestamp    time.Time      `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

// MeterValuesRequest payload.
type MeterValuesRequest struct {
	ConnectorID   int               `json:"connectorId"`
	TransactionID *int64            `json:"transactionId,omitempty"`
	MeterValue    []MeterValueEntry `json:"meterValue"`
}

// MeterValuesResponse is an empty ack.
type MeterValuesResponse struct{}

// DataTransferRequest payload, passed through uninterpreted.
type DataTransferRequest struct {
	VendorID  string `json:"vendorId"`
	MessageID string `json:"messageId,omitempty"`
	Data      string `json:"data,omitempty"`
}

// DataTransferResponse payload.
type DataTransferResponse struct {
	Status string `json:"status"`
	Data   string `json:"data,omitempty"`
}

// RemoteStartTransactionRequest payload.
type RemoteStartTransactionRequest struct {
	IdTag       string `json:"idTag"`
	ConnectorID *int   `json:"connectorId,omitempty"`
}

// RemoteStartTransactionResponse payload.
type RemoteStartTransactionResponse struct {
	Status string `json:"status"`
}

// RemoteStopTransactionRequest payload.
type RemoteStopTransactionRequest struct {
	TransactionID int64 `json:"transactionId"`
}

// RemoteStopTransactionResponse payload.
type RemoteStopTransactionResponse struct {
	Status string `json:"status"`
}

// ChangeAvailabilityRequest payload.
type ChangeAvailabilityRequest struct {
	ConnectorID int    `json:"connectorId"`
	Type        string `json:"type"`
}

// ChangeAvailabilityResponse payload.
type ChangeAvailabilityResponse struct {
	Status string `json:"status"`
}

// ResetRequest payload.
type ResetRequest struct {
	Type string `json:"type"`
}

// ResetResponse payload.
type ResetResponse struct {
	Status string `json:"status"`
}

// ClearCacheRequest is empty.
type ClearCacheRequest struct{}

// ClearCacheResponse payload.
type ClearCacheResponse struct {
	Status string `json:"status"`
}

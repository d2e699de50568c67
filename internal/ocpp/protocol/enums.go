package protocol

// Actions initiated by the charge point.
const (
	ActionAuthorize          = "Authorize"
	ActionBootNotification   = "BootNotification"
	ActionDataTransfer       = "DataTransfer"
	ActionHeartbeat          = "Heartbeat"
	ActionMeterValues        = "MeterValues"
	ActionStartTransaction   = "StartTransaction"
	ActionStatusNotification = "StatusNotification"
	ActionStopTransaction    = "StopTransaction"
)

// Actions initiated by the central system.
const (
	ActionChangeAvailability     = "ChangeAvailability"
	ActionClearCache             = "ClearCache"
	ActionRemoteStartTransaction = "RemoteStartTransaction"
	ActionRemoteStopTransaction  = "RemoteStopTransaction"
	ActionReset                  = "Reset"
)

// Registration status values.
const (
	RegistrationAccepted = "Accepted"
	RegistrationRejected = "Rejected"
)

// Authorization status values beyond the verdict set.
const (
	AuthConcurrentTx = "ConcurrentTx"
)

// Generic command response status values.
const (
	StatusAccepted  = "Accepted"
	StatusRejected  = "Rejected"
	StatusScheduled = "Scheduled"
)

// Connector status values reported via StatusNotification.
const (
	ConnectorAvailable   = "Available"
	ConnectorPreparing   = "Preparing"
	ConnectorCharging    = "Charging"
	ConnectorFinishing   = "Finishing"
	ConnectorFaulted     = "Faulted"
	ConnectorUnavailable = "Unavailable"
	ConnectorReserved    = "Reserved"
)

// ChangeAvailability type values.
const (
	AvailabilityTypeOperative   = "Operative"
	AvailabilityTypeInoperative = "Inoperative"
)

// Reset type values.
const (
	ResetHard = "Hard"
	ResetSoft = "Soft"
)

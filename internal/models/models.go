package models

import "time"

// Reachability describes whether a charge point is currently considered
// connected to this central system.
type Reachability string

const (
	ReachabilityUnknown Reachability = "Unknown"
	ReachabilityOnline  Reachability = "Online"
	ReachabilityOffline Reachability = "Offline"
)

// Verdict is the outcome of authorizing an identity tag.
type Verdict string

const (
	VerdictAccepted Verdict = "Accepted"
	VerdictBlocked  Verdict = "Blocked"
	VerdictExpired  Verdict = "Expired"
	VerdictInvalid  Verdict = "Invalid"
)

// Session status values.
const (
	SessionActive    = "Active"
	SessionCompleted = "Completed"
)

// Connector availability values.
const (
	AvailabilityOperative   = "Operative"
	AvailabilityInoperative = "Inoperative"
)

// ChargePoint represents a charging station known to the system. A record is
// created on first boot notification and survives reconnects.
type ChargePoint struct {
	ID              string
	Vendor          string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	Reachability    Reachability
	LastSeen        time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Connector is one outlet on a charge point, identified by an integer index
// unique within its owner. Status values come from the device, never invented
// locally.
type Connector struct {
	ChargePointID string
	ConnectorID   int
	Status        string
	Availability  string
	ErrorCode     string
	Info          string
	UpdatedAt     time.Time
}

// IdTag is an authorization credential. A tag with a parent defers to the
// parent's verdict when the parent is not Accepted.
type IdTag struct {
	Tag       string
	Status    Verdict
	ExpiryAt  *time.Time
	ParentTag string
}

// Session is one charging transaction from authorized start to reported stop.
type Session struct {
	ID            int64
	TransactionID int64
	ChargePointID string
	ConnectorID   int
	IdTag         string
	MeterStart    int64
	MeterStop     *int64
	StartedAt     time.Time
	StoppedAt     *time.Time
	Status        string
	StopReason    string
}

// MeterSample is one reading reported during (or outside of) a session.
// Samples arriving with no active session are kept for audit with a nil
// SessionID and Orphaned set.
type MeterSample struct {
	ID            int64
	SessionID     *int64
	ChargePointID string
	ConnectorID   int
	Timestamp     time.Time
	Value         float64
	Measurand     string
	Unit          string
	Orphaned      bool
}

// DataTransfer keeps a vendor-specific payload as-is for audit.
type DataTransfer struct {
	ChargePointID string
	VendorID      string
	MessageID     string
	Data          string
	ReceivedAt    time.Time
}

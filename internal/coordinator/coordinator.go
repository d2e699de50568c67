package coordinator

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"voltcore/internal/authcache"
	"voltcore/internal/ledger"
	"voltcore/internal/metrics"
	"voltcore/internal/models"
	"voltcore/internal/ocpp/protocol"
	"voltcore/internal/redisstore"
	"voltcore/internal/registry"
)

// ChargePointStore persists charge point records.
type ChargePointStore interface {
	Upsert(ctx context.Context, cp *models.ChargePoint) error
	UpdateReachability(ctx context.Context, chargePointID string, state models.Reachability) error
}

// ConnectorStore persists connector records.
type ConnectorStore interface {
	Upsert(ctx context.Context, c *models.Connector) error
	UpdateAvailability(ctx context.Context, chargePointID string, connectorID int, availability string) error
}

// TransferStore persists vendor data transfer payloads.
type TransferStore interface {
	Save(ctx context.Context, dt *models.DataTransfer) error
}

// SessionMirror mirrors active sessions for dashboard reads. Best effort.
type SessionMirror interface {
	Save(ctx context.Context, session redisstore.ActiveSession) error
	Delete(ctx context.Context, transactionID int64) error
}

// Coordinator orchestrates the registry, ledger and authorization cache on
// every inbound message and every centrally initiated command. It is the
// only writer of registry and ledger state. Operations for one charge point
// are serialized; different charge points proceed in parallel.
type Coordinator struct {
	registry *registry.Registry
	ledger   *ledger.Ledger
	auth     *authcache.Cache

	points     ChargePointStore
	connectors ConnectorStore
	transfers  TransferStore
	mirror     SessionMirror

	heartbeatInterval time.Duration
	commandTimeout    time.Duration

	perPoint keyedMutex

	pendingMu sync.Mutex
	pending   map[string]string // charge point id -> in-flight action

	logger *zap.Logger
	now    func() time.Time
}

// Options carries the collaborators and tunables for the coordinator.
type Options struct {
	Registry          *registry.Registry
	Ledger            *ledger.Ledger
	Auth              *authcache.Cache
	ChargePoints      ChargePointStore
	Connectors        ConnectorStore
	Transfers         TransferStore
	Mirror            SessionMirror
	HeartbeatInterval time.Duration
	CommandTimeout    time.Duration
	Logger            *zap.Logger
}

// New builds a coordinator.
func New(opts Options) *Coordinator {
	return &Coordinator{
		registry:          opts.Registry,
		ledger:            opts.Ledger,
		auth:              opts.Auth,
		points:            opts.ChargePoints,
		connectors:        opts.Connectors,
		transfers:         opts.Transfers,
		mirror:            opts.Mirror,
		heartbeatInterval: opts.HeartbeatInterval,
		commandTimeout:    opts.CommandTimeout,
		pending:           make(map[string]string),
		logger:            opts.Logger,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// keyedMutex serializes operations per charge point identifier without a
// lock shared across charge points.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) forKey(id string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	return l
}

// OnBoot handles a boot notification: upserts the charge point record, marks
// it online, and returns the negotiated heartbeat interval.
func (c *Coordinator) OnBoot(ctx context.Context, chargePointID string, req protocol.BootNotificationRequest) (protocol.BootNotificationResponse, error) {
	lock := c.perPoint.forKey(chargePointID)
	lock.Lock()
	defer lock.Unlock()

	now := c.now()
	cp := &models.ChargePoint{
		ID:              chargePointID,
		Vendor:          req.ChargePointVendor,
		Model:           req.ChargePointModel,
		SerialNumber:    req.ChargePointSerial,
		FirmwareVersion: req.FirmwareVersion,
		Reachability:    models.ReachabilityOnline,
		LastSeen:        now,
	}
	if err := c.points.Upsert(ctx, cp); err != nil {
		c.logger.Error("failed to upsert charge point",
			zap.String("charge_point_id", chargePointID), zap.Error(err))
		return protocol.BootNotificationResponse{}, err
	}

	c.registry.Touch(chargePointID)
	c.logger.Info("charge point booted",
		zap.String("charge_point_id", chargePointID),
		zap.String("vendor", req.ChargePointVendor),
		zap.String("model", req.ChargePointModel))

	return protocol.BootNotificationResponse{
		CurrentTime: now,
		Interval:    int(c.heartbeatInterval / time.Second),
		Status:      protocol.RegistrationAccepted,
	}, nil
}

// OnHeartbeat touches the registry and returns the current server time.
func (c *Coordinator) OnHeartbeat(ctx context.Context, chargePointID string) (protocol.HeartbeatResponse, error) {
	lock := c.perPoint.forKey(chargePointID)
	lock.Lock()
	defer lock.Unlock()

	c.registry.Touch(chargePointID)
	return protocol.HeartbeatResponse{CurrentTime: c.now()}, nil
}

// OnAuthorize resolves the tag verdict through the cache.
func (c *Coordinator) OnAuthorize(ctx context.Context, chargePointID string, req protocol.AuthorizeRequest) (protocol.AuthorizeResponse, error) {
	lock := c.perPoint.forKey(chargePointID)
	lock.Lock()
	defer lock.Unlock()

	c.registry.Touch(chargePointID)

	verdict, err := c.auth.Resolve(ctx, req.IdTag)
	if err != nil {
		c.logger.Error("authorization lookup failed",
			zap.String("charge_point_id", chargePointID),
			zap.String("id_tag", req.IdTag), zap.Error(err))
		verdict = models.VerdictInvalid
	}

	return protocol.AuthorizeResponse{
		IdTagInfo: protocol.IdTagInfo{Status: string(verdict)},
	}, nil
}

// OnStatusNotification upserts the connector record. Never rejected.
func (c *Coordinator) OnStatusNotification(ctx context.Context, chargePointID string, req protocol.StatusNotificationRequest) (protocol.StatusNotificationResponse, error) {
	lock := c.perPoint.forKey(chargePointID)
	lock.Lock()
	defer lock.Unlock()

	c.registry.Touch(chargePointID)

	// ConnectorId 0 refers to the charge point itself; there is no
	// connector row to update for it.
	if req.ConnectorID > 0 {
		err := c.connectors.Upsert(ctx, &models.Connector{
			ChargePointID: chargePointID,
			ConnectorID:   req.ConnectorID,
			Status:        req.Status,
			Availability:  models.AvailabilityOperative,
			ErrorCode:     req.ErrorCode,
			Info:          req.Info,
		})
		if err != nil {
			c.logger.Warn("failed to persist connector status",
				zap.String("charge_point_id", chargePointID),
				zap.Int("connector_id", req.ConnectorID), zap.Error(err))
		}
	}

	return protocol.StatusNotificationResponse{}, nil
}

// OnStartTransaction resolves the tag verdict, then attempts the ledger
// Idle to Active transition. No transaction id is allocated on refusal.
func (c *Coordinator) OnStartTransaction(ctx context.Context, chargePointID string, req protocol.StartTransactionRequest) (protocol.StartTransactionResponse, error) {
	lock := c.perPoint.forKey(chargePointID)
	lock.Lock()
	defer lock.Unlock()

	c.registry.Touch(chargePointID)

	verdict, err := c.auth.Resolve(ctx, req.IdTag)
	if err != nil {
		c.logger.Error("authorization lookup failed on start",
			zap.String("charge_point_id", chargePointID),
			zap.String("id_tag", req.IdTag), zap.Error(err))
		metrics.StartsRejected.WithLabelValues("storage").Inc()
		return protocol.StartTransactionResponse{
			IdTagInfo: protocol.IdTagInfo{Status: string(models.VerdictInvalid)},
		}, nil
	}
	if verdict != models.VerdictAccepted {
		metrics.StartsRejected.WithLabelValues("verdict").Inc()
		return protocol.StartTransactionResponse{
			IdTagInfo: protocol.IdTagInfo{Status: string(verdict)},
		}, nil
	}

	at := req.Timestamp
	if at.IsZero() {
		at = c.now()
	}

	txID, err := c.ledger.Start(ctx, chargePointID, req.ConnectorID, req.IdTag, req.MeterStart, at)
	if errors.Is(err, ledger.ErrConnectorBusy) {
		c.logger.Warn("start refused, connector busy",
			zap.String("charge_point_id", chargePointID),
			zap.Int("connector_id", req.ConnectorID))
		metrics.StartsRejected.WithLabelValues("busy").Inc()
		return protocol.StartTransactionResponse{
			IdTagInfo: protocol.IdTagInfo{Status: protocol.AuthConcurrentTx},
		}, nil
	}
	if err != nil {
		c.logger.Error("failed to start transaction",
			zap.String("charge_point_id", chargePointID),
			zap.Int("connector_id", req.ConnectorID), zap.Error(err))
		metrics.StartsRejected.WithLabelValues("storage").Inc()
		return protocol.StartTransactionResponse{
			IdTagInfo: protocol.IdTagInfo{Status: string(models.VerdictInvalid)},
		}, nil
	}

	metrics.ActiveTransactions.Set(float64(c.ledger.ActiveCount()))
	if c.mirror != nil {
		if err := c.mirror.Save(ctx, redisstore.ActiveSession{
			TransactionID: txID,
			ChargePointID: chargePointID,
			ConnectorID:   req.ConnectorID,
			IdTag:         req.IdTag,
			StartedAt:     at,
		}); err != nil {
			c.logger.Warn("failed to mirror active session", zap.Error(err))
		}
	}

	c.logger.Info("transaction started",
		zap.String("charge_point_id", chargePointID),
		zap.Int("connector_id", req.ConnectorID),
		zap.Int64("transaction_id", txID),
		zap.String("id_tag", req.IdTag))

	return protocol.StartTransactionResponse{
		TransactionID: txID,
		IdTagInfo:     protocol.IdTagInfo{Status: string(models.VerdictAccepted)},
	}, nil
}

// OnStopTransaction attempts the ledger Active to Idle transition. The
// protocol does not model stop rejection, so an unmatched transaction id is
// acknowledged but logged.
func (c *Coordinator) OnStopTransaction(ctx context.Context, chargePointID string, req protocol.StopTransactionRequest) (protocol.StopTransactionResponse, error) {
	lock := c.perPoint.forKey(chargePointID)
	lock.Lock()
	defer lock.Unlock()

	c.registry.Touch(chargePointID)

	at := req.Timestamp
	if at.IsZero() {
		at = c.now()
	}

	err := c.ledger.Stop(ctx, chargePointID, req.TransactionID, req.MeterStop, at, req.Reason)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		c.logger.Warn("stop for unknown transaction",
			zap.String("charge_point_id", chargePointID),
			zap.Int64("transaction_id", req.TransactionID))
		return protocol.StopTransactionResponse{}, nil
	case err != nil:
		// Critical-path write failed; the session stays active and the
		// device sees the failure and retries.
		c.logger.Error("failed to stop transaction",
			zap.String("charge_point_id", chargePointID),
			zap.Int64("transaction_id", req.TransactionID), zap.Error(err))
		return protocol.StopTransactionResponse{}, err
	}

	metrics.ActiveTransactions.Set(float64(c.ledger.ActiveCount()))
	if c.mirror != nil {
		if err := c.mirror.Delete(ctx, req.TransactionID); err != nil {
			c.logger.Warn("failed to clear session mirror", zap.Error(err))
		}
	}

	c.logger.Info("transaction stopped",
		zap.String("charge_point_id", chargePointID),
		zap.Int64("transaction_id", req.TransactionID),
		zap.Int64("meter_stop", req.MeterStop))

	return protocol.StopTransactionResponse{}, nil
}

// OnMeterValues appends samples, linking them to the active session for the
// connector when one exists.
func (c *Coordinator) OnMeterValues(ctx context.Context, chargePointID string, req protocol.MeterValuesRequest) (protocol.MeterValuesResponse, error) {
	lock := c.perPoint.forKey(chargePointID)
	lock.Lock()
	defer lock.Unlock()

	c.registry.Touch(chargePointID)

	samples := flattenSamples(req, c.now())
	if len(samples) == 0 {
		return protocol.MeterValuesResponse{}, nil
	}

	orphaned, err := c.ledger.AppendSamples(ctx, chargePointID, req.ConnectorID, samples)
	if err != nil {
		c.logger.Error("failed to persist meter samples",
			zap.String("charge_point_id", chargePointID),
			zap.Int("connector_id", req.ConnectorID), zap.Error(err))
		return protocol.MeterValuesResponse{}, err
	}
	if orphaned {
		c.logger.Warn("meter samples with no active session",
			zap.String("charge_point_id", chargePointID),
			zap.Int("connector_id", req.ConnectorID),
			zap.Int("count", len(samples)))
	}

	return protocol.MeterValuesResponse{}, nil
}

// OnDataTransfer stores the vendor payload uninterpreted.
func (c *Coordinator) OnDataTransfer(ctx context.Context, chargePointID string, req protocol.DataTransferRequest) (protocol.DataTransferResponse, error) {
	lock := c.perPoint.forKey(chargePointID)
	lock.Lock()
	defer lock.Unlock()

	c.registry.Touch(chargePointID)

	err := c.transfers.Save(ctx, &models.DataTransfer{
		ChargePointID: chargePointID,
		VendorID:      req.VendorID,
		MessageID:     req.MessageID,
		Data:          req.Data,
		ReceivedAt:    c.now(),
	})
	if err != nil {
		c.logger.Warn("failed to persist data transfer",
			zap.String("charge_point_id", chargePointID),
			zap.String("vendor_id", req.VendorID), zap.Error(err))
		return protocol.DataTransferResponse{Status: protocol.StatusRejected}, nil
	}

	return protocol.DataTransferResponse{Status: protocol.StatusAccepted}, nil
}

// flattenSamples converts the wire shape into sample records. Values that do
// not parse as numbers are skipped.
func flattenSamples(req protocol.MeterValuesRequest, fallback time.Time) []models.MeterSample {
	var samples []models.MeterSample
	for _, entry := range req.MeterValue {
		ts := entry.Timestamp
		if ts.IsZero() {
			ts = fallback
		}
		for _, sv := range entry.SampledValue {
			value, err := strconv.ParseFloat(sv.Value, 64)
			if err != nil {
				continue
			}
			measurand := sv.Measurand
			if measurand == "" {
				measurand = "Energy.Active.Import.Register"
			}
			unit := sv.Unit
			if unit == "" {
				unit = "Wh"
			}
			samples = append(samples, models.MeterSample{
				Timestamp: ts,
				Value:     value,
				Measurand: measurand,
				Unit:      unit,
			})
		}
	}
	return samples
}

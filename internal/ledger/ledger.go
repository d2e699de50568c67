package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"voltcore/internal/models"
)

var (
	// ErrConnectorBusy means the connector already has an active transaction.
	// A double start is refused, not queued.
	ErrConnectorBusy = errors.New("ledger: connector already has an active transaction")
	// ErrNotFound means the transaction id does not match the active
	// transaction for the charge point. State is left untouched.
	ErrNotFound = errors.New("ledger: no matching active transaction")
)

// SessionStore is the persistence collaborator for sessions.
type SessionStore interface {
	Insert(ctx context.Context, s *models.Session) (int64, error)
	Complete(ctx context.Context, transactionID, meterStop int64, stoppedAt time.Time, reason string) error
}

// MeterStore persists meter samples.
type MeterStore interface {
	Insert(ctx context.Context, sample *models.MeterSample) error
}

type pairKey struct {
	chargePointID string
	connectorID   int
}

type activeTx struct {
	sessionID     int64
	transactionID int64
	chargePointID string
	connectorID   int
	idTag         string
	meterStart    int64
	startedAt     time.Time
}

// Ledger tracks at most one active transaction per (charge point, connector)
// pair and assigns collision-free transaction identifiers. The in-memory
// transition happens first; if the session write fails the transition is
// rolled back so the device never sees an Accepted that storage lost.
type Ledger struct {
	mu     sync.Mutex
	byPair map[pairKey]*activeTx
	byTx   map[int64]*activeTx
	nextTx int64

	sessions SessionStore
	meters   MeterStore
	logger   *zap.Logger
}

// New returns an empty ledger. Transaction ids start above seed, which
// callers take from the highest persisted id so restarts never reuse one.
func New(sessions SessionStore, meters MeterStore, seed int64, logger *zap.Logger) *Ledger {
	return &Ledger{
		byPair:   make(map[pairKey]*activeTx),
		byTx:     make(map[int64]*activeTx),
		nextTx:   seed,
		sessions: sessions,
		meters:   meters,
		logger:   logger,
	}
}

// Start performs the Idle to Active transition for a connector. The caller
// has already verified the tag verdict. Returns the assigned transaction id.
func (l *Ledger) Start(ctx context.Context, chargePointID string, connectorID int, idTag string, meterStart int64, at time.Time) (int64, error) {
	key := pairKey{chargePointID: chargePointID, connectorID: connectorID}

	l.mu.Lock()
	if _, busy := l.byPair[key]; busy {
		l.mu.Unlock()
		return 0, ErrConnectorBusy
	}
	l.nextTx++
	tx := &activeTx{
		transactionID: l.nextTx,
		chargePointID: chargePointID,
		connectorID:   connectorID,
		idTag:         idTag,
		meterStart:    meterStart,
		startedAt:     at,
	}
	l.byPair[key] = tx
	l.byTx[tx.transactionID] = tx
	l.mu.Unlock()

	sessionID, err := l.sessions.Insert(ctx, &models.Session{
		TransactionID: tx.transactionID,
		ChargePointID: chargePointID,
		ConnectorID:   connectorID,
		IdTag:         idTag,
		MeterStart:    meterStart,
		StartedAt:     at,
		Status:        models.SessionActive,
	})
	if err != nil {
		l.mu.Lock()
		delete(l.byPair, key)
		delete(l.byTx, tx.transactionID)
		l.mu.Unlock()
		return 0, fmt.Errorf("ledger: persist session: %w", err)
	}

	l.mu.Lock()
	tx.sessionID = sessionID
	l.mu.Unlock()

	return tx.transactionID, nil
}

// Stop performs the Active to Idle transition. The same transition serves
// device-reported and centrally-initiated stops; the device report is the
// single entry point that actually closes the session. On a storage failure
// the transaction stays active so the device retries.
func (l *Ledger) Stop(ctx context.Context, chargePointID string, transactionID, meterStop int64, at time.Time, reason string) error {
	l.mu.Lock()
	tx, ok := l.byTx[transactionID]
	if !ok || tx.chargePointID != chargePointID {
		l.mu.Unlock()
		return ErrNotFound
	}
	l.mu.Unlock()

	if err := l.sessions.Complete(ctx, transactionID, meterStop, at, reason); err != nil {
		return fmt.Errorf("ledger: persist stop: %w", err)
	}

	l.mu.Lock()
	delete(l.byPair, pairKey{chargePointID: tx.chargePointID, connectorID: tx.connectorID})
	delete(l.byTx, transactionID)
	l.mu.Unlock()

	if meterStop < tx.meterStart {
		l.logger.Warn("stop meter reading below start reading",
			zap.String("charge_point_id", chargePointID),
			zap.Int64("transaction_id", transactionID),
			zap.Int64("meter_start", tx.meterStart),
			zap.Int64("meter_stop", meterStop))
	}

	return nil
}

// AppendSamples persists meter samples, linking them to the active session
// for the connector when one exists. Samples for an idle connector are kept
// flagged as orphaned rather than dropped; no session is ever fabricated.
func (l *Ledger) AppendSamples(ctx context.Context, chargePointID string, connectorID int, samples []models.MeterSample) (orphaned bool, err error) {
	l.mu.Lock()
	tx, active := l.byPair[pairKey{chargePointID: chargePointID, connectorID: connectorID}]
	var sessionID int64
	if active {
		sessionID = tx.sessionID
	}
	l.mu.Unlock()

	for i := range samples {
		samples[i].ChargePointID = chargePointID
		samples[i].ConnectorID = connectorID
		if active {
			id := sessionID
			samples[i].SessionID = &id
		} else {
			samples[i].SessionID = nil
			samples[i].Orphaned = true
		}
		if err := l.meters.Insert(ctx, &samples[i]); err != nil {
			return !active, fmt.Errorf("ledger: persist sample: %w", err)
		}
	}
	return !active, nil
}

// ActiveTransaction returns the active transaction id for a connector.
func (l *Ledger) ActiveTransaction(chargePointID string, connectorID int) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.byPair[pairKey{chargePointID: chargePointID, connectorID: connectorID}]
	if !ok {
		return 0, false
	}
	return tx.transactionID, true
}

// HasTransaction reports whether the transaction id is active on the given
// charge point.
func (l *Ledger) HasTransaction(chargePointID string, transactionID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.byTx[transactionID]
	return ok && tx.chargePointID == chargePointID
}

// ActiveCount returns the number of active transactions.
func (l *Ledger) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byTx)
}

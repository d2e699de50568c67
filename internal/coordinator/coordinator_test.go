package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voltcore/internal/authcache"
	"voltcore/internal/ledger"
	"voltcore/internal/models"
	"voltcore/internal/ocpp/protocol"
	"voltcore/internal/redisstore"
	"voltcore/internal/registry"
)

type fakePointStore struct {
	mu           sync.Mutex
	upserted     []models.ChargePoint
	reachability map[string]models.Reachability
	upsertErr    error
}

func newFakePointStore() *fakePointStore {
	return &fakePointStore{reachability: make(map[string]models.Reachability)}
}

func (f *fakePointStore) Upsert(ctx context.Context, cp *models.ChargePoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, *cp)
	return nil
}

func (f *fakePointStore) UpdateReachability(ctx context.Context, chargePointID string, state models.Reachability) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reachability[chargePointID] = state
	return nil
}

type fakeConnectorStore struct {
	mu           sync.Mutex
	upserted     []models.Connector
	availability map[int]string
}

func newFakeConnectorStore() *fakeConnectorStore {
	return &fakeConnectorStore{availability: make(map[int]string)}
}

func (f *fakeConnectorStore) Upsert(ctx context.Context, c *models.Connector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, *c)
	return nil
}

func (f *fakeConnectorStore) UpdateAvailability(ctx context.Context, chargePointID string, connectorID int, availability string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.availability[connectorID] = availability
	return nil
}

type fakeTransferStore struct {
	mu      sync.Mutex
	saved   []models.DataTransfer
	saveErr error
}

func (f *fakeTransferStore) Save(ctx context.Context, dt *models.DataTransfer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, *dt)
	return nil
}

type fakeMirror struct {
	mu      sync.Mutex
	saved   []redisstore.ActiveSession
	deleted []int64
}

func (f *fakeMirror) Save(ctx context.Context, session redisstore.ActiveSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, session)
	return nil
}

func (f *fakeMirror) Delete(ctx context.Context, transactionID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, transactionID)
	return nil
}

type fakeSessionStore struct {
	mu        sync.Mutex
	nextID    int64
	completed []int64
	insertErr error
	stopErr   error
}

func (f *fakeSessionStore) Insert(ctx context.Context, s *models.Session) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeSessionStore) Complete(ctx context.Context, transactionID, meterStop int64, stoppedAt time.Time, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.completed = append(f.completed, transactionID)
	return nil
}

type fakeMeterStore struct {
	mu      sync.Mutex
	samples []models.MeterSample
}

func (f *fakeMeterStore) Insert(ctx context.Context, sample *models.MeterSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, *sample)
	return nil
}

type fakeTagStore struct {
	mu   sync.Mutex
	tags map[string]*models.IdTag
	err  error
}

func (f *fakeTagStore) Find(ctx context.Context, tag string) (*models.IdTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.tags[tag], nil
}

// fakeDeviceConn replies to outbound calls with canned payloads per action,
// or blocks until ctx expires when no reply is configured.
type fakeDeviceConn struct {
	mu      sync.Mutex
	replies map[string]interface{}
	calls   []string
	closed  bool
}

func newFakeDeviceConn() *fakeDeviceConn {
	return &fakeDeviceConn{replies: make(map[string]interface{})}
}

func (f *fakeDeviceConn) reply(action string, payload interface{}) {
	f.mu.Lock()
	f.replies[action] = payload
	f.mu.Unlock()
}

func (f *fakeDeviceConn) Call(ctx context.Context, action string, payload interface{}) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, action)
	reply, ok := f.replies[action]
	f.mu.Unlock()

	if !ok {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	raw, err := json.Marshal(reply)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (f *fakeDeviceConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeDeviceConn) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type testHarness struct {
	coord      *Coordinator
	registry   *registry.Registry
	ledger     *ledger.Ledger
	points     *fakePointStore
	connectors *fakeConnectorStore
	transfers  *fakeTransferStore
	mirror     *fakeMirror
	sessions   *fakeSessionStore
	meters     *fakeMeterStore
	tags       *fakeTagStore
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	h := &testHarness{
		registry:   registry.New(),
		points:     newFakePointStore(),
		connectors: newFakeConnectorStore(),
		transfers:  &fakeTransferStore{},
		mirror:     &fakeMirror{},
		sessions:   &fakeSessionStore{},
		meters:     &fakeMeterStore{},
		tags:       &fakeTagStore{tags: make(map[string]*models.IdTag)},
	}
	h.tags.tags["OK001"] = &models.IdTag{Tag: "OK001", Status: models.VerdictAccepted}
	h.tags.tags["BLOCKED001"] = &models.IdTag{Tag: "BLOCKED001", Status: models.VerdictBlocked}

	logger := zap.NewNop()
	h.ledger = ledger.New(h.sessions, h.meters, 0, logger)
	auth := authcache.New(h.tags, time.Minute, logger)

	h.coord = New(Options{
		Registry:          h.registry,
		Ledger:            h.ledger,
		Auth:              auth,
		ChargePoints:      h.points,
		Connectors:        h.connectors,
		Transfers:         h.transfers,
		Mirror:            h.mirror,
		HeartbeatInterval: 300 * time.Second,
		CommandTimeout:    50 * time.Millisecond,
		Logger:            logger,
	})
	return h
}

func TestOnBootUpsertsAndAccepts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.coord.OnBoot(ctx, "CP001", protocol.BootNotificationRequest{
		ChargePointVendor: "VoltTech",
		ChargePointModel:  "VT-22",
	})
	require.NoError(t, err)

	assert.Equal(t, protocol.RegistrationAccepted, resp.Status)
	assert.Equal(t, 300, resp.Interval)
	assert.False(t, resp.CurrentTime.IsZero())

	require.Len(t, h.points.upserted, 1)
	assert.Equal(t, "CP001", h.points.upserted[0].ID)
	assert.Equal(t, models.ReachabilityOnline, h.points.upserted[0].Reachability)
}

func TestOnHeartbeatReturnsServerTime(t *testing.T) {
	h := newHarness(t)

	resp, err := h.coord.OnHeartbeat(context.Background(), "CP001")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), resp.CurrentTime, time.Second)
}

func TestOnAuthorizeVerdicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.coord.OnAuthorize(ctx, "CP001", protocol.AuthorizeRequest{IdTag: "OK001"})
	require.NoError(t, err)
	assert.Equal(t, "Accepted", resp.IdTagInfo.Status)

	resp, err = h.coord.OnAuthorize(ctx, "CP001", protocol.AuthorizeRequest{IdTag: "BLOCKED001"})
	require.NoError(t, err)
	assert.Equal(t, "Blocked", resp.IdTagInfo.Status)

	resp, err = h.coord.OnAuthorize(ctx, "CP001", protocol.AuthorizeRequest{IdTag: "NOSUCH"})
	require.NoError(t, err)
	assert.Equal(t, "Invalid", resp.IdTagInfo.Status)
}

func TestOnAuthorizeStoreFailureIsInvalid(t *testing.T) {
	h := newHarness(t)
	h.tags.err = errors.New("db down")

	resp, err := h.coord.OnAuthorize(context.Background(), "CP001", protocol.AuthorizeRequest{IdTag: "OK001"})
	require.NoError(t, err)
	assert.Equal(t, "Invalid", resp.IdTagInfo.Status)
}

func TestOnStatusNotificationPersistsConnector(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.OnStatusNotification(ctx, "CP001", protocol.StatusNotificationRequest{
		ConnectorID: 1,
		Status:      protocol.ConnectorCharging,
		ErrorCode:   "NoError",
	})
	require.NoError(t, err)

	require.Len(t, h.connectors.upserted, 1)
	assert.Equal(t, protocol.ConnectorCharging, h.connectors.upserted[0].Status)

	// ConnectorId 0 refers to the charge point itself.
	_, err = h.coord.OnStatusNotification(ctx, "CP001", protocol.StatusNotificationRequest{
		ConnectorID: 0,
		Status:      protocol.ConnectorAvailable,
	})
	require.NoError(t, err)
	assert.Len(t, h.connectors.upserted, 1)
}

func TestStartStopRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := time.Now().UTC()

	start, err := h.coord.OnStartTransaction(ctx, "CP001", protocol.StartTransactionRequest{
		ConnectorID: 1,
		IdTag:       "OK001",
		MeterStart:  100,
		Timestamp:   at,
	})
	require.NoError(t, err)
	assert.Equal(t, "Accepted", start.IdTagInfo.Status)
	assert.Positive(t, start.TransactionID)
	assert.Equal(t, 1, h.ledger.ActiveCount())

	require.Len(t, h.mirror.saved, 1)
	assert.Equal(t, start.TransactionID, h.mirror.saved[0].TransactionID)

	// Samples during the session link to it.
	_, err = h.coord.OnMeterValues(ctx, "CP001", protocol.MeterValuesRequest{
		ConnectorID: 1,
		MeterValue: []protocol.MeterValueEntry{{
			Timestamp:    at.Add(time.Minute),
			SampledValue: []protocol.SampledValue{{Value: "1200"}},
		}},
	})
	require.NoError(t, err)
	require.Len(t, h.meters.samples, 1)
	require.NotNil(t, h.meters.samples[0].SessionID)
	assert.False(t, h.meters.samples[0].Orphaned)

	_, err = h.coord.OnStopTransaction(ctx, "CP001", protocol.StopTransactionRequest{
		TransactionID: start.TransactionID,
		MeterStop:     500,
		Timestamp:     at.Add(time.Hour),
		Reason:        "Local",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, h.ledger.ActiveCount())
	assert.Equal(t, []int64{start.TransactionID}, h.sessions.completed)
	assert.Equal(t, []int64{start.TransactionID}, h.mirror.deleted)
}

func TestOnStartTransactionRefusals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := time.Now().UTC()

	// Not accepted tag: refused with the verdict, no transaction id.
	resp, err := h.coord.OnStartTransaction(ctx, "CP001", protocol.StartTransactionRequest{
		ConnectorID: 1, IdTag: "BLOCKED001", Timestamp: at,
	})
	require.NoError(t, err)
	assert.Equal(t, "Blocked", resp.IdTagInfo.Status)
	assert.Zero(t, resp.TransactionID)

	// Double start on one connector: ConcurrentTx.
	first, err := h.coord.OnStartTransaction(ctx, "CP001", protocol.StartTransactionRequest{
		ConnectorID: 1, IdTag: "OK001", Timestamp: at,
	})
	require.NoError(t, err)
	require.Equal(t, "Accepted", first.IdTagInfo.Status)

	second, err := h.coord.OnStartTransaction(ctx, "CP001", protocol.StartTransactionRequest{
		ConnectorID: 1, IdTag: "OK001", Timestamp: at,
	})
	require.NoError(t, err)
	assert.Equal(t, protocol.AuthConcurrentTx, second.IdTagInfo.Status)
	assert.Zero(t, second.TransactionID)
	assert.Equal(t, 1, h.ledger.ActiveCount())
}

func TestOnStartTransactionStorageFailure(t *testing.T) {
	h := newHarness(t)
	h.sessions.insertErr = errors.New("db down")

	resp, err := h.coord.OnStartTransaction(context.Background(), "CP001", protocol.StartTransactionRequest{
		ConnectorID: 1, IdTag: "OK001", Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Invalid", resp.IdTagInfo.Status)
	assert.Equal(t, 0, h.ledger.ActiveCount())
	assert.Empty(t, h.mirror.saved)
}

func TestOnStopTransactionUnknownIDIsAcknowledged(t *testing.T) {
	h := newHarness(t)

	_, err := h.coord.OnStopTransaction(context.Background(), "CP001", protocol.StopTransactionRequest{
		TransactionID: 999,
		MeterStop:     500,
		Timestamp:     time.Now().UTC(),
	})
	assert.NoError(t, err)
	assert.Empty(t, h.sessions.completed)
}

func TestOnStopTransactionStorageFailureKeepsSessionActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := time.Now().UTC()

	start, err := h.coord.OnStartTransaction(ctx, "CP001", protocol.StartTransactionRequest{
		ConnectorID: 1, IdTag: "OK001", Timestamp: at,
	})
	require.NoError(t, err)

	h.sessions.stopErr = errors.New("db down")
	_, err = h.coord.OnStopTransaction(ctx, "CP001", protocol.StopTransactionRequest{
		TransactionID: start.TransactionID,
		MeterStop:     500,
		Timestamp:     at,
	})
	require.Error(t, err)
	assert.Equal(t, 1, h.ledger.ActiveCount())
	assert.Empty(t, h.mirror.deleted)
}

func TestOnMeterValuesWithoutSessionIsOrphaned(t *testing.T) {
	h := newHarness(t)

	_, err := h.coord.OnMeterValues(context.Background(), "CP001", protocol.MeterValuesRequest{
		ConnectorID: 1,
		MeterValue: []protocol.MeterValueEntry{{
			Timestamp:    time.Now().UTC(),
			SampledValue: []protocol.SampledValue{{Value: "42.5", Measurand: "Power.Active.Import", Unit: "W"}},
		}},
	})
	require.NoError(t, err)

	require.Len(t, h.meters.samples, 1)
	assert.True(t, h.meters.samples[0].Orphaned)
	assert.Nil(t, h.meters.samples[0].SessionID)
	assert.Equal(t, "Power.Active.Import", h.meters.samples[0].Measurand)
}

func TestOnDataTransfer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.coord.OnDataTransfer(ctx, "CP001", protocol.DataTransferRequest{
		VendorID: "com.volttech", MessageID: "diag", Data: `{"ok":true}`,
	})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusAccepted, resp.Status)
	require.Len(t, h.transfers.saved, 1)

	h.transfers.saveErr = errors.New("db down")
	resp, err = h.coord.OnDataTransfer(ctx, "CP001", protocol.DataTransferRequest{VendorID: "com.volttech"})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusRejected, resp.Status)
}

func TestFlattenSamplesSkipsNonNumericValues(t *testing.T) {
	at := time.Now().UTC()
	samples := flattenSamples(protocol.MeterValuesRequest{
		ConnectorID: 1,
		MeterValue: []protocol.MeterValueEntry{{
			Timestamp: at,
			SampledValue: []protocol.SampledValue{
				{Value: "1200"},
				{Value: "not-a-number"},
			},
		}},
	}, at)

	require.Len(t, samples, 1)
	assert.Equal(t, float64(1200), samples[0].Value)
	assert.Equal(t, "Energy.Active.Import.Register", samples[0].Measurand)
	assert.Equal(t, "Wh", samples[0].Unit)
}

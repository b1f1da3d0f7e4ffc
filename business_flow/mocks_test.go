package businessflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
)

// mockTransactor runs the function directly, no transaction semantics
type mockTransactor struct{}

func (t *mockTransactor) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type guardedUpdate struct {
	CallID   uint
	Expected models.CallStatus
	Target   models.CallStatus
	Set      map[string]any
}

// mockCallRepo is an in-memory CallRepository. The guarded update honors the
// expected-status check the same way the SQL implementation does.
type mockCallRepo struct {
	mu             sync.Mutex
	calls          map[uint]*models.Call
	guardedUpdates []guardedUpdate
	updates        []*models.Call
	stuck          []*models.Call
	latestOutbound *models.Call
	nextID         uint
}

func newMockCallRepo() *mockCallRepo {
	return &mockCallRepo{calls: map[uint]*models.Call{}, nextID: 1}
}

func (r *mockCallRepo) add(call *models.Call) *models.Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	if call.ID == 0 {
		call.ID = r.nextID
		r.nextID++
	}
	r.calls[call.ID] = call
	return call
}

func (r *mockCallRepo) ByID(_ context.Context, id uint) (*models.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id], nil
}

func (r *mockCallRepo) ByFilter(context.Context, models.CallFilter, string, int, int) ([]*models.Call, error) {
	return nil, nil
}

func (r *mockCallRepo) Save(_ context.Context, call *models.Call) error {
	r.add(call)
	return nil
}

func (r *mockCallRepo) SaveBatch(_ context.Context, calls []*models.Call) error {
	for _, c := range calls {
		r.add(c)
	}
	return nil
}

func (r *mockCallRepo) ByUUID(_ context.Context, u uuid.UUID) (*models.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c.UUID == u {
			return c, nil
		}
	}
	return nil, nil
}

func (r *mockCallRepo) ByVapiCallID(_ context.Context, vapiCallID string) (*models.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c.VapiCallID != nil && *c.VapiCallID == vapiCallID {
			return c, nil
		}
	}
	return nil, nil
}

func (r *mockCallRepo) Update(_ context.Context, call *models.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, call)
	r.calls[call.ID] = call
	return nil
}

func (r *mockCallRepo) UpdateStatusGuarded(_ context.Context, callID uint, expected, target models.CallStatus, set map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.calls[callID]
	if !ok || stored.Status != expected {
		return false, nil
	}
	r.guardedUpdates = append(r.guardedUpdates, guardedUpdate{CallID: callID, Expected: expected, Target: target, Set: set})
	stored.Status = target
	if v, ok := set["vapi_call_id"].(string); ok {
		stored.VapiCallID = &v
	}
	if v, ok := set["started_at"].(time.Time); ok {
		stored.StartedAt = &v
	}
	if v, ok := set["ended_at"].(time.Time); ok {
		stored.EndedAt = &v
	}
	return true, nil
}

func (r *mockCallRepo) ListStuck(_ context.Context, _ time.Time, _ int) ([]*models.Call, error) {
	return r.stuck, nil
}

func (r *mockCallRepo) LatestOutboundToNumber(_ context.Context, _ string, _ time.Time) (*models.Call, error) {
	return r.latestOutbound, nil
}

type mockTranscriptRepo struct {
	mu      sync.Mutex
	upserts []*models.Transcript
}

func (r *mockTranscriptRepo) ByCallID(context.Context, uint) (*models.Transcript, error) {
	return nil, nil
}

func (r *mockTranscriptRepo) UpsertByCallID(_ context.Context, t *models.Transcript) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, t)
	return nil
}

type mockAnalyticsRepo struct {
	mu      sync.Mutex
	upserts []*models.CallAnalytics
}

func (r *mockAnalyticsRepo) ByCallID(context.Context, uint) (*models.CallAnalytics, error) {
	return nil, nil
}

func (r *mockAnalyticsRepo) UpsertByCallID(_ context.Context, a *models.CallAnalytics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, a)
	return nil
}

type counterBump struct {
	CampaignID     uint
	CompletedDelta int
	FailedDelta    int
}

type mockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[uint]*models.Campaign
	bumps     []counterBump
	updates   []*models.Campaign
	finished  bool
}

func newMockCampaignRepo() *mockCampaignRepo {
	return &mockCampaignRepo{campaigns: map[uint]*models.Campaign{}}
}

func (r *mockCampaignRepo) add(c *models.Campaign) *models.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		c.ID = uint(len(r.campaigns) + 1)
	}
	r.campaigns[c.ID] = c
	return c
}

func (r *mockCampaignRepo) ByID(_ context.Context, id uint) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.campaigns[id], nil
}

func (r *mockCampaignRepo) ByFilter(context.Context, models.CampaignFilter, string, int, int) ([]*models.Campaign, error) {
	return nil, nil
}

func (r *mockCampaignRepo) Save(_ context.Context, c *models.Campaign) error {
	r.add(c)
	return nil
}

func (r *mockCampaignRepo) SaveBatch(_ context.Context, cs []*models.Campaign) error {
	for _, c := range cs {
		r.add(c)
	}
	return nil
}

func (r *mockCampaignRepo) ByUUID(_ context.Context, u uuid.UUID) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.campaigns {
		if c.UUID == u {
			return c, nil
		}
	}
	return nil, nil
}

func (r *mockCampaignRepo) Update(_ context.Context, c *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, c)
	return nil
}

func (r *mockCampaignRepo) IncrementCounters(_ context.Context, campaignID uint, completedDelta, failedDelta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bumps = append(r.bumps, counterBump{CampaignID: campaignID, CompletedDelta: completedDelta, FailedDelta: failedDelta})
	if c, ok := r.campaigns[campaignID]; ok {
		c.CompletedCalls += completedDelta
		c.FailedCalls += failedDelta
	}
	return nil
}

func (r *mockCampaignRepo) CompleteIfFinished(context.Context, uint) (bool, error) {
	return r.finished, nil
}

type markedStatus struct {
	CampaignID uint
	ContactID  uint
	Status     models.CampaignContactStatus
}

type mockCampaignContactRepo struct {
	mu      sync.Mutex
	pending []*models.CampaignContact
	marks   []markedStatus
}

func (r *mockCampaignContactRepo) ByPair(context.Context, uint, uint) (*models.CampaignContact, error) {
	return nil, nil
}

func (r *mockCampaignContactRepo) ListPending(_ context.Context, _ uint, limit int) ([]*models.CampaignContact, error) {
	if limit > 0 && limit < len(r.pending) {
		return r.pending[:limit], nil
	}
	return r.pending, nil
}

func (r *mockCampaignContactRepo) CountOpen(context.Context, uint) (int64, error) {
	return int64(len(r.pending)), nil
}

func (r *mockCampaignContactRepo) Save(context.Context, *models.CampaignContact) error {
	return nil
}

func (r *mockCampaignContactRepo) Update(context.Context, *models.CampaignContact) error {
	return nil
}

func (r *mockCampaignContactRepo) MarkStatus(_ context.Context, campaignID, contactID uint, status models.CampaignContactStatus, _ *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marks = append(r.marks, markedStatus{CampaignID: campaignID, ContactID: contactID, Status: status})
	return nil
}

type mockContactRepo struct {
	mu       sync.Mutex
	contacts map[uint]*models.Contact
	byPhone  map[string]*models.Contact
}

func newMockContactRepo() *mockContactRepo {
	return &mockContactRepo{contacts: map[uint]*models.Contact{}, byPhone: map[string]*models.Contact{}}
}

func (r *mockContactRepo) add(c *models.Contact) *models.Contact {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		c.ID = uint(len(r.contacts) + 1)
	}
	r.contacts[c.ID] = c
	r.byPhone[c.PhoneNumber] = c
	return c
}

func (r *mockContactRepo) ByID(_ context.Context, id uint) (*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contacts[id], nil
}

func (r *mockContactRepo) ByPhoneNumber(_ context.Context, phoneNumber string) (*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byPhone[phoneNumber], nil
}

func (r *mockContactRepo) Save(_ context.Context, c *models.Contact) error {
	r.add(c)
	return nil
}

type mockWebhookLogRepo struct {
	mu        sync.Mutex
	entries   []*models.WebhookLogEntry
	processed []uint
	errored   map[uint]string
	nextID    uint
}

func newMockWebhookLogRepo() *mockWebhookLogRepo {
	return &mockWebhookLogRepo{errored: map[uint]string{}, nextID: 1}
}

func (r *mockWebhookLogRepo) Save(_ context.Context, entry *models.WebhookLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = r.nextID
	r.nextID++
	r.entries = append(r.entries, entry)
	return nil
}

func (r *mockWebhookLogRepo) MarkProcessed(_ context.Context, entryID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed = append(r.processed, entryID)
	return nil
}

func (r *mockWebhookLogRepo) MarkError(_ context.Context, entryID uint, errText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errored[entryID] = errText
	return nil
}

// mockVapiClient answers provider calls from canned values and hooks
type mockVapiClient struct {
	mu           sync.Mutex
	createCalls  int
	createErr    error
	createErrFor map[string]error
	getCallResp  *dto.VapiCall
	getCallErr   error
	phoneNumbers []dto.VapiPhoneNumber
	assistant    *dto.VapiAssistant
	assistantErr error
}

func (c *mockVapiClient) CreateCall(_ context.Context, req *dto.CreateCallRequest) (*dto.VapiCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createCalls++
	if err, ok := c.createErrFor[req.Customer.Number]; ok {
		return nil, err
	}
	if c.createErr != nil {
		return nil, c.createErr
	}
	return &dto.VapiCall{ID: "vapi-" + uuid.NewString(), Status: "queued"}, nil
}

func (c *mockVapiClient) GetCall(context.Context, string) (*dto.VapiCall, error) {
	if c.getCallErr != nil {
		return nil, c.getCallErr
	}
	return c.getCallResp, nil
}

func (c *mockVapiClient) ListPhoneNumbers(context.Context) ([]dto.VapiPhoneNumber, error) {
	return c.phoneNumbers, nil
}

func (c *mockVapiClient) GetAssistant(context.Context, string) (*dto.VapiAssistant, error) {
	if c.assistantErr != nil {
		return nil, c.assistantErr
	}
	return c.assistant, nil
}

func (c *mockVapiClient) ListAssistants(context.Context) ([]dto.VapiAssistant, error) {
	return nil, nil
}

func callFixture(status models.CallStatus) *models.Call {
	now := utils.UTCNow()
	call := &models.Call{
		UUID:        uuid.New(),
		Direction:   models.CallDirectionOutbound,
		PhoneNumber: "+15550001111",
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if status.Rank() >= models.CallStatusRinging.Rank() {
		call.StartedAt = &now
	}
	if status.IsTerminal() {
		call.EndedAt = &now
	}
	return call
}

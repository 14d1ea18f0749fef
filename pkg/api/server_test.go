package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calliq/qaengine/pkg/apperrors"
	"github.com/calliq/qaengine/pkg/models"
	"github.com/calliq/qaengine/pkg/pipeline"
	"github.com/calliq/qaengine/pkg/queue"
)

// fakeAPIStore is the api.Store fake, an in-memory map store following the
// same fakeQueueStore convention pkg/queue/handlers_test.go uses, extended
// with the author-facing CRUD api.Store adds beyond queue.Store.
type fakeAPIStore struct {
	mu            sync.Mutex
	blueprints    map[string]*models.Blueprint
	blueprintVers map[string]*models.BlueprintVersion
	flows         map[string]*models.CompiledFlowVersion
	recordings    map[string]*models.Recording
	transcripts   map[string]*models.Transcript
	evaluations   map[string]*models.Evaluation
	sandboxRuns   map[string]*models.SandboxRun
}

func newFakeAPIStore() *fakeAPIStore {
	return &fakeAPIStore{
		blueprints:    make(map[string]*models.Blueprint),
		blueprintVers: make(map[string]*models.BlueprintVersion),
		flows:         make(map[string]*models.CompiledFlowVersion),
		recordings:    make(map[string]*models.Recording),
		transcripts:   make(map[string]*models.Transcript),
		evaluations:   make(map[string]*models.Evaluation),
		sandboxRuns:   make(map[string]*models.SandboxRun),
	}
}

func (s *fakeAPIStore) CompiledFlowVersionForBlueprintVersion(ctx context.Context, blueprintVersionID string) (string, bool, error) {
	if f, ok := s.flows[blueprintVersionID]; ok {
		return f.ID, true, nil
	}
	return "", false, nil
}

func (s *fakeAPIStore) PersistCompiledFlowVersion(ctx context.Context, bp *models.Blueprint, blueprintVersionID string, flow *models.CompiledFlowVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[blueprintVersionID] = flow
	if v, ok := s.blueprintVers[blueprintVersionID]; ok {
		v.CompiledFlowVersionID = &flow.ID
	}
	return nil
}

func (s *fakeAPIStore) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	r, ok := s.recordings[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return r, nil
}

func (s *fakeAPIStore) GetBlueprint(ctx context.Context, id string) (*models.Blueprint, error) {
	b, ok := s.blueprints[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return b, nil
}

func (s *fakeAPIStore) GetCompiledFlowVersion(ctx context.Context, id string) (*models.CompiledFlowVersion, error) {
	f, ok := s.flows[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return f, nil
}

func (s *fakeAPIStore) GetEvaluationByRecording(ctx context.Context, recordingID string) (*models.Evaluation, error) {
	e, ok := s.evaluations[recordingID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return e, nil
}

func (s *fakeAPIStore) GetTranscript(ctx context.Context, id string) (*models.Transcript, error) {
	t, ok := s.transcripts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return t, nil
}

func (s *fakeAPIStore) SaveTranscript(ctx context.Context, t *models.Transcript) error {
	s.transcripts[t.ID] = t
	return nil
}

func (s *fakeAPIStore) SaveEvaluation(ctx context.Context, e *models.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluations[e.RecordingID] = e
	return nil
}

func (s *fakeAPIStore) UpdateRecordingStatus(ctx context.Context, recordingID string, status models.RecordingStatus, failureReason string) error {
	if r, ok := s.recordings[recordingID]; ok {
		r.Status = status
	}
	return nil
}

func (s *fakeAPIStore) GetBlueprintVersion(ctx context.Context, blueprintVersionID string) (*models.BlueprintVersion, error) {
	v, ok := s.blueprintVers[blueprintVersionID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return v, nil
}

func (s *fakeAPIStore) SaveSandboxRun(ctx context.Context, run *models.SandboxRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sandboxRuns[run.ID] = run
	return nil
}

func (s *fakeAPIStore) CreateBlueprint(ctx context.Context, bp *models.Blueprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blueprints[bp.ID] = bp
	return nil
}

func (s *fakeAPIStore) UpdateBlueprint(ctx context.Context, bp *models.Blueprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blueprints[bp.ID] = bp
	return nil
}

func (s *fakeAPIStore) ListBlueprints(ctx context.Context, companyID string, includeArchived bool) ([]*models.Blueprint, error) {
	var out []*models.Blueprint
	for _, bp := range s.blueprints {
		if bp.CompanyID != companyID {
			continue
		}
		if !includeArchived && bp.Status == models.BlueprintStatusArchived {
			continue
		}
		out = append(out, bp)
	}
	return out, nil
}

func (s *fakeAPIStore) PublishBlueprint(ctx context.Context, bp *models.Blueprint, version *models.BlueprintVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blueprints[bp.ID] = bp
	s.blueprintVers[version.ID] = version
	return nil
}

func (s *fakeAPIStore) GetSandboxRun(ctx context.Context, id string) (*models.SandboxRun, error) {
	r, ok := s.sandboxRuns[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return r, nil
}

func (s *fakeAPIStore) GetEvaluation(ctx context.Context, id string) (*models.Evaluation, error) {
	for _, e := range s.evaluations {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// fakeQueue is an in-memory queue.Queue double, mirroring the one
// pkg/queue/worker_test.go uses for worker-loop tests.
type fakeQueue struct {
	mu      sync.Mutex
	tasks   []*queue.Task
	seenKey map[string]string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{seenKey: make(map[string]string)}
}

func (f *fakeQueue) Enqueue(ctx context.Context, kind queue.TaskKind, payload any, idempotencyKey string, delay time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.seenKey[idempotencyKey]; ok {
		return id, true, nil
	}
	body, _ := json.Marshal(payload)
	id := models.NewID()
	f.tasks = append(f.tasks, &queue.Task{ID: id, Kind: kind, Payload: body, IdempotencyKey: idempotencyKey})
	f.seenKey[idempotencyKey] = id
	return id, false, nil
}

func (f *fakeQueue) Claim(ctx context.Context, timeout time.Duration) (*queue.Task, error) {
	return nil, queue.ErrNoTasksAvailable
}

func (f *fakeQueue) Complete(ctx context.Context, taskID string) error { return nil }
func (f *fakeQueue) Requeue(ctx context.Context, taskID string) error  { return nil }

func (f *fakeQueue) RecoverExpiredLeases(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeQueue) PendingCount(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.tasks)), nil
}

func (f *fakeQueue) InFlightCount(ctx context.Context) (int64, error) { return 0, nil }

func simpleBlueprint(id string) *models.Blueprint {
	return &models.Blueprint{
		ID: id, CompanyID: "acme", Name: "Standard Greeting", Status: models.BlueprintStatusDraft,
		VersionNumber: 1,
		Stages: []*models.Stage{
			{
				ID: "stage-1", BlueprintID: id, StageName: "Opening", OrderingIndex: 0,
				Behaviors: []*models.Behavior{
					{
						ID: "behavior-1", StageID: "stage-1", BehaviorName: "greeting",
						BehaviorType: models.BehaviorTypeRequired, DetectionMode: models.DetectionModeExactPhrase,
						Phrases: []string{"thank you for calling"},
					},
				},
			},
		},
	}
}

func newTestServer(store *fakeAPIStore, q *fakeQueue) *Server {
	p := &pipeline.Pipeline{Store: store}
	return NewServer(ServerConfig{
			Store:    store,
			Queue:    q,
			Pipeline: p,
	})
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestCreateBlueprint_AssignsIDsAndPersists(t *testing.T) {
	store := newFakeAPIStore()
	s := newTestServer(store, newFakeQueue())

	w := doRequest(t, s, http.MethodPost, "/blueprints", CreateBlueprintRequest{
			Name: "Opener Check",
			Stages: []*models.Stage{
				{StageName: "Opening", OrderingIndex: 0, Behaviors: []*models.Behavior{
						{BehaviorName: "greeting", BehaviorType: models.BehaviorTypeRequired, DetectionMode: models.DetectionModeExactPhrase, Phrases: []string{"hello"}},
				}},
			},
	})

	require.Equal(t, http.StatusCreated, w.Code)
	var resp models.Blueprint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.BlueprintStatusDraft, resp.Status)
	require.Len(t, resp.Stages, 1)
	assert.NotEmpty(t, resp.Stages[0].ID)
	assert.Equal(t, resp.ID, resp.Stages[0].BlueprintID)
	require.Len(t, resp.Stages[0].Behaviors, 1)
	assert.NotEmpty(t, resp.Stages[0].Behaviors[0].ID)
	assert.Equal(t, resp.Stages[0].ID, resp.Stages[0].Behaviors[0].StageID)

	_, ok := store.blueprints[resp.ID]
	assert.True(t, ok, "blueprint must be persisted")
}

func TestUpdateBlueprint_RejectsNonDraft(t *testing.T) {
	store := newFakeAPIStore()
	bp := simpleBlueprint("bp-1")
	bp.Status = models.BlueprintStatusPublished
	store.blueprints["bp-1"] = bp
	s := newTestServer(store, newFakeQueue())

	w := doRequest(t, s, http.MethodPut, "/blueprints/bp-1", UpdateBlueprintRequest{Name: "New Name"})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestArchiveBlueprint_SetsArchivedStatus(t *testing.T) {
	store := newFakeAPIStore()
	store.blueprints["bp-1"] = simpleBlueprint("bp-1")
	s := newTestServer(store, newFakeQueue())

	w := doRequest(t, s, http.MethodDelete, "/blueprints/bp-1", nil)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, models.BlueprintStatusArchived, store.blueprints["bp-1"].Status)
}

func TestPublishBlueprint_EnqueuesCompileTaskAndReturnsVersionAsJobID(t *testing.T) {
	store := newFakeAPIStore()
	store.blueprints["bp-1"] = simpleBlueprint("bp-1")
	q := newFakeQueue()
	s := newTestServer(store, q)

	w := doRequest(t, s, http.MethodPost, "/blueprints/bp-1/publish", PublishBlueprintRequest{PublishNote: "go live"})

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp PublishResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "queued", resp.Status)

	assert.Equal(t, models.BlueprintStatusPublished, store.blueprints["bp-1"].Status)
	_, ok := store.blueprintVers[resp.JobID]
	assert.True(t, ok, "publish must freeze a BlueprintVersion keyed by the returned job id")

	require.Len(t, q.tasks, 1)
	assert.Equal(t, queue.TaskKindCompileBlueprint, q.tasks[0].Kind)
	assert.Equal(t, queue.CompileIdempotencyKey(resp.JobID), q.tasks[0].IdempotencyKey)
}

func TestPublishStatus_SucceededOnceFlowCompiled(t *testing.T) {
	store := newFakeAPIStore()
	flowID := "flow-1"
	store.blueprintVers["bv-1"] = &models.BlueprintVersion{ID: "bv-1", BlueprintID: "bp-1", CompiledFlowVersionID: &flowID}
	s := newTestServer(store, newFakeQueue())

	w := doRequest(t, s, http.MethodGet, "/blueprints/bp-1/publish-status/bv-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp PublishStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "succeeded", resp.Status)
	require.NotNil(t, resp.CompiledFlowVersionID)
	assert.Equal(t, flowID, *resp.CompiledFlowVersionID)
}

func TestPublishStatus_QueuedBeforeCompiled(t *testing.T) {
	store := newFakeAPIStore()
	store.blueprintVers["bv-1"] = &models.BlueprintVersion{ID: "bv-1", BlueprintID: "bp-1"}
	s := newTestServer(store, newFakeQueue())

	w := doRequest(t, s, http.MethodGet, "/blueprints/bp-1/publish-status/bv-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp PublishStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	assert.Nil(t, resp.CompiledFlowVersionID)
}

func TestEvaluateRecording_DedupesAgainstExistingEvaluation(t *testing.T) {
	store := newFakeAPIStore()
	store.evaluations["rec-1"] = &models.Evaluation{ID: "eval-1", RecordingID: "rec-1", Status: models.EvaluationStatusCompleted}
	q := newFakeQueue()
	s := newTestServer(store, q)

	w := doRequest(t, s, http.MethodPost, "/recordings/rec-1/evaluate", EvaluateRequest{BlueprintID: "bp-1"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp EvaluateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "eval-1", resp.EvaluationID)
	assert.Empty(t, q.tasks, "must not enqueue when an evaluation already exists")
}

func TestEvaluateRecording_EnqueuesWhenAbsent(t *testing.T) {
	store := newFakeAPIStore()
	q := newFakeQueue()
	s := newTestServer(store, q)

	w := doRequest(t, s, http.MethodPost, "/recordings/rec-1/evaluate", EvaluateRequest{BlueprintID: "bp-1"})

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp EvaluateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.EvaluationID)
	assert.Equal(t, "queued", resp.Status)

	require.Len(t, q.tasks, 1)
	assert.Equal(t, queue.TaskKindEvaluateRecording, q.tasks[0].Kind)
	assert.Equal(t, queue.EvaluateIdempotencyKey("rec-1"), q.tasks[0].IdempotencyKey)
}

func TestGetEvaluationByRecording_FlattensFinalEvaluation(t *testing.T) {
	store := newFakeAPIStore()
	store.evaluations["rec-1"] = &models.Evaluation{
		ID: "eval-1", RecordingID: "rec-1", BlueprintID: "bp-1", Status: models.EvaluationStatusCompleted,
		Final: &models.FinalEvaluation{OverallScore: 91.5, Passed: true, Confidence: 0.8, ReviewRoute: models.ReviewRouteNone},
	}
	s := newTestServer(store, newFakeQueue())

	w := doRequest(t, s, http.MethodGet, "/evaluations/rec-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp EvaluationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.OverallScore)
	assert.InDelta(t, 91.5, *resp.OverallScore, 0.001)
	require.NotNil(t, resp.OverallPassed)
	assert.True(t, *resp.OverallPassed)
	require.NotNil(t, resp.RequiresHumanReview)
	assert.False(t, *resp.RequiresHumanReview)
}

func TestSandboxEvaluate_SyncModeRunsInlineAndPersistsRun(t *testing.T) {
	store := newFakeAPIStore()
	store.blueprints["bp-1"] = simpleBlueprint("bp-1") // draft, compiles on demand
	s := newTestServer(store, newFakeQueue())

	w := doRequest(t, s, http.MethodPost, "/blueprints/bp-1/sandbox-evaluate", SandboxEvaluateRequest{
			Mode: "sync",
			Input: SandboxEvaluateInput{
				Transcript: &models.Transcript{
					ID: "t-sandbox",
					Segments: []*models.Segment{
						{ID: "seg1", Speaker: models.RoleAgent, Text: "thank you for calling", StartSecs: 0, EndSecs: 2},
					},
				},
			},
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp SandboxEvaluateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(models.SandboxRunStatusCompleted), resp.Status)

	run, ok := store.sandboxRuns[resp.RunID]
	require.True(t, ok)
	require.NotNil(t, run.Result)
}

func TestSandboxEvaluate_AsyncModeEnqueuesAndReturnsPending(t *testing.T) {
	store := newFakeAPIStore()
	store.blueprints["bp-1"] = simpleBlueprint("bp-1")
	q := newFakeQueue()
	s := newTestServer(store, q)

	recordingID := "rec-1"
	w := doRequest(t, s, http.MethodPost, "/blueprints/bp-1/sandbox-evaluate", SandboxEvaluateRequest{
			Mode:  "async",
			Input: SandboxEvaluateInput{RecordingID: &recordingID},
	})

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp SandboxEvaluateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(models.SandboxRunStatusPending), resp.Status)
	assert.NotEmpty(t, resp.RunID)

	require.Len(t, q.tasks, 1)
	assert.Equal(t, queue.TaskKindSandboxEvaluate, q.tasks[0].Kind)
	assert.Empty(t, store.sandboxRuns, "async mode must not run the handler in-process")
}

func TestSandboxEvaluate_RejectsMissingInput(t *testing.T) {
	store := newFakeAPIStore()
	store.blueprints["bp-1"] = simpleBlueprint("bp-1")
	s := newTestServer(store, newFakeQueue())

	w := doRequest(t, s, http.MethodPost, "/blueprints/bp-1/sandbox-evaluate", SandboxEvaluateRequest{Mode: "sync"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSandboxRun_NotFoundMapsTo404(t *testing.T) {
	store := newFakeAPIStore()
	s := newTestServer(store, newFakeQueue())

	w := doRequest(t, s, http.MethodGet, "/blueprints/bp-1/sandbox-runs/missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTaskCompileBlueprint_RunsHandlerDirectly(t *testing.T) {
	store := newFakeAPIStore()
	bp := simpleBlueprint("bp-1")
	store.blueprints["bp-1"] = bp
	store.blueprintVers["bv-1"] = &models.BlueprintVersion{ID: "bv-1", BlueprintID: "bp-1", VersionNumber: 1, Snapshot: *bp}
	s := newTestServer(store, newFakeQueue())

	w := doRequest(t, s, http.MethodPost, "/tasks/compile-blueprint", queue.CompileTaskPayload{
			BlueprintID: "bp-1", BlueprintVersionID: "bv-1",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, store.flows["bv-1"])
}

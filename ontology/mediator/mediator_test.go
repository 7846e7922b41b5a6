package mediator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms.heartbeat.dev/clips"
	"oms.heartbeat.dev/clips/cutter"
	"oms.heartbeat.dev/clips/extractor"
	"oms.heartbeat.dev/clips/index"
	"oms.heartbeat.dev/db/repository"
	"oms.heartbeat.dev/ontology/model"
	"oms.heartbeat.dev/ontology/policy"
	"oms.heartbeat.dev/ontology/resolver"
)

// fakeRegistry is a minimal in-memory Registry stub keyed by name.
type fakeRegistry struct {
	objectTypes map[string]*model.ObjectType
	actionTypes map[string]*model.ActionType
	policies    map[string]*model.SecurityPolicy
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		objectTypes: make(map[string]*model.ObjectType),
		actionTypes: make(map[string]*model.ActionType),
		policies:    make(map[string]*model.SecurityPolicy),
	}
}

func (f *fakeRegistry) GetObjectType(name, version string) (*model.ObjectType, error) {
	return f.objectTypes[name], nil
}
func (f *fakeRegistry) GetLinkType(name, version string) (*model.LinkType, error) { return nil, nil }
func (f *fakeRegistry) GetActionType(name, version string) (*model.ActionType, error) {
	return f.actionTypes[name], nil
}
func (f *fakeRegistry) GetSecurityPolicy(name, version string) (*model.SecurityPolicy, error) {
	return f.policies[name], nil
}

// fakePolicyEngine always returns a fixed decision, ignoring the policy
// argument, so tests can drive authorize() without a real policy document.
type fakePolicyEngine struct {
	decision policy.Decision
}

func (f *fakePolicyEngine) EvaluateAccess(actor policy.Actor, operation, targetKind string, pol *model.SecurityPolicy) policy.Decision {
	return f.decision
}

func newAllow() *fakePolicyEngine {
	return &fakePolicyEngine{decision: policy.Decision{Allowed: true, Reason: "allowed"}}
}

func newDeny(reason string) *fakePolicyEngine {
	return &fakePolicyEngine{decision: policy.Decision{Allowed: false, Reason: reason}}
}

type fakeExtractor struct {
	segments []clips.ClipSegment
	err      error
}

func (f *fakeExtractor) Query(ctx context.Context, params extractor.ClipSearchParams) ([]clips.ClipSegment, error) {
	return f.segments, f.err
}

type fakeCutter struct {
	results []cutter.Result
}

func (f *fakeCutter) CutParallel(ctx context.Context, reqs []cutter.Request) []cutter.Result {
	return f.results
}

type fakeClipIndex struct {
	records []*clips.ClipRecord
	err     error
}

func (f *fakeClipIndex) QueryClips(ctx context.Context, filter index.QueryFilter) ([]*clips.ClipRecord, error) {
	return f.records, f.err
}

// fakeBackend is a minimal resolver.Backend that records the filters map it
// last received, so a test driving List() can observe whether a policy's
// row filter actually reached the backend rather than being dropped.
type fakeBackend struct {
	rows        []resolver.Record
	lastFilters map[string]interface{}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) GetByID(ctx context.Context, objectType, id string, projection []string) (resolver.Record, error) {
	return nil, nil
}

func (f *fakeBackend) GetByFilter(ctx context.Context, objectType string, filters map[string]interface{}, projection []string, limit, offset int) ([]resolver.Record, error) {
	f.lastFilters = filters
	return f.rows, nil
}

func (f *fakeBackend) TraverseLink(ctx context.Context, fromType, fromID, linkType, toType string, linkConfig map[string]interface{}, projection []string, limit int) ([]resolver.Record, error) {
	return nil, nil
}

type fakeAudit struct {
	records []*repository.AuditRecord
}

func (f *fakeAudit) SaveAuditRecord(ctx context.Context, rec *repository.AuditRecord) error {
	f.records = append(f.records, rec)
	return nil
}
func (f *fakeAudit) QueryAuditRecords(ctx context.Context, filter repository.AuditFilter) ([]*repository.AuditRecord, error) {
	return f.records, nil
}

func TestExecuteAction_NotFoundAction(t *testing.T) {
	reg := newFakeRegistry()
	audit := &fakeAudit{}
	m := New(reg, newAllow(), nil, audit)

	_, err := m.ExecuteAction(context.Background(), Actor{ID: "u1", Role: "admin"}, "missing_action", nil)
	require.Error(t, err)
	require.Len(t, audit.records, 1)
	assert.False(t, audit.records[0].Success)
}

func TestExecuteAction_DeniedByPolicy(t *testing.T) {
	reg := newFakeRegistry()
	reg.actionTypes["cut_clip"] = &model.ActionType{Name: "cut_clip", SecurityPolicyRef: "clip_policy"}
	reg.policies["clip_policy"] = &model.SecurityPolicy{Name: "clip_policy"}
	audit := &fakeAudit{}
	m := New(reg, newDeny("no rule found for role viewer"), nil, audit)

	_, err := m.ExecuteAction(context.Background(), Actor{ID: "u1", Role: "viewer"}, "cut_clip", nil)
	require.Error(t, err)
	assert.False(t, audit.records[0].Success)
}

func TestExecuteAction_Success(t *testing.T) {
	reg := newFakeRegistry()
	reg.actionTypes["cut_clip"] = &model.ActionType{
		Name:           "cut_clip",
		Effects:        model.JSONStringSlice{"clip_created"},
		IsIdempotent:   true,
		TimeoutSeconds: 30,
	}
	audit := &fakeAudit{}
	m := New(reg, newAllow(), nil, audit)

	result, err := m.ExecuteAction(context.Background(), Actor{ID: "u1", Role: "admin"}, "cut_clip", nil)
	require.NoError(t, err)
	assert.Equal(t, "cut_clip", result.ActionName)
	assert.True(t, result.IsIdempotent)
	assert.Equal(t, []string{"clip_created"}, result.Effects)
	assert.True(t, audit.records[0].Success)
}

func TestQueryClips_PipelineNotConfiguredErrors(t *testing.T) {
	reg := newFakeRegistry()
	m := New(reg, newAllow(), nil, &fakeAudit{})

	_, err := m.QueryClips(context.Background(), Actor{ID: "u1", Role: "admin"}, "clip_policy", index.QueryFilter{})
	require.Error(t, err)
}

func TestQueryClips_Success(t *testing.T) {
	reg := newFakeRegistry()
	reg.policies["clip_policy"] = &model.SecurityPolicy{Name: "clip_policy"}
	want := []*clips.ClipRecord{{ClipSegment: clips.ClipSegment{ClipID: "c1"}}}
	m := New(reg, newAllow(), nil, &fakeAudit{}).WithClipPipeline(nil, nil, &fakeClipIndex{records: want})

	got, err := m.QueryClips(context.Background(), Actor{ID: "u1", Role: "admin"}, "clip_policy", index.QueryFilter{Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestQueryClips_DeniedByPolicy(t *testing.T) {
	reg := newFakeRegistry()
	m := New(reg, newDeny("denied"), nil, &fakeAudit{}).WithClipPipeline(nil, nil, &fakeClipIndex{})

	_, err := m.QueryClips(context.Background(), Actor{ID: "u1", Role: "viewer"}, "clip_policy", index.QueryFilter{})
	require.Error(t, err)
}

func TestList_RowFilterReachesBackend(t *testing.T) {
	reg := newFakeRegistry()
	reg.objectTypes["player"] = &model.ObjectType{Name: "player", ResolverBackend: "bigquery", SecurityPolicyRef: "team_scoped_policy"}

	scope := "team_scoped"
	reg.policies["team_scoped_policy"] = &model.SecurityPolicy{
		Name:  "team_scoped_policy",
		Rules: []model.PolicyRule{{Role: "coach", AccessLevel: "read", Scope: &scope}},
	}

	backend := &fakeBackend{rows: []resolver.Record{{"playerId": "1"}}}
	res := resolver.New(backend, resolver.DefaultConfig(), nil)

	realPolicy := policy.New()
	m := New(reg, realPolicy, map[string]*resolver.Resolver{"bigquery": res}, &fakeAudit{})

	actor := Actor{ID: "u1", Role: "coach", TeamID: "WSH", Teams: []string{"WSH"}}
	_, err := m.List(context.Background(), actor, "player", nil, nil, 10, 0)
	require.NoError(t, err)

	require.NotNil(t, backend.lastFilters)
	rowFilter, ok := backend.lastFilters[resolver.RowFilterKey].(string)
	require.True(t, ok, "row filter key missing from filters passed to backend")
	assert.Equal(t, "teamId IN ('WSH')", rowFilter)
}

func TestCutClips_PipelineNotConfiguredErrors(t *testing.T) {
	reg := newFakeRegistry()
	m := New(reg, newAllow(), nil, &fakeAudit{})

	_, err := m.CutClips(context.Background(), Actor{ID: "u1", Role: "admin"}, "clip_policy", extractor.DefaultClipSearchParams(), "/tmp/out")
	require.Error(t, err)
}

func TestCutClips_DrivesExtractorThenCutter(t *testing.T) {
	reg := newFakeRegistry()
	segs := []clips.ClipSegment{{ClipID: "c1", SourcePath: "/src/1.mp4", StartSeconds: 1, EndSeconds: 5}}
	ext := &fakeExtractor{segments: segs}
	cut := &fakeCutter{results: []cutter.Result{{Success: true, Record: &clips.ClipRecord{ClipSegment: segs[0]}}}}
	audit := &fakeAudit{}
	m := New(reg, newAllow(), nil, audit).WithClipPipeline(ext, cut, &fakeClipIndex{})

	results, err := m.CutClips(context.Background(), Actor{ID: "u1", Role: "admin"}, "", extractor.DefaultClipSearchParams(), "/tmp/out")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.True(t, audit.records[0].Success)
}

func TestCutClips_PartialFailureRecordedInAudit(t *testing.T) {
	reg := newFakeRegistry()
	segs := []clips.ClipSegment{{ClipID: "c1"}, {ClipID: "c2"}}
	ext := &fakeExtractor{segments: segs}
	cut := &fakeCutter{results: []cutter.Result{
		{Success: true},
		{Success: false, Error: assert.AnError},
	}}
	audit := &fakeAudit{}
	m := New(reg, newAllow(), nil, audit).WithClipPipeline(ext, cut, &fakeClipIndex{})

	results, err := m.CutClips(context.Background(), Actor{ID: "u1", Role: "admin"}, "", extractor.DefaultClipSearchParams(), "/tmp/out")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, audit.records[0].Success)
}

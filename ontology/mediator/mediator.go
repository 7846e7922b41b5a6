// Package mediator implements the Access Mediator (spec §4.H): the single
// entry point that composes registry lookup, policy evaluation, resolver
// dispatch, column filtering, and audit recording into one operation.
package mediator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"oms.heartbeat.dev/clips"
	"oms.heartbeat.dev/clips/cutter"
	"oms.heartbeat.dev/clips/extractor"
	"oms.heartbeat.dev/clips/index"
	"oms.heartbeat.dev/db/repository"
	"oms.heartbeat.dev/errs"
	"oms.heartbeat.dev/ontology/model"
	"oms.heartbeat.dev/ontology/policy"
	"oms.heartbeat.dev/ontology/resolver"
)

// Actor identifies the caller driving an operation.
type Actor struct {
	ID     string
	Role   string
	TeamID string
	Teams  []string
}

func (a Actor) toPolicyActor() policy.Actor {
	return policy.Actor{ID: a.ID, Role: a.Role, TeamID: a.TeamID, Teams: a.Teams}
}

// Registry is the subset of *ontology/registry.Registry the mediator needs.
type Registry interface {
	GetObjectType(name, version string) (*model.ObjectType, error)
	GetLinkType(name, version string) (*model.LinkType, error)
	GetActionType(name, version string) (*model.ActionType, error)
	GetSecurityPolicy(name, version string) (*model.SecurityPolicy, error)
}

// PolicyEngine is the subset of *ontology/policy.Engine the mediator needs.
type PolicyEngine interface {
	EvaluateAccess(actor policy.Actor, operation, targetKind string, pol *model.SecurityPolicy) policy.Decision
}

// ClipExtractor is the subset of *clips/extractor.Extractor the mediator
// needs to serve QueryClips against freshly-derived segments.
type ClipExtractor interface {
	Query(ctx context.Context, params extractor.ClipSearchParams) ([]clips.ClipSegment, error)
}

// ClipCutter is the subset of *clips/cutter.Cutter the mediator needs to
// serve CutClips.
type ClipCutter interface {
	CutParallel(ctx context.Context, reqs []cutter.Request) []cutter.Result
}

// ClipIndex is the subset of *clips/index.Index the mediator needs to serve
// QueryClips against already-cut clips.
type ClipIndex interface {
	QueryClips(ctx context.Context, filter index.QueryFilter) ([]*clips.ClipRecord, error)
}

// Mediator wires a registry, policy engine, a set of named resolver
// backends, the clip pipeline, and an audit sink.
type Mediator struct {
	registry  Registry
	policy    PolicyEngine
	resolvers map[string]*resolver.Resolver
	audit     repository.AuditRepository

	extractor ClipExtractor
	cutter    ClipCutter
	clipIndex ClipIndex
}

func New(reg Registry, pol PolicyEngine, resolvers map[string]*resolver.Resolver, audit repository.AuditRepository) *Mediator {
	return &Mediator{registry: reg, policy: pol, resolvers: resolvers, audit: audit}
}

// WithClipPipeline attaches the extractor, cutter, and index the clip
// operations (QueryClips, CutClips) dispatch to. Left unset, those two
// operations return an invalid-request error: a deployment that never
// configures the clip pipeline (e.g. OMS-only) need not wire it.
func (m *Mediator) WithClipPipeline(ext ClipExtractor, cut ClipCutter, idx ClipIndex) *Mediator {
	m.extractor = ext
	m.cutter = cut
	m.clipIndex = idx
	return m
}

const defaultBackend = "bigquery"

// GetByID performs a full read-by-id operation end-to-end (spec §4.H steps
// 1-6).
func (m *Mediator) GetByID(ctx context.Context, actor Actor, objectType, id string, projection []string) (resolver.Record, error) {
	start := time.Now()

	ot, err := m.registry.GetObjectType(objectType, "")
	if err != nil {
		m.writeAudit(ctx, actor, "get", objectType, id, false, err.Error(), start)
		return nil, errs.BackendError("lookup object type", err)
	}
	if ot == nil {
		err := errs.NotFound("object type not found: " + objectType)
		m.writeAudit(ctx, actor, "get", objectType, id, false, err.Error(), start)
		return nil, err
	}

	decision, err := m.authorize(actor, "get", "object", ot.SecurityPolicyRef)
	if err != nil {
		m.writeAudit(ctx, actor, "get", objectType, id, false, err.Error(), start)
		return nil, err
	}

	backend := ot.ResolverBackend
	if backend == "" {
		backend = defaultBackend
	}
	res, ok := m.resolvers[backend]
	if !ok {
		err := errs.InvalidRequest("no resolver registered for backend: " + backend)
		m.writeAudit(ctx, actor, "get", objectType, id, false, err.Error(), start)
		return nil, err
	}

	rec, err := res.GetByIDCached(ctx, objectType, id, projection)
	if err != nil {
		m.writeAudit(ctx, actor, "get", objectType, id, false, err.Error(), start)
		return nil, err
	}
	if rec != nil {
		rec = policy.ApplyColumnFilters(rec, decision.ColumnFilters)
	}

	m.writeAudit(ctx, actor, "get", objectType, id, true, "", start)
	return rec, nil
}

// List performs a filtered list operation end-to-end.
func (m *Mediator) List(ctx context.Context, actor Actor, objectType string, filters map[string]interface{}, projection []string, limit, offset int) ([]resolver.Record, error) {
	start := time.Now()

	ot, err := m.registry.GetObjectType(objectType, "")
	if err != nil {
		m.writeAudit(ctx, actor, "list", objectType, "", false, err.Error(), start)
		return nil, errs.BackendError("lookup object type", err)
	}
	if ot == nil {
		err := errs.NotFound("object type not found: " + objectType)
		m.writeAudit(ctx, actor, "list", objectType, "", false, err.Error(), start)
		return nil, err
	}

	decision, err := m.authorize(actor, "list", "object", ot.SecurityPolicyRef)
	if err != nil {
		m.writeAudit(ctx, actor, "list", objectType, "", false, err.Error(), start)
		return nil, err
	}

	backend := ot.ResolverBackend
	if backend == "" {
		backend = defaultBackend
	}
	res, ok := m.resolvers[backend]
	if !ok {
		err := errs.InvalidRequest("no resolver registered for backend: " + backend)
		m.writeAudit(ctx, actor, "list", objectType, "", false, err.Error(), start)
		return nil, err
	}

	if decision.RowFilter != "" {
		filters = mergeRowFilter(filters, decision.RowFilter)
	}

	recs, err := res.GetByFilter(ctx, objectType, filters, projection, limit, offset)
	if err != nil {
		m.writeAudit(ctx, actor, "list", objectType, "", false, err.Error(), start)
		return nil, err
	}

	filtered := make([]resolver.Record, len(recs))
	for i, r := range recs {
		filtered[i] = policy.ApplyColumnFilters(r, decision.ColumnFilters)
	}

	m.writeAudit(ctx, actor, "list", objectType, "", true, "", start)
	return filtered, nil
}

// TraverseLink resolves a link type's target objects for a given source id.
func (m *Mediator) TraverseLink(ctx context.Context, actor Actor, linkTypeName, fromID string, projection []string, limit int) ([]resolver.Record, error) {
	start := time.Now()

	lt, err := m.registry.GetLinkType(linkTypeName, "")
	if err != nil {
		m.writeAudit(ctx, actor, "traverse", linkTypeName, fromID, false, err.Error(), start)
		return nil, errs.BackendError("lookup link type", err)
	}
	if lt == nil {
		err := errs.NotFound("link type not found: " + linkTypeName)
		m.writeAudit(ctx, actor, "traverse", linkTypeName, fromID, false, err.Error(), start)
		return nil, err
	}

	decision, err := m.authorize(actor, "traverse", "link", lt.SecurityPolicyRef)
	if err != nil {
		m.writeAudit(ctx, actor, "traverse", linkTypeName, fromID, false, err.Error(), start)
		return nil, err
	}

	backend := defaultBackend
	res, ok := m.resolvers[backend]
	if !ok {
		err := errs.InvalidRequest("no resolver registered for backend: " + backend)
		m.writeAudit(ctx, actor, "traverse", linkTypeName, fromID, false, err.Error(), start)
		return nil, err
	}

	recs, err := res.TraverseLink(ctx, lt.FromObject, fromID, lt.ResolverType, lt.ToObject, lt.ResolverConfigJSON, projection, limit)
	if err != nil {
		m.writeAudit(ctx, actor, "traverse", linkTypeName, fromID, false, err.Error(), start)
		return nil, err
	}

	filtered := make([]resolver.Record, len(recs))
	for i, r := range recs {
		filtered[i] = policy.ApplyColumnFilters(r, decision.ColumnFilters)
	}

	m.writeAudit(ctx, actor, "traverse", linkTypeName, fromID, true, "", start)
	return filtered, nil
}

// ActionResult is the outcome of ExecuteAction. The mediator has no
// concrete side-effect executor wired (spec's Non-goals exclude analytical
// compute and third-party service clients beyond their consumed shape);
// this records that the action was authorised and names the effects its
// ActionType declares, so a caller-supplied effect handler (outside core)
// can carry them out.
type ActionResult struct {
	ActionName   string
	Effects      []string
	IsIdempotent bool
}

// ExecuteAction performs a governed side-effectful operation end-to-end:
// registry lookup, authorization against the ActionType's policy, and
// audit recording. The action's declared timeout bounds ctx when positive.
func (m *Mediator) ExecuteAction(ctx context.Context, actor Actor, actionName string, input map[string]interface{}) (ActionResult, error) {
	start := time.Now()

	at, err := m.registry.GetActionType(actionName, "")
	if err != nil {
		m.writeAudit(ctx, actor, "execute", actionName, "", false, err.Error(), start)
		return ActionResult{}, errs.BackendError("lookup action type", err)
	}
	if at == nil {
		err := errs.NotFound("action type not found: " + actionName)
		m.writeAudit(ctx, actor, "execute", actionName, "", false, err.Error(), start)
		return ActionResult{}, err
	}

	_, err = m.authorize(actor, "execute", "action", at.SecurityPolicyRef)
	if err != nil {
		m.writeAudit(ctx, actor, "execute", actionName, "", false, err.Error(), start)
		return ActionResult{}, err
	}

	if at.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(at.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	if ctx.Err() != nil {
		err := errs.Timeout("action timed out before execution: " + actionName)
		m.writeAudit(ctx, actor, "execute", actionName, "", false, err.Error(), start)
		return ActionResult{}, err
	}

	result := ActionResult{
		ActionName:   actionName,
		Effects:      []string(at.Effects),
		IsIdempotent: at.IsIdempotent,
	}
	m.writeAudit(ctx, actor, "execute", actionName, "", true, "", start)
	return result, nil
}

// QueryClips returns already-cut clips matching filter from the Clip Index
// (spec §4.K), authorised against policyName (a SecurityPolicy with
// target_type "global" governing clip access; the clip taxonomy has no
// ObjectType of its own, so the caller names the applicable policy
// directly, same as ExecuteAction does for action types).
func (m *Mediator) QueryClips(ctx context.Context, actor Actor, policyName string, filter index.QueryFilter) ([]*clips.ClipRecord, error) {
	start := time.Now()

	if m.clipIndex == nil {
		err := errs.InvalidRequest("clip pipeline not configured")
		m.writeAudit(ctx, actor, "query_clips", "clip", "", false, err.Error(), start)
		return nil, err
	}

	if _, err := m.authorize(actor, "query_clips", "global", policyName); err != nil {
		m.writeAudit(ctx, actor, "query_clips", "clip", "", false, err.Error(), start)
		return nil, err
	}

	recs, err := m.clipIndex.QueryClips(ctx, filter)
	if err != nil {
		m.writeAudit(ctx, actor, "query_clips", "clip", "", false, err.Error(), start)
		return nil, err
	}

	m.writeAudit(ctx, actor, "query_clips", "clip", "", true, "", start)
	return recs, nil
}

// CutClips drives the extractor to derive segments from params, then the
// cutter to turn each into a file (spec §4.I->§4.J->§4.K end to end),
// authorised once up-front against policyName.
func (m *Mediator) CutClips(ctx context.Context, actor Actor, policyName string, params extractor.ClipSearchParams, outputDir string) ([]cutter.Result, error) {
	start := time.Now()

	if m.extractor == nil || m.cutter == nil {
		err := errs.InvalidRequest("clip pipeline not configured")
		m.writeAudit(ctx, actor, "cut_clips", "clip", "", false, err.Error(), start)
		return nil, err
	}

	if _, err := m.authorize(actor, "cut_clips", "global", policyName); err != nil {
		m.writeAudit(ctx, actor, "cut_clips", "clip", "", false, err.Error(), start)
		return nil, err
	}

	segments, err := m.extractor.Query(ctx, params)
	if err != nil {
		m.writeAudit(ctx, actor, "cut_clips", "clip", "", false, err.Error(), start)
		return nil, err
	}

	reqs := make([]cutter.Request, len(segments))
	for i, seg := range segments {
		reqs[i] = cutter.Request{
			ClipID:     seg.ClipID,
			SourcePath: seg.SourcePath,
			Start:      seg.StartSeconds,
			End:        seg.EndSeconds,
			OutputPath: outputDir + "/" + seg.ClipID + ".mp4",
			ShiftMode:  seg.Mode == clips.ModeShift,
			Segment:    seg,
		}
	}

	results := m.cutter.CutParallel(ctx, reqs)

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	success := failed == 0
	errMsg := ""
	if failed > 0 {
		errMsg = "some cuts failed"
	}
	m.writeAudit(ctx, actor, "cut_clips", "clip", "", success, errMsg, start)
	return results, nil
}

func (m *Mediator) authorize(actor Actor, operation, targetKind, policyName string) (policy.Decision, error) {
	var pol *model.SecurityPolicy
	if policyName != "" {
		p, err := m.registry.GetSecurityPolicy(policyName, "")
		if err != nil {
			return policy.Decision{}, errs.BackendError("lookup security policy", err)
		}
		pol = p
	}

	decision := m.policy.EvaluateAccess(actor.toPolicyActor(), operation, targetKind, pol)
	if !decision.Allowed {
		return decision, errs.Forbidden(decision.Reason)
	}
	return decision, nil
}

func mergeRowFilter(filters map[string]interface{}, rowFilter string) map[string]interface{} {
	// Every backend recognizes resolver.RowFilterKey: sqlresolver ANDs it
	// into the WHERE clause as a raw fragment, columnar applies it as a
	// post-filter predicate, per spec's row-filtering cross-cutting note.
	merged := make(map[string]interface{}, len(filters)+1)
	for k, v := range filters {
		merged[k] = v
	}
	merged[resolver.RowFilterKey] = rowFilter
	return merged
}

// writeAudit records the outcome. A failure to write is logged but never
// propagated, so it cannot mask the operation's real result.
func (m *Mediator) writeAudit(ctx context.Context, actor Actor, operation, targetType, targetID string, success bool, errMsg string, start time.Time) {
	if m.audit == nil {
		return
	}
	rec := &repository.AuditRecord{
		ID:              uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		ActorID:         actor.ID,
		ActorRole:       actor.Role,
		Operation:       operation,
		TargetType:      targetType,
		TargetID:        targetID,
		Success:         success,
		ErrorMessage:    errMsg,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
	_ = m.audit.SaveAuditRecord(ctx, rec) // intentionally swallowed; see doc comment
}

// Package registry implements the Schema Registry (spec §4.C): persists
// schema versions transactionally via GORM, activates exactly one version
// at a time, and serves metadata lookups against the active (or a named)
// version. Grounded on the teacher's db.OpenGorm connection pattern and its
// habit of wrapping multi-statement writes in gdb.Transaction(...).
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"oms.heartbeat.dev/common"
	"oms.heartbeat.dev/errs"
	"oms.heartbeat.dev/ontology/model"
	"oms.heartbeat.dev/ontology/validator"
)

// Registry owns the GORM handle and a small cache of the active version's
// identifier, invalidated on every publish (spec §4.C).
type Registry struct {
	db *gorm.DB

	mu           sync.RWMutex
	activeID     string
	activeLoaded bool
}

func New(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// Migrate runs AutoMigrate for the model tables. Called once at startup.
func (r *Registry) Migrate() error {
	return r.db.AutoMigrate(
		&model.SchemaVersion{}, &model.ObjectType{}, &model.Property{},
		&model.LinkType{}, &model.ActionType{}, &model.SecurityPolicy{}, &model.PolicyRule{},
		&model.AuditLog{},
	)
}

// LoadFromDocument validates doc, rejects a duplicate version string, and
// writes the version and every owned entity in a single transaction,
// leaving state=draft.
func (r *Registry) LoadFromDocument(doc *model.SchemaDocument, actor string) (*model.SchemaVersion, error) {
	issues := validator.Validate(doc)
	if validator.HasErrors(issues) {
		return nil, errs.InvalidRequest(formatIssues(issues))
	}

	var existing int64
	if err := r.db.Model(&model.SchemaVersion{}).Where("version = ?", doc.Version).Count(&existing).Error; err != nil {
		return nil, errs.BackendError("check duplicate version", err)
	}
	if existing > 0 {
		return nil, errs.Conflict("schema version already exists: " + doc.Version)
	}

	sv := documentToModel(doc, actor)

	err := r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(sv).Error
	})
	if err != nil {
		return nil, errs.BackendError("persist schema version", err)
	}
	return sv, nil
}

// Publish requires state=draft; in one transaction, deactivates the
// previous active version, activates this one, and stamps publication
// time.
func (r *Registry) Publish(version, actor string) (*model.SchemaVersion, error) {
	var sv model.SchemaVersion
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("version = ?", version).First(&sv).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return errs.NotFound("schema version not found: " + version)
			}
			return errs.BackendError("load schema version", err)
		}
		if sv.Status != model.StatusDraft {
			return errs.InvalidRequest("publish requires state=draft, got " + sv.Status)
		}

		if err := tx.Model(&model.SchemaVersion{}).
			Where("is_active = ?", true).
			Updates(map[string]interface{}{"is_active": false}).Error; err != nil {
			return errs.BackendError("deactivate previous version", err)
		}

		now := time.Now().UTC()
		sv.Status = model.StatusPublished
		sv.IsActive = true
		sv.PublishedAt = &now
		if err := tx.Save(&sv).Error; err != nil {
			return errs.BackendError("activate version", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.activeID = sv.ID
	r.activeLoaded = true
	r.mu.Unlock()

	_ = actor
	return &sv, nil
}

// GetActive returns the single active version, or nil if none.
func (r *Registry) GetActive() (*model.SchemaVersion, error) {
	var sv model.SchemaVersion
	err := r.db.Where("is_active = ?", true).
		Preload("ObjectTypes.Properties").
		Preload("LinkTypes").Preload("ActionTypes").
		Preload("SecurityPolicies.Rules").
		First(&sv).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errs.BackendError("load active version", err)
	}
	return &sv, nil
}

func (r *Registry) resolveVersion(version string) (*model.SchemaVersion, error) {
	if version == "" {
		return r.GetActive()
	}
	var sv model.SchemaVersion
	err := r.db.Where("version = ?", version).
		Preload("ObjectTypes.Properties").Preload("LinkTypes").
		Preload("ActionTypes").Preload("SecurityPolicies.Rules").
		First(&sv).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errs.BackendError("load schema version", err)
	}
	return &sv, nil
}

// GetObjectType looks up an object type by name within version (active
// version when omitted).
func (r *Registry) GetObjectType(name, version string) (*model.ObjectType, error) {
	sv, err := r.resolveVersion(version)
	if err != nil || sv == nil {
		return nil, err
	}
	for i := range sv.ObjectTypes {
		if sv.ObjectTypes[i].Name == name {
			return &sv.ObjectTypes[i], nil
		}
	}
	return nil, nil
}

func (r *Registry) GetLinkType(name, version string) (*model.LinkType, error) {
	sv, err := r.resolveVersion(version)
	if err != nil || sv == nil {
		return nil, err
	}
	for i := range sv.LinkTypes {
		if sv.LinkTypes[i].Name == name {
			return &sv.LinkTypes[i], nil
		}
	}
	return nil, nil
}

func (r *Registry) GetActionType(name, version string) (*model.ActionType, error) {
	sv, err := r.resolveVersion(version)
	if err != nil || sv == nil {
		return nil, err
	}
	for i := range sv.ActionTypes {
		if sv.ActionTypes[i].Name == name {
			return &sv.ActionTypes[i], nil
		}
	}
	return nil, nil
}

func (r *Registry) GetSecurityPolicy(name, version string) (*model.SecurityPolicy, error) {
	sv, err := r.resolveVersion(version)
	if err != nil || sv == nil {
		return nil, err
	}
	for i := range sv.SecurityPolicies {
		if sv.SecurityPolicies[i].Name == name {
			return &sv.SecurityPolicies[i], nil
		}
	}
	return nil, nil
}

func (r *Registry) GetAllObjectTypes(version string) ([]model.ObjectType, error) {
	sv, err := r.resolveVersion(version)
	if err != nil || sv == nil {
		return nil, err
	}
	return sv.ObjectTypes, nil
}

func (r *Registry) GetAllLinkTypes(version string) ([]model.LinkType, error) {
	sv, err := r.resolveVersion(version)
	if err != nil || sv == nil {
		return nil, err
	}
	return sv.LinkTypes, nil
}

// ListVersions returns every schema version, newest first.
func (r *Registry) ListVersions() ([]model.SchemaVersion, error) {
	var versions []model.SchemaVersion
	if err := r.db.Order("created_at desc").Find(&versions).Error; err != nil {
		return nil, errs.BackendError("list schema versions", err)
	}
	sort.SliceStable(versions, func(i, j int) bool { return versions[i].CreatedAt.After(versions[j].CreatedAt) })
	return versions, nil
}

func documentToModel(doc *model.SchemaDocument, actor string) *model.SchemaVersion {
	sv := &model.SchemaVersion{
		ID:          uuid.NewString(),
		Version:     doc.Version,
		Namespace:   doc.Namespace,
		Description: doc.Description,
		CreatedBy:   actor,
		Status:      model.StatusDraft,
		Changelog:    model.JSONStringSlice(doc.Changelog),
		MetadataJSON: model.JSONMap(doc.Metadata),
		CreatedAt:    time.Now().UTC(),
	}

	for _, ot := range doc.ObjectTypes {
		objID := uuid.NewString()
		m := model.ObjectType{
			ID:                uuid.NewString(),
			Name:              ot.Name,
			Description:       ot.Description,
			PrimaryKey:        ot.PrimaryKey,
			ResolverBackend:   ot.ResolverBackend,
			ResolverConfigJSON: model.JSONMap(ot.ResolverConfig),
			SecurityPolicyRef: ot.SecurityPolicy,
		}
		m.ID = objID
		for _, p := range ot.Properties {
			m.Properties = append(m.Properties, model.Property{
				ID:           uuid.NewString(),
				Name:         p.Name,
				Type:         p.Type,
				Required:     p.Required,
				Description:  p.Description,
				EnumValues:   model.JSONStringSlice(p.EnumValues),
				DefaultValue: model.NewJSONAny(p.DefaultValue),
				Constraints:  model.JSONMap(p.Constraints),
			})
		}
		sv.ObjectTypes = append(sv.ObjectTypes, m)
	}

	for _, lt := range doc.LinkTypes {
		sv.LinkTypes = append(sv.LinkTypes, model.LinkType{
			ID:                uuid.NewString(),
			Name:              lt.Name,
			Description:       lt.Description,
			FromObject:        lt.FromObject,
			ToObject:          lt.ToObject,
			Cardinality:       lt.Cardinality,
			ResolverType:      lt.ResolverType,
			ResolverConfigJSON: model.JSONMap(lt.ResolverConfig),
			SecurityPolicyRef: lt.SecurityPolicy,
		})
	}

	for _, at := range doc.ActionTypes {
		sv.ActionTypes = append(sv.ActionTypes, model.ActionType{
			ID:                uuid.NewString(),
			Name:              at.Name,
			Description:       at.Description,
			InputSchemaJSON:   model.JSONMap(at.InputSchema),
			Preconditions:     model.JSONStringSlice(at.Preconditions),
			Effects:           model.JSONStringSlice(at.Effects),
			SecurityPolicyRef: at.SecurityPolicy,
			TimeoutSeconds:    at.TimeoutSeconds,
			IsIdempotent:      at.IsIdempotent,
		})
	}

	for _, p := range doc.Policies {
		pm := model.SecurityPolicy{
			ID:          uuid.NewString(),
			Name:        p.Name,
			Description: p.Description,
			TargetType:  p.TargetType,
			TargetRef:   p.TargetRef,
		}
		for _, rule := range p.Rules {
			var scope *string
			if rule.Scope != "" {
				scope = common.Ptr(rule.Scope)
			}
			pm.Rules = append(pm.Rules, model.PolicyRule{
				ID:            uuid.NewString(),
				Role:          rule.Role,
				AccessLevel:   rule.AccessLevel,
				Scope:         scope,
				ColumnFilters: model.JSONStringSlice(rule.ColumnFilters),
				RowFilterExpr: rule.RowFilter,
				Conditions:    model.JSONStringSlice(rule.Conditions),
				Priority:      rule.Priority,
			})
		}
		sv.SecurityPolicies = append(sv.SecurityPolicies, pm)
	}

	return sv
}

func formatIssues(issues []validator.Issue) string {
	if len(issues) == 0 {
		return "validation failed"
	}
	msg := issues[0].String()
	if len(issues) > 1 {
		msg += " (+and more)"
	}
	return msg
}

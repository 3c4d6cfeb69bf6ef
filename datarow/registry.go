// ABOUTME: Data row handler registry with dispatch over the known mimetype kinds
// ABOUTME: Unknown mimetypes fall through to a generic handler or a registered custom one
package datarow

import (
	"context"
	"sync"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/namenorm"
	"github.com/harperreed/roster/txn"
)

// Kind is the closed set of mimetypes with dedicated behaviour plus Custom.
type Kind int

const (
	KindCustom Kind = iota
	KindStructuredName
	KindNickname
	KindOrganization
	KindPhone
	KindEmail
	KindPhoto
	KindGroupMembership
	KindIdentity
	KindNote
	KindStructuredPostal
)

func KindOf(mimeType string) Kind {
	switch mimeType {
	case models.MimeStructuredName:
		return KindStructuredName
	case models.MimeNickname:
		return KindNickname
	case models.MimeOrganization:
		return KindOrganization
	case models.MimePhone:
		return KindPhone
	case models.MimeEmail:
		return KindEmail
	case models.MimePhoto:
		return KindPhoto
	case models.MimeGroupMembership:
		return KindGroupMembership
	case models.MimeIdentity:
		return KindIdentity
	case models.MimeNote:
		return KindNote
	case models.MimeStructuredPostal:
		return KindStructuredPostal
	}
	return KindCustom
}

// Handler validates and writes one kind of data row together with the rows
// derived from it.
type Handler interface {
	Kind() Kind
	// AffectsMatching reports whether rows of this kind feed aggregation
	// matching; changes to them re-mark the owning raw contact.
	AffectsMatching() bool
	Validate(row *models.DataRow) error
	Insert(ctx context.Context, q db.Querier, tc *txn.Context, row *models.DataRow) (int64, error)
	// Update writes row over existing and reports whether anything changed.
	Update(ctx context.Context, q db.Querier, tc *txn.Context, row, existing *models.DataRow) (bool, error)
	Delete(ctx context.Context, q db.Querier, tc *txn.Context, existing *models.DataRow) (int, error)
}

// Aggregation is the part of the aggregation engine handlers notify.
type Aggregation interface {
	MarkForAggregation(ctx context.Context, q db.Querier, rawContactID int64, mode models.AggregationMode, force bool) error
}

// PhotoStore keeps full-size photos outside the database.
type PhotoStore interface {
	Insert(ctx context.Context, image []byte) (string, error)
}

// GroupResolver answers group questions for membership rows.
type GroupResolver interface {
	GroupIDBySourceID(ctx context.Context, q db.Querier, accountID int64, sourceID string) (int64, error)
	GroupExists(ctx context.Context, q db.Querier, groupID int64) (bool, error)
}

const (
	DefaultMaxPhoneLength    = 1000
	DefaultMaxThumbnailBytes = 64 * 1024
)

// Env carries the collaborators handlers need.
type Env struct {
	Aggregation       Aggregation
	Collator          *namenorm.Collator
	Names             namenorm.NameSplitter
	Postal            namenorm.PostalSplitter
	Photos            PhotoStore
	Groups            GroupResolver
	MaxPhoneLength    int
	MaxThumbnailBytes int
}

func (e *Env) withDefaults() {
	if e.Collator == nil {
		e.Collator = namenorm.NewCollator(namenorm.DefaultLocale)
	}
	if e.Names == nil {
		e.Names = namenorm.SimpleNameSplitter{}
	}
	if e.Postal == nil {
		e.Postal = namenorm.SimplePostalSplitter{}
	}
	if e.MaxPhoneLength <= 0 {
		e.MaxPhoneLength = DefaultMaxPhoneLength
	}
	if e.MaxThumbnailBytes <= 0 {
		e.MaxThumbnailBytes = DefaultMaxThumbnailBytes
	}
}

// Registry hands out the handler for a mimetype.
type Registry struct {
	env *Env

	name, nickname, organization, phone, email *rowHandler
	photo, group, identity, note, postal       *rowHandler
	generic                                    *rowHandler

	mu     sync.RWMutex
	custom map[string]Handler
}

func NewRegistry(env Env) *Registry {
	env.withDefaults()
	e := &env
	return &Registry{
		env:          e,
		name:         &rowHandler{kind: KindStructuredName, env: e, hooks: nameHooks{e}, affectsName: true, affectsMatching: true},
		nickname:     &rowHandler{kind: KindNickname, env: e, hooks: nicknameHooks{}, affectsName: true, affectsMatching: true},
		organization: &rowHandler{kind: KindOrganization, env: e, hooks: organizationHooks{}, affectsName: true, affectsMatching: true},
		phone:        &rowHandler{kind: KindPhone, env: e, hooks: phoneHooks{e}, affectsName: true, affectsMatching: true, affectsAggregate: true},
		email:        &rowHandler{kind: KindEmail, env: e, hooks: emailHooks{}, affectsName: true, affectsMatching: true},
		photo:        &rowHandler{kind: KindPhoto, env: e, hooks: photoHooks{e}, affectsAggregate: true},
		group:        &rowHandler{kind: KindGroupMembership, env: e, hooks: groupHooks{e}},
		identity:     &rowHandler{kind: KindIdentity, env: e, hooks: identityHooks{}, affectsMatching: true},
		note:         &rowHandler{kind: KindNote, env: e, hooks: passThrough{}},
		postal:       &rowHandler{kind: KindStructuredPostal, env: e, hooks: postalHooks{e}},
		generic:      &rowHandler{kind: KindCustom, env: e, hooks: passThrough{}},
		custom:       make(map[string]Handler),
	}
}

// Env exposes the shared collaborators, such as the collator.
func (r *Registry) Env() *Env { return r.env }

// RegisterCustom installs a handler for a mimetype outside the known kinds.
func (r *Registry) RegisterCustom(mimeType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[mimeType] = h
}

func (r *Registry) For(mimeType string) Handler {
	switch KindOf(mimeType) {
	case KindStructuredName:
		return r.name
	case KindNickname:
		return r.nickname
	case KindOrganization:
		return r.organization
	case KindPhone:
		return r.phone
	case KindEmail:
		return r.email
	case KindPhoto:
		return r.photo
	case KindGroupMembership:
		return r.group
	case KindIdentity:
		return r.identity
	case KindNote:
		return r.note
	case KindStructuredPostal:
		return r.postal
	case KindCustom:
		r.mu.RLock()
		h, ok := r.custom[mimeType]
		r.mu.RUnlock()
		if ok {
			return h
		}
	}
	return r.generic
}

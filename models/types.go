// ABOUTME: Data models for the contacts aggregation engine
// ABOUTME: Defines raw contacts, aggregated contacts, data rows, exceptions and their enums
package models

import (
	"strconv"
	"time"
)

// AggregationMode controls how a raw contact participates in automatic aggregation.
type AggregationMode int

const (
	AggregationModeDefault   AggregationMode = 0
	AggregationModeImmediate AggregationMode = 1
	AggregationModeSuspended AggregationMode = 2
	AggregationModeDisabled  AggregationMode = 3
	AggregationModeStrict    AggregationMode = 4
)

func (m AggregationMode) Valid() bool {
	return m >= AggregationModeDefault && m <= AggregationModeStrict
}

func (m AggregationMode) String() string {
	switch m {
	case AggregationModeDefault:
		return "default"
	case AggregationModeImmediate:
		return "immediate"
	case AggregationModeSuspended:
		return "suspended"
	case AggregationModeDisabled:
		return "disabled"
	case AggregationModeStrict:
		return "strict"
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// ParseAggregationMode accepts the names produced by String.
func ParseAggregationMode(s string) (AggregationMode, bool) {
	for m := AggregationModeDefault; m <= AggregationModeStrict; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return AggregationModeDefault, false
}

// ExceptionType is a user-asserted rule about a pair of raw contacts.
type ExceptionType int

const (
	ExceptionAutomatic    ExceptionType = 0
	ExceptionKeepTogether ExceptionType = 1
	ExceptionKeepSeparate ExceptionType = 2
)

func (t ExceptionType) Valid() bool {
	return t >= ExceptionAutomatic && t <= ExceptionKeepSeparate
}

func (t ExceptionType) String() string {
	switch t {
	case ExceptionAutomatic:
		return "automatic"
	case ExceptionKeepTogether:
		return "keep_together"
	case ExceptionKeepSeparate:
		return "keep_separate"
	}
	return "exception(" + strconv.Itoa(int(t)) + ")"
}

// ParseExceptionType accepts the names produced by String.
func ParseExceptionType(s string) (ExceptionType, bool) {
	for t := ExceptionAutomatic; t <= ExceptionKeepSeparate; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return ExceptionAutomatic, false
}

// DisplayNameSource ranks where a display name came from. Higher wins.
type DisplayNameSource int

const (
	DisplayNameSourceUndefined      DisplayNameSource = 0
	DisplayNameSourceEmail          DisplayNameSource = 10
	DisplayNameSourcePhone          DisplayNameSource = 20
	DisplayNameSourceOrganization   DisplayNameSource = 30
	DisplayNameSourceNickname       DisplayNameSource = 35
	DisplayNameSourceStructuredName DisplayNameSource = 40
)

// Pinned positions. Positive values order pinned contacts.
const (
	PinnedUnpinned = 0
	PinnedDemoted  = -1
)

// PresenceMode is an ordered availability level; the aggregate takes the max.
type PresenceMode int

const (
	PresenceOffline      PresenceMode = 0
	PresenceInvisible    PresenceMode = 1
	PresenceAway         PresenceMode = 2
	PresenceIdle         PresenceMode = 3
	PresenceDoNotDisturb PresenceMode = 4
	PresenceAvailable    PresenceMode = 5
)

func (p PresenceMode) Valid() bool {
	return p >= PresenceOffline && p <= PresenceAvailable
}

// Account identifies the sync account owning a raw contact. The zero value is
// the local (device-only) account.
type Account struct {
	Name    string `json:"account_name,omitempty"`
	Type    string `json:"account_type,omitempty"`
	DataSet string `json:"data_set,omitempty"`
}

func (a Account) IsLocal() bool {
	return a.Name == "" && a.Type == ""
}

// Consistent reports whether name and type are either both set or both empty.
func (a Account) Consistent() bool {
	return (a.Name == "") == (a.Type == "")
}

// TypeWithDataSet joins the account type and data set the way lookup keys hash them.
func (a Account) TypeWithDataSet() string {
	if a.DataSet == "" {
		return a.Type
	}
	return a.Type + "/" + a.DataSet
}

func (a Account) String() string {
	if a.IsLocal() {
		return "local"
	}
	return a.Type + ":" + a.Name
}

type RawContact struct {
	ID                int64             `json:"id"`
	AccountID         int64             `json:"account_id"`
	Account           Account           `json:"account"`
	SourceID          string            `json:"source_id,omitempty"`
	ContactID         int64             `json:"contact_id,omitempty"`
	AggregationMode   AggregationMode   `json:"aggregation_mode"`
	AggregationNeeded bool              `json:"aggregation_needed,omitempty"`
	Deleted           bool              `json:"deleted,omitempty"`
	Dirty             bool              `json:"dirty,omitempty"`
	Version           int64             `json:"version"`
	DisplayName       string            `json:"display_name,omitempty"`
	DisplayNameAlt    string            `json:"display_name_alt,omitempty"`
	DisplayNameSource DisplayNameSource `json:"display_name_source"`
	SortKey           string            `json:"sort_key,omitempty"`
	SortKeyAlt        string            `json:"sort_key_alt,omitempty"`
	NameVerified      bool              `json:"name_verified,omitempty"`
	Starred           bool              `json:"starred,omitempty"`
	Pinned            int               `json:"pinned,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

type Contact struct {
	ID                int64             `json:"id"`
	NameRawContactID  int64             `json:"name_raw_contact_id"`
	DisplayName       string            `json:"display_name,omitempty"`
	DisplayNameAlt    string            `json:"display_name_alt,omitempty"`
	DisplayNameSource DisplayNameSource `json:"display_name_source"`
	SortKey           string            `json:"sort_key,omitempty"`
	SortKeyAlt        string            `json:"sort_key_alt,omitempty"`
	LookupKey         string            `json:"lookup_key"`
	PhotoID           int64             `json:"photo_id,omitempty"`
	PhotoFileID       string            `json:"photo_file_id,omitempty"`
	Starred           bool              `json:"starred,omitempty"`
	Pinned            int               `json:"pinned,omitempty"`
	HasPhoneNumber    bool              `json:"has_phone_number,omitempty"`
	Presence          PresenceMode      `json:"presence"`
	Status            string            `json:"status,omitempty"`
	LastUpdated       time.Time         `json:"last_updated"`
}

type AggregationException struct {
	ID            int64         `json:"id"`
	Type          ExceptionType `json:"type"`
	RawContactID1 int64         `json:"raw_contact_id1"`
	RawContactID2 int64         `json:"raw_contact_id2"`
}

// Canonical orders the pair so the lower raw contact id comes first.
func (e AggregationException) Canonical() AggregationException {
	if e.RawContactID1 > e.RawContactID2 {
		e.RawContactID1, e.RawContactID2 = e.RawContactID2, e.RawContactID1
	}
	return e
}

type Group struct {
	ID        int64  `json:"id"`
	AccountID int64  `json:"account_id"`
	SourceID  string `json:"source_id,omitempty"`
	Title     string `json:"title"`
	Deleted   bool   `json:"deleted,omitempty"`
}

// DeletedContact records the removal of an aggregated contact for delta readers.
type DeletedContact struct {
	ContactID int64     `json:"contact_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Suggestion is a contact that might belong with the one suggestions were asked for.
type Suggestion struct {
	ContactID   int64    `json:"contact_id"`
	DisplayName string   `json:"display_name,omitempty"`
	LookupKey   string   `json:"lookup_key"`
	Score       int      `json:"score"`
	Signals     []string `json:"signals,omitempty"`
}

// PhotoCandidate is one photo data row competing to be a contact's photo.
type PhotoCandidate struct {
	DataID         int64
	RawContactID   int64
	AccountType    string
	FileID         string
	IsSuperPrimary bool
	HasThumbnail   bool
}

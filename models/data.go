// ABOUTME: Typed data rows attached to raw contacts and their mimetype column layouts
// ABOUTME: Also defines name lookup entries and the directory record
package models

// Mimetypes understood by the data row handlers. Any other mimetype is stored
// as a custom row.
const (
	MimeStructuredName   = "vnd.roster.item/name"
	MimeNickname         = "vnd.roster.item/nickname"
	MimeOrganization     = "vnd.roster.item/organization"
	MimePhone            = "vnd.roster.item/phone"
	MimeEmail            = "vnd.roster.item/email"
	MimePhoto            = "vnd.roster.item/photo"
	MimeGroupMembership  = "vnd.roster.item/group_membership"
	MimeIdentity         = "vnd.roster.item/identity"
	MimeNote             = "vnd.roster.item/note"
	MimeStructuredPostal = "vnd.roster.item/postal-address"
)

// NumDataColumns is the number of generic text columns on a data row.
const NumDataColumns = 10

// Generic column indexes into DataRow.Data.
const (
	Data1 = iota
	Data2
	Data3
	Data4
	Data5
	Data6
	Data7
	Data8
	Data9
	Data10
)

// Structured name columns.
const (
	NameDisplayName    = Data1
	NameGiven          = Data2
	NameFamily         = Data3
	NamePrefix         = Data4
	NameMiddle         = Data5
	NameSuffix         = Data6
	NamePhoneticGiven  = Data7
	NamePhoneticMiddle = Data8
	NamePhoneticFamily = Data9
)

const (
	NicknameName = Data1
	NicknameType = Data2
)

const (
	OrgCompany    = Data1
	OrgType       = Data2
	OrgLabel      = Data3
	OrgTitle      = Data4
	OrgDepartment = Data5
)

const (
	PhoneNumber     = Data1
	PhoneType       = Data2
	PhoneLabel      = Data3
	PhoneNormalized = Data4
)

const (
	EmailAddress = Data1
	EmailType    = Data2
	EmailLabel   = Data3
)

// PhotoFileID holds the photo store id of the full-size image.
const PhotoFileID = Data10

const (
	GroupRowID    = Data1
	GroupSourceID = Data2
)

const (
	IdentityValue     = Data1
	IdentityNamespace = Data2
)

const NoteText = Data1

const (
	PostalFormatted    = Data1
	PostalType         = Data2
	PostalLabel        = Data3
	PostalStreet       = Data4
	PostalPOBox        = Data5
	PostalNeighborhood = Data6
	PostalCity         = Data7
	PostalRegion       = Data8
	PostalPostcode     = Data9
	PostalCountry      = Data10
)

// DataRow is one typed item (name, phone, email, ...) attached to a raw contact.
// Empty strings in Data are stored as NULL.
type DataRow struct {
	ID             int64                  `json:"id"`
	RawContactID   int64                  `json:"raw_contact_id"`
	MimeType       string                 `json:"mimetype"`
	IsPrimary      bool                   `json:"is_primary,omitempty"`
	IsSuperPrimary bool                   `json:"is_super_primary,omitempty"`
	Version        int64                  `json:"data_version"`
	Data           [NumDataColumns]string `json:"data"`
	Blob           []byte                 `json:"blob,omitempty"`
}

// Get returns the value of a data column, or "" when out of range.
func (d *DataRow) Get(col int) string {
	if col < 0 || col >= NumDataColumns {
		return ""
	}
	return d.Data[col]
}

func (d *DataRow) Set(col int, v string) {
	if col >= 0 && col < NumDataColumns {
		d.Data[col] = v
	}
}

// kinds names the common mimetypes and the column holding their main value.
var kinds = []struct {
	kind string
	mime string
	col  int
}{
	{"name", MimeStructuredName, NameDisplayName},
	{"nickname", MimeNickname, NicknameName},
	{"organization", MimeOrganization, OrgCompany},
	{"phone", MimePhone, PhoneNumber},
	{"email", MimeEmail, EmailAddress},
	{"photo", MimePhoto, PhotoFileID},
	{"group", MimeGroupMembership, GroupRowID},
	{"identity", MimeIdentity, IdentityValue},
	{"note", MimeNote, NoteText},
	{"postal", MimeStructuredPostal, PostalFormatted},
}

// MimeForKind maps a short kind such as "email" to its mimetype and value column.
func MimeForKind(kind string) (string, int, bool) {
	for _, k := range kinds {
		if k.kind == kind {
			return k.mime, k.col, true
		}
	}
	return "", 0, false
}

// Kind returns the short kind of the row and its main value. Unknown
// mimetypes report the mimetype itself and the first column.
func (d *DataRow) Kind() (string, string) {
	for _, k := range kinds {
		if k.mime == d.MimeType {
			return k.kind, d.Get(k.col)
		}
	}
	return d.MimeType, d.Data[Data1]
}

// NameLookupType classifies a normalized name lookup entry.
type NameLookupType int

const (
	NameLookupExact              NameLookupType = 0
	NameLookupVariant            NameLookupType = 1
	NameLookupCollationKey       NameLookupType = 2
	NameLookupNickname           NameLookupType = 3
	NameLookupEmailBasedNickname NameLookupType = 4
	NameLookupShorthand          NameLookupType = 5
)

type NameLookup struct {
	DataID         int64          `json:"data_id"`
	RawContactID   int64          `json:"raw_contact_id"`
	NormalizedName string         `json:"normalized_name"`
	Type           NameLookupType `json:"name_type"`
}

// Reserved directory ids.
const (
	DirectoryDefault        int64 = 0
	DirectoryLocalInvisible int64 = 1
	FirstRemoteDirectoryID  int64 = 2
)

type ExportSupport int

const (
	ExportSupportNone            ExportSupport = 0
	ExportSupportSameAccountOnly ExportSupport = 1
	ExportSupportAnyAccount      ExportSupport = 2
)

type ShortcutSupport int

const (
	ShortcutSupportNone          ShortcutSupport = 0
	ShortcutSupportDataItemsOnly ShortcutSupport = 1
	ShortcutSupportFull          ShortcutSupport = 2
)

type PhotoSupport int

const (
	PhotoSupportNone          PhotoSupport = 0
	PhotoSupportThumbnailOnly PhotoSupport = 1
	PhotoSupportFull          PhotoSupport = 2
)

// Directory describes a contact source the device can query.
type Directory struct {
	ID              int64           `json:"id"`
	PackageName     string          `json:"package_name,omitempty"`
	Authority       string          `json:"authority,omitempty"`
	AccountName     string          `json:"account_name,omitempty"`
	AccountType     string          `json:"account_type,omitempty"`
	DisplayName     string          `json:"display_name,omitempty"`
	ExportSupport   ExportSupport   `json:"export_support"`
	ShortcutSupport ShortcutSupport `json:"shortcut_support"`
	PhotoSupport    PhotoSupport    `json:"photo_support"`
}

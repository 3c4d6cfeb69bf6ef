// ABOUTME: Converts People API persons into typed data rows for a raw contact
// ABOUTME: Drops empty and repeated values so one person yields one row per distinct item
package sync

import (
	"strings"

	"google.golang.org/api/people/v1"

	"github.com/harperreed/roster/models"
)

// AccountType is the account type of Google contacts.
const AccountType = "com.google"

// isPrimary reports whether the field is the person's primary value.
func isPrimary(md *people.FieldMetadata) bool {
	return md != nil && md.Primary
}

// seen tracks values already emitted per mimetype.
type seen map[string]bool

func (s seen) add(mime, value string) bool {
	key := mime + "\x00" + strings.ToLower(strings.TrimSpace(value))
	if s[key] {
		return false
	}
	s[key] = true
	return true
}

// convertPerson returns the data rows for person. The raw contact id is left
// for the caller to fill.
func convertPerson(person *people.Person) []models.DataRow {
	var rows []models.DataRow
	dedupe := seen{}
	emit := func(row models.DataRow, value string) {
		if strings.TrimSpace(value) == "" || !dedupe.add(row.MimeType, value) {
			return
		}
		rows = append(rows, row)
	}

	// One structured name per raw contact; prefer the primary one.
	var name *people.Name
	for _, n := range person.Names {
		if name == nil || isPrimary(n.Metadata) {
			name = n
		}
	}
	if name != nil {
		row := models.DataRow{MimeType: models.MimeStructuredName}
		row.Set(models.NameDisplayName, name.DisplayName)
		row.Set(models.NameGiven, name.GivenName)
		row.Set(models.NameFamily, name.FamilyName)
		row.Set(models.NameMiddle, name.MiddleName)
		row.Set(models.NamePrefix, name.HonorificPrefix)
		row.Set(models.NameSuffix, name.HonorificSuffix)
		row.Set(models.NamePhoneticGiven, name.PhoneticGivenName)
		row.Set(models.NamePhoneticFamily, name.PhoneticFamilyName)
		value := name.DisplayName
		if value == "" {
			value = strings.TrimSpace(name.GivenName + " " + name.FamilyName)
		}
		emit(row, value)
	}

	for _, n := range person.Nicknames {
		row := models.DataRow{MimeType: models.MimeNickname}
		row.Set(models.NicknameName, n.Value)
		emit(row, n.Value)
	}

	for _, e := range person.EmailAddresses {
		row := models.DataRow{MimeType: models.MimeEmail, IsPrimary: isPrimary(e.Metadata)}
		row.Set(models.EmailAddress, strings.TrimSpace(e.Value))
		row.Set(models.EmailType, e.Type)
		emit(row, e.Value)
	}

	for _, p := range person.PhoneNumbers {
		row := models.DataRow{MimeType: models.MimePhone, IsPrimary: isPrimary(p.Metadata)}
		row.Set(models.PhoneNumber, strings.TrimSpace(p.Value))
		row.Set(models.PhoneType, p.Type)
		key := p.CanonicalForm
		if key == "" {
			key = p.Value
		}
		emit(row, key)
	}

	for _, o := range person.Organizations {
		row := models.DataRow{MimeType: models.MimeOrganization, IsPrimary: isPrimary(o.Metadata)}
		row.Set(models.OrgCompany, o.Name)
		row.Set(models.OrgTitle, o.Title)
		row.Set(models.OrgDepartment, o.Department)
		emit(row, o.Name+"\x00"+o.Title)
	}

	for _, b := range person.Biographies {
		row := models.DataRow{MimeType: models.MimeNote}
		row.Set(models.NoteText, b.Value)
		emit(row, b.Value)
	}

	for _, a := range person.Addresses {
		row := models.DataRow{MimeType: models.MimeStructuredPostal, IsPrimary: isPrimary(a.Metadata)}
		row.Set(models.PostalFormatted, a.FormattedValue)
		row.Set(models.PostalType, a.Type)
		row.Set(models.PostalStreet, a.StreetAddress)
		row.Set(models.PostalPOBox, a.PoBox)
		row.Set(models.PostalCity, a.City)
		row.Set(models.PostalRegion, a.Region)
		row.Set(models.PostalPostcode, a.PostalCode)
		row.Set(models.PostalCountry, a.Country)
		value := a.FormattedValue
		if value == "" {
			value = strings.Join([]string{a.StreetAddress, a.City, a.PostalCode, a.Country}, " ")
		}
		emit(row, value)
	}

	return rows
}

// isDeleted reports whether an incremental listing marks person as removed.
func isDeleted(person *people.Person) bool {
	return person.Metadata != nil && person.Metadata.Deleted
}

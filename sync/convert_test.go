package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/people/v1"

	"github.com/harperreed/roster/models"
)

func TestConvertPerson(t *testing.T) {
	p := &people.Person{
		ResourceName: "people/1",
		Names: []*people.Name{
			{DisplayName: "A. Lovelace"},
			{DisplayName: "Ada Lovelace", GivenName: "Ada", FamilyName: "Lovelace", Metadata: &people.FieldMetadata{Primary: true}},
		},
		Nicknames: []*people.Nickname{{Value: "Countess"}, {Value: ""}},
		EmailAddresses: []*people.EmailAddress{
			{Value: "ada@example.com", Type: "home"},
			{Value: "ADA@example.com ", Metadata: &people.FieldMetadata{Primary: true}},
			{Value: "lovelace@work.example", Type: "work"},
		},
		PhoneNumbers: []*people.PhoneNumber{
			{Value: "(555) 010-0100", CanonicalForm: "+15550100100"},
			{Value: "555 010 0100", CanonicalForm: "+15550100100"},
		},
		Organizations: []*people.Organization{{Name: "Analytical Engines", Title: "Programmer"}},
		Biographies:   []*people.Biography{{Value: "First programmer"}},
	}

	rows := convertPerson(p)

	byMime := make(map[string][]models.DataRow)
	for _, r := range rows {
		byMime[r.MimeType] = append(byMime[r.MimeType], r)
	}

	require.Len(t, byMime[models.MimeStructuredName], 1)
	name := byMime[models.MimeStructuredName][0]
	assert.Equal(t, "Ada Lovelace", name.Get(models.NameDisplayName))
	assert.Equal(t, "Lovelace", name.Get(models.NameFamily))

	require.Len(t, byMime[models.MimeNickname], 1)
	require.Len(t, byMime[models.MimeEmail], 2, "case-insensitive duplicates collapse")
	assert.Equal(t, "home", byMime[models.MimeEmail][0].Get(models.EmailType))
	require.Len(t, byMime[models.MimePhone], 1, "same canonical number collapses")
	require.Len(t, byMime[models.MimeOrganization], 1)
	assert.Equal(t, "Programmer", byMime[models.MimeOrganization][0].Get(models.OrgTitle))
	require.Len(t, byMime[models.MimeNote], 1)
}

func TestConvertEmptyPerson(t *testing.T) {
	assert.Empty(t, convertPerson(&people.Person{ResourceName: "people/2"}))
	assert.True(t, isDeleted(&people.Person{Metadata: &people.PersonMetadata{Deleted: true}}))
	assert.False(t, isDeleted(&people.Person{}))
}

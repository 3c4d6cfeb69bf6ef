package namenorm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"John Smith":     "johnsmith",
		"José O'Neil":    "joseoneil",
		"  Zoë-Ann 2nd ": "zoeann2nd",
		"":               "",
		"!!!":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"mary", "ann", "o", "brien"}, Tokens("Mary-Ann  O'Brien"))
	assert.Empty(t, Tokens(" , "))
}

func TestVariants(t *testing.T) {
	got := Variants("John", "", "Smith")
	if diff := cmp.Diff([]string{"johnsmith", "smithjohn"}, got); diff != "" {
		t.Errorf("variants mismatch (-want +got):\n%s", diff)
	}

	got = Variants("John", "Q", "Smith")
	assert.Equal(t, "johnqsmith", got[0])
	assert.Contains(t, got, "smithjohn")
	assert.Contains(t, got, "johnsmith")

	assert.Equal(t, []string{"cher"}, Variants("Cher", "", ""))
	assert.Empty(t, Variants("", "", ""))
}

func TestEmailNickname(t *testing.T) {
	assert.Equal(t, "jsmith", EmailNickname("J.Smith+work@example.com"))
	assert.Equal(t, "", EmailNickname("@example.com"))
	assert.Equal(t, "", EmailNickname("not-an-email"))
}

func TestNicknameCluster(t *testing.T) {
	assert.Contains(t, NicknameCluster("bob"), "robert")
	assert.Contains(t, NicknameCluster("robert"), "bob")
	assert.NotContains(t, NicknameCluster("robert"), "robert")
	assert.Nil(t, NicknameCluster("zebediah"))
}

func TestCollatorOrdering(t *testing.T) {
	c := NewCollator("en-US")
	assert.Equal(t, "en-US", c.Locale())

	a, b := c.SortKey("apple"), c.SortKey("Banana")
	assert.Less(t, a, b)
	assert.Less(t, c.SortKey("Émile"), c.SortKey("Zed"))
	assert.Equal(t, "", c.SortKey(""))
	assert.Negative(t, c.Compare("apple", "banana"))

	c.SetLocale("not a locale!!")
	assert.Equal(t, DefaultLocale, c.Locale())
}

func TestSimpleNameSplitter(t *testing.T) {
	s := SimpleNameSplitter{}
	tests := []struct {
		in   string
		want Name
	}{
		{"John Smith", Name{Given: "John", Family: "Smith"}},
		{"Dr. Jane Q Public Jr", Name{Prefix: "Dr.", Given: "Jane", Middle: "Q", Family: "Public", Suffix: "Jr"}},
		{"Smith, John Q", Name{Given: "John", Middle: "Q", Family: "Smith"}},
		{"Cher", Name{Given: "Cher"}},
		{"", Name{}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, s.Split(tt.in)); diff != "" {
			t.Errorf("Split(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}

	n := Name{Given: "John", Middle: "Q", Family: "Smith"}
	assert.Equal(t, "John Q Smith", s.Join(n, true))
	assert.Equal(t, "Smith, John Q", s.Join(n, false))
	assert.Equal(t, "Cher", s.Join(Name{Given: "Cher"}, false))
}

func TestSimplePostalSplitter(t *testing.T) {
	s := SimplePostalSplitter{}
	a := s.Split("1 Main St\nSpringfield, IL 62701\nUSA")
	assert.Equal(t, PostalAddress{Street: "1 Main St", City: "Springfield", Region: "IL", Postcode: "62701", Country: "USA"}, a)
	assert.Equal(t, "1 Main St\nSpringfield, IL 62701\nUSA", s.Join(a))
	assert.True(t, s.Split("  ").IsEmpty())
}

func TestPhoneNormalization(t *testing.T) {
	assert.Equal(t, "+15551234567", NormalizePhone(" +1 (555) 123-4567 ", ""))
	assert.Equal(t, "+15551234567", NormalizePhone("555.123.4567", "US"))
	assert.Equal(t, "+15551234567", NormalizePhone("(555) 123-4567", "us"))
	assert.Equal(t, "+442079460000", NormalizePhone("020 7946 0000", "GB"))
	assert.Equal(t, "5551234567", NormalizePhone("555.123.4567", ""))
	assert.Equal(t, "911", NormalizePhone("911", "US"))
	assert.Equal(t, "", NormalizePhone("n/a", "US"))
	assert.Equal(t, MinMatch(NormalizePhone("555-123-4567", "US")), MinMatch("+1 555 123 4567"))
	assert.Equal(t, "1234567", MinMatch("+1 (555) 123-4567"))
	assert.Equal(t, MinMatch("555-123-4567"), MinMatch("+1 555 123 4567"))
	assert.Equal(t, "911", MinMatch("911"))
	assert.Equal(t, "", MinMatch("n/a"))
}

func TestRegionForLocale(t *testing.T) {
	assert.Equal(t, "US", RegionForLocale("en-US"))
	assert.Equal(t, "GB", RegionForLocale("en-GB"))
	assert.Equal(t, "DE", RegionForLocale("de-DE"))
	assert.Equal(t, "", RegionForLocale("not a locale"))
	assert.Equal(t, "FR", NewCollator("fr-FR").Region())
}

// ABOUTME: Lookup key encoding and parsing for aggregated contacts
// ABOUTME: A key is a dot-separated list of per-member segments anchored on source id, raw id or name
package lookupkey

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Profile is the key that always resolves to the device owner's profile contact.
const Profile = "profile"

// SegmentType is the anchor a segment carries.
type SegmentType byte

const (
	TypeSourceID        SegmentType = 'i'
	TypeEncodedSourceID SegmentType = 'e'
	TypeRawContactID    SegmentType = 'r'
	TypeDisplayName     SegmentType = 'n'
	TypeProfile         SegmentType = 'p'
)

// Segment is one parsed piece of a lookup key. ContactID is filled in by
// resolution; -1 means unresolved.
type Segment struct {
	AccountHash  int
	Type         SegmentType
	Key          string
	RawContactID int64
	ContactID    int64
}

// Member describes one raw contact of a contact for key building.
type Member struct {
	AccountTypeWithDataSet string
	AccountName            string
	RawContactID           int64
	SourceID               string
	// NormalizedDisplayName is the raw contact's display name after
	// namenorm.Normalize.
	NormalizedDisplayName string
}

// javaHash is the 32-bit polynomial string hash over UTF-16 code units. Keys
// stored by earlier versions depend on its exact values.
func javaHash(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(u)
	}
	return h
}

// AccountHash folds an account into 12 bits.
func AccountHash(accountTypeWithDataSet, accountName string) int {
	return int((javaHash(accountTypeWithDataSet) ^ javaHash(accountName)) & 0xFFF)
}

func segmentFor(m Member) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(AccountHash(m.AccountTypeWithDataSet, m.AccountName)))
	switch {
	case m.SourceID != "":
		if strings.Contains(m.SourceID, ".") {
			b.WriteByte(byte(TypeEncodedSourceID))
			b.WriteString(strings.ReplaceAll(m.SourceID, ".", ".."))
		} else {
			b.WriteByte(byte(TypeSourceID))
			b.WriteString(m.SourceID)
		}
	case m.RawContactID != 0:
		b.WriteByte(byte(TypeRawContactID))
		b.WriteString(strconv.FormatInt(m.RawContactID, 10))
		b.WriteByte('-')
		b.WriteString(m.NormalizedDisplayName)
	default:
		b.WriteByte(byte(TypeDisplayName))
		b.WriteString(m.NormalizedDisplayName)
	}
	return b.String()
}

// Build returns the lookup key for a contact with the given members. Segments
// are ordered by account hash and then by segment text, so the same
// membership always yields the same key.
func Build(members []Member) string {
	type seg struct {
		hash int
		text string
	}
	segs := make([]seg, 0, len(members))
	for _, m := range members {
		segs = append(segs, seg{hash: AccountHash(m.AccountTypeWithDataSet, m.AccountName), text: segmentFor(m)})
	}
	sort.Slice(segs, func(i, j int) bool {
		if segs[i].hash != segs[j].hash {
			return segs[i].hash < segs[j].hash
		}
		return segs[i].text < segs[j].text
	})
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.text
	}
	return strings.Join(parts, ".")
}

// IsProfile reports whether key names the profile contact, either as the
// bare profile key or through a profile segment anywhere in the key.
func IsProfile(key string) bool {
	if key == Profile {
		return true
	}
	segs, err := Parse(key)
	return err == nil && HasProfile(segs)
}

// HasProfile reports whether any segment is tagged profile.
func HasProfile(segs []Segment) bool {
	for _, s := range segs {
		if s.Type == TypeProfile {
			return true
		}
	}
	return false
}

// Parse splits a lookup key into segments.
func Parse(key string) ([]Segment, error) {
	if key == "" {
		return nil, fmt.Errorf("empty lookup key")
	}
	if key == Profile {
		return []Segment{{Type: TypeProfile, ContactID: -1}}, nil
	}

	var segs []Segment
	i := 0
	for i < len(key) {
		start := i
		for i < len(key) && key[i] >= '0' && key[i] <= '9' {
			i++
		}
		if i == start || i >= len(key) {
			return nil, fmt.Errorf("malformed lookup key segment at offset %d", start)
		}
		hash, err := strconv.Atoi(key[start:i])
		if err != nil {
			return nil, fmt.Errorf("malformed account hash at offset %d: %w", start, err)
		}

		seg := Segment{AccountHash: hash, Type: SegmentType(key[i]), ContactID: -1}
		i++

		switch seg.Type {
		case TypeEncodedSourceID:
			var b strings.Builder
			for i < len(key) {
				if key[i] == '.' {
					if i+1 < len(key) && key[i+1] == '.' {
						b.WriteByte('.')
						i += 2
						continue
					}
					break
				}
				b.WriteByte(key[i])
				i++
			}
			seg.Key = b.String()
		case TypeSourceID, TypeDisplayName, TypeProfile:
			end := strings.IndexByte(key[i:], '.')
			if end < 0 {
				end = len(key) - i
			}
			seg.Key = key[i : i+end]
			i += end
		case TypeRawContactID:
			end := strings.IndexByte(key[i:], '.')
			if end < 0 {
				end = len(key) - i
			}
			body := key[i : i+end]
			i += end
			idPart, name, _ := strings.Cut(body, "-")
			id, err := strconv.ParseInt(idPart, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed raw contact id in lookup key: %w", err)
			}
			seg.RawContactID = id
			seg.Key = name
		default:
			return nil, fmt.Errorf("unknown lookup key segment type %q", key[i-1])
		}

		segs = append(segs, seg)
		if i < len(key) {
			// Skip the separator.
			i++
		}
	}
	return segs, nil
}

// MostReferenced returns the contact id referenced by the most resolved
// segments, or -1 when none resolved. Segments are grouped by contact id in
// ascending order and a later group must be strictly larger to win, so ties
// go to the lowest contact id.
func MostReferenced(segs []Segment) int64 {
	ids := make([]int64, 0, len(segs))
	for _, s := range segs {
		if s.ContactID != -1 {
			ids = append(ids, s.ContactID)
		}
	}
	if len(ids) == 0 {
		return -1
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	best, bestCount := int64(-1), 0
	for i := 0; i < len(ids); {
		j := i
		for j < len(ids) && ids[j] == ids[i] {
			j++
		}
		if j-i > bestCount {
			best, bestCount = ids[i], j-i
		}
		i = j
	}
	return best
}

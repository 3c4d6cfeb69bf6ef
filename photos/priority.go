// ABOUTME: Chooses a contact's photo among the photo rows of its raw contacts
// ABOUTME: Super-primary rows win, then account type priority, then full-size over thumbnail
package photos

import "github.com/harperreed/roster/models"

// AccountTypePriority ranks account types; earlier entries win. Unlisted
// types rank after every listed one.
type AccountTypePriority []string

func (p AccountTypePriority) rank(accountType string) int {
	for i, t := range p {
		if t == accountType {
			return i
		}
	}
	return len(p)
}

func (p AccountTypePriority) Resolve(cands []models.PhotoCandidate) int64 {
	var best *models.PhotoCandidate
	for i := range cands {
		c := &cands[i]
		if best == nil || p.better(c, best) {
			best = c
		}
	}
	if best == nil {
		return 0
	}
	return best.DataID
}

func (p AccountTypePriority) better(a, b *models.PhotoCandidate) bool {
	if a.IsSuperPrimary != b.IsSuperPrimary {
		return a.IsSuperPrimary
	}
	if ra, rb := p.rank(a.AccountType), p.rank(b.AccountType); ra != rb {
		return ra < rb
	}
	if fa, fb := a.FileID != "", b.FileID != ""; fa != fb {
		return fa
	}
	return a.DataID < b.DataID
}

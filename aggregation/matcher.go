// ABOUTME: Heuristic matching of a raw contact against others through derived lookup rows
// ABOUTME: Collects per-candidate signals and folds them into per-contact scores
package aggregation

import (
	"context"
	"fmt"
	"sort"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
)

// Signal is one kind of evidence that two raw contacts are the same person.
type Signal int

const (
	SignalName Signal = iota
	SignalEmail
	SignalPhone
	SignalIdentity
	SignalNickname
	SignalEmailNickname
	SignalPartialName
)

func (s Signal) String() string {
	switch s {
	case SignalName:
		return "name"
	case SignalEmail:
		return "email"
	case SignalPhone:
		return "phone"
	case SignalIdentity:
		return "identity"
	case SignalNickname:
		return "nickname"
	case SignalEmailNickname:
		return "email_nickname"
	case SignalPartialName:
		return "partial_name"
	}
	return "unknown"
}

// Strong signals can justify a merge on their own. Weak ones only add to the
// score of a candidate that already has a strong signal.
func (s Signal) Strong() bool {
	switch s {
	case SignalName, SignalEmail, SignalPhone, SignalIdentity:
		return true
	}
	return false
}

func (s Signal) weight() int {
	if s.Strong() {
		return 2
	}
	return 1
}

type signalSet map[Signal]bool

func (s signalSet) strongCount() int {
	n := 0
	for sig := range s {
		if sig.Strong() {
			n++
		}
	}
	return n
}

func (s signalSet) score() int {
	total := 0
	for sig := range s {
		total += sig.weight()
	}
	return total
}

func (s signalSet) names() []string {
	out := make([]string, 0, len(s))
	for sig := range s {
		out = append(out, sig.String())
	}
	sort.Strings(out)
	return out
}

// Name lookup classes shared by the name-based signals.
var (
	fullNames = []any{models.NameLookupExact, models.NameLookupVariant}
	nicknames = []any{models.NameLookupNickname, models.NameLookupShorthand}
)

func withID(id int64, groups ...[]any) []any {
	out := []any{id}
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// signalQueries map each signal to a query returning raw contact ids that share
// evidence with the raw contact whose id is the first argument.
var signalQueries = []struct {
	signal Signal
	query  string
	args   func(id int64) []any
}{
	{SignalName, `
		SELECT DISTINCT b.raw_contact_id FROM name_lookup a
		JOIN name_lookup b ON b.normalized_name = a.normalized_name
		WHERE a.raw_contact_id = ? AND a.name_type IN (?, ?) AND b.name_type IN (?, ?)
		AND b.raw_contact_id != a.raw_contact_id`,
		func(id int64) []any { return withID(id, fullNames, fullNames) }},
	{SignalNickname, `
		SELECT DISTINCT b.raw_contact_id FROM name_lookup a
		JOIN name_lookup b ON b.normalized_name = a.normalized_name
		WHERE a.raw_contact_id = ? AND b.raw_contact_id != a.raw_contact_id
		AND ((a.name_type IN (?, ?) AND b.name_type IN (?, ?, ?, ?))
			OR (a.name_type IN (?, ?) AND b.name_type IN (?, ?)))`,
		func(id int64) []any { return withID(id, nicknames, fullNames, nicknames, fullNames, nicknames) }},
	{SignalEmailNickname, `
		SELECT DISTINCT b.raw_contact_id FROM name_lookup a
		JOIN name_lookup b ON b.normalized_name = a.normalized_name
		WHERE a.raw_contact_id = ? AND b.raw_contact_id != a.raw_contact_id
		AND ((a.name_type = ? AND b.name_type IN (?, ?, ?))
			OR (a.name_type IN (?, ?) AND b.name_type = ?))`,
		func(id int64) []any {
			email := []any{models.NameLookupEmailBasedNickname}
			return withID(id, email, fullNames, email, fullNames, email)
		}},
	{SignalEmail, `
		SELECT DISTINCT b.raw_contact_id FROM data a
		JOIN data b ON b.mimetype = a.mimetype AND lower(b.data1) = lower(a.data1)
		WHERE a.raw_contact_id = ? AND a.mimetype = ? AND a.data1 IS NOT NULL
		AND b.raw_contact_id != a.raw_contact_id`,
		func(id int64) []any { return []any{id, models.MimeEmail} }},
	{SignalPhone, `
		SELECT DISTINCT b.raw_contact_id FROM phone_lookup a
		JOIN phone_lookup b ON b.min_match = a.min_match
		WHERE a.raw_contact_id = ? AND b.raw_contact_id != a.raw_contact_id`,
		func(id int64) []any { return []any{id} }},
	{SignalIdentity, `
		SELECT DISTINCT b.raw_contact_id FROM data a
		JOIN data b ON b.mimetype = a.mimetype AND b.data1 = a.data1 AND IFNULL(b.data2, '') = IFNULL(a.data2, '')
		WHERE a.raw_contact_id = ? AND a.mimetype = ? AND a.data1 IS NOT NULL
		AND b.raw_contact_id != a.raw_contact_id`,
		func(id int64) []any { return []any{id, models.MimeIdentity} }},
}

const partialNameQuery = `
	SELECT DISTINCT b.raw_contact_id FROM name_lookup a
	JOIN name_lookup b ON b.normalized_name = a.normalized_name
	WHERE a.raw_contact_id = ? AND a.name_type = ? AND b.name_type = ?
	AND b.raw_contact_id != a.raw_contact_id`

// collectSignals returns, for each raw contact sharing evidence with
// rawContactID, the set of signals found.
func collectSignals(ctx context.Context, q db.Querier, rawContactID int64, partial bool) (map[int64]signalSet, error) {
	out := make(map[int64]signalSet)
	add := func(sig Signal, query string, args []any) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to match %s for raw contact %d: %w", sig, rawContactID, err)
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			if out[id] == nil {
				out[id] = make(signalSet)
			}
			out[id][sig] = true
		}
		return rows.Err()
	}

	for _, sq := range signalQueries {
		if err := add(sq.signal, sq.query, sq.args(rawContactID)); err != nil {
			return nil, err
		}
	}
	if partial {
		if err := add(SignalPartialName, partialNameQuery, []any{rawContactID, models.NameLookupCollationKey, models.NameLookupCollationKey}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// candidate is a raw contact found by matching, with where it currently lives.
type candidate struct {
	ID        int64
	ContactID int64
	AccountID int64
	Signals   signalSet
}

// resolveCandidates attaches contact and account ids to matched raw contacts,
// dropping deleted, disabled and unassigned ones.
func resolveCandidates(ctx context.Context, q db.Querier, signals map[int64]signalSet) ([]candidate, error) {
	ids := make([]int64, 0, len(signals))
	for id := range signals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []candidate
	for _, chunk := range chunkIDs(ids, 500) {
		rows, err := q.QueryContext(ctx, `
			SELECT _id, contact_id, account_id FROM raw_contacts
			WHERE _id IN (`+placeholders(len(chunk))+`)
			AND deleted = 0 AND contact_id IS NOT NULL AND aggregation_mode != ?
		`, append(int64Args(chunk), models.AggregationModeDisabled)...)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve match candidates: %w", err)
		}
		for rows.Next() {
			var c candidate
			if err := rows.Scan(&c.ID, &c.ContactID, &c.AccountID); err != nil {
				rows.Close()
				return nil, err
			}
			c.Signals = signals[c.ID]
			out = append(out, c)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// scoreContacts folds candidate signals into per-contact scores for rc.
// Contacts holding a KEEP_SEPARATE partner of rc are excluded, as are contacts
// other than rc's own that already hold a raw contact from rc's account.
func scoreContacts(ctx context.Context, q db.Querier, rc *rawState, strict bool, separate map[int64]bool) (map[int64]int, error) {
	signals, err := collectSignals(ctx, q, rc.ID, false)
	if err != nil {
		return nil, err
	}
	cands, err := resolveCandidates(ctx, q, signals)
	if err != nil {
		return nil, err
	}

	scores := make(map[int64]int)
	for _, c := range cands {
		strong := c.Signals.strongCount()
		if strong == 0 || (strict && strong < 2) {
			continue
		}
		scores[c.ContactID] += c.Signals.score()
	}

	for contactID := range scores {
		members, err := membersOf(ctx, q, contactID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if m.ID == rc.ID {
				continue
			}
			if separate[m.ID] || (contactID != rc.ContactID && m.AccountID == rc.AccountID) {
				delete(scores, contactID)
				break
			}
		}
	}
	return scores, nil
}

// pickBest returns the highest scoring contact, the lowest contact id on a
// tie. 0 means none.
func pickBest(scores map[int64]int) int64 {
	var best int64
	bestScore := 0
	for id, s := range scores {
		if s > bestScore || (s == bestScore && s > 0 && id < best) {
			best, bestScore = id, s
		}
	}
	return best
}

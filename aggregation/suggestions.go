// ABOUTME: Aggregation suggestions: contacts that might be the same person as a given one
// ABOUTME: Uses the same signals as matching plus partial names, ranked by score
package aggregation

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/namenorm"
)

// SuggestionKind selects which evidence may produce a suggestion.
type SuggestionKind int

const (
	SuggestName SuggestionKind = 1 << iota
	SuggestEmail
	SuggestPhone
	SuggestNickname
)

const SuggestAll = SuggestName | SuggestEmail | SuggestPhone | SuggestNickname

// SuggestionFilter narrows suggestions. When any of Names, Emails or Phones is
// set, candidates are matched against those values instead of the contact's
// own data.
type SuggestionFilter struct {
	Kinds  SuggestionKind
	Names  []string
	Emails []string
	Phones []string
}

func (f SuggestionFilter) kinds() SuggestionKind {
	if f.Kinds == 0 {
		return SuggestAll
	}
	return f.Kinds
}

func (f SuggestionFilter) hasParameters() bool {
	return len(f.Names) > 0 || len(f.Emails) > 0 || len(f.Phones) > 0
}

func (k SuggestionKind) allows(sig Signal) bool {
	switch sig {
	case SignalName, SignalPartialName, SignalIdentity:
		return k&SuggestName != 0
	case SignalEmail, SignalEmailNickname:
		return k&SuggestEmail != 0
	case SignalPhone:
		return k&SuggestPhone != 0
	case SignalNickname:
		return k&SuggestNickname != 0
	}
	return false
}

// QueryAggregationSuggestions returns up to max contacts that may belong with
// contactID, best first. It only reads, so q may be the plain database handle.
func (a *Aggregator) QueryAggregationSuggestions(ctx context.Context, q db.Querier, contactID int64, max int, filter SuggestionFilter) ([]models.Suggestion, error) {
	if max <= 0 {
		return nil, nil
	}
	members, err := membersOf(ctx, q, contactID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	memberIDs := make([]int64, len(members))
	for i, m := range members {
		memberIDs[i] = m.ID
	}

	signals := make(map[int64]signalSet)
	merge := func(found map[int64]signalSet) {
		for id, set := range found {
			if signals[id] == nil {
				signals[id] = make(signalSet)
			}
			for sig := range set {
				signals[id][sig] = true
			}
		}
	}

	if filter.hasParameters() {
		found, err := signalsForParameters(ctx, q, filter)
		if err != nil {
			return nil, err
		}
		merge(found)
	} else {
		for _, id := range memberIDs {
			found, err := collectSignals(ctx, q, id, true)
			if err != nil {
				return nil, err
			}
			merge(found)
		}
	}

	kinds := filter.kinds()
	for id, set := range signals {
		for sig := range set {
			if !kinds.allows(sig) {
				delete(set, sig)
			}
		}
		if len(set) == 0 {
			delete(signals, id)
		}
	}

	cands, err := resolveCandidates(ctx, q, signals)
	if err != nil {
		return nil, err
	}
	separate, err := separatedFrom(ctx, q, memberIDs)
	if err != nil {
		return nil, err
	}

	byContact := make(map[int64]*models.Suggestion)
	names := make(map[int64]signalSet)
	blocked := make(map[int64]bool)
	for _, c := range cands {
		if c.ContactID == contactID {
			continue
		}
		if separate[c.ID] {
			blocked[c.ContactID] = true
		}
		s := byContact[c.ContactID]
		if s == nil {
			s = &models.Suggestion{ContactID: c.ContactID}
			byContact[c.ContactID] = s
			names[c.ContactID] = make(signalSet)
		}
		s.Score += c.Signals.score()
		for sig := range c.Signals {
			names[c.ContactID][sig] = true
		}
	}

	out := make([]models.Suggestion, 0, len(byContact))
	for id, s := range byContact {
		if blocked[id] {
			continue
		}
		s.Signals = names[id].names()
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ContactID < out[j].ContactID
	})
	if len(out) > max {
		out = out[:max]
	}

	for i := range out {
		var displayName sql.NullString
		err := q.QueryRowContext(ctx, `SELECT display_name, lookup FROM contacts WHERE _id = ?`, out[i].ContactID).
			Scan(&displayName, &out[i].LookupKey)
		if err != nil {
			return nil, fmt.Errorf("failed to read suggested contact %d: %w", out[i].ContactID, err)
		}
		out[i].DisplayName = displayName.String
	}
	return out, nil
}

// signalsForParameters matches explicit names, emails and phones.
func signalsForParameters(ctx context.Context, q db.Querier, f SuggestionFilter) (map[int64]signalSet, error) {
	out := make(map[int64]signalSet)
	add := func(sig Signal, query string, args ...any) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to match %s parameter: %w", sig, err)
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

	for _, name := range f.Names {
		if n := namenorm.Normalize(name); n != "" {
			if err := add(SignalName, `SELECT DISTINCT raw_contact_id FROM name_lookup WHERE normalized_name = ? AND name_type IN (?, ?)`,
				n, models.NameLookupExact, models.NameLookupVariant); err != nil {
				return nil, err
			}
			if err := add(SignalNickname, `SELECT DISTINCT raw_contact_id FROM name_lookup WHERE normalized_name = ? AND name_type IN (?, ?)`,
				n, models.NameLookupNickname, models.NameLookupShorthand); err != nil {
				return nil, err
			}
		}
		for _, tok := range namenorm.Tokens(name) {
			if err := add(SignalPartialName, `SELECT DISTINCT raw_contact_id FROM name_lookup WHERE normalized_name = ? AND name_type = ?`,
				tok, models.NameLookupCollationKey); err != nil {
				return nil, err
			}
		}
	}
	for _, email := range f.Emails {
		if email == "" {
			continue
		}
		if err := add(SignalEmail, `SELECT DISTINCT raw_contact_id FROM data WHERE mimetype = ? AND lower(data1) = lower(?)`, models.MimeEmail, email); err != nil {
			return nil, err
		}
	}
	for _, phone := range f.Phones {
		mm := namenorm.MinMatch(phone)
		if mm == "" {
			continue
		}
		if err := add(SignalPhone, `SELECT DISTINCT raw_contact_id FROM phone_lookup WHERE min_match = ?`, mm); err != nil {
			return nil, err
		}
	}
	return out, nil
}

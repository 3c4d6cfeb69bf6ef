// ABOUTME: Table-backed search index over aggregated contacts
// ABOUTME: Stores normalized name and content tokens per contact and matches by token prefix
package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/namenorm"
)

// IndexVersion is stamped after a full rebuild; a different stored value
// forces one on open.
const IndexVersion = 1

// Indexer keeps search data in step with contacts.
type Indexer interface {
	UpdateIndexForRawContacts(ctx context.Context, q db.Querier, contactIDs, rawContactIDs []int64) error
}

// Index is the default Indexer over the search_index table.
type Index struct{}

func New() *Index { return &Index{} }

// UpdateIndexForRawContacts reindexes the listed contacts and the contacts
// owning the listed raw contacts. Contacts that no longer exist lose their rows.
func (ix *Index) UpdateIndexForRawContacts(ctx context.Context, q db.Querier, contactIDs, rawContactIDs []int64) error {
	ids := make(map[int64]bool, len(contactIDs))
	for _, id := range contactIDs {
		ids[id] = true
	}
	for _, rawID := range rawContactIDs {
		var contactID sql.NullInt64
		err := q.QueryRowContext(ctx, `SELECT contact_id FROM raw_contacts WHERE _id = ?`, rawID).Scan(&contactID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to resolve raw contact %d: %w", rawID, err)
		}
		if contactID.Valid {
			ids[contactID.Int64] = true
		}
	}

	sorted := make([]int64, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, id := range sorted {
		if err := ix.indexContact(ctx, q, id); err != nil {
			return err
		}
	}
	return nil
}

// Rebuild reindexes every contact and stamps IndexVersion.
func (ix *Index) Rebuild(ctx context.Context, q db.Querier) (int, error) {
	if _, err := q.ExecContext(ctx, `DELETE FROM search_index`); err != nil {
		return 0, fmt.Errorf("failed to clear search index: %w", err)
	}
	rows, err := q.QueryContext(ctx, `SELECT _id FROM contacts ORDER BY _id`)
	if err != nil {
		return 0, fmt.Errorf("failed to list contacts: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := ix.indexContact(ctx, q, id); err != nil {
			return 0, err
		}
	}
	return len(ids), db.SetIntProperty(ctx, q, db.PropSearchIndexVersion, IndexVersion)
}

// NeedsRebuild reports whether the stored index predates IndexVersion.
func NeedsRebuild(ctx context.Context, q db.Querier) (bool, error) {
	v, err := db.GetIntProperty(ctx, q, db.PropSearchIndexVersion, 0)
	if err != nil {
		return false, err
	}
	return v != IndexVersion, nil
}

func (ix *Index) indexContact(ctx context.Context, q db.Querier, contactID int64) error {
	var exists int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts WHERE _id = ?`, contactID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check contact %d: %w", contactID, err)
	}
	if exists == 0 {
		_, err := q.ExecContext(ctx, `DELETE FROM search_index WHERE contact_id = ?`, contactID)
		return err
	}

	names := newTokenSet()
	content := newTokenSet()

	rows, err := q.QueryContext(ctx, `
		SELECT d.mimetype, IFNULL(d.data1, ''), IFNULL(d.data2, ''), IFNULL(d.data3, ''), IFNULL(d.data4, ''), IFNULL(d.data5, '')
		FROM data d JOIN raw_contacts r ON r._id = d.raw_contact_id
		WHERE r.contact_id = ? AND r.deleted = 0
		ORDER BY d._id
	`, contactID)
	if err != nil {
		return fmt.Errorf("failed to read data of contact %d: %w", contactID, err)
	}
	for rows.Next() {
		var (
			mime string
			d    [5]string
		)
		if err := rows.Scan(&mime, &d[0], &d[1], &d[2], &d[3], &d[4]); err != nil {
			rows.Close()
			return err
		}
		switch mime {
		case models.MimeStructuredName:
			names.addText(d[models.NameDisplayName], d[models.NameGiven], d[models.NameFamily], d[models.NameMiddle])
		case models.MimeNickname:
			names.addText(d[models.NicknameName])
		case models.MimeOrganization:
			content.addText(d[models.OrgCompany], d[models.OrgTitle])
		case models.MimeEmail:
			addr := d[models.EmailAddress]
			content.add(strings.ToLower(addr))
			content.addText(addr)
		case models.MimePhone:
			n := d[models.PhoneNormalized]
			if n == "" {
				n = namenorm.NormalizePhone(d[models.PhoneNumber], "")
			}
			if n != "" {
				content.add(strings.TrimPrefix(n, "+"))
			}
		case models.MimeNote, models.MimeStructuredPostal:
			content.addText(d[0])
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO search_index (contact_id, name, content) VALUES (?, ?, ?)
		ON CONFLICT(contact_id) DO UPDATE SET name = excluded.name, content = excluded.content
	`, contactID, names.String(), content.String())
	if err != nil {
		return fmt.Errorf("failed to index contact %d: %w", contactID, err)
	}
	return nil
}

// Search returns contact ids whose indexed tokens start with every query
// token, name matches first.
func (ix *Index) Search(ctx context.Context, q db.Querier, query string, limit int) ([]int64, error) {
	tokens := namenorm.Tokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	var (
		where []string
		args  []any
	)
	for _, tok := range tokens {
		where = append(where, `(' ' || name || ' ' || content) LIKE ? ESCAPE '\'`)
		args = append(args, "% "+escapeLike(tok)+"%")
	}
	args = append(args, "% "+escapeLike(tokens[0])+"%", limit)
	rows, err := q.QueryContext(ctx, `
		SELECT contact_id FROM search_index
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY (' ' || name) LIKE ? ESCAPE '\' DESC, contact_id
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type tokenSet struct {
	seen  map[string]bool
	order []string
}

func newTokenSet() *tokenSet { return &tokenSet{seen: make(map[string]bool)} }

func (t *tokenSet) add(tok string) {
	if tok == "" || t.seen[tok] {
		return
	}
	t.seen[tok] = true
	t.order = append(t.order, tok)
}

func (t *tokenSet) addText(texts ...string) {
	for _, s := range texts {
		for _, tok := range namenorm.Tokens(s) {
			t.add(tok)
		}
	}
}

func (t *tokenSet) String() string { return strings.Join(t.order, " ") }

// ABOUTME: Per-mimetype hooks: validation, column normalization and derived lookups
// ABOUTME: Names feed name_lookup, phones feed phone_lookup, photos go to the photo store
package datarow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/namenorm"
)

type passThrough struct{}

func (passThrough) validate(*models.DataRow) error { return nil }
func (passThrough) normalize(context.Context, db.Querier, *owner, *models.DataRow, *models.DataRow) error {
	return nil
}
func (passThrough) derive(context.Context, db.Querier, *models.DataRow) error { return nil }

type nameHooks struct{ env *Env }

func (nameHooks) validate(*models.DataRow) error { return nil }

// normalize fills structured parts from the display name, or the display
// name from the parts, whichever side is missing. On update, the side the
// caller left untouched is re-derived from the side that changed.
func (h nameHooks) normalize(_ context.Context, _ db.Querier, _ *owner, row, existing *models.DataRow) error {
	parts := nameParts(row)
	display := strings.TrimSpace(row.Data[models.NameDisplayName])
	if existing != nil {
		oldDisplay := strings.TrimSpace(existing.Data[models.NameDisplayName])
		oldParts := nameParts(existing)
		switch {
		case display != oldDisplay && parts == oldParts:
			parts = namenorm.Name{}
		case display == oldDisplay && !parts.IsEmpty() && parts != oldParts:
			display = ""
		}
	}
	switch {
	case display != "" && parts.IsEmpty():
		parts = h.env.Names.Split(display)
		row.Data[models.NamePrefix] = parts.Prefix
		row.Data[models.NameGiven] = parts.Given
		row.Data[models.NameMiddle] = parts.Middle
		row.Data[models.NameFamily] = parts.Family
		row.Data[models.NameSuffix] = parts.Suffix
	case display == "" && !parts.IsEmpty():
		row.Data[models.NameDisplayName] = h.env.Names.Join(parts, true)
	}
	return nil
}

func (h nameHooks) derive(ctx context.Context, q db.Querier, row *models.DataRow) error {
	parts := nameParts(row)
	display := row.Data[models.NameDisplayName]
	if parts.Given == "" && parts.Family == "" && parts.Middle == "" {
		parts = h.env.Names.Split(display)
	}

	variants := namenorm.Variants(parts.Given, parts.Middle, parts.Family)
	if len(variants) == 0 {
		variants = []string{namenorm.Normalize(display)}
	}
	for i, v := range variants {
		typ := models.NameLookupVariant
		if i == 0 {
			typ = models.NameLookupExact
		}
		if err := insertNameLookup(ctx, q, row, v, typ); err != nil {
			return err
		}
	}

	tokens := namenorm.Tokens(strings.Join([]string{display, parts.Given, parts.Middle, parts.Family}, " "))
	for _, tok := range tokens {
		if err := insertNameLookup(ctx, q, row, tok, models.NameLookupCollationKey); err != nil {
			return err
		}
	}

	given := namenorm.Normalize(parts.Given)
	family := namenorm.Normalize(parts.Family)
	if given == "" || family == "" {
		return nil
	}
	for _, alt := range namenorm.NicknameCluster(given) {
		if alt == given {
			continue
		}
		if err := insertNameLookup(ctx, q, row, alt+family, models.NameLookupShorthand); err != nil {
			return err
		}
	}
	return nil
}

func nameParts(row *models.DataRow) namenorm.Name {
	return namenorm.Name{
		Prefix: strings.TrimSpace(row.Data[models.NamePrefix]),
		Given:  strings.TrimSpace(row.Data[models.NameGiven]),
		Middle: strings.TrimSpace(row.Data[models.NameMiddle]),
		Family: strings.TrimSpace(row.Data[models.NameFamily]),
		Suffix: strings.TrimSpace(row.Data[models.NameSuffix]),
	}
}

type nicknameHooks struct{}

func (nicknameHooks) validate(row *models.DataRow) error {
	if strings.TrimSpace(row.Data[models.NicknameName]) == "" {
		return models.ValidationError("nickname is required")
	}
	return nil
}

func (nicknameHooks) normalize(_ context.Context, _ db.Querier, _ *owner, row, _ *models.DataRow) error {
	row.Data[models.NicknameName] = strings.TrimSpace(row.Data[models.NicknameName])
	return nil
}

func (nicknameHooks) derive(ctx context.Context, q db.Querier, row *models.DataRow) error {
	nick := namenorm.Normalize(row.Data[models.NicknameName])
	if err := insertNameLookup(ctx, q, row, nick, models.NameLookupNickname); err != nil {
		return err
	}
	for _, alt := range namenorm.NicknameCluster(nick) {
		if alt == nick {
			continue
		}
		if err := insertNameLookup(ctx, q, row, alt, models.NameLookupShorthand); err != nil {
			return err
		}
	}
	return nil
}

type organizationHooks struct{}

func (organizationHooks) validate(row *models.DataRow) error {
	if strings.TrimSpace(row.Data[models.OrgCompany]) == "" && strings.TrimSpace(row.Data[models.OrgTitle]) == "" {
		return models.ValidationError("organization needs a company or a title")
	}
	return nil
}

func (organizationHooks) normalize(_ context.Context, _ db.Querier, _ *owner, row, _ *models.DataRow) error {
	row.Data[models.OrgCompany] = strings.TrimSpace(row.Data[models.OrgCompany])
	row.Data[models.OrgTitle] = strings.TrimSpace(row.Data[models.OrgTitle])
	return nil
}

func (organizationHooks) derive(ctx context.Context, q db.Querier, row *models.DataRow) error {
	for _, tok := range namenorm.Tokens(row.Data[models.OrgCompany]) {
		if err := insertNameLookup(ctx, q, row, tok, models.NameLookupCollationKey); err != nil {
			return err
		}
	}
	return nil
}

type phoneHooks struct{ env *Env }

func (phoneHooks) validate(row *models.DataRow) error {
	if strings.TrimSpace(row.Data[models.PhoneNumber]) == "" {
		return models.ValidationError("phone number is required")
	}
	return nil
}

func (h phoneHooks) normalize(_ context.Context, _ db.Querier, _ *owner, row, _ *models.DataRow) error {
	number := strings.TrimSpace(row.Data[models.PhoneNumber])
	if utf8.RuneCountInString(number) > h.env.MaxPhoneLength {
		number = string([]rune(number)[:h.env.MaxPhoneLength])
	}
	row.Data[models.PhoneNumber] = number
	row.Data[models.PhoneNormalized] = namenorm.NormalizePhone(number, h.env.Collator.Region())
	return nil
}

func (phoneHooks) derive(ctx context.Context, q db.Querier, row *models.DataRow) error {
	normalized := row.Data[models.PhoneNormalized]
	minMatch := namenorm.MinMatch(normalized)
	if minMatch == "" {
		return nil
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO phone_lookup (data_id, raw_contact_id, normalized_number, min_match)
		VALUES (?, ?, ?, ?)
	`, row.ID, row.RawContactID, normalized, minMatch)
	if err != nil {
		return fmt.Errorf("failed to insert phone lookup: %w", err)
	}
	return nil
}

type emailHooks struct{}

func (emailHooks) validate(row *models.DataRow) error {
	if strings.TrimSpace(row.Data[models.EmailAddress]) == "" {
		return models.ValidationError("email address is required")
	}
	return nil
}

func (emailHooks) normalize(_ context.Context, _ db.Querier, _ *owner, row, _ *models.DataRow) error {
	row.Data[models.EmailAddress] = strings.TrimSpace(row.Data[models.EmailAddress])
	return nil
}

func (emailHooks) derive(ctx context.Context, q db.Querier, row *models.DataRow) error {
	nick := namenorm.EmailNickname(row.Data[models.EmailAddress])
	return insertNameLookup(ctx, q, row, nick, models.NameLookupEmailBasedNickname)
}

type photoHooks struct{ env *Env }

func (photoHooks) validate(*models.DataRow) error { return nil }

// normalize moves the full-size image into the photo store and keeps the
// blob on the row only when it is small enough to serve as a thumbnail.
func (h photoHooks) normalize(ctx context.Context, _ db.Querier, _ *owner, row, existing *models.DataRow) error {
	if len(row.Blob) == 0 {
		return nil
	}
	if existing != nil && row.Data[models.PhotoFileID] == "" && bytes.Equal(row.Blob, existing.Blob) {
		row.Data[models.PhotoFileID] = existing.Data[models.PhotoFileID]
		return nil
	}
	if row.Data[models.PhotoFileID] == "" && h.env.Photos != nil {
		id, err := h.env.Photos.Insert(ctx, row.Blob)
		if err != nil {
			return fmt.Errorf("failed to store photo: %w", err)
		}
		row.Data[models.PhotoFileID] = id
	}
	if len(row.Blob) > h.env.MaxThumbnailBytes {
		if row.Data[models.PhotoFileID] == "" {
			return models.ValidationErrorf("photo of %d bytes exceeds the %d byte thumbnail limit", len(row.Blob), h.env.MaxThumbnailBytes)
		}
		row.Blob = nil
	}
	return nil
}

func (photoHooks) derive(context.Context, db.Querier, *models.DataRow) error { return nil }

type groupHooks struct{ env *Env }

func (groupHooks) validate(row *models.DataRow) error {
	if row.Data[models.GroupRowID] == "" && row.Data[models.GroupSourceID] == "" {
		return models.ValidationError("group membership needs a group id or a group source id")
	}
	return nil
}

func (h groupHooks) normalize(ctx context.Context, q db.Querier, o *owner, row, _ *models.DataRow) error {
	groups := h.env.Groups
	if groups == nil {
		groups = TableGroups{}
	}
	if raw := row.Data[models.GroupRowID]; raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return models.ValidationErrorf("group id %q is not a number", raw)
		}
		ok, err := groups.GroupExists(ctx, q, id)
		if err != nil {
			return err
		}
		if !ok {
			return models.ValidationErrorf("group %d does not exist", id)
		}
		return nil
	}
	sourceID := row.Data[models.GroupSourceID]
	id, err := groups.GroupIDBySourceID(ctx, q, o.AccountID, sourceID)
	if errors.Is(err, models.ErrNotFound) {
		return models.ValidationErrorf("no group with source id %q in account %d", sourceID, o.AccountID)
	}
	if err != nil {
		return err
	}
	row.Data[models.GroupRowID] = strconv.FormatInt(id, 10)
	return nil
}

func (groupHooks) derive(context.Context, db.Querier, *models.DataRow) error { return nil }

type identityHooks struct{}

func (identityHooks) validate(row *models.DataRow) error {
	if strings.TrimSpace(row.Data[models.IdentityValue]) == "" {
		return models.ValidationError("identity value is required")
	}
	return nil
}

func (identityHooks) normalize(context.Context, db.Querier, *owner, *models.DataRow, *models.DataRow) error {
	return nil
}

func (identityHooks) derive(context.Context, db.Querier, *models.DataRow) error { return nil }

type postalHooks struct{ env *Env }

func (postalHooks) validate(*models.DataRow) error { return nil }

func (h postalHooks) normalize(_ context.Context, _ db.Querier, _ *owner, row, _ *models.DataRow) error {
	parts := namenorm.PostalAddress{
		Street:       row.Data[models.PostalStreet],
		POBox:        row.Data[models.PostalPOBox],
		Neighborhood: row.Data[models.PostalNeighborhood],
		City:         row.Data[models.PostalCity],
		Region:       row.Data[models.PostalRegion],
		Postcode:     row.Data[models.PostalPostcode],
		Country:      row.Data[models.PostalCountry],
	}
	formatted := strings.TrimSpace(row.Data[models.PostalFormatted])
	switch {
	case formatted != "" && parts.IsEmpty():
		parts = h.env.Postal.Split(formatted)
		row.Data[models.PostalStreet] = parts.Street
		row.Data[models.PostalPOBox] = parts.POBox
		row.Data[models.PostalNeighborhood] = parts.Neighborhood
		row.Data[models.PostalCity] = parts.City
		row.Data[models.PostalRegion] = parts.Region
		row.Data[models.PostalPostcode] = parts.Postcode
		row.Data[models.PostalCountry] = parts.Country
	case formatted == "" && !parts.IsEmpty():
		row.Data[models.PostalFormatted] = h.env.Postal.Join(parts)
	}
	return nil
}

func (postalHooks) derive(context.Context, db.Querier, *models.DataRow) error { return nil }

// ABOUTME: The contacts and profile databases opened side by side
// ABOUTME: Provides the manual two-phase wrapper for writes that span both
package db

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Pair holds the contacts database and the profile database.
type Pair struct {
	Contacts *Session
	Profile  *Session
}

// OpenPair opens both databases concurrently. If either fails, the other is
// closed again.
func OpenPair(ctx context.Context, contactsPath, profilePath string) (*Pair, error) {
	p := &Pair{}
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := OpenDatabase(contactsPath, KindContacts)
		if err != nil {
			return err
		}
		p.Contacts = s
		return nil
	})
	g.Go(func() error {
		s, err := OpenDatabase(profilePath, KindProfile)
		if err != nil {
			return err
		}
		p.Profile = s
		return nil
	})
	if err := g.Wait(); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// For returns the profile session when profile is true.
func (p *Pair) For(profile bool) *Session {
	if profile {
		return p.Profile
	}
	return p.Contacts
}

func (p *Pair) Close() error {
	var errs []error
	if p.Contacts != nil {
		errs = append(errs, p.Contacts.Close())
	}
	if p.Profile != nil {
		errs = append(errs, p.Profile.Close())
	}
	return errors.Join(errs...)
}

// InBothTx runs fn with a write transaction open on each database. Both are
// prepared before either commits; any error from fn rolls back both. The
// contacts database commits first. A commit failure on the profile database
// after the contacts commit is reported but cannot be undone.
func (p *Pair) InBothTx(ctx context.Context, fn func(contacts, profile *Tx) error) error {
	ctTx, err := p.Contacts.BeginWrite(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = ctTx.Rollback() }()

	prTx, err := p.Profile.BeginWrite(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = prTx.Rollback() }()

	if err := fn(ctTx, prTx); err != nil {
		return err
	}
	if err := ctTx.Commit(); err != nil {
		return err
	}
	if err := prTx.Commit(); err != nil {
		return fmt.Errorf("profile commit after contacts commit: %w", err)
	}
	return nil
}

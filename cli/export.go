// ABOUTME: Export and import CLI commands
// ABOUTME: Dumps contacts with their raw contacts, photos and exceptions as JSON and loads them back
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/natefinch/atomic"

	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
)

// ExportFile is the document written by export and read by import.
type ExportFile struct {
	Version    string                        `json:"version"`
	ExportedAt time.Time                     `json:"exported_at"`
	Profile    bool                          `json:"profile,omitempty"`
	Contacts   []provider.ContactView        `json:"contacts"`
	Exceptions []models.AggregationException `json:"exceptions,omitempty"`
}

func buildExport(ctx context.Context, env *Env, opts provider.CallOptions) (*ExportFile, error) {
	list, err := env.Provider.ListContacts(ctx, opts, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	out := &ExportFile{
		Version:    env.Version,
		ExportedAt: time.Now().UTC(),
		Profile:    opts.Profile,
		Contacts:   make([]provider.ContactView, 0, len(list)),
	}
	for _, summary := range list {
		c, err := env.Provider.GetContact(ctx, opts, summary.ID)
		if err != nil {
			return nil, err
		}
		for i := range c.RawContacts {
			for j := range c.RawContacts[i].Data {
				row := &c.RawContacts[i].Data[j]
				fileID := row.Get(models.PhotoFileID)
				if row.MimeType != models.MimePhoto || fileID == "" {
					continue
				}
				if img, err := env.Provider.PhotoBytes(ctx, fileID); err == nil {
					row.Blob = img
				}
			}
		}
		out.Contacts = append(out.Contacts, *c)
	}
	out.Exceptions, err = env.Provider.ListAggregationExceptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list exceptions: %w", err)
	}
	return out, nil
}

// ExportCommand writes every contact as JSON.
func ExportCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("export")
	output := fs.StringP("output", "o", "", "Output file (default: stdout)")
	profile := fs.Bool("profile", false, "Export the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireProvider(); err != nil {
		return err
	}

	doc, err := buildExport(ctx, env, provider.CallOptions{Profile: *profile})
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	data = append(data, '\n')

	if *output == "" {
		_, err := env.out().Write(data)
		return err
	}
	if err := atomic.WriteFile(*output, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	env.printf("%s Exported %d contact(s) to %s\n", okStyle.Render("✓"), len(doc.Contacts), *output)
	return nil
}

// importOps turns an export into one batch: a raw contact insert per raw
// contact, then the exceptions between imported raw contacts.
func importOps(doc *ExportFile) []provider.BatchOp {
	var ops []provider.BatchOp
	refs := make(map[int64]int)
	for _, c := range doc.Contacts {
		for _, r := range c.RawContacts {
			if r.Deleted {
				continue
			}
			rows := make([]models.DataRow, 0, len(r.Data))
			for _, row := range r.Data {
				row.ID, row.RawContactID, row.Version = 0, 0, 0
				switch row.MimeType {
				case models.MimePhoto:
					if len(row.Blob) == 0 {
						continue
					}
					row.Set(models.PhotoFileID, "")
				case models.MimeGroupMembership:
					if row.Get(models.GroupSourceID) == "" {
						continue
					}
					row.Set(models.GroupRowID, "")
				}
				rows = append(rows, row)
			}
			refs[r.ID] = len(ops)
			ops = append(ops, provider.BatchOp{
				Kind: provider.OpInsertRawContact,
				RawContact: provider.NewRawContact{
					Account:         r.Account,
					SourceID:        r.SourceID,
					AggregationMode: r.AggregationMode,
					Starred:         r.Starred,
					Pinned:          r.Pinned,
					Data:            rows,
				},
				YieldAllowed: true,
			})
		}
	}
	for _, e := range doc.Exceptions {
		i, ok1 := refs[e.RawContactID1]
		j, ok2 := refs[e.RawContactID2]
		if !ok1 || !ok2 || e.Type == models.ExceptionAutomatic {
			continue
		}
		ops = append(ops, provider.BatchOp{
			Kind:      provider.OpSetException,
			Exception: provider.ExceptionOp{Type: e.Type, Ref1: provider.Ref(i), Ref2: provider.Ref(j)},
		})
	}
	return ops
}

// ImportCommand loads an export file as new raw contacts.
func ImportCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("import")
	profile := fs.Bool("profile", false, "Import into the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: roster import <export.json>")
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}
	var doc ExportFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.ValidationErrorf("invalid export file: %v", err)
	}

	ops := importOps(&doc)
	if len(ops) == 0 {
		env.printf("Nothing to import\n")
		return nil
	}
	if _, err := env.Provider.ApplyBatch(ctx, provider.CallOptions{Profile: *profile}, ops); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	raws, exceptions := 0, 0
	for _, op := range ops {
		if op.Kind == provider.OpInsertRawContact {
			raws++
		} else {
			exceptions++
		}
	}
	env.printf("%s Imported %d raw contact(s) and %d exception(s)\n", okStyle.Render("✓"), raws, exceptions)
	return nil
}

// ABOUTME: Photo bytes access and cleanup of the photo store against data rows
// ABOUTME: Dangling file ids are cleared and their contacts recomputed
package provider

import (
	"context"
	"fmt"

	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/photos"
)

// PhotoBytes returns the stored image for a photo file id.
func (p *Provider) PhotoBytes(ctx context.Context, fileID string) ([]byte, error) {
	if err := p.waitRead(ctx); err != nil {
		return nil, err
	}
	return p.photos.Get(ctx, fileID)
}

// CleanupPhotos removes stored photos no data row references and clears
// references to photos missing from the store.
func (p *Provider) CleanupPhotos(ctx context.Context) (photos.CleanupResult, error) {
	if err := p.waitWrite(ctx); err != nil {
		return photos.CleanupResult{}, err
	}

	used := make(map[string]bool)
	for _, d := range p.databases() {
		rows, err := d.session.DB().QueryContext(ctx, `
			SELECT DISTINCT data10 FROM data WHERE mimetype = ? AND data10 IS NOT NULL AND data10 != ''
		`, models.MimePhoto)
		if err != nil {
			return photos.CleanupResult{}, fmt.Errorf("failed to list photo references: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return photos.CleanupResult{}, err
			}
			used[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return photos.CleanupResult{}, err
		}
	}

	res, err := p.photos.Cleanup(ctx, used)
	if err != nil {
		return res, err
	}
	if len(res.Missing) == 0 {
		return res, nil
	}

	for _, d := range p.databases() {
		err := p.inWriteDB(ctx, d, CallOptions{SyncAdapter: true}, func(w *writeTx) error {
			return w.clearPhotoRefs(ctx, res.Missing)
		})
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

func (w *writeTx) clearPhotoRefs(ctx context.Context, fileIDs []string) error {
	for _, fileID := range fileIDs {
		rows, err := w.tx.QueryContext(ctx, `
			SELECT DISTINCT raw_contact_id FROM data WHERE mimetype = ? AND data10 = ?
		`, models.MimePhoto, fileID)
		if err != nil {
			return fmt.Errorf("failed to find references to photo %s: %w", fileID, err)
		}
		var rawIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			rawIDs = append(rawIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(rawIDs) == 0 {
			continue
		}

		if _, err := w.tx.ExecContext(ctx, `
			UPDATE data SET data10 = NULL, data_version = data_version + 1 WHERE mimetype = ? AND data10 = ?
		`, models.MimePhoto, fileID); err != nil {
			return fmt.Errorf("failed to clear photo %s: %w", fileID, err)
		}
		for _, id := range rawIDs {
			w.d.tc.MarkAggregateStale(id)
		}
	}
	return nil
}

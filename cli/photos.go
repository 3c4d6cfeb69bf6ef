// ABOUTME: Photo CLI commands
// ABOUTME: Attaches images to raw contacts, exports a contact's photo and cleans the photo store
package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
)

// PhotoSetCommand attaches an image file to a raw contact.
func PhotoSetCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("photos set")
	primary := fs.Bool("primary", true, "Mark as the primary photo")
	profile := fs.Bool("profile", false, "Write to the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: roster photos set <raw-contact-id> <image-file>")
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	rawID, err := parseID("raw contact id", fs.Arg(0))
	if err != nil {
		return err
	}
	img, err := os.ReadFile(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	row := models.DataRow{RawContactID: rawID, MimeType: models.MimePhoto, IsPrimary: *primary, Blob: img}
	id, err := env.Provider.InsertData(ctx, provider.CallOptions{Profile: *profile}, row)
	if err != nil {
		return fmt.Errorf("failed to attach photo: %w", err)
	}
	env.printf("%s Photo attached to raw contact %d (data %d)\n", okStyle.Render("✓"), rawID, id)
	return nil
}

// PhotoGetCommand writes the contact's chosen photo to a file.
func PhotoGetCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("photos get")
	output := fs.StringP("output", "o", "", "Output file (required)")
	profile := fs.Bool("profile", false, "Read the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *output == "" {
		return fmt.Errorf("usage: roster photos get <contact-id> --output <file>")
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	id, err := parseID("contact id", fs.Arg(0))
	if err != nil {
		return err
	}
	c, err := env.Provider.GetContact(ctx, provider.CallOptions{Profile: *profile}, id)
	if err != nil {
		return err
	}
	if c.PhotoFileID == "" {
		return fmt.Errorf("contact %d has no stored photo", id)
	}
	img, err := env.Provider.PhotoBytes(ctx, c.PhotoFileID)
	if err != nil {
		return fmt.Errorf("failed to read photo: %w", err)
	}
	if err := atomic.WriteFile(*output, bytes.NewReader(img)); err != nil {
		return fmt.Errorf("failed to write photo: %w", err)
	}
	env.printf("%s Wrote %d bytes to %s\n", okStyle.Render("✓"), len(img), *output)
	return nil
}

// PhotoCleanupCommand reconciles the photo store with the data rows.
func PhotoCleanupCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("photos cleanup")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	res, err := env.Provider.CleanupPhotos(ctx)
	if err != nil {
		return fmt.Errorf("photo cleanup failed: %w", err)
	}
	env.printf("%s Removed %d unreferenced photo(s), cleared %d missing reference(s)\n",
		okStyle.Render("✓"), len(res.Removed), len(res.Missing))
	return nil
}

// PhotosCommand routes the photos subcommands.
func PhotosCommand(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("photos requires a subcommand: set, get, cleanup")
	}
	switch args[0] {
	case "set":
		return PhotoSetCommand(ctx, env, args[1:])
	case "get":
		return PhotoGetCommand(ctx, env, args[1:])
	case "cleanup":
		return PhotoCleanupCommand(ctx, env, args[1:])
	}
	return fmt.Errorf("unknown photos subcommand: %s", args[0])
}

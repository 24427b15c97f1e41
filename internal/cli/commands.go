package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/annotify/annotify/internal/common"
	"github.com/annotify/annotify/internal/models"
	"github.com/annotify/annotify/internal/netx"
)

// Register creates a fresh identity, seals it into the local keyring, and
// optionally publishes a profile handle.
func (a *App) Register(ctx context.Context) error {
	pass, err := GetPassphrase(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pass)

	did, err := a.repo.CreateIdentity(ctx, pass)
	if err != nil {
		printlnFn("Registration failed:", err.Error())
		return err
	}
	printlnFn("Created identity", did)

	handle, err := GetSimpleText(a.reader, "Pick a handle (empty to skip)", os.Stdout)
	if err != nil {
		return err
	}
	if handle != "" {
		if err := a.repo.SaveProfile(ctx, models.Profile{DID: did, Handle: handle}); err != nil {
			printlnFn("Saving profile failed:", err.Error())
			return err
		}
	}
	return nil
}

// Login unseals the stored keyring.
func (a *App) Login(ctx context.Context) error {
	pass, err := GetPassphrase(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pass)

	did, err := a.repo.Login(ctx, pass)
	if err != nil {
		printlnFn("Login failed:", err.Error())
		return err
	}
	printlnFn("Logged in as", did)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.repo.Logout(ctx); err != nil {
		printlnFn("Logout failed:", err.Error())
		return err
	}
	printlnFn("Logged out")
	return nil
}

// Annotate saves a new annotation on a page.
func (a *App) Annotate(ctx context.Context) error {
	url, err := GetSimpleText(a.reader, "Page URL", os.Stdout)
	if err != nil {
		return err
	}
	content, err := GetMultiline(a.reader, "Annotation text", os.Stdout)
	if err != nil {
		return err
	}
	if content == "" {
		printlnFn("Nothing to save")
		return nil
	}

	ann := models.Annotation{ID: uuid.NewString(), URL: url, Content: content}
	if err := a.repo.SaveAnnotation(ctx, ann, 0, false); err != nil {
		printlnFn("Save failed:", err.Error())
		return err
	}
	printlnFn("Saved annotation", ann.ID)
	return nil
}

// Comment replies to an existing annotation.
func (a *App) Comment(ctx context.Context) error {
	url, err := GetSimpleText(a.reader, "Page URL", os.Stdout)
	if err != nil {
		return err
	}
	annID, err := GetSimpleText(a.reader, "Annotation ID", os.Stdout)
	if err != nil {
		return err
	}
	content, err := GetMultiline(a.reader, "Comment text", os.Stdout)
	if err != nil {
		return err
	}
	if content == "" {
		printlnFn("Nothing to save")
		return nil
	}

	c := models.Comment{ID: uuid.NewString(), Content: content}
	if err := a.repo.SaveComment(ctx, url, annID, c); err != nil {
		printlnFn("Save failed:", err.Error())
		return err
	}
	printlnFn("Saved comment", c.ID)
	return nil
}

// List prints a page's annotations with their comments, resolving authors to
// handles where profiles exist.
func (a *App) List(ctx context.Context) error {
	url, err := GetSimpleText(a.reader, "Page URL", os.Stdout)
	if err != nil {
		return err
	}

	annotations, err := a.repo.GetAnnotations(ctx, url, nil)
	if err != nil {
		printlnFn("Lookup failed:", err.Error())
		return err
	}
	if len(annotations) == 0 {
		printlnFn("No annotations")
		return nil
	}

	for _, ann := range annotations {
		printlnFn(fmt.Sprintf("[%s] %s: %s", ann.ID, a.authorLabel(ctx, ann.Author), ann.Content))
		for _, c := range ann.Comments {
			printlnFn(fmt.Sprintf("    [%s] %s: %s", c.ID, a.authorLabel(ctx, c.Author), c.Content))
		}
	}
	return nil
}

func (a *App) authorLabel(ctx context.Context, did string) string {
	p, err := a.repo.GetProfile(ctx, did)
	if err == nil && p != nil {
		return p.Handle
	}
	return shorten(did, 16)
}

// Delete soft-deletes one of the current user's annotations.
func (a *App) Delete(ctx context.Context) error {
	url, err := GetSimpleText(a.reader, "Page URL", os.Stdout)
	if err != nil {
		return err
	}
	id, err := GetSimpleText(a.reader, "Annotation ID", os.Stdout)
	if err != nil {
		return err
	}
	if err := a.repo.DeleteAnnotation(ctx, url, id); err != nil {
		printlnFn("Delete failed:", err.Error())
		return err
	}
	printlnFn("Deleted", id)
	return nil
}

// DeleteComment soft-deletes one of the current user's comments.
func (a *App) DeleteComment(ctx context.Context) error {
	url, err := GetSimpleText(a.reader, "Page URL", os.Stdout)
	if err != nil {
		return err
	}
	annID, err := GetSimpleText(a.reader, "Annotation ID", os.Stdout)
	if err != nil {
		return err
	}
	commentID, err := GetSimpleText(a.reader, "Comment ID", os.Stdout)
	if err != nil {
		return err
	}
	if err := a.repo.DeleteComment(ctx, url, annID, commentID); err != nil {
		printlnFn("Delete failed:", err.Error())
		return err
	}
	printlnFn("Deleted", commentID)
	return nil
}

// Profile shows and updates the current user's profile.
func (a *App) Profile(ctx context.Context) error {
	did := a.repo.CurrentDID()
	printlnFn("DID:", did)
	if p, err := a.repo.GetProfile(ctx, did); err == nil && p != nil {
		printlnFn("Handle:", p.Handle)
	}

	handle, err := GetSimpleText(a.reader, "New handle (empty to keep)", os.Stdout)
	if err != nil {
		return err
	}
	if handle == "" {
		return nil
	}
	if err := a.repo.SaveProfile(ctx, models.Profile{DID: did, Handle: handle}); err != nil {
		printlnFn("Saving profile failed:", err.Error())
		return err
	}
	printlnFn("Profile updated")
	return nil
}

// Peers shows the working peer set and probes each relay over HTTP.
func (a *App) Peers(ctx context.Context) error {
	for _, s := range a.repo.PeerStatus() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := netx.ProbePeer(probeCtx, s.URL)
		cancel()

		reachable := "reachable"
		if err != nil {
			reachable = "unreachable: " + err.Error()
		}
		printlnFn(fmt.Sprintf("%s  last seen %s  %s", s.URL, s.LastSeen.Format(time.RFC3339), reachable))
	}
	return nil
}

// Migrate copies a page's legacy records into the routed shard.
func (a *App) Migrate(ctx context.Context) error {
	url, err := GetSimpleText(a.reader, "Page URL", os.Stdout)
	if err != nil {
		return err
	}
	n, err := a.repo.MigrateAnnotations(ctx, url)
	if err != nil {
		printlnFn("Migration failed:", err.Error())
		return err
	}
	printlnFn(fmt.Sprintf("Migrated %d record(s)", n))
	return nil
}

// Sweep finalizes soft deletes for a page immediately.
func (a *App) Sweep(ctx context.Context) error {
	url, err := GetSimpleText(a.reader, "Page URL", os.Stdout)
	if err != nil {
		return err
	}
	n, err := a.repo.SweepURL(ctx, url)
	if err != nil {
		printlnFn("Sweep failed:", err.Error())
		return err
	}
	printlnFn(fmt.Sprintf("Tombstoned %d record(s)", n))
	return nil
}

// Inspect triages a page's records.
func (a *App) Inspect(ctx context.Context) error {
	url, err := GetSimpleText(a.reader, "Page URL", os.Stdout)
	if err != nil {
		return err
	}
	r, err := a.repo.InspectAnnotations(ctx, url)
	if err != nil {
		printlnFn("Inspect failed:", err.Error())
		return err
	}
	printlnFn(fmt.Sprintf("active: %d, marked deleted: %d, tombstoned: %d, invalid: %d",
		len(r.Active), len(r.Marked), len(r.Tombstoned), len(r.Invalid)))
	return nil
}

// Package cli is the interactive shell over the annotation data layer:
// identity management, annotating, browsing, and the maintenance commands.
package cli

import (
	"bufio"
	"context"
	"log"
	"os"

	"github.com/annotify/annotify/internal/config"
	"github.com/annotify/annotify/internal/filex"
	"github.com/annotify/annotify/internal/localstore"
	"github.com/annotify/annotify/internal/logging"
	"github.com/annotify/annotify/internal/storage"
	"github.com/annotify/annotify/internal/store"
	"github.com/annotify/annotify/internal/timex"

	_ "modernc.org/sqlite"
)

type App struct {
	config *config.Config
	repo   *storage.Repository
	reader *bufio.Reader
}

func NewApp(c *config.Config, logger logging.Logger) (*App, error) {
	ctx := context.Background()

	dbPath, err := filex.EnsureParentDir(c.LocalDBPath)
	if err != nil {
		return nil, err
	}
	db, err := localstore.Open(ctx, dbPath)
	if err != nil {
		log.Printf("error initializing database: %s", err.Error())
		return nil, err
	}

	// The shell runs against the in-process store; replication peers are
	// still tracked and probed so the peer registry behaves as in production.
	clock := timex.RealClock{}
	graph := store.NewMemory(clock)

	repo := storage.New(c, logger, graph, db, storage.WithClock(clock))
	if err := repo.Init(ctx); err != nil {
		return nil, err
	}

	return &App{config: c, repo: repo, reader: bufio.NewReader(os.Stdin)}, nil
}

func (a *App) Run(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.status, scanner)
}

func (a *App) isLoggedIn() bool {
	return a.repo.CurrentDID() != ""
}

func (a *App) status() string {
	did := a.repo.CurrentDID()
	if did == "" {
		return "logged out"
	}
	p, err := a.repo.GetProfile(context.Background(), did)
	if err == nil && p != nil {
		return p.Handle
	}
	return shorten(did, 16)
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

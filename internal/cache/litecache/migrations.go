package litecache

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/wikistore/internal/migrate"
	"github.com/starford/wikistore/internal/models"
	"github.com/starford/wikistore/internal/signature"
)

// FormatVersion is the snapshot layout this engine writes.
const FormatVersion = 2

// plan is the snapshot format history. Format 0 stored match-term kinds as
// the integer bitmask; format 1 lacked lower-cased paths and signatures.
var plan = migrate.Plan[*view]{
	Current:    FormatVersion,
	ReadCompat: FormatVersion,
	Steps: []migrate.Step[*view]{
		{From: 0, To: 1, Name: "match term flags", Apply: migrateTermFlags},
		{From: 1, To: 2, Name: "file keys and signatures", Apply: migrateFileKeys},
	},
}

func migrateTermFlags(_ context.Context, v *view, _ migrate.Env) error {
	m := own(v, tMatchTerms, &v.t.MatchTerms)
	for w, rows := range m {
		next := make([]matchTermRecord, 0, len(rows))
		for _, r := range rows {
			if r.Type != 0 {
				var t models.MatchTerm
				t.SetTypeBits(r.Type)
				r.Source = int(t.Source)
				r.ExplicitAlias = t.ExplicitAlias
				r.LinkTarget = t.LinkTarget
				r.SyncManaged = t.SyncManaged
				r.Type = 0
			}
			next = append(next, r)
		}
		m[w] = next
	}
	return nil
}

func migrateFileKeys(_ context.Context, v *view, env migrate.Env) error {
	pages := own(v, tPages, &v.t.Pages)
	for w, r := range pages {
		r.FilePathLower = strings.ToLower(r.FilePath)
		r.Signature = nil
		if env.ContentDir != "" && r.FilePath != "" {
			if info, err := os.Stat(filepath.Join(env.ContentDir, r.FilePath)); err == nil {
				r.Signature = signature.Of(info)
			} else if env.Logger != nil {
				env.Logger.Warn("migrate: page file missing",
					slog.String("word", w),
					slog.String("file", r.FilePath))
			}
		}
		r.State = int(models.StateDirty)
		pages[w] = r
	}
	return nil
}

package sqlcache

import (
	"math"
	"time"

	"github.com/uptrace/bun"

	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/models"
)

// Bun models for the simple tables. Graph queries stay in raw SQL.

type settingModel struct {
	bun.BaseModel `bun:"table:settings"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

type pageModel struct {
	bun.BaseModel `bun:"table:wikiwords"`

	Word              string  `bun:"word,pk"`
	Created           float64 `bun:"created,notnull"`  // unix seconds
	Modified          float64 `bun:"modified,notnull"` // unix seconds
	Visited           float64 `bun:"visited,notnull"`  // unix seconds
	FilePath          string  `bun:"filepath,notnull"`
	FileNameLower     string  `bun:"filenamelowercase,notnull"`
	FileSignature     []byte  `bun:"filesignature"`
	ReadOnly          int64   `bun:"readonly,notnull"`
	MetadataProcessed int64   `bun:"metadataprocessed,notnull"`
	Presentation      []byte  `bun:"presentationdatablock"`
}

type relationModel struct {
	bun.BaseModel `bun:"table:wikirelations"`

	Word         string `bun:"word,pk"`
	Relation     string `bun:"relation,pk"`
	FirstCharPos int64  `bun:"firstcharpos,notnull"`
}

type attributeModel struct {
	bun.BaseModel `bun:"table:wikiwordattrs"`

	Word  string `bun:"word,notnull"`
	Key   string `bun:"key,notnull"`
	Value string `bun:"value,notnull"`
}

type todoModel struct {
	bun.BaseModel `bun:"table:todos"`

	Word  string `bun:"word,notnull"`
	Key   string `bun:"key,notnull"`
	Value string `bun:"value,notnull"`
}

type matchTermModel struct {
	bun.BaseModel `bun:"table:wikiwordmatchterms"`

	MatchTerm    string `bun:"matchterm,notnull"`
	Type         int64  `bun:"type,notnull"`
	Word         string `bun:"word,notnull"`
	FirstCharPos int64  `bun:"firstcharpos,notnull"`
	CharLength   int64  `bun:"charlength,notnull"`
}

type dataBlockModel struct {
	bun.BaseModel `bun:"table:datablocks"`

	UnifiedName string `bun:"unifiedname,pk"`
	Data        []byte `bun:"data"`
}

type externalBlockModel struct {
	bun.BaseModel `bun:"table:datablocksexternal"`

	UnifiedName   string `bun:"unifiedname,pk"`
	FilePath      string `bun:"filepath,notnull"`
	FileNameLower string `bun:"filenamelowercase,notnull"`
	FileSignature []byte `bun:"filesignature"`
}

func toUnix(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func fromUnix(f float64) time.Time {
	if f == 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*1e3)
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func pageFromModel(m *pageModel) *models.Page {
	return &models.Page{
		Word:          m.Word,
		Created:       fromUnix(m.Created),
		Modified:      fromUnix(m.Modified),
		Visited:       fromUnix(m.Visited),
		FilePath:      m.FilePath,
		FilePathLower: m.FileNameLower,
		Signature:     m.FileSignature,
		ReadOnly:      m.ReadOnly != 0,
		State:         models.MetadataState(m.MetadataProcessed),
		Presentation:  m.Presentation,
	}
}

func pageToModel(p *models.Page) *pageModel {
	return &pageModel{
		Word:              p.Word,
		Created:           toUnix(p.Created),
		Modified:          toUnix(p.Modified),
		Visited:           toUnix(p.Visited),
		FilePath:          p.FilePath,
		FileNameLower:     p.FilePathLower,
		FileSignature:     p.Signature,
		ReadOnly:          boolToInt(p.ReadOnly),
		MetadataProcessed: int64(p.State),
		Presentation:      p.Presentation,
	}
}

func matchTermFromModel(m *matchTermModel) models.MatchTerm {
	t := models.MatchTerm{
		Term:         m.MatchTerm,
		Word:         m.Word,
		FirstCharPos: int(m.FirstCharPos),
		CharLength:   int(m.CharLength),
	}
	t.SetTypeBits(int(m.Type))
	return t
}

func matchTermToModel(t models.MatchTerm) matchTermModel {
	return matchTermModel{
		MatchTerm:    t.Term,
		Type:         int64(t.TypeBits()),
		Word:         t.Word,
		FirstCharPos: int64(t.FirstCharPos),
		CharLength:   int64(t.CharLength),
	}
}

func blockFromModels(in *dataBlockModel, ex *externalBlockModel) *cache.DataBlockRow {
	if in != nil {
		return &cache.DataBlockRow{Name: in.UnifiedName, Placement: models.Intern, Data: in.Data}
	}
	return &cache.DataBlockRow{
		Name:      ex.UnifiedName,
		Placement: models.Extern,
		FilePath:  ex.FilePath,
		Signature: ex.FileSignature,
	}
}

package records

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/snd-ksa/docmigrate/internal/errors"
)

// ownerLookupChunk bounds the IN list of a single owner query
const ownerLookupChunk = 500

type ownerSource struct {
	table  string
	column string
}

var ownerSources = map[string]ownerSource{
	OwnerEmployee:  {table: "employees", column: "file_number"},
	OwnerEquipment: {table: "equipment", column: "door_number"},
}

// ownerCache resolves owner business keys. Lookups are cached because one
// owner typically holds many documents.
type ownerCache struct {
	db    *gorm.DB
	cache *cache.Cache
}

func newOwnerCache(db *gorm.DB, ttl time.Duration) *ownerCache {
	return &ownerCache{
		db:    db,
		cache: cache.New(ttl, 2*ttl),
	}
}

func cacheKey(kind string, id int64) string {
	return kind + ":" + strconv.FormatInt(id, 10)
}

// ownerKindFor derives the owner kind of a row. Media rows carry a
// polymorphic model type such as "Employee" or `App\Models\Equipment`.
func ownerKindFor(table Table, modelType string) string {
	switch table {
	case EmployeeDocuments:
		return OwnerEmployee
	case EquipmentDocuments:
		return OwnerEquipment
	}
	t := strings.TrimSpace(modelType)
	if i := strings.LastIndexAny(t, `\/.`); i >= 0 {
		t = t[i+1:]
	}
	return strings.ToLower(t)
}

// attach fills OwnerBusinessKey on docs in place.
func (o *ownerCache) attach(ctx context.Context, docs []Document) error {
	missing := make(map[string][]int64)

	for i := range docs {
		d := &docs[i]
		if d.OwnerKind == "" || d.OwnerID == 0 {
			continue
		}
		if _, ok := ownerSources[d.OwnerKind]; !ok {
			// Other polymorphic owners are keyed by their id.
			d.OwnerBusinessKey = strconv.FormatInt(d.OwnerID, 10)
			continue
		}
		if key, ok := o.cache.Get(cacheKey(d.OwnerKind, d.OwnerID)); ok {
			d.OwnerBusinessKey = key.(string)
			continue
		}
		if !slices.Contains(missing[d.OwnerKind], d.OwnerID) {
			missing[d.OwnerKind] = append(missing[d.OwnerKind], d.OwnerID)
		}
	}

	for kind, ids := range missing {
		if err := o.load(ctx, kind, ids); err != nil {
			return err
		}
	}

	for i := range docs {
		d := &docs[i]
		if d.OwnerBusinessKey != "" {
			continue
		}
		if _, ok := missing[d.OwnerKind]; !ok {
			continue
		}
		if key, ok := o.cache.Get(cacheKey(d.OwnerKind, d.OwnerID)); ok {
			d.OwnerBusinessKey = key.(string)
		}
	}
	return nil
}

type ownerRow struct {
	ID          int64
	BusinessKey *string
}

// load queries business keys for ids and caches them. Owners that do not
// exist are cached with an empty key.
func (o *ownerCache) load(ctx context.Context, kind string, ids []int64) error {
	src := ownerSources[kind]

	for chunk := range slices.Chunk(ids, ownerLookupChunk) {
		var rows []ownerRow
		err := o.db.WithContext(ctx).
			Table(src.table).
			Select("id, " + src.column + " AS business_key").
			Where("id IN ?", chunk).
			Scan(&rows).Error
		if err != nil {
			return errors.New(fmt.Errorf("load %s owners: %w", kind, err)).
				Component("records").
				Category(errors.CategoryDatabase).
				Context("owner_table", src.table).
				Build()
		}

		found := make(map[int64]string, len(rows))
		for _, r := range rows {
			found[r.ID] = strings.TrimSpace(deref(r.BusinessKey))
		}
		for _, id := range chunk {
			o.cache.SetDefault(cacheKey(kind, id), found[id])
		}
	}
	return nil
}

package chunk

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/maruel/tallerdb/internal/docstore"
)

// ImportResult summarizes Import.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Chunks  int `json:"chunks"`
}

// Import upserts records. A record whose id already exists anywhere in the
// collection is merged in place; new records fill chunks in order and spill
// into new ones. Each chunk is written with one merge, so a failure midway
// leaves earlier chunks written.
func (c *Collection) Import(ctx context.Context, recs []Record) (ImportResult, error) {
	var res ImportResult
	docs, err := c.store.List(ctx, c.layout.Collection)
	if err != nil {
		return res, err
	}
	where := map[string]string{}
	counts := map[string]int{}
	var order []string
	for _, d := range docs {
		order = append(order, d.ID)
		counts[d.ID] = c.count(d.Fields)
		for k := range d.Fields {
			if id, ok := strings.CutPrefix(k, c.layout.Prefix); ok {
				where[id] = d.ID
			}
		}
	}
	now := time.Now()
	pending := map[string]map[string]any{}
	var touched []string
	add := func(chunkDoc, key string, rec Record) {
		if pending[chunkDoc] == nil {
			pending[chunkDoc] = map[string]any{}
			touched = append(touched, chunkDoc)
		}
		pending[chunkDoc][key] = map[string]any(rec)
	}
	// created holds the records added by this batch; repeats merge into them.
	created := map[string]Record{}
	updated := map[string]bool{}
	next := 0
	for _, in := range recs {
		if id := in.ID(); id != "" {
			if rec, ok := created[id]; ok {
				for k, v := range in {
					if k != FieldChunkDoc && k != FieldCreatedAt {
						rec[k] = v
					}
				}
				continue
			}
			if chunkDoc, ok := where[id]; ok {
				rec := maps.Clone(in)
				rec[FieldChunkDoc] = chunkDoc
				rec[FieldUpdatedAt] = Timestamp(now)
				add(chunkDoc, c.layout.Key(id), rec)
				if !updated[id] {
					updated[id] = true
					res.Updated++
				}
				continue
			}
		}
		rec, err := prepare(in, now)
		if err != nil {
			return res, err
		}
		for next < len(order) && counts[order[next]] >= c.layout.Capacity {
			next++
		}
		if next == len(order) {
			id := c.nextID(idDocs(order))
			order = append(order, id)
		}
		chunkDoc := order[next]
		rec[FieldChunkDoc] = chunkDoc
		counts[chunkDoc]++
		where[rec.ID()] = chunkDoc
		created[rec.ID()] = rec
		add(chunkDoc, c.layout.Key(rec.ID()), rec)
		res.Created++
	}
	for _, chunkDoc := range touched {
		if err := c.store.Set(ctx, c.layout.Collection, chunkDoc, pending[chunkDoc], docstore.Merge()); err != nil {
			return res, fmt.Errorf("import into %s/%s: %w", c.layout.Collection, chunkDoc, err)
		}
	}
	res.Chunks = len(order)
	return res, nil
}

func idDocs(ids []string) []*docstore.Document {
	out := make([]*docstore.Document, len(ids))
	for i, id := range ids {
		out[i] = &docstore.Document{ID: id}
	}
	return out
}

// Package index keeps a local full text index over case names and descriptions.
package index

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	log "github.com/sirupsen/logrus"

	"go-case-tracker/internal/models"
)

const docType = "case"

// CaseDoc is the indexed form of a case.
type CaseDoc struct {
	Type        string  `json:"type"`
	CaseID      int     `json:"case_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	Progress    float64 `json:"progress"`
}

// Hit is one search result.
type Hit struct {
	CaseID      int
	Name        string
	Description string
	Date        string
	Score       float64
}

func newMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Store = true

	keyword := bleve.NewKeywordFieldMapping()
	keyword.Store = true

	number := bleve.NewNumericFieldMapping()
	number.Store = true

	caseMapping := bleve.NewDocumentMapping()
	caseMapping.AddFieldMappingsAt("name", text)
	caseMapping.AddFieldMappingsAt("description", text)
	caseMapping.AddFieldMappingsAt("date", keyword)
	caseMapping.AddFieldMappingsAt("case_id", number)
	caseMapping.AddFieldMappingsAt("progress", number)

	im := bleve.NewIndexMapping()
	im.TypeField = "type"
	im.AddDocumentMapping(docType, caseMapping)
	return im
}

// OpenOrCreateIndex opens the index at path, creating it if it does not exist.
func OpenOrCreateIndex(path string) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		log.Debugf("Opened existing bleve index at %s", path)
		return idx, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, fmt.Errorf("opening index at %s: %w", path, err)
	}
	idx, err = bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("creating index at %s: %w", path, err)
	}
	log.Infof("Created new bleve index at %s", path)
	return idx, nil
}

// Indexer mirrors the applied case collection into a bleve index.
type Indexer struct {
	mu  sync.Mutex
	idx bleve.Index
}

func NewIndexer(idx bleve.Index) *Indexer {
	return &Indexer{idx: idx}
}

// Reindex makes the index hold exactly cases.
func (x *Indexer) Reindex(cases []models.Case) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	existing, err := x.docIDs()
	if err != nil {
		return err
	}

	batch := x.idx.NewBatch()
	keep := make(map[string]struct{}, len(cases))
	for _, kase := range cases {
		if kase.IsPlaceholder() {
			continue
		}
		id := strconv.Itoa(kase.ID)
		keep[id] = struct{}{}
		doc := CaseDoc{
			Type:        docType,
			CaseID:      kase.ID,
			Name:        kase.Name,
			Description: kase.Description,
			Date:        kase.DateLabel(),
			Progress:    kase.NormalizedProgress(),
		}
		if err := batch.Index(id, doc); err != nil {
			return fmt.Errorf("indexing case %d: %w", kase.ID, err)
		}
	}
	removed := 0
	for _, id := range existing {
		if _, ok := keep[id]; !ok {
			batch.Delete(id)
			removed++
		}
	}
	if err := x.idx.Batch(batch); err != nil {
		return fmt.Errorf("applying index batch: %w", err)
	}
	log.WithFields(log.Fields{"indexed": len(keep), "removed": removed}).Debug("Case index updated")
	return nil
}

func (x *Indexer) docIDs() ([]string, error) {
	count, err := x.idx.DocCount()
	if err != nil {
		return nil, fmt.Errorf("counting indexed cases: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	res, err := x.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("listing indexed cases: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// CasesRefreshed reindexes after every applied refresh. Failures are logged.
func (x *Indexer) CasesRefreshed(cases []models.Case) {
	if err := x.Reindex(cases); err != nil {
		log.WithError(err).Warn("Failed to update case index")
	}
}

// Search runs a query string search over names and descriptions.
func (x *Indexer) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	req.Fields = []string{"case_id", "name", "description", "date"}

	x.mu.Lock()
	res, err := x.idx.Search(req)
	x.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, m := range res.Hits {
		hit := Hit{Score: m.Score}
		hit.CaseID, _ = strconv.Atoi(m.ID)
		if v, ok := m.Fields["name"].(string); ok {
			hit.Name = v
		}
		if v, ok := m.Fields["description"].(string); ok {
			hit.Description = v
		}
		if v, ok := m.Fields["date"].(string); ok {
			hit.Date = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

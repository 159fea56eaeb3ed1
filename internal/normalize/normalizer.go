// Package normalize resolves arbitrary gene input (symbol, alias, HGNC ID,
// Ensembl ID, Entrez ID) to the canonical Gene record, using an in-memory
// index built once from the HGNC bulk file. No per-lookup network I/O.
package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"geneingest/internal/evidence"
	"geneingest/internal/fetch"
	"geneingest/pkg/apperror"
)

// hgncRecord is one row of the HGNC bulk file, the shape actually needed
// for resolution — not the full HGNC schema.
type hgncRecord struct {
	HGNCID     string   `json:"hgnc_id"`
	Symbol     string   `json:"symbol"`
	PrevSymbol []string `json:"prev_symbol"`
	AliasName  []string `json:"alias_symbol"`
	EnsemblID  string   `json:"ensembl_gene_id"`
	EntrezID   string   `json:"entrez_id"`
}

// hgncBulkFile is the top-level shape of the HGNC bulk JSON download.
type hgncBulkFile struct {
	Response struct {
		Docs []hgncRecord `json:"docs"`
	} `json:"response"`
}

// LogEntry records one unresolved or ambiguous lookup, persisted to
// gene_normalization_log so unresolved genes aren't silently dropped.
type LogEntry struct {
	Input      string
	Candidates []string
	Reason     string
	LoggedAt   time.Time
}

// LogRecorder persists normalization log entries.
type LogRecorder interface {
	Record(ctx context.Context, entry LogEntry) error
}

// GeneStore is the subset of evidence.Store the normalizer needs to
// materialize a resolved gene.
type GeneStore interface {
	ResolveOrCreate(ctx context.Context, hgncID, symbol string, aliases []string) (evidence.Gene, error)
}

// Normalizer holds the read-only, in-memory HGNC index built at Prepare
// time. It is safe for concurrent Resolve calls once prepared.
type Normalizer struct {
	fetchEngine *fetch.Engine
	profile     fetch.Profile
	bulkURL     string
	cacheDir    string
	ttl         time.Duration
	log         LogRecorder

	mu        sync.RWMutex
	byHGNC    map[string]hgncRecord
	bySymbol  map[string]hgncRecord
	byEnsembl map[string]hgncRecord
	byEntrez  map[string]hgncRecord
	byAlias   map[string][]hgncRecord
}

// New builds a Normalizer. Call Prepare before the first Resolve.
func New(engine *fetch.Engine, profile fetch.Profile, bulkURL, cacheDir string, ttl time.Duration, log LogRecorder) *Normalizer {
	return &Normalizer{
		fetchEngine: engine,
		profile:     profile,
		bulkURL:     bulkURL,
		cacheDir:    cacheDir,
		ttl:         ttl,
		log:         log,
	}
}

// Prepare downloads (or reuses a cached copy of) the HGNC bulk file and
// builds the in-memory lookup index. It performs the only network I/O the
// Normalizer ever does.
func (n *Normalizer) Prepare(ctx context.Context) error {
	path, err := n.fetchEngine.DownloadBulk(ctx, n.profile, n.bulkURL, n.cacheDir, n.ttl)
	if err != nil {
		return fmt.Errorf("normalize: download HGNC bulk file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("normalize: read HGNC bulk file: %w", err)
	}

	var bulk hgncBulkFile
	if err := json.Unmarshal(data, &bulk); err != nil {
		return fmt.Errorf("normalize: parse HGNC bulk file: %w", err)
	}

	byHGNC := make(map[string]hgncRecord, len(bulk.Response.Docs))
	bySymbol := make(map[string]hgncRecord, len(bulk.Response.Docs))
	byEnsembl := make(map[string]hgncRecord, len(bulk.Response.Docs))
	byEntrez := make(map[string]hgncRecord, len(bulk.Response.Docs))
	byAlias := make(map[string][]hgncRecord, len(bulk.Response.Docs)*2)

	for _, rec := range bulk.Response.Docs {
		if rec.HGNCID != "" {
			byHGNC[rec.HGNCID] = rec
		}
		if rec.Symbol != "" {
			bySymbol[strings.ToUpper(rec.Symbol)] = rec
		}
		if rec.EnsemblID != "" {
			byEnsembl[rec.EnsemblID] = rec
		}
		if rec.EntrezID != "" {
			byEntrez[rec.EntrezID] = rec
		}
		for _, alias := range append(append([]string{}, rec.AliasName...), rec.PrevSymbol...) {
			key := strings.ToUpper(alias)
			byAlias[key] = append(byAlias[key], rec)
		}
	}

	n.mu.Lock()
	n.byHGNC, n.bySymbol, n.byEnsembl, n.byEntrez, n.byAlias = byHGNC, bySymbol, byEnsembl, byEntrez, byAlias
	n.mu.Unlock()

	return nil
}

// Resolve maps arbitrary input to the canonical Gene, creating it on first
// use via store. Resolution order: exact HGNC ID, exact approved symbol
// (case-insensitive), exact Ensembl/Entrez ID, then alias search. An alias
// matching more than one approved gene resolves only if exactly one of the
// candidates is itself an approved symbol match; otherwise it is logged as
// ambiguous and returns apperror.ErrUnresolvedGene.
func (n *Normalizer) Resolve(ctx context.Context, store GeneStore, input string) (evidence.Gene, error) {
	rec, reason, candidates, ok := n.lookup(input)
	if !ok {
		n.recordUnresolved(ctx, input, candidates, reason)
		return evidence.Gene{}, apperror.ErrUnresolvedGene
	}

	return store.ResolveOrCreate(ctx, rec.HGNCID, rec.Symbol, rec.AliasName)
}

func (n *Normalizer) lookup(input string) (hgncRecord, string, []string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if rec, ok := n.byHGNC[input]; ok {
		return rec, "", nil, true
	}
	if rec, ok := n.bySymbol[strings.ToUpper(input)]; ok {
		return rec, "", nil, true
	}
	if rec, ok := n.byEnsembl[input]; ok {
		return rec, "", nil, true
	}
	if rec, ok := n.byEntrez[input]; ok {
		return rec, "", nil, true
	}

	candidates := n.byAlias[strings.ToUpper(input)]
	switch len(candidates) {
	case 0:
		return hgncRecord{}, "no match for symbol, alias, HGNC/Ensembl/Entrez ID", nil, false
	case 1:
		return candidates[0], "", nil, true
	default:
		symbols := make([]string, len(candidates))
		for i, c := range candidates {
			symbols[i] = c.Symbol
		}
		return hgncRecord{}, "alias matched more than one approved gene", symbols, false
	}
}

func (n *Normalizer) recordUnresolved(ctx context.Context, input string, candidates []string, reason string) {
	if n.log == nil {
		return
	}
	_ = n.log.Record(ctx, LogEntry{
		Input:      input,
		Candidates: candidates,
		Reason:     reason,
		LoggedAt:   time.Now(),
	})
}

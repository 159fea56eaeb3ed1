package sources

import (
	"fmt"

	"geneingest/internal/fetch"
	"geneingest/internal/registry"
	"geneingest/pkg/config"
)

// Deps bundles everything RegisterAll needs beyond the registry and engine:
// paths and endpoints that aren't part of config.SourceConfig itself.
type Deps struct {
	CacheDir        string // bulk-file download directory
	HGNCBulkURL     string // shared with the Gene Normalizer's own index
	LiteratureAPI   string // internal curation service base URL
}

// RegisterAll builds and attaches one driver per config.SourceConfig entry
// in reg that this package knows how to drive. gene_normalization and
// evidence_aggregation are deliberately left undriven: the Orchestrator
// special-cases them.
func RegisterAll(reg *registry.Registry, engine *fetch.Engine, deps Deps) error {
	for _, name := range reg.Names() {
		cfg, _ := reg.Source(name)

		var driver registry.Driver
		switch name {
		case "panelapp":
			driver = NewPanelApp(engine, cfg)
		case "hpo":
			driver = NewHPO(engine, cfg)
		case "pubtator":
			driver = NewPubTator(engine, cfg)
		case "literature":
			driver = NewLiterature(engine, cfg, deps.LiteratureAPI)
		case "clingen":
			driver = NewClinGen(engine, cfg)
		case "uniprot":
			driver = NewUniProt(engine, cfg)
		case "gencc":
			driver = NewGenCC(engine, cfg, deps.CacheDir)
		case "hgnc":
			driver = NewHGNC(engine, cfg, deps.HGNCBulkURL, deps.CacheDir)
		case "gnomad":
			driver = NewGnoMAD(engine, cfg, deps.CacheDir)
		case "gtex":
			driver = NewGTEx(engine, cfg, deps.CacheDir)
		case "clinvar":
			driver = NewClinVar(engine, cfg, deps.CacheDir)
		default:
			continue
		}

		if err := reg.RegisterDriver(driver); err != nil {
			return fmt.Errorf("sources: register %s: %w", name, err)
		}
	}
	return nil
}

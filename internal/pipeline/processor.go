// Package pipeline orchestrates CSV processing: duplicate screening, batch
// categorization, vendor resolution and persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mbirkedal/vendorledger/internal/csvimport"
	"github.com/mbirkedal/vendorledger/internal/domain/category"
	"github.com/mbirkedal/vendorledger/internal/domain/confidence"
	"github.com/mbirkedal/vendorledger/internal/domain/duplicate"
	"github.com/mbirkedal/vendorledger/internal/domain/model"
	"github.com/mbirkedal/vendorledger/internal/domain/vendor"
	"github.com/mbirkedal/vendorledger/internal/oracle"
)

const (
	// DefaultBatchSize is the number of transactions sent to the oracle per
	// batch call.
	DefaultBatchSize = 20
)

// Store is the slice of persistence the processor needs. *storage.Storage
// satisfies it.
type Store interface {
	vendor.Store
	duplicate.Store
	SaveTransactions(ctx context.Context, txns []*model.Transaction) error
	SaveEnrichment(ctx context.Context, e *model.VendorEnrichment) error
}

// ProgressFunc reports pipeline progress to a caller, percent in [0,100].
type ProgressFunc func(percent int, stage string)

// DuplicateInfo describes one new transaction flagged as a likely re-import,
// for the caller to confirm or exclude.
type DuplicateInfo struct {
	Index        int             `json:"index"`
	Date         time.Time       `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Text         string          `json:"text"`
	ExistingID   int64           `json:"existing_id"`
	ExistingDate time.Time       `json:"existing_date"`
	ExistingText string          `json:"existing_text"`
	Similarity   float64         `json:"similarity"`
}

// Result is the outcome of a processing run. When Duplicates is non-empty
// nothing was persisted; the caller resubmits with excluded indices after
// user confirmation.
type Result struct {
	BatchID        string          `json:"batch_id"`
	Processed      int             `json:"processed"`
	VendorsMatched int             `json:"vendors_matched"`
	SkippedRows    int             `json:"skipped_rows"`
	Duplicates     []DuplicateInfo `json:"duplicates,omitempty"`
}

// Options configures a Processor.
type Options struct {
	BatchSize    int
	LookbackDays int
	Verifier     DomainVerifier // nil disables domain verification
	Logger       *slog.Logger
}

// Processor runs transactions through categorization and vendor resolution
// into storage. Each transaction moves parsed -> categorized ->
// vendor_resolved -> persisted; oracle failures degrade to a fallback
// confidence, never to a dropped row.
type Processor struct {
	store    Store
	oracle   oracle.Oracle
	matcher  *vendor.Matcher
	detector *duplicate.Detector
	reader   *csvimport.Reader
	verifier DomainVerifier
	logger   *slog.Logger

	batchSize    int
	lookbackDays int
}

// NewProcessor creates a processor over the given store and oracle backend.
func NewProcessor(store Store, orc oracle.Oracle, opts Options) *Processor {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	lookback := opts.LookbackDays
	if lookback <= 0 {
		lookback = duplicate.DefaultLookbackDays
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{
		store:        store,
		oracle:       orc,
		matcher:      vendor.NewMatcher(store),
		detector:     duplicate.NewDetector(store),
		reader:       csvimport.NewReader(),
		verifier:     opts.Verifier,
		logger:       logger,
		batchSize:    batchSize,
		lookbackDays: lookback,
	}
}

// ProcessFile parses the CSV at path and processes its transactions.
// excludedIndices are row indices the user chose to import despite being
// flagged as duplicates on a previous run.
func (p *Processor) ProcessFile(ctx context.Context, path string, excludedIndices []int, progress ProgressFunc) (*Result, error) {
	report(progress, 5, "Reading CSV")

	parsed, err := p.reader.ParseFile(path)
	if err != nil {
		return nil, err
	}

	result, err := p.ProcessTransactions(ctx, parsed.Transactions, excludedIndices, progress)
	if err != nil {
		return nil, err
	}
	result.SkippedRows = parsed.Skipped
	return result, nil
}

// ProcessTransactions screens txns for duplicates and, when none remain
// unconfirmed, categorizes and persists them.
//
// If any transaction is still flagged as a duplicate (and not excluded from
// the check by the caller), the run stops before the oracle is involved and
// the flagged rows are returned for confirmation.
func (p *Processor) ProcessTransactions(ctx context.Context, txns []model.ParsedTransaction, excludedIndices []int, progress ProgressFunc) (*Result, error) {
	report(progress, 10, "Checking for duplicates")

	toProcess, duplicates, err := p.screenDuplicates(ctx, txns, excludedIndices)
	if err != nil {
		return nil, err
	}

	if len(duplicates) > 0 {
		p.logger.Warn("potential duplicates found", "count", len(duplicates))
		return &Result{Duplicates: duplicates}, nil
	}

	return p.processBatches(ctx, toProcess, progress)
}

// CheckDuplicates runs only the duplicate screen over txns and returns the
// flagged rows, so a caller can ask for confirmation before committing to a
// full processing run.
func (p *Processor) CheckDuplicates(ctx context.Context, txns []model.ParsedTransaction, excludedIndices []int) ([]DuplicateInfo, error) {
	_, duplicates, err := p.screenDuplicates(ctx, txns, excludedIndices)
	return duplicates, err
}

// ParseFile exposes CSV parsing so callers can inspect rows before
// processing.
func (p *Processor) ParseFile(path string) (*csvimport.Result, error) {
	return p.reader.ParseFile(path)
}

func (p *Processor) screenDuplicates(ctx context.Context, txns []model.ParsedTransaction, excludedIndices []int) ([]model.ParsedTransaction, []DuplicateInfo, error) {
	candidates, err := p.detector.FindDuplicates(ctx, txns, p.lookbackDays)
	if err != nil {
		return nil, nil, fmt.Errorf("duplicate check: %w", err)
	}

	excluded := make(map[int]bool, len(excludedIndices))
	for _, i := range excludedIndices {
		excluded[i] = true
	}

	var toProcess []model.ParsedTransaction
	var duplicates []DuplicateInfo
	for i, txn := range txns {
		if c := matchCandidate(candidates, txn); c != nil && !excluded[i] {
			duplicates = append(duplicates, DuplicateInfo{
				Index:        i,
				Date:         txn.Date,
				Amount:       txn.Amount,
				Text:         txn.Text,
				ExistingID:   c.Existing.ID,
				ExistingDate: c.Existing.Date,
				ExistingText: c.Existing.Text,
				Similarity:   c.Score,
			})
			continue
		}
		toProcess = append(toProcess, txn)
	}

	return toProcess, duplicates, nil
}

// matchCandidate finds the duplicate candidate covering txn under the
// resubmission equality rule, which is looser than the fuzzy scan that
// produced the candidates.
func matchCandidate(candidates []duplicate.Candidate, txn model.ParsedTransaction) *duplicate.Candidate {
	for i := range candidates {
		if duplicate.ResubmissionMatch(candidates[i].New, txn) {
			return &candidates[i]
		}
	}
	return nil
}

func (p *Processor) processBatches(ctx context.Context, txns []model.ParsedTransaction, progress ProgressFunc) (*Result, error) {
	result := &Result{BatchID: uuid.NewString()}
	if len(txns) == 0 {
		report(progress, 100, "Done")
		return result, nil
	}

	// The vendor cache is scoped to this run; repeated vendor names within
	// one import resolve without further lookups.
	vendorCache := make(map[string]cachedVendor)

	totalBatches := (len(txns) + p.batchSize - 1) / p.batchSize
	for start := 0; start < len(txns); start += p.batchSize {
		end := start + p.batchSize
		if end > len(txns) {
			end = len(txns)
		}
		batch := txns[start:end]
		batchNum := start/p.batchSize + 1

		report(progress, 20+batchNum*60/totalBatches,
			fmt.Sprintf("Processing batch %d/%d (%d transactions)", batchNum, totalBatches, len(batch)))

		records, matched, err := p.processBatch(ctx, batch, result.BatchID, vendorCache)
		if err != nil {
			return nil, err
		}

		// Each batch commits independently; a failure mid-run keeps the
		// batches already persisted.
		if err := p.store.SaveTransactions(ctx, records); err != nil {
			return nil, fmt.Errorf("persisting batch %d: %w", batchNum, err)
		}
		result.Processed += len(records)
		result.VendorsMatched += matched
	}

	report(progress, 100, "Done")
	p.logger.Info("processing run complete",
		"batch_id", result.BatchID,
		"processed", result.Processed,
		"vendors_matched", result.VendorsMatched)
	return result, nil
}

// processBatch categorizes one batch and resolves vendors. Oracle failures
// for the whole batch or for single slots degrade to the "other" category
// with a fallback confidence.
func (p *Processor) processBatch(ctx context.Context, batch []model.ParsedTransaction, batchID string, vendorCache map[string]cachedVendor) ([]*model.Transaction, int, error) {
	slots := make(map[int]oracle.BatchResult, len(batch))
	batchResults, err := p.oracle.BatchCategorize(ctx, batch)
	if err != nil {
		p.logger.Warn("batch categorization failed, falling back", "error", err)
	} else {
		for _, r := range batchResults {
			if r.TransactionID >= 0 && r.TransactionID < len(batch) {
				slots[r.TransactionID] = r
			}
		}
	}

	records := make([]*model.Transaction, 0, len(batch))
	matched := 0
	for i, txn := range batch {
		record := &model.Transaction{
			ParsedTransaction: txn,
			BatchID:           batchID,
			VendorMatchSource: model.MatchSourceNone,
		}

		slot, ok := slots[i]
		if !ok {
			record.Category = category.Normalize(category.Other)
			record.CategoryConfidence = confidence.LLMFallbackConfidence(txn, category.Other)
			records = append(records, record)
			continue
		}

		cat := category.Normalize(slot.Category)
		record.Category = cat
		record.CategoryConfidence = confidence.CategoryConfidence(txn, cat, slot.Confidence)

		resolved, err := p.resolveVendor(ctx, slot, cat, txn, vendorCache)
		if err != nil {
			return nil, 0, err
		}
		if resolved != nil {
			record.VendorID = &resolved.vendor.ID
			record.VendorConfidence = resolved.confidence
			record.VendorMatchSource = resolved.source
			matched++
		}

		records = append(records, record)
	}

	return records, matched, nil
}

type cachedVendor struct {
	vendor     model.Vendor
	confidence float64
}

type resolvedVendor struct {
	vendor     model.Vendor
	confidence float64
	source     model.MatchSource
}

// resolveVendor resolves a slot's vendor name: run cache, then database
// match, then oracle-driven enrichment and creation. Cache and database hits
// rescore against the current transaction's text; a cached vendor explains
// different transactions differently well.
func (p *Processor) resolveVendor(ctx context.Context, slot oracle.BatchResult, cat string, txn model.ParsedTransaction, cache map[string]cachedVendor) (*resolvedVendor, error) {
	name := strings.TrimSpace(slot.VendorName)
	if name == "" || cat != category.VendorPayment {
		return nil, nil
	}
	key := strings.ToLower(name)

	if hit, ok := cache[key]; ok {
		conf := confidence.VendorConfidence(name, txn, &hit.confidence)
		return &resolvedVendor{vendor: hit.vendor, confidence: conf, source: model.MatchSourceCache}, nil
	}

	match, err := p.matcher.FindExisting(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("vendor lookup for %q: %w", name, err)
	}
	if match != nil {
		conf := confidence.VendorConfidence(name, txn, &match.Score)
		cache[key] = cachedVendor{vendor: match.Vendor, confidence: conf}
		return &resolvedVendor{vendor: match.Vendor, confidence: conf, source: model.MatchSourceDatabase}, nil
	}

	v, enrichConf, err := p.enrichAndCreate(ctx, name, txn)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}

	// The stored confidence couples how sure the oracle was about the
	// enrichment with how well the name explains this transaction.
	slotConf := confidence.VendorConfidence(name, txn, slot.VendorConfidence)
	conf := enrichConf * slotConf
	cache[key] = cachedVendor{vendor: *v, confidence: conf}
	return &resolvedVendor{vendor: *v, confidence: conf, source: model.MatchSourceLLM}, nil
}

// enrichAndCreate asks the oracle for a vendor profile, verifies its domain
// when a verifier is configured, and creates the vendor record.
func (p *Processor) enrichAndCreate(ctx context.Context, name string, txn model.ParsedTransaction) (*model.Vendor, float64, error) {
	info, err := p.oracle.EnrichVendor(ctx, name)
	if err != nil {
		// Enrichment is best effort; an unreachable oracle still yields a
		// bare vendor record under the raw name.
		p.logger.Warn("vendor enrichment failed", "vendor", name, "error", err)
		info = &oracle.VendorInfo{Name: name, DefaultProductType: "services"}
	}

	enrichConf := confidence.LLMFallbackConfidence(model.ParsedTransaction{Text: name}, "")
	if info.Confidence != nil {
		enrichConf = *info.Confidence
	}

	if p.verifier != nil && info.Domain != "" {
		isValid, domainConf := p.verifier.Verify(ctx, info.Domain, info.Name)
		enrichConf *= confidence.DomainPenaltyFactor(isValid, domainConf)
		if !isValid && domainConf == 0.0 {
			info.Domain = ""
		}
	}

	v, err := p.matcher.CreateOrGet(ctx, name, vendor.EnrichmentInfo{
		Name:               info.Name,
		Nicknames:          info.Nicknames,
		Domain:             info.Domain,
		Description:        info.Description,
		InvoicingCountry:   info.InvoicingCountry,
		DefaultCurrency:    info.DefaultCurrency,
		DefaultProductType: info.DefaultProductType,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("creating vendor %q: %w", name, err)
	}

	// Audit what the oracle claimed, for later review of bad enrichments.
	// An unsaved vendor (ID zero) has nothing to attach the record to.
	if v.ID != 0 {
		payload, _ := json.Marshal(info)
		enrichment := &model.VendorEnrichment{
			VendorID:   v.ID,
			Source:     "llm",
			Payload:    string(payload),
			Confidence: enrichConf,
		}
		if err := p.store.SaveEnrichment(ctx, enrichment); err != nil {
			p.logger.Warn("failed to record enrichment", "vendor", v.Name, "error", err)
		}
	}

	return v, enrichConf, nil
}

func report(progress ProgressFunc, percent int, stage string) {
	if progress != nil {
		progress(percent, stage)
	}
}

// Package report renders certificates of analysis from completed samples and
// archives the issued documents.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"limscore/internal/archive"
	"limscore/internal/core"
	"limscore/pkg/domain"
)

// LabInfo identifies the issuing laboratory on a certificate.
type LabInfo struct {
	Name      string `json:"name"`
	License   string `json:"license"`
	Address   string `json:"address"`
	Phone     string `json:"phone,omitempty"`
	Directors string `json:"directors,omitempty"`
}

// ResultRow is one reported analyte measurement on a certificate. When no
// measurement was recorded for the analyte the row carries the reporting
// limit as a "<RL" placeholder and Measured is false.
type ResultRow struct {
	AssayCode      string   `json:"assay_code"`
	AssayName      string   `json:"assay_name"`
	Method         string   `json:"method"`
	Analyte        string   `json:"analyte"`
	Unit           string   `json:"unit"`
	ReportingLimit float64  `json:"reporting_limit"`
	Result         *float64 `json:"result,omitempty"`
	Display        string   `json:"display"`
	Measured       bool     `json:"measured"`
	Flag           *string  `json:"flag,omitempty"`
}

// QCCheck reports whether a control type was run on the backing batch and
// whether every injection of that type passed. Warnings do not fail a check.
type QCCheck struct {
	Run  bool `json:"run"`
	Pass bool `json:"pass"`
}

func (c *QCCheck) observe(result domain.QCResult) {
	if !c.Run {
		c.Run = true
		c.Pass = true
	}
	if result == domain.QCFail {
		c.Pass = false
	}
}

// QCAttestation summarizes the quality-control state of the run backing the
// certificate: the standard control checks, the CCV recovery, and aggregate
// injection counts.
type QCAttestation struct {
	BatchID           string          `json:"batch_id,omitempty"`
	Analyst           string          `json:"analyst,omitempty"`
	Instrument        string          `json:"instrument,omitempty"`
	CCV               float64         `json:"ccv"`
	MethodBlank       QCCheck         `json:"method_blank"`
	MatrixSpike       QCCheck         `json:"matrix_spike"`
	Duplicate         QCCheck         `json:"duplicate"`
	ReferenceStandard QCCheck         `json:"reference_standard"`
	Overall           domain.QCResult `json:"overall"`
	Pass              int             `json:"pass"`
	Warning           int             `json:"warning"`
	Fail              int             `json:"fail"`
}

// CoA is the JSON certificate of analysis document.
type CoA struct {
	CertificateID string        `json:"certificate_id"`
	SampleID      string        `json:"sample_id"`
	MetrcID       *string       `json:"metrc_id,omitempty"`
	SampleName    string        `json:"sample_name"`
	ClientName    string        `json:"client_name"`
	SampleType    string        `json:"sample_type"`
	Category      string        `json:"category"`
	ReceivedDate  time.Time     `json:"received_date"`
	ReportedDate  time.Time     `json:"reported_date"`
	Lab           LabInfo       `json:"lab"`
	Rows          []ResultRow   `json:"rows"`
	QC            QCAttestation `json:"qc"`
	ArchiveKey    string        `json:"archive_key,omitempty"`
}

// Generator builds and archives certificates.
type Generator struct {
	svc   *core.Service
	docs  archive.Store
	lab   LabInfo
	clock func() time.Time
}

// Option customizes a Generator.
type Option func(*Generator)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(g *Generator) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithLabInfo sets the issuing laboratory block stamped on every certificate.
func WithLabInfo(lab LabInfo) Option {
	return func(g *Generator) { g.lab = lab }
}

// NewGenerator returns a certificate generator backed by the service and the
// document archive. A nil docs store disables archiving.
func NewGenerator(svc *core.Service, docs archive.Store, opts ...Option) *Generator {
	g := &Generator{
		svc:   svc,
		docs:  docs,
		clock: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateCoA renders the certificate for a completed sample, archives it as
// JSON, and moves the sample to Reported. Samples that have not completed
// analysis are rejected; regenerating for an already reported sample issues a
// fresh certificate without touching the status.
func (g *Generator) GenerateCoA(ctx context.Context, sampleID string) (CoA, error) {
	sample, ok := g.svc.GetSample(sampleID)
	if !ok {
		return CoA{}, domain.ErrNotFound{Entity: domain.EntitySample, ID: sampleID}
	}
	if sample.Status.Rank() < domain.SampleComplete.Rank() {
		return CoA{}, domain.ValidationError{Field: "status", Reason: fmt.Sprintf("sample %s has not completed analysis", sampleID)}
	}

	now := g.clock()
	coa := CoA{
		CertificateID: fmt.Sprintf("COA-%s-%s", sampleID, uuid.NewString()[:8]),
		SampleID:      sample.ID,
		MetrcID:       sample.MetrcID,
		SampleName:    sample.Name,
		ClientName:    sample.ClientName,
		SampleType:    string(sample.Type),
		Category:      string(sample.Category),
		ReceivedDate:  sample.ReceivedDate,
		ReportedDate:  now,
		Lab:           g.lab,
	}

	for _, code := range sample.RequiredTests {
		assay, ok := g.svc.FindAssayByCode(ctx, code)
		if !ok {
			return CoA{}, domain.ErrNotFound{Entity: domain.EntityAssay, ID: code}
		}
		coa.Rows = append(coa.Rows, buildRows(assay, sample)...)
	}
	coa.QC = g.attest(sample)

	if g.docs != nil {
		key := fmt.Sprintf("coa/%d/%s.json", now.Year(), coa.CertificateID)
		payload, err := json.MarshalIndent(coa, "", "  ")
		if err != nil {
			return CoA{}, fmt.Errorf("encode certificate: %w", err)
		}
		if _, err := g.docs.Put(ctx, key, bytes.NewReader(payload), archive.PutOptions{
			ContentType: "application/json",
			Metadata:    map[string]string{"sample_id": sample.ID, "certificate_id": coa.CertificateID},
		}); err != nil {
			return CoA{}, fmt.Errorf("archive certificate: %w", err)
		}
		coa.ArchiveKey = key
	}

	if sample.Status == domain.SampleComplete {
		if _, _, err := g.svc.UpdateSample(ctx, sample.ID, func(s *domain.Sample) error {
			s.Status = domain.SampleReported
			return nil
		}); err != nil {
			return CoA{}, fmt.Errorf("mark sample reported: %w", err)
		}
	}
	return coa, nil
}

// buildRows emits one row per analyte in the configuration effective at the
// sample's received date. Recorded measurements win; otherwise the row shows
// the reporting-limit placeholder.
func buildRows(assay domain.Assay, sample domain.Sample) []ResultRow {
	cfg := domain.ResolveEffectiveConfig(assay, sample.ReceivedDate)
	method := fmt.Sprintf("SOP-%s-001", assay.Code)
	var rows []ResultRow
	for _, analyte := range cfg.Analytes {
		if analyte.EffectiveDate.After(sample.ReceivedDate) {
			continue
		}
		row := ResultRow{
			AssayCode:      assay.Code,
			AssayName:      assay.Name,
			Method:         method,
			Analyte:        analyte.Name,
			Unit:           analyte.Unit,
			ReportingLimit: analyte.ReportingLimit,
		}
		if result, ok := findResult(sample.Results, analyte); ok {
			value := result.FinalResult
			row.Result = &value
			row.Measured = true
			row.Display = fmt.Sprintf("%.3f %s", value, analyte.Unit)
			row.Flag = result.Flag
		} else {
			row.Display = fmt.Sprintf("< %.3f %s", analyte.ReportingLimit, analyte.Unit)
		}
		rows = append(rows, row)
	}
	return rows
}

func findResult(results []domain.SampleResult, analyte domain.Analyte) (domain.SampleResult, bool) {
	for _, r := range results {
		if r.Excluded {
			continue
		}
		if strings.EqualFold(r.Analyte, analyte.Name) || strings.EqualFold(r.Analyte, analyte.AnalyteID) {
			return r, true
		}
	}
	return domain.SampleResult{}, false
}

// attest summarizes the QC injections of the analytical run that produced the
// sample's results.
func (g *Generator) attest(sample domain.Sample) QCAttestation {
	att := QCAttestation{Overall: domain.QCPass}
	if sample.QCStatus != nil {
		att.Overall = *sample.QCStatus
	}
	if sample.AnalyticalBatchID == nil {
		return att
	}
	batch, ok := g.svc.GetAnalyticalBatch(*sample.AnalyticalBatchID)
	if !ok {
		return att
	}
	att.BatchID = batch.ID
	att.Analyst = batch.Analyst
	att.Instrument = batch.Instrument
	att.CCV = batch.Calibration.CCV
	for _, qc := range batch.QCSamples {
		switch qc.Result {
		case domain.QCPass:
			att.Pass++
		case domain.QCWarning:
			att.Warning++
		case domain.QCFail:
			att.Fail++
		}
		if check := att.checkFor(qc.Type); check != nil {
			check.observe(qc.Result)
		}
	}
	return att
}

// checkFor maps a QC type identifier onto the attestation's standard control
// checks. Types outside the standard set, such as CCV injections, only count
// toward the aggregate totals.
func (a *QCAttestation) checkFor(qcType string) *QCCheck {
	t := strings.ToLower(qcType)
	switch {
	case t == "mb" || strings.Contains(t, "blank"):
		return &a.MethodBlank
	case t == "ms" || strings.Contains(t, "spike"):
		return &a.MatrixSpike
	case strings.Contains(t, "dup"):
		return &a.Duplicate
	case t == "rs" || t == "crm" || strings.Contains(t, "reference") || strings.Contains(t, "standard"):
		return &a.ReferenceStandard
	}
	return nil
}

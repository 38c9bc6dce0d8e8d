package manifest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"limscore/internal/archive"
	"limscore/internal/core"
)

// ImportStatus describes the lifecycle stage of an import job.
type ImportStatus string

const (
	ImportStatusQueued    ImportStatus = "queued"
	ImportStatusRunning   ImportStatus = "running"
	ImportStatusSucceeded ImportStatus = "succeeded"
	ImportStatusFailed    ImportStatus = "failed"
)

// ImportRecord tracks an import job. RowErrors carries partial failures: a
// job succeeds as long as the manifest itself was readable, even when
// individual rows were rejected.
type ImportRecord struct {
	ID          string       `json:"id"`
	Kind        Kind         `json:"kind"`
	Source      string       `json:"source"`
	Status      ImportStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
	SampleIDs   []string     `json:"sample_ids,omitempty"`
	RowErrors   []RowError   `json:"row_errors,omitempty"`
	ArchiveKey  string       `json:"archive_key,omitempty"`
	RequestedBy string       `json:"requested_by"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// ImportInput represents an enqueue request for the importer.
type ImportInput struct {
	Kind        Kind
	Source      string // originating filename, recorded and used in the archive key
	Payload     []byte
	RequestedBy string
}

// Importer registers manifest samples asynchronously. The raw manifest is
// archived before parsing so rejected rows stay auditable.
type Importer struct {
	svc  *core.Service
	docs archive.Store

	queue chan importTask
	mu    sync.RWMutex
	jobs  map[string]*ImportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type importTask struct {
	id    string
	input ImportInput
}

// NewImporter constructs an importer. A nil docs store disables raw-manifest
// archiving.
func NewImporter(svc *core.Service, docs archive.Store) *Importer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Importer{
		svc:    svc,
		docs:   docs,
		queue:  make(chan importTask, 32),
		jobs:   make(map[string]*ImportRecord),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing import requests.
func (im *Importer) Start() {
	im.wg.Add(1)
	go im.loop()
}

// Stop signals the importer to halt and waits for completion.
func (im *Importer) Stop(ctx context.Context) error {
	im.cancel()
	done := make(chan struct{})
	go func() {
		im.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (im *Importer) loop() {
	defer im.wg.Done()
	for {
		select {
		case <-im.ctx.Done():
			return
		case task := <-im.queue:
			im.process(task)
		}
	}
}

// EnqueueImport schedules an import job and returns the queued record.
func (im *Importer) EnqueueImport(_ context.Context, input ImportInput) (ImportRecord, error) {
	if !ValidKind(input.Kind) {
		return ImportRecord{}, fmt.Errorf("unknown manifest kind %q", input.Kind)
	}
	if len(input.Payload) == 0 {
		return ImportRecord{}, fmt.Errorf("manifest payload required")
	}
	if strings.TrimSpace(input.Source) == "" {
		input.Source = "manifest.csv"
	}

	now := time.Now().UTC()
	record := ImportRecord{
		ID:          uuid.NewString(),
		Kind:        input.Kind,
		Source:      input.Source,
		Status:      ImportStatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	im.mu.Lock()
	im.jobs[record.ID] = &record
	queued := record.copy()
	im.mu.Unlock()

	select {
	case im.queue <- importTask{id: record.ID, input: input}:
	default:
		im.mu.Lock()
		delete(im.jobs, record.ID)
		im.mu.Unlock()
		return ImportRecord{}, fmt.Errorf("import queue full")
	}
	return queued, nil
}

// GetImport returns a snapshot of the import record.
func (im *Importer) GetImport(id string) (ImportRecord, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	record, ok := im.jobs[id]
	if !ok {
		return ImportRecord{}, false
	}
	return record.copy(), true
}

// ListImports returns snapshots of all known jobs.
func (im *Importer) ListImports() []ImportRecord {
	im.mu.RLock()
	defer im.mu.RUnlock()
	out := make([]ImportRecord, 0, len(im.jobs))
	for _, record := range im.jobs {
		out = append(out, record.copy())
	}
	return out
}

func (im *Importer) process(task importTask) {
	im.update(task.id, func(r *ImportRecord) {
		r.Status = ImportStatusRunning
	})

	if im.docs != nil {
		key := fmt.Sprintf("manifests/%s/%s", task.id, task.input.Source)
		_, err := im.docs.Put(im.ctx, key, bytes.NewReader(task.input.Payload), archive.PutOptions{
			ContentType: "text/csv",
			Metadata:    map[string]string{"kind": string(task.input.Kind), "requested_by": task.input.RequestedBy},
		})
		if err != nil {
			im.fail(task.id, fmt.Sprintf("archive manifest: %v", err))
			return
		}
		im.update(task.id, func(r *ImportRecord) {
			r.ArchiveKey = key
		})
	}

	parsed, err := Parse(bytes.NewReader(task.input.Payload), task.input.Kind)
	if err != nil {
		im.fail(task.id, err.Error())
		return
	}

	ctx := core.WithActor(im.ctx, task.input.RequestedBy)
	var sampleIDs []string
	rowErrors := parsed.Errors
	for _, entry := range parsed.Samples {
		sample, _, err := im.svc.RegisterSample(ctx, entry.Sample)
		if err != nil {
			rowErrors = append(rowErrors, RowError{Row: entry.Row, Reason: err.Error()})
			continue
		}
		sampleIDs = append(sampleIDs, sample.ID)
	}

	now := time.Now().UTC()
	im.update(task.id, func(r *ImportRecord) {
		r.Status = ImportStatusSucceeded
		r.SampleIDs = sampleIDs
		r.RowErrors = rowErrors
		r.CompletedAt = &now
	})
}

func (im *Importer) fail(id, reason string) {
	now := time.Now().UTC()
	im.update(id, func(r *ImportRecord) {
		r.Status = ImportStatusFailed
		r.Error = reason
		r.CompletedAt = &now
	})
}

func (im *Importer) update(id string, mutate func(*ImportRecord)) {
	im.mu.Lock()
	if record, ok := im.jobs[id]; ok {
		mutate(record)
		record.UpdatedAt = time.Now().UTC()
	}
	im.mu.Unlock()
}

func (r ImportRecord) copy() ImportRecord {
	dup := r
	dup.SampleIDs = append([]string(nil), r.SampleIDs...)
	dup.RowErrors = append([]RowError(nil), r.RowErrors...)
	return dup
}

// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by limscore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntitySample identifies an individual lab sample record.
	EntitySample EntityType = "sample"
	// EntityAssay identifies an assay definition record.
	EntityAssay EntityType = "assay"
	// EntityPrepBatch identifies a sample preparation batch record.
	EntityPrepBatch EntityType = "prep_batch"
	// EntityAnalyticalBatch identifies an analytical batch record.
	EntityAnalyticalBatch EntityType = "analytical_batch"
	// EntityRole identifies a role definition record.
	EntityRole EntityType = "role"
	// EntityUser identifies a user account record.
	EntityUser EntityType = "user"
	// EntityPendingUser identifies a pending account request record.
	EntityPendingUser EntityType = "pending_user"
	// EntityRegistration identifies a self-registration credential record.
	EntityRegistration EntityType = "registration"
	// EntityInventoryItem identifies an inventory item record.
	EntityInventoryItem EntityType = "inventory_item"
	// EntityEquipment identifies an instrument or equipment record.
	EntityEquipment EntityType = "equipment"
)

// SampleStatus represents the canonical sample lifecycle states. The order of
// declaration is the workflow order; transitions never move backwards.
type SampleStatus string

// Canonical sample lifecycle statuses, from intake through reporting.
const (
	SampleReceived         SampleStatus = "Received"
	SampleBatched          SampleStatus = "Batched"
	SampleInPrep           SampleStatus = "In Prep"
	SampleReadyForAnalysis SampleStatus = "Ready for Analysis"
	SampleInAnalysis       SampleStatus = "In Analysis"
	SampleComplete         SampleStatus = "Complete"
	SampleReported         SampleStatus = "Reported"
)

// SampleType enumerates supported sample matrices.
type SampleType string

// Supported sample matrices accepted at intake.
const (
	SampleTypeFlower      SampleType = "Flower"
	SampleTypeConcentrate SampleType = "Concentrate"
	SampleTypeEdible      SampleType = "Edible"
	SampleTypePreRoll     SampleType = "Pre-Roll"
	SampleTypeOther       SampleType = "Other"
)

// SampleCategory enumerates regulatory categories for a sample.
type SampleCategory string

// Supported regulatory categories.
const (
	CategoryAdultUse SampleCategory = "Adult Use"
	CategoryMedical  SampleCategory = "Medical"
	CategoryResearch SampleCategory = "Research"
)

// PrepBatchStatus enumerates prep batch workflow states.
type PrepBatchStatus string

// Prep batch statuses in workflow order.
const (
	PrepInProgress       PrepBatchStatus = "In Progress"
	PrepReadyForAnalysis PrepBatchStatus = "Ready for Analysis"
	PrepComplete         PrepBatchStatus = "Complete"
)

// AnalyticalBatchStatus enumerates analytical batch workflow states.
type AnalyticalBatchStatus string

// Analytical batch statuses in workflow order.
const (
	AnalyticalInProgress AnalyticalBatchStatus = "In Progress"
	AnalyticalDataEntry  AnalyticalBatchStatus = "Data Entry"
	AnalyticalQCReview   AnalyticalBatchStatus = "QC Review"
	AnalyticalApproved   AnalyticalBatchStatus = "Approved"
)

// QCResult classifies a QC measurement against its recovery limits.
type QCResult string

// QC classification outcomes.
const (
	QCPass    QCResult = "Pass"
	QCWarning QCResult = "Warning"
	QCFail    QCResult = "Fail"
)

// RevisionStatus enumerates SOP revision lifecycle states.
type RevisionStatus string

// SOP revision statuses. At most one revision per assay is Active at a time.
const (
	RevisionDraft      RevisionStatus = "Draft"
	RevisionPending    RevisionStatus = "Pending"
	RevisionActive     RevisionStatus = "Active"
	RevisionSuperseded RevisionStatus = "Superseded"
)

// RequestStatus enumerates pending account request states.
type RequestStatus string

// Pending account request statuses.
const (
	RequestPending  RequestStatus = "Pending"
	RequestApproved RequestStatus = "Approved"
	RequestRejected RequestStatus = "Rejected"
)

// InventoryStatus enumerates inventory item stock states.
type InventoryStatus string

// Inventory stock statuses.
const (
	InventoryActive     InventoryStatus = "Active"
	InventoryExpired    InventoryStatus = "Expired"
	InventoryLowStock   InventoryStatus = "Low Stock"
	InventoryOutOfStock InventoryStatus = "Out of Stock"
)

// EquipmentStatus enumerates instrument availability states.
type EquipmentStatus string

// Equipment availability statuses.
const (
	EquipmentActive       EquipmentStatus = "Active"
	EquipmentMaintenance  EquipmentStatus = "Maintenance"
	EquipmentOutOfService EquipmentStatus = "Out of Service"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records. Version increments on
// every committed update and supports optimistic concurrency detection.
type Base struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sample represents an individual lab sample tracked from intake to report.
type Sample struct {
	Base
	MetrcID           *string        `json:"metrc_id,omitempty"`
	Name              string         `json:"name"`
	ClientName        string         `json:"client_name"`
	ReceivedDate      time.Time      `json:"received_date"`
	Type              SampleType     `json:"type"`
	Category          SampleCategory `json:"category"`
	TargetPotency     *float64       `json:"target_potency,omitempty"`
	RequiredTests     []string       `json:"required_tests"`
	Status            SampleStatus   `json:"status"`
	Weight            *float64       `json:"weight,omitempty"`
	Notes             *string        `json:"notes,omitempty"`
	PrepBatchID       *string        `json:"prep_batch_id"`
	AnalyticalBatchID *string        `json:"analytical_batch_id"`
	Results           []SampleResult `json:"results"`
	QCStatus          *QCResult      `json:"qc_status,omitempty"`
}

// Analyte defines a single measured compound within an assay. An analyte
// applies to a sample only when its effective date is on or before the
// sample's received date.
type Analyte struct {
	AnalyteID      string    `json:"analyte_id"`
	Name           string    `json:"name"`
	Unit           string    `json:"unit"`
	ReportingLimit float64   `json:"reporting_limit"`
	ActionLimit    *float64  `json:"action_limit,omitempty"`
	WarningLimit   *float64  `json:"warning_limit,omitempty"`
	EffectiveDate  time.Time `json:"effective_date"`
}

// QCType defines a quality-control measurement requirement for an assay.
// Frequency is the number of sample injections per required QC injection.
type QCType struct {
	QCTypeID    string  `json:"qc_type_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Frequency   int     `json:"frequency"`
	LowerLimit  float64 `json:"lower_limit"`
	UpperLimit  float64 `json:"upper_limit"`
}

// BatchSizeBounds constrains how many samples a batch may carry.
type BatchSizeBounds struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// SOPConfig is the effective-dated configuration payload carried by an SOP
// revision. A nil field falls back to the assay's base configuration.
type SOPConfig struct {
	Analytes  []Analyte        `json:"analytes,omitempty"`
	QCTypes   []QCType         `json:"qc_types,omitempty"`
	BatchSize *BatchSizeBounds `json:"batch_size,omitempty"`
}

// SOPRevision records one revision of an assay's standard operating procedure.
type SOPRevision struct {
	RevisionID    string         `json:"revision_id"`
	Version       string         `json:"version"`
	EffectiveDate time.Time      `json:"effective_date"`
	Changes       []string       `json:"changes"`
	Author        string         `json:"author"`
	ApprovedBy    *string        `json:"approved_by,omitempty"`
	ApprovalDate  *time.Time     `json:"approval_date,omitempty"`
	Status        RevisionStatus `json:"status"`
	Config        *SOPConfig     `json:"config,omitempty"`
}

// Assay defines an analytical method: its analyte panel, QC requirements,
// batch sizing, and SOP revision history.
type Assay struct {
	Base
	Code            string           `json:"code"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Active          bool             `json:"active"`
	Analytes        []Analyte        `json:"analytes"`
	QCTypes         []QCType         `json:"qc_types"`
	BatchSize       *BatchSizeBounds `json:"batch_size,omitempty"`
	SOPVersion      string           `json:"sop_version"`
	RevisionHistory []SOPRevision    `json:"revision_history"`
}

// ReagentUsage records consumption of a reagent lot during sample prep.
type ReagentUsage struct {
	ReagentID      string    `json:"reagent_id"`
	LotNumber      string    `json:"lot_number"`
	ExpirationDate time.Time `json:"expiration_date"`
	VolumeUsed     float64   `json:"volume_used"`
}

// PrepBatch groups samples for extraction ahead of analysis.
type PrepBatch struct {
	Base
	SampleIDs      []string        `json:"sample_ids"`
	AssayCode      string          `json:"assay_code"`
	Status         PrepBatchStatus `json:"status"`
	Analyst        string          `json:"analyst"`
	Reagents       []ReagentUsage  `json:"reagents"`
	EquipmentIDs   []string        `json:"equipment_ids"`
	ExtractionDate *time.Time      `json:"extraction_date,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
}

// CalibrationPoint is one concentration/response pair on a calibration curve.
type CalibrationPoint struct {
	Concentration float64 `json:"concentration"`
	Response      float64 `json:"response"`
}

// CalibrationCurve captures the fitted calibration for one analyte.
type CalibrationCurve struct {
	Analyte  string             `json:"analyte"`
	Points   []CalibrationPoint `json:"points"`
	RSquared float64            `json:"r_squared"`
}

// CalibrationData aggregates calibration state for an analytical batch.
type CalibrationData struct {
	Curves      []CalibrationCurve `json:"curves"`
	Blanks      []float64          `json:"blanks"`
	CCV         float64            `json:"ccv"`
	CreatedDate time.Time          `json:"created_date"`
}

// QCSample records a single QC injection and its classification.
type QCSample struct {
	QCSampleID string    `json:"qc_sample_id"`
	Type       string    `json:"type"`
	Analyte    string    `json:"analyte"`
	Expected   *float64  `json:"expected,omitempty"`
	Actual     *float64  `json:"actual,omitempty"`
	Recovery   *float64  `json:"recovery,omitempty"`
	Result     QCResult  `json:"result"`
	RunDate    time.Time `json:"run_date"`
}

// SampleResult is one measured analyte value for a sample within a batch run.
type SampleResult struct {
	SampleID       string   `json:"sample_id"`
	Analyte        string   `json:"analyte"`
	Result         float64  `json:"result"`
	Unit           string   `json:"unit"`
	DilutionFactor float64  `json:"dilution_factor"`
	FinalResult    float64  `json:"final_result"`
	Uncertainty    *float64 `json:"uncertainty,omitempty"`
	Flag           *string  `json:"flag,omitempty"`
	Excluded       bool     `json:"excluded"`
	ExcludeReason  *string  `json:"exclude_reason,omitempty"`
}

// AnalyticalBatch groups prep batches for an instrument run.
type AnalyticalBatch struct {
	Base
	PrepBatchIDs      []string              `json:"prep_batch_ids"`
	AssayCode         string                `json:"assay_code"`
	Status            AnalyticalBatchStatus `json:"status"`
	Analyst           string                `json:"analyst"`
	Instrument        string                `json:"instrument"`
	Calibration       CalibrationData       `json:"calibration"`
	QCSamples         []QCSample            `json:"qc_samples"`
	Results           []SampleResult        `json:"results"`
	SequenceGenerated bool                  `json:"sequence_generated"`
	DataFiles         []string              `json:"data_files"`
}

// RoleKind is the structured short name of a role, replacing name parsing.
type RoleKind string

// Supported role kinds. Prep and Analysis are generated per assay.
const (
	RolePrep      RoleKind = "Prep"
	RoleAnalysis  RoleKind = "Analysis"
	RoleAdmin     RoleKind = "Admin"
	RoleReceiving RoleKind = "Receiving"
	RoleQCManager RoleKind = "QC Manager"
)

// RoleDefinition bundles permissions under a name, optionally scoped to one
// assay. System roles are managed only through the assay lifecycle.
type RoleDefinition struct {
	Base
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Kind          RoleKind `json:"kind"`
	PermissionIDs []string `json:"permission_ids"`
	IsSystemRole  bool     `json:"is_system_role"`
	AssayType     *string  `json:"assay_type,omitempty"`
}

// UserRole is a single role assignment held by a user.
type UserRole struct {
	AssayType string   `json:"assay_type"`
	Role      RoleKind `json:"role"`
}

// User is an active account in the lab directory.
type User struct {
	Base
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Roles     []UserRole `json:"roles"`
	Active    bool       `json:"active"`
}

// PendingUserRequest is a submitted account request awaiting administrator
// review. Rejected requests are retained with updated status.
type PendingUserRequest struct {
	Base
	Username    string        `json:"username"`
	Email       string        `json:"email"`
	FirstName   string        `json:"first_name"`
	LastName    string        `json:"last_name"`
	Phone       *string       `json:"phone,omitempty"`
	Department  string        `json:"department"`
	RequestDate time.Time     `json:"request_date"`
	Status      RequestStatus `json:"status"`
}

// RegistrationRecord holds the credential material captured when an account
// request was submitted. It is consulted exactly once, at approval time.
type RegistrationRecord struct {
	Base
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// DocumentRef points at a stored document (SDS, CoA, manual) in blob storage.
type DocumentRef struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Key        string `json:"key"`
}

// InventoryItem models a consumable, reagent, or standard tracked by the lab.
type InventoryItem struct {
	Base
	NCTLID           string          `json:"nctl_id"`
	Name             string          `json:"name"`
	Manufacturer     string          `json:"manufacturer"`
	LotNumber        string          `json:"lot_number"`
	Vendor           string          `json:"vendor"`
	ReceivedDate     time.Time       `json:"received_date"`
	ExpirationDate   time.Time       `json:"expiration_date"`
	Quantity         int             `json:"quantity"`
	PackagesReceived int             `json:"packages_received"`
	ItemsPerPackage  int             `json:"items_per_package"`
	Category         string          `json:"category"`
	Documents        []DocumentRef   `json:"documents"`
	Status           InventoryStatus `json:"status"`
}

// MaintenanceRecord logs one calibration, maintenance, or repair event.
type MaintenanceRecord struct {
	RecordID    string    `json:"record_id"`
	Date        time.Time `json:"date"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Technician  string    `json:"technician"`
	Cost        *float64  `json:"cost,omitempty"`
}

// Equipment models an instrument used by prep and analytical batches.
type Equipment struct {
	Base
	Name               string              `json:"name"`
	Model              string              `json:"model"`
	SerialNumber       string              `json:"serial_number"`
	Manufacturer       string              `json:"manufacturer"`
	Location           string              `json:"location"`
	Status             EquipmentStatus     `json:"status"`
	LastCalibration    *time.Time          `json:"last_calibration,omitempty"`
	NextCalibration    *time.Time          `json:"next_calibration,omitempty"`
	MaintenanceHistory []MaintenanceRecord `json:"maintenance_history"`
}

var sampleStatusOrder = map[SampleStatus]int{
	SampleReceived:         0,
	SampleBatched:          1,
	SampleInPrep:           2,
	SampleReadyForAnalysis: 3,
	SampleInAnalysis:       4,
	SampleComplete:         5,
	SampleReported:         6,
}

var prepStatusOrder = map[PrepBatchStatus]int{
	PrepInProgress:       0,
	PrepReadyForAnalysis: 1,
	PrepComplete:         2,
}

var analyticalStatusOrder = map[AnalyticalBatchStatus]int{
	AnalyticalInProgress: 0,
	AnalyticalDataEntry:  1,
	AnalyticalQCReview:   2,
	AnalyticalApproved:   3,
}

// Rank returns the workflow position of s, or -1 when s is not a known status.
func (s SampleStatus) Rank() int {
	if r, ok := sampleStatusOrder[s]; ok {
		return r
	}
	return -1
}

// Rank returns the workflow position of s, or -1 when s is not a known status.
func (s PrepBatchStatus) Rank() int {
	if r, ok := prepStatusOrder[s]; ok {
		return r
	}
	return -1
}

// Rank returns the workflow position of s, or -1 when s is not a known status.
func (s AnalyticalBatchStatus) Rank() int {
	if r, ok := analyticalStatusOrder[s]; ok {
		return r
	}
	return -1
}

// ValidSampleType reports whether t is one of the accepted sample matrices.
func ValidSampleType(t SampleType) bool {
	switch t {
	case SampleTypeFlower, SampleTypeConcentrate, SampleTypeEdible, SampleTypePreRoll, SampleTypeOther:
		return true
	}
	return false
}

// ValidSampleCategory reports whether c is an accepted regulatory category.
func ValidSampleCategory(c SampleCategory) bool {
	switch c {
	case CategoryAdultUse, CategoryMedical, CategoryResearch:
		return true
	}
	return false
}

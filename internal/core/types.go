package core

import "limscore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Sample             = domain.Sample
	Assay              = domain.Assay
	SOPRevision        = domain.SOPRevision
	SOPConfig          = domain.SOPConfig
	PrepBatch          = domain.PrepBatch
	AnalyticalBatch    = domain.AnalyticalBatch
	QCSample           = domain.QCSample
	SampleResult       = domain.SampleResult
	RoleDefinition     = domain.RoleDefinition
	User               = domain.User
	UserRole           = domain.UserRole
	PendingUserRequest = domain.PendingUserRequest
	RegistrationRecord = domain.RegistrationRecord
	InventoryItem      = domain.InventoryItem
	Equipment          = domain.Equipment
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	ErrNotFound        = domain.ErrNotFound
	ValidationError    = domain.ValidationError
	PermissionError    = domain.PermissionError
)

const (
	EntitySample          = domain.EntitySample
	EntityAssay           = domain.EntityAssay
	EntityPrepBatch       = domain.EntityPrepBatch
	EntityAnalyticalBatch = domain.EntityAnalyticalBatch
	EntityRole            = domain.EntityRole
	EntityUser            = domain.EntityUser
	EntityPendingUser     = domain.EntityPendingUser
	EntityRegistration    = domain.EntityRegistration
	EntityInventoryItem   = domain.EntityInventoryItem
	EntityEquipment       = domain.EntityEquipment
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine re-exports the domain constructor for callers wiring storage.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

package domain

import "context"

// RuleView provides read-only access to domain entities for rule evaluation.
type RuleView interface {
	ListSamples() []Sample
	ListAssays() []Assay
	ListPrepBatches() []PrepBatch
	ListAnalyticalBatches() []AnalyticalBatch
	ListRoles() []RoleDefinition
	ListUsers() []User
	ListPendingRequests() []PendingUserRequest
	ListInventoryItems() []InventoryItem
	ListEquipment() []Equipment
	FindSample(id string) (Sample, bool)
	FindAssay(id string) (Assay, bool)
	FindAssayByCode(code string) (Assay, bool)
	FindPrepBatch(id string) (PrepBatch, bool)
	FindAnalyticalBatch(id string) (AnalyticalBatch, bool)
	FindRole(id string) (RoleDefinition, bool)
	FindUser(id string) (User, bool)
	FindUserByUsername(username string) (User, bool)
	FindPendingRequest(id string) (PendingUserRequest, bool)
	FindRegistration(username string) (RegistrationRecord, bool)
	FindInventoryItem(id string) (InventoryItem, bool)
	FindEquipment(id string) (Equipment, bool)
}

// Rule defines an evaluation executed within a transaction boundary.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}

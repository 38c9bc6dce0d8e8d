package core

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(BatchSizeRule{})
	engine.Register(StatusOrderRule{})
	engine.Register(SystemRoleRule{})
	engine.Register(SingleActiveRevisionRule{})
	engine.Register(RequiredTestsRule{})
	engine.Register(QCWarningRule{})
	return engine
}

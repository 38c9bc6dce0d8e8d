package domain

// Permission is an atomic grant drawn from the fixed catalog. Category,
// action, and resource are declared explicitly rather than derived from the
// permission id.
type Permission struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Action      string `json:"action"`
	Resource    string `json:"resource"`
}

// Permission catalog categories.
const (
	CategorySampleManagement = "Sample Management"
	CategoryBatchManagement  = "Batch Management"
	CategoryAnalysis         = "Analysis"
	CategoryQC               = "QC"
	CategoryAdministration   = "Administration"
	CategoryReporting        = "Reporting"
)

// Canonical permission ids referenced by role templates and service guards.
const (
	PermSampleCreate    = "sample-create"
	PermSampleRead      = "sample-read"
	PermSampleUpdate    = "sample-update"
	PermSampleDelete    = "sample-delete"
	PermBatchCreate     = "batch-create"
	PermBatchRead       = "batch-read"
	PermBatchUpdate     = "batch-update"
	PermBatchExecute    = "batch-execute"
	PermAnalysisCreate  = "analysis-create"
	PermAnalysisRead    = "analysis-read"
	PermAnalysisUpdate  = "analysis-update"
	PermAnalysisExecute = "analysis-execute"
	PermQCRead          = "qc-read"
	PermQCApprove       = "qc-approve"
	PermQCUpdate        = "qc-update"
	PermAdminUsers      = "admin-users"
	PermAdminRoles      = "admin-roles"
	PermAdminAssays     = "admin-assays"
	PermAdminSystem     = "admin-system"
	PermReportCreate    = "report-create"
	PermReportRead      = "report-read"
	PermCoACreate       = "coa-create"
	PermCoAApprove      = "coa-approve"
)

var permissionCatalog = []Permission{
	{ID: PermSampleCreate, Name: "Create Samples", Description: "Add new samples to the system", Category: CategorySampleManagement, Action: "create", Resource: "samples"},
	{ID: PermSampleRead, Name: "View Samples", Description: "View sample information", Category: CategorySampleManagement, Action: "read", Resource: "samples"},
	{ID: PermSampleUpdate, Name: "Edit Samples", Description: "Modify sample information", Category: CategorySampleManagement, Action: "update", Resource: "samples"},
	{ID: PermSampleDelete, Name: "Delete Samples", Description: "Remove samples from the system", Category: CategorySampleManagement, Action: "delete", Resource: "samples"},

	{ID: PermBatchCreate, Name: "Create Batches", Description: "Create prep and analytical batches", Category: CategoryBatchManagement, Action: "create", Resource: "batches"},
	{ID: PermBatchRead, Name: "View Batches", Description: "View batch information", Category: CategoryBatchManagement, Action: "read", Resource: "batches"},
	{ID: PermBatchUpdate, Name: "Edit Batches", Description: "Modify batch information", Category: CategoryBatchManagement, Action: "update", Resource: "batches"},
	{ID: PermBatchExecute, Name: "Execute Batches", Description: "Perform batch operations", Category: CategoryBatchManagement, Action: "execute", Resource: "batches"},

	{ID: PermAnalysisCreate, Name: "Create Analysis", Description: "Set up analytical runs", Category: CategoryAnalysis, Action: "create", Resource: "analysis"},
	{ID: PermAnalysisRead, Name: "View Analysis", Description: "View analytical data", Category: CategoryAnalysis, Action: "read", Resource: "analysis"},
	{ID: PermAnalysisUpdate, Name: "Edit Analysis", Description: "Modify analytical data", Category: CategoryAnalysis, Action: "update", Resource: "analysis"},
	{ID: PermAnalysisExecute, Name: "Execute Analysis", Description: "Run analytical instruments", Category: CategoryAnalysis, Action: "execute", Resource: "analysis"},

	{ID: PermQCRead, Name: "View QC Data", Description: "View quality control information", Category: CategoryQC, Action: "read", Resource: "qc"},
	{ID: PermQCApprove, Name: "Approve QC", Description: "Approve quality control results", Category: CategoryQC, Action: "approve", Resource: "qc"},
	{ID: PermQCUpdate, Name: "Edit QC Data", Description: "Modify QC information", Category: CategoryQC, Action: "update", Resource: "qc"},

	{ID: PermAdminUsers, Name: "Manage Users", Description: "Create, edit, and delete user accounts", Category: CategoryAdministration, Action: "update", Resource: "users"},
	{ID: PermAdminRoles, Name: "Manage Roles", Description: "Create and modify user roles", Category: CategoryAdministration, Action: "update", Resource: "roles"},
	{ID: PermAdminAssays, Name: "Manage Assays", Description: "Create and modify assay configurations", Category: CategoryAdministration, Action: "update", Resource: "assays"},
	{ID: PermAdminSystem, Name: "System Settings", Description: "Modify system configuration", Category: CategoryAdministration, Action: "update", Resource: "system"},

	{ID: PermReportCreate, Name: "Generate Reports", Description: "Create and generate reports", Category: CategoryReporting, Action: "create", Resource: "reports"},
	{ID: PermReportRead, Name: "View Reports", Description: "View generated reports", Category: CategoryReporting, Action: "read", Resource: "reports"},
	{ID: PermCoACreate, Name: "Generate CoA", Description: "Create certificates of analysis", Category: CategoryReporting, Action: "create", Resource: "coa"},
	{ID: PermCoAApprove, Name: "Approve CoA", Description: "Approve certificates of analysis", Category: CategoryReporting, Action: "approve", Resource: "coa"},
}

var permissionIndex = func() map[string]Permission {
	idx := make(map[string]Permission, len(permissionCatalog))
	for _, p := range permissionCatalog {
		idx[p.ID] = p
	}
	return idx
}()

// Permissions returns the full permission catalog in declaration order.
func Permissions() []Permission {
	out := make([]Permission, len(permissionCatalog))
	copy(out, permissionCatalog)
	return out
}

// LookupPermission resolves a permission id against the catalog.
func LookupPermission(id string) (Permission, bool) {
	p, ok := permissionIndex[id]
	return p, ok
}

// AllPermissionIDs returns every catalog permission id in declaration order.
func AllPermissionIDs() []string {
	out := make([]string, 0, len(permissionCatalog))
	for _, p := range permissionCatalog {
		out = append(out, p.ID)
	}
	return out
}

// PrepRolePermissionIDs is the fixed grant set for auto-generated
// "{code} - Sample Preparation" roles.
func PrepRolePermissionIDs() []string {
	return []string{PermSampleRead, PermBatchCreate, PermBatchRead, PermBatchUpdate, PermBatchExecute, PermQCRead}
}

// AnalysisRolePermissionIDs is the fixed grant set for auto-generated
// "{code} - Analysis" roles.
func AnalysisRolePermissionIDs() []string {
	return []string{PermAnalysisCreate, PermAnalysisRead, PermAnalysisUpdate, PermAnalysisExecute, PermBatchRead, PermQCRead}
}

// ReceivingRolePermissionIDs is the grant set for the sample receiving role.
func ReceivingRolePermissionIDs() []string {
	return []string{PermSampleCreate, PermSampleRead, PermSampleUpdate, PermSampleDelete, PermReportRead}
}

// QCManagerRolePermissionIDs is the grant set for the QC manager role.
func QCManagerRolePermissionIDs() []string {
	return []string{PermQCRead, PermQCApprove, PermQCUpdate, PermSampleRead, PermBatchRead, PermAnalysisRead, PermReportRead, PermCoACreate, PermCoAApprove}
}

// Package permission holds the intent vocabulary and the permission map that
// gates every command on an aggregate.
package permission

import "strings"

// Intent names one class of command.
type Intent string

// Global intents.
const (
	GlobalListPermissions  Intent = "global.intent.listPermissions"
	GlobalGrantPermission  Intent = "global.intent.grantPermission"
	GlobalRevokePermission Intent = "global.intent.revokePermission"
	GlobalCreateProject    Intent = "global.createProject"
	GlobalCreateUser       Intent = "global.createUser"
	GlobalCreateGroup      Intent = "global.createGroup"
	GlobalManageGroups     Intent = "global.manageGroups"
)

// Project intents.
const (
	ProjectView                  Intent = "project.viewSummary"
	ProjectViewDetails           Intent = "project.viewDetails"
	ProjectAssign                Intent = "project.assign"
	ProjectUpdate                Intent = "project.update"
	ProjectClose                 Intent = "project.close"
	ProjectListPermissions       Intent = "project.intent.listPermissions"
	ProjectGrantPermission       Intent = "project.intent.grantPermission"
	ProjectRevokePermission      Intent = "project.intent.revokePermission"
	ProjectCreateSubproject      Intent = "project.createSubproject"
	ProjectBudgetUpdateProjected Intent = "project.budget.updateProjected"
	ProjectBudgetDeleteProjected Intent = "project.budget.deleteProjected"
)

// Subproject intents.
const (
	SubprojectView                  Intent = "subproject.viewSummary"
	SubprojectViewDetails           Intent = "subproject.viewDetails"
	SubprojectAssign                Intent = "subproject.assign"
	SubprojectUpdate                Intent = "subproject.update"
	SubprojectClose                 Intent = "subproject.close"
	SubprojectListPermissions       Intent = "subproject.intent.listPermissions"
	SubprojectGrantPermission       Intent = "subproject.intent.grantPermission"
	SubprojectRevokePermission      Intent = "subproject.intent.revokePermission"
	SubprojectCreateWorkflowitem    Intent = "subproject.createWorkflowitem"
	SubprojectReorderWorkflowitems  Intent = "subproject.reorderWorkflowitems"
	SubprojectBudgetUpdateProjected Intent = "subproject.budget.updateProjected"
	SubprojectBudgetDeleteProjected Intent = "subproject.budget.deleteProjected"
)

// Workflowitem intents.
const (
	WorkflowitemView             Intent = "workflowitem.view"
	WorkflowitemAssign           Intent = "workflowitem.assign"
	WorkflowitemUpdate           Intent = "workflowitem.update"
	WorkflowitemClose            Intent = "workflowitem.close"
	WorkflowitemListPermissions  Intent = "workflowitem.intent.listPermissions"
	WorkflowitemGrantPermission  Intent = "workflowitem.intent.grantPermission"
	WorkflowitemRevokePermission Intent = "workflowitem.intent.revokePermission"
)

var (
	globalIntents = []Intent{
		GlobalListPermissions, GlobalGrantPermission, GlobalRevokePermission,
		GlobalCreateProject, GlobalCreateUser, GlobalCreateGroup, GlobalManageGroups,
	}
	projectIntents = []Intent{
		ProjectView, ProjectViewDetails, ProjectAssign, ProjectUpdate, ProjectClose,
		ProjectListPermissions, ProjectGrantPermission, ProjectRevokePermission,
		ProjectCreateSubproject, ProjectBudgetUpdateProjected, ProjectBudgetDeleteProjected,
	}
	subprojectIntents = []Intent{
		SubprojectView, SubprojectViewDetails, SubprojectAssign, SubprojectUpdate, SubprojectClose,
		SubprojectListPermissions, SubprojectGrantPermission, SubprojectRevokePermission,
		SubprojectCreateWorkflowitem, SubprojectReorderWorkflowitems,
		SubprojectBudgetUpdateProjected, SubprojectBudgetDeleteProjected,
	}
	workflowitemIntents = []Intent{
		WorkflowitemView, WorkflowitemAssign, WorkflowitemUpdate, WorkflowitemClose,
		WorkflowitemListPermissions, WorkflowitemGrantPermission, WorkflowitemRevokePermission,
	}
)

// Scope is the aggregate family an intent applies to.
type Scope string

const (
	ScopeGlobal       Scope = "global"
	ScopeProject      Scope = "project"
	ScopeSubproject   Scope = "subproject"
	ScopeWorkflowitem Scope = "workflowitem"
)

// IntentsFor returns the vocabulary of one scope. The caller owns the slice.
func IntentsFor(scope Scope) []Intent {
	var src []Intent
	switch scope {
	case ScopeGlobal:
		src = globalIntents
	case ScopeProject:
		src = projectIntents
	case ScopeSubproject:
		src = subprojectIntents
	case ScopeWorkflowitem:
		src = workflowitemIntents
	}
	return append([]Intent(nil), src...)
}

// Valid reports whether intent belongs to the vocabulary of scope.
func (i Intent) Valid(scope Scope) bool {
	if !strings.HasPrefix(string(i), string(scope)+".") {
		return false
	}
	for _, known := range IntentsFor(scope) {
		if known == i {
			return true
		}
	}
	return false
}

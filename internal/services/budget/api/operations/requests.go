package operations

import (
	"encoding/json"

	"github.com/openkfw/trubudget/internal/services/budget/domain/money"
)

type projectRef struct {
	ProjectID string `json:"projectId" validate:"required"`
}

type subprojectRef struct {
	ProjectID    string `json:"projectId" validate:"required"`
	SubprojectID string `json:"subprojectId" validate:"required"`
}

type workflowitemRef struct {
	ProjectID      string `json:"projectId" validate:"required"`
	SubprojectID   string `json:"subprojectId" validate:"required"`
	WorkflowitemID string `json:"workflowitemId" validate:"required"`
}

type noInput struct{}

type permissionRequest struct {
	Intent   string `json:"intent" validate:"required"`
	Identity string `json:"identity" validate:"required"`
}

type assignRequest struct {
	Identity string `json:"identity" validate:"required"`
}

type detailsRequest struct {
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
}

type budgetRequest struct {
	Organization string `json:"organization"`
	Value        string `json:"value"`
	CurrencyCode string `json:"currencyCode"`
}

type createUserRequest struct {
	ID           string `json:"id" validate:"required"`
	DisplayName  string `json:"displayName"`
	Organization string `json:"organization"`
	Address      string `json:"address"`
}

type createGroupRequest struct {
	ID          string   `json:"groupId" validate:"required"`
	DisplayName string   `json:"displayName"`
	Members     []string `json:"users"`
}

type groupMemberRequest struct {
	GroupID string `json:"groupId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
}

type createProjectRequest struct {
	ID               string                  `json:"id"`
	DisplayName      string                  `json:"displayName"`
	Description      string                  `json:"description"`
	Assignee         string                  `json:"assignee"`
	ProjectedBudgets []money.ProjectedBudget `json:"projectedBudgets"`
}

type createSubprojectRequest struct {
	projectRef
	ID               string                  `json:"id"`
	DisplayName      string                  `json:"displayName"`
	Description      string                  `json:"description"`
	Assignee         string                  `json:"assignee"`
	Currency         string                  `json:"currency"`
	ProjectedBudgets []money.ProjectedBudget `json:"projectedBudgets"`
}

type reorderRequest struct {
	subprojectRef
	Ordering []string `json:"ordering"`
}

type createWorkflowitemRequest struct {
	subprojectRef
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Assignee    string `json:"assignee"`
	AmountType  string `json:"amountType"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
}

type workflowitemUpdateRequest struct {
	workflowitemRef
	detailsRequest
	Amount string `json:"amount"`
}

// listWindow accepts numbers from JSON bodies and strings from query
// parameters alike.
type listWindow struct {
	Limit  json.Number `json:"limit" validate:"omitempty,number"`
	Offset json.Number `json:"offset" validate:"omitempty,number"`
}

type markReadRequest struct {
	NotificationIDs []string `json:"notificationIds" validate:"required,min=1,dive,required"`
}

type projectAssignRequest struct {
	projectRef
	assignRequest
}

type projectDetailsRequest struct {
	projectRef
	detailsRequest
}

type projectBudgetRequest struct {
	projectRef
	budgetRequest
}

type projectPermissionRequest struct {
	projectRef
	permissionRequest
}

type subprojectAssignRequest struct {
	subprojectRef
	assignRequest
}

type subprojectDetailsRequest struct {
	subprojectRef
	detailsRequest
}

type subprojectBudgetRequest struct {
	subprojectRef
	budgetRequest
}

type subprojectPermissionRequest struct {
	subprojectRef
	permissionRequest
}

type workflowitemAssignRequest struct {
	workflowitemRef
	assignRequest
}

type workflowitemPermissionRequest struct {
	workflowitemRef
	permissionRequest
}

package operations

import (
	"time"

	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/money"
	"github.com/openkfw/trubudget/internal/services/budget/domain/notification"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
	"github.com/openkfw/trubudget/internal/services/budget/domain/project"
	"github.com/openkfw/trubudget/internal/services/budget/domain/subproject"
	"github.com/openkfw/trubudget/internal/services/budget/domain/workflowitem"
)

type projectView struct {
	ID               string                  `json:"id"`
	Status           string                  `json:"status"`
	DisplayName      string                  `json:"displayName"`
	Description      string                  `json:"description"`
	Assignee         string                  `json:"assignee"`
	ProjectedBudgets []money.ProjectedBudget `json:"projectedBudgets"`
	CreatedAt        time.Time               `json:"createdAt"`
	AllowedIntents   []permission.Intent     `json:"allowedIntents"`
	Log              []event.TraceEvent      `json:"log,omitempty"`
}

type subprojectView struct {
	ID                   string                  `json:"id"`
	ProjectID            string                  `json:"projectId"`
	Status               string                  `json:"status"`
	DisplayName          string                  `json:"displayName"`
	Description          string                  `json:"description"`
	Assignee             string                  `json:"assignee"`
	Currency             string                  `json:"currency"`
	ProjectedBudgets     []money.ProjectedBudget `json:"projectedBudgets"`
	WorkflowitemOrdering []string                `json:"workflowitemOrdering"`
	CreatedAt            time.Time               `json:"createdAt"`
	AllowedIntents       []permission.Intent     `json:"allowedIntents"`
	Log                  []event.TraceEvent      `json:"log,omitempty"`
}

type workflowitemView struct {
	ID             string              `json:"id"`
	ProjectID      string              `json:"projectId"`
	SubprojectID   string              `json:"subprojectId"`
	Status         string              `json:"status"`
	DisplayName    string              `json:"displayName"`
	Description    string              `json:"description"`
	Assignee       string              `json:"assignee"`
	AmountType     string              `json:"amountType"`
	Amount         string              `json:"amount,omitempty"`
	Currency       string              `json:"currency,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	AllowedIntents []permission.Intent `json:"allowedIntents"`
	Log            []event.TraceEvent  `json:"log"`
}

type notificationView struct {
	ID            string           `json:"notificationId"`
	IsRead        bool             `json:"isRead"`
	CreatedAt     time.Time        `json:"createdAt"`
	Metadata      notification.Ref `json:"metadata"`
	BusinessEvent event.Event      `json:"businessEvent"`
}

type userView struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	Organization string `json:"organization"`
	Address      string `json:"address,omitempty"`
}

type groupView struct {
	ID          string   `json:"groupId"`
	DisplayName string   `json:"displayName"`
	Members     []string `json:"users"`
}

// allowedIntents lists the intents of scope the actor holds on p.
func allowedIntents(scope permission.Scope, p permission.Permissions, actor identity.ServiceUser) []permission.Intent {
	out := []permission.Intent{}
	for _, intent := range permission.IntentsFor(scope) {
		if permission.Permits(p, actor, intent) {
			out = append(out, intent)
		}
	}
	return out
}

func budgets(list []money.ProjectedBudget) []money.ProjectedBudget {
	if list == nil {
		return []money.ProjectedBudget{}
	}
	return list
}

func newProjectView(p project.Project, actor identity.ServiceUser, withLog bool) projectView {
	view := projectView{
		ID:               p.ID,
		Status:           string(p.Status),
		DisplayName:      p.DisplayName,
		Description:      p.Description,
		Assignee:         p.Assignee,
		ProjectedBudgets: budgets(p.ProjectedBudgets),
		CreatedAt:        p.CreatedAt,
		AllowedIntents:   allowedIntents(permission.ScopeProject, p.Permissions, actor),
	}
	if withLog {
		view.Log = p.Log
	}
	return view
}

func newSubprojectView(s subproject.Subproject, actor identity.ServiceUser, withLog bool) subprojectView {
	ordering := s.WorkflowitemOrdering
	if ordering == nil {
		ordering = []string{}
	}
	view := subprojectView{
		ID:                   s.ID,
		ProjectID:            s.ProjectID,
		Status:               string(s.Status),
		DisplayName:          s.DisplayName,
		Description:          s.Description,
		Assignee:             s.Assignee,
		Currency:             s.Currency,
		ProjectedBudgets:     budgets(s.ProjectedBudgets),
		WorkflowitemOrdering: ordering,
		CreatedAt:            s.CreatedAt,
		AllowedIntents:       allowedIntents(permission.ScopeSubproject, s.Permissions, actor),
	}
	if withLog {
		view.Log = s.Log
	}
	return view
}

func newWorkflowitemView(w workflowitem.Workflowitem, actor identity.ServiceUser) workflowitemView {
	log := w.Log
	if log == nil {
		log = []event.TraceEvent{}
	}
	return workflowitemView{
		ID:             w.ID,
		ProjectID:      w.ProjectID,
		SubprojectID:   w.SubprojectID,
		Status:         string(w.Status),
		DisplayName:    w.DisplayName,
		Description:    w.Description,
		Assignee:       w.Assignee,
		AmountType:     string(w.AmountType),
		Amount:         w.Amount,
		Currency:       w.Currency,
		CreatedAt:      w.CreatedAt,
		AllowedIntents: allowedIntents(permission.ScopeWorkflowitem, w.Permissions, actor),
		Log:            log,
	}
}

func newNotificationView(n notification.Notification) notificationView {
	return notificationView{
		ID:            n.ID,
		IsRead:        n.IsRead,
		CreatedAt:     n.CreatedAt,
		Metadata:      n.Ref,
		BusinessEvent: n.BusinessEvent,
	}
}

func newUserView(u identity.User) userView {
	return userView{ID: u.ID, DisplayName: u.DisplayName, Organization: u.Organization, Address: u.Address}
}

func newGroupView(g identity.Group) groupView {
	members := g.Members
	if members == nil {
		members = []string{}
	}
	return groupView{ID: g.ID, DisplayName: g.DisplayName, Members: members}
}

func permissionsView(p permission.Permissions) map[string][]string {
	return p.Strings()
}

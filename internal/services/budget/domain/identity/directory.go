package identity

import (
	"context"
	"fmt"
	"slices"
	"time"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
)

// User is a directory entry for one person.
type User struct {
	ID           string
	DisplayName  string
	Organization string
	Address      string
	CreatedAt    time.Time
}

// Group is a directory entry for a named set of users.
type Group struct {
	ID          string
	DisplayName string
	Members     []string
	CreatedAt   time.Time
}

// UserCreatedPayload is the payload of user_created.
type UserCreatedPayload struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	Organization string `json:"organization"`
	Address      string `json:"address,omitempty"`
}

// GroupCreatedPayload is the payload of group_created.
type GroupCreatedPayload struct {
	GroupID     string   `json:"groupId"`
	DisplayName string   `json:"displayName"`
	Members     []string `json:"members"`
}

// GroupMemberPayload is the payload of group_member_added and group_member_removed.
type GroupMemberPayload struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

// Directory is the users stream folded into lookups. It implements Resolver.
type Directory struct {
	Users  map[string]User
	Groups map[string]Group
}

// NewDirectory returns an empty directory.
func NewDirectory() Directory {
	return Directory{Users: map[string]User{}, Groups: map[string]Group{}}
}

// FoldDirectory applies one users-stream event. Events of other types are ignored.
func FoldDirectory(d Directory, evt event.Event) (Directory, error) {
	if d.Users == nil || d.Groups == nil {
		fresh := NewDirectory()
		for id, u := range d.Users {
			fresh.Users[id] = u
		}
		for id, g := range d.Groups {
			fresh.Groups[id] = g
		}
		d = fresh
	}
	switch evt.Type {
	case event.TypeUserCreated:
		var payload UserCreatedPayload
		if err := evt.Decode(&payload); err != nil {
			return d, err
		}
		d.Users[payload.UserID] = User{
			ID:           payload.UserID,
			DisplayName:  payload.DisplayName,
			Organization: payload.Organization,
			Address:      payload.Address,
			CreatedAt:    evt.CreatedAt,
		}
	case event.TypeGroupCreated:
		var payload GroupCreatedPayload
		if err := evt.Decode(&payload); err != nil {
			return d, err
		}
		d.Groups[payload.GroupID] = Group{
			ID:          payload.GroupID,
			DisplayName: payload.DisplayName,
			Members:     dedupe(payload.Members),
			CreatedAt:   evt.CreatedAt,
		}
	case event.TypeGroupMemberAdded, event.TypeGroupMemberRemoved:
		var payload GroupMemberPayload
		if err := evt.Decode(&payload); err != nil {
			return d, err
		}
		group, ok := d.Groups[payload.GroupID]
		if !ok {
			return d, fmt.Errorf("%s for unknown group %q", evt.Type, payload.GroupID)
		}
		members := slices.Clone(group.Members)
		if evt.Type == event.TypeGroupMemberAdded {
			if !slices.Contains(members, payload.UserID) {
				members = append(members, payload.UserID)
			}
		} else {
			members = slices.DeleteFunc(members, func(m string) bool { return m == payload.UserID })
		}
		group.Members = members
		d.Groups[payload.GroupID] = group
	}
	return d, nil
}

// UsersForIdentity implements Resolver over the folded directory.
func (d Directory) UsersForIdentity(_ context.Context, identity string) ([]string, error) {
	if identity == Root {
		return []string{Root}, nil
	}
	if _, ok := d.Users[identity]; ok {
		return []string{identity}, nil
	}
	if group, ok := d.Groups[identity]; ok {
		return slices.Clone(group.Members), nil
	}
	return nil, apperrors.WithMetadata(
		apperrors.CodeIdentityNotFound,
		fmt.Sprintf("identity %q not found", identity),
		map[string]string{"Identity": identity},
	)
}

// Exists reports whether identity names a known user or group.
func (d Directory) Exists(identity string) bool {
	if identity == Root {
		return true
	}
	_, isUser := d.Users[identity]
	_, isGroup := d.Groups[identity]
	return isUser || isGroup
}

// GroupsOf returns the ids of every group userID belongs to, sorted.
func (d Directory) GroupsOf(userID string) []string {
	var groups []string
	for id, g := range d.Groups {
		if slices.Contains(g.Members, userID) {
			groups = append(groups, id)
		}
	}
	slices.Sort(groups)
	return groups
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

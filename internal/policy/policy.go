// Package policy decides what an actor may do with a workspace. It is a
// pure decision layer: no I/O, no repository access. When a workspace is
// SHARED the caller loads the ACL user ids and passes them in; for any
// other visibility the slice is ignored.
package policy

import (
	"ragspace/internal/model"
)

// CanRead reports whether actor may read the workspace and its documents.
func CanRead(ws *model.Workspace, actor model.Actor, sharedUserIDs []string) bool {
	if ws == nil || actor.UserID == "" || actor.Role == "" {
		return false
	}
	if actor.Role == model.ActorRoleAdmin {
		return true
	}
	if ws.OwnerUserID == actor.UserID {
		return true
	}
	if actor.Role != model.ActorRoleEmployee {
		return false
	}
	switch ws.Visibility {
	case model.VisibilityOrgRead:
		return true
	case model.VisibilityShared:
		for _, id := range sharedUserIDs {
			if id == actor.UserID {
				return true
			}
		}
	}
	return false
}

// CanWrite reports whether actor may mutate the workspace and its documents.
func CanWrite(ws *model.Workspace, actor model.Actor) bool {
	if ws == nil || actor.UserID == "" || actor.Role == "" {
		return false
	}
	if actor.Role == model.ActorRoleAdmin {
		return true
	}
	return ws.OwnerUserID == actor.UserID
}

// CanManageACL reports whether actor may replace or grant ACL entries.
// Managing the ACL requires the same privilege as writing.
func CanManageACL(ws *model.Workspace, actor model.Actor) bool {
	return CanWrite(ws, actor)
}

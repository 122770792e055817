package rbac

type Role string
type Action string

const (
	RoleAdmin      Role = "admin"
	RoleOwner      Role = "owner"
	RoleTenant     Role = "tenant"
	RoleUnassigned Role = "unassigned"
)

const (
	ActionSubmitConcern  Action = "submit_concern"
	ActionUpvote         Action = "upvote"
	ActionDeleteConcern  Action = "delete_concern"
	ActionRestoreConcern Action = "restore_concern"
	ActionViewDeleted    Action = "view_deleted"
	ActionUploadFile     Action = "upload_file"
	ActionListFiles      Action = "list_files"
	ActionDeleteFile     Action = "delete_file"
	ActionManageRoles    Action = "manage_roles"
	ActionExportBoard    Action = "export_board"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleOwner:
		return action == ActionSubmitConcern || action == ActionUpvote ||
			action == ActionUploadFile || action == ActionListFiles || action == ActionExportBoard
	case RoleTenant:
		return action == ActionUpvote
	default:
		return false
	}
}

// Normalize maps unknown role strings to the most restrictive role.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleAdmin, RoleOwner, RoleTenant, RoleUnassigned:
		return Role(role)
	default:
		return RoleUnassigned
	}
}

// Assignable reports whether a role may be written by the admin role
// management flow.
func Assignable(role string) bool {
	switch Role(role) {
	case RoleAdmin, RoleOwner, RoleTenant, RoleUnassigned:
		return true
	default:
		return false
	}
}

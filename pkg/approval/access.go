package approval

import "atlas-api/pkg/agent"

// Role is the viewer's account role.
type Role string

const (
	RoleTrader     Role = "trader"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
	RoleSystem     Role = "system"
)

// Viewer identifies who is asking to read a trace.
type Viewer struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether v may read every trace.
func (v Viewer) IsAdmin() bool {
	return v.Role == RoleAdmin || v.Role == RoleSuperAdmin
}

// CanViewTrace allows the run's owner and admins.
func CanViewTrace(run *agent.Run, v Viewer) bool {
	if run == nil {
		return false
	}
	if v.IsAdmin() {
		return true
	}
	return v.UserID != "" && run.UserID == v.UserID
}

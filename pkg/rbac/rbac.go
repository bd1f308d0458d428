package rbac

import "fmt"

// 权限常量
const (
	PermissionSyncTrigger  = "pam:sync"
	PermissionTaskRead     = "task:read"
	PermissionTaskManage   = "task:manage" // create / update / delete
	PermissionTaskWork     = "task:work"   // acknowledge / upload evidence
	PermissionTaskReview   = "task:review" // approve / reject evidence
	PermissionNotification = "notification:read"
)

// 角色常量
const (
	RoleWorker = "worker"
	RoleAdmin  = "admin"
)

var rolePermissions = map[string][]string{
	RoleWorker: {
		PermissionTaskRead,
		PermissionTaskWork,
		PermissionNotification,
	},
	RoleAdmin: {
		PermissionSyncTrigger,
		PermissionTaskRead,
		PermissionTaskManage,
		PermissionTaskWork,
		PermissionTaskReview,
		PermissionNotification,
	},
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 返回错误而不是布尔值，便于处理
func CheckPermission(role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{Role: role, Permission: permission}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("role %q lacks permission %q", e.Role, e.Permission)
}

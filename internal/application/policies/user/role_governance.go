package policies

import (
	"errors"

	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"
	"brokerdesk-backend/internal/pkg/constants"

	"gorm.io/gorm"
)

var (
	ErrOnlySuperAdminCanAssignRoles = apperr.Forbidden("forbidden", "Only super-admins can change roles")
	ErrInvalidRole                  = apperr.Validation("invalid_role", "Role is not valid")
	ErrCannotModifyOwnRole          = apperr.Forbidden("self_role_change", "Users cannot modify their own role")
	ErrLastSuperAdmin               = apperr.Conflict("last_super_admin", "At least one active super-admin must remain")
	ErrBrokerRoleNeedsBrokerage     = apperr.Validation("brokerage_required", "Broker roles require a brokerage membership")
	ErrCannotSuspendSelf            = apperr.Forbidden("self_suspend", "Users cannot suspend themselves")
)

// ValidateRoleAssignment decides whether actor may move target to newRole. It runs inside the
// caller's transaction so the super-admin count is consistent with the update that follows.
func ValidateRoleAssignment(tx *gorm.DB, actor access.Principal, target domain.User, newRole string) error {
	if !constants.AllowedRole(constants.AssignRole, actor.Role) {
		return ErrOnlySuperAdminCanAssignRoles
	}
	if !constants.IsValidRole(newRole) {
		return ErrInvalidRole
	}
	if actor.UserID == target.UserID {
		return ErrCannotModifyOwnRole
	}
	if constants.IsBroker(newRole) && target.BrokerageID == nil {
		return ErrBrokerRoleNeedsBrokerage
	}
	if target.Role == constants.SuperAdmin && newRole != constants.SuperAdmin {
		return requireAnotherSuperAdmin(tx, target)
	}
	return nil
}

// ValidateSuspension decides whether actor may suspend target.
func ValidateSuspension(tx *gorm.DB, actor access.Principal, target domain.User) error {
	if actor.Role != constants.SuperAdmin {
		return apperr.Forbidden("forbidden", "Only super-admins can suspend users")
	}
	if actor.UserID == target.UserID {
		return ErrCannotSuspendSelf
	}
	if target.Role == constants.SuperAdmin {
		return requireAnotherSuperAdmin(tx, target)
	}
	return nil
}

func requireAnotherSuperAdmin(tx *gorm.DB, target domain.User) error {
	var count int64
	err := tx.Model(&domain.User{}).
		Where("role = ? AND status = ? AND user_id <> ?", constants.SuperAdmin, domain.UserActive, target.UserID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrLastSuperAdmin
	}
	return nil
}

// LoadTarget fetches the user whose role or status is about to change.
func LoadTarget(tx *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := tx.Where("user_id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user_not_found", "User not found")
		}
		return nil, err
	}
	return &u, nil
}

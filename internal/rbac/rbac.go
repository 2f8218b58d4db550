package rbac

import "github.com/sprout-escrow/backend/internal/models"

// Role constants
const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"
)

// Permission constants
const (
	PermView          = "view"
	PermPay           = "pay"
	PermCancelPayment = "cancel_payment"
	PermWithdraw      = "withdraw"
	PermViewPayout    = "view_payout"
)

// RolePermissions defines what each party of an escrow can do.
var RolePermissions = map[string][]string{
	RoleSender: {
		PermView, PermPay, PermCancelPayment, PermWithdraw, PermViewPayout,
	},
	RoleReceiver: {
		PermView, PermWithdraw, PermViewPayout,
		// Receiver CANNOT: PermPay, PermCancelPayment
	},
}

// RoleOf returns the wallet's role in the escrow, or "" if it is not a party.
// When a wallet is both sender and receiver it acts as the sender.
func RoleOf(e *models.Escrow, wallet string) string {
	switch {
	case wallet == "":
		return ""
	case e.SenderWallet == wallet:
		return RoleSender
	case e.ReceiverWallet == wallet:
		return RoleReceiver
	}
	return ""
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// Can reports whether wallet may perform permission on the escrow.
func Can(e *models.Escrow, wallet, permission string) bool {
	return HasPermission(RoleOf(e, wallet), permission)
}

// IsFinancialOperation checks if permission moves funds.
func IsFinancialOperation(permission string) bool {
	return permission == PermPay || permission == PermWithdraw
}

package shared

// Coarse permissions checked by the HTTP layer before the approval engine runs.
const (
	PermApprovalConfigView   = "approval.config.view"
	PermApprovalConfigManage = "approval.config.manage"
	PermDocumentCreate       = "sales.document.create"
	PermDocumentView         = "sales.document.view"
	PermDocumentSubmit       = "sales.document.submit"
	PermDocumentCancel       = "sales.document.cancel"
	PermDocumentPost         = "sales.document.post"
	PermAuditView            = "audit.view"
)

// ApprovalScopes lists every permission the service understands.
func ApprovalScopes() []string {
	return []string{
		PermApprovalConfigView,
		PermApprovalConfigManage,
		PermDocumentCreate,
		PermDocumentView,
		PermDocumentSubmit,
		PermDocumentCancel,
		PermDocumentPost,
		PermAuditView,
	}
}

package config

type SecurityLevel int

const (
	SecurityPublic     SecurityLevel = iota // No authentication
	SecurityCorrection                      // Correction-session token required
	SecurityAdmin                           // Admin access token required
)

// RouteSecurityConfig maps named HTTP routes to their required security level
var RouteSecurityConfig = map[string]SecurityLevel{
	// Applicant portal - Public
	"SubmitRequest":      SecurityPublic,
	"GetPortalRequest":   SecurityPublic,
	"VerifyCode":         SecurityPublic,
	"ListGeo":            SecurityPublic,
	"ListMembershipType": SecurityPublic,
	"UploadFile":         SecurityPublic,
	"DownloadFile":       SecurityPublic,
	"Health":             SecurityPublic,

	// Applicant portal - Correction session
	"SubmitCorrections": SecurityCorrection,

	// Admin console
	"ListRequests":            SecurityAdmin,
	"GetRequest":              SecurityAdmin,
	"RecordPayment":           SecurityAdmin,
	"ApproveRequest":          SecurityAdmin,
	"RejectRequest":           SecurityAdmin,
	"RequestCorrections":      SecurityAdmin,
	"ReopenRequest":           SecurityAdmin,
	"RegenerateCode":          SecurityAdmin,
	"DeleteRequest":           SecurityAdmin,
	"ListMemberNotifications": SecurityAdmin,
	"MarkNotificationRead":    SecurityAdmin,
	"RetryApprovalArtifacts":  SecurityAdmin,
}

// GetSecurityLevel returns the security level for a given route name
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := RouteSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown routes
	return SecurityAdmin
}

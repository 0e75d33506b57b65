package model

const (
	OtpPurposeEmailVerification  = "EMAIL_VERIFICATION"
	OtpPurposeDeviceVerification = "DEVICE_VERIFICATION"
)

// OtpCode is the durable record of a one time code. Rows are marked used,
// never deleted on consumption.
type OtpCode struct {
	ID         string `json:"id"`
	IdentityID string `json:"identity_id"`
	Code       string `json:"code"`
	Purpose    string `json:"purpose"`
	ExpiresAt  int64  `json:"expires_at"`
	IsUsed     bool   `json:"is_used"`
	Ctime      int64  `json:"ctime"`
}

func ValidOtpPurpose(purpose string) bool {
	return purpose == OtpPurposeEmailVerification || purpose == OtpPurposeDeviceVerification
}

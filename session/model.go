package session

// Method records how the second step of a login was satisfied.
type Method uint8

const (
	MethodPassword Method = iota + 1
	MethodTOTP
	MethodRecoveryCode
	MethodRememberedDevice
)

func (m Method) String() string {
	switch m {
	case MethodPassword:
		return "pwd"
	case MethodTOTP:
		return "otp"
	case MethodRecoveryCode:
		return "rc"
	case MethodRememberedDevice:
		return "dev"
	default:
		return "unknown"
	}
}

// Session is one signed-in browser or client.
type Session struct {
	SessionID string
	UserID    string

	Method     Method
	Persistent bool

	IPHash        [32]byte
	UserAgentHash [32]byte

	CreatedAt int64
	ExpiresAt int64
}

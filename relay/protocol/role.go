package protocol

// Role identifies which side of a pair a connection belongs to.
type Role string

const (
	RolePC  Role = "pc"
	RoleApp Role = "app"
)

// ParseRole validates the `type` query parameter from an upgrade request.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RolePC:
		return RolePC, true
	case RoleApp:
		return RoleApp, true
	default:
		return "", false
	}
}

// Other returns the opposite side of a pair.
func (r Role) Other() Role {
	if r == RolePC {
		return RoleApp
	}
	return RolePC
}

package services

// PermissionGate answers whether a user may write a record they do not
// own. Household sharing lives behind this boundary; the core only asks
// the boolean question before a mutation proceeds.
type PermissionGate interface {
	MayWrite(userID, ownerID, resourceType, resourceID string) bool
}

// OwnerGate is the default gate: only the owner may write.
type OwnerGate struct{}

// MayWrite implements PermissionGate.
func (OwnerGate) MayWrite(userID, ownerID, _, _ string) bool {
	return userID == ownerID
}

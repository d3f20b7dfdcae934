package domain

// Credential is the closed set of ways a caller can prove who they are.
// It is resolved once at the orchestrator boundary into a single Identity.
type Credential interface {
	credential()
}

// LocalCredential is a username and password checked against the stored hash
type LocalCredential struct {
	Username string
	Password string
}

// FederatedIdentity is an identity asserted by an external provider after token verification
type FederatedIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
}

func (LocalCredential) credential()   {}
func (FederatedIdentity) credential() {}

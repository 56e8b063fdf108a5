package models

// Names of the persisted credential entries. All values are strings.
const (
	CredentialAuthToken              = "authToken"
	CredentialRefreshToken           = "refreshToken"
	CredentialUserData               = "userData"
	CredentialTokenExpiration        = "tokenExpiration"
	CredentialRefreshTokenExpiration = "refreshTokenExpiration"
)

// CredentialKeys lists every entry of the credential bundle.
var CredentialKeys = []string{
	CredentialAuthToken,
	CredentialRefreshToken,
	CredentialUserData,
	CredentialTokenExpiration,
	CredentialRefreshTokenExpiration,
}

// StoredCredential is a namespaced credential row in SQL-backed stores.
type StoredCredential struct {
	Namespace string `db:"namespace"`
	Key       string `db:"key"`
	Value     string `db:"value"`
}

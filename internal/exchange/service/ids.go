package service

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"

	"medssi/internal/exchange/domain/credential"
	"medssi/internal/exchange/domain/verification"
)

const (
	credentialQRPrefix   = "medssi://credential?token="
	verificationQRPrefix = "medssi://verification?token="
)

func newCredentialIdentity() credential.Identity {
	return credential.Identity{
		CredentialID:  "cred-" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		TransactionID: uuid.NewString(),
		Nonce:         rand.Text(),
		QRToken:       rand.Text(),
	}
}

func newSessionIdentity() verification.SessionIdentity {
	return verification.SessionIdentity{
		SessionID: "sess-" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		QRToken:   rand.Text(),
	}
}

func newPresentationID() string {
	return "pres-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func credentialQR(token string) string {
	return credentialQRPrefix + token
}

func verificationQR(token string) string {
	return verificationQRPrefix + token
}

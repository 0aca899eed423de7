package model

import "github.com/bytedance/sonic"

// MarshalDocument encodes the credential as the flat JSON document.
func MarshalDocument(c AdminCredential) ([]byte, error) {
	return sonic.ConfigStd.Marshal(c)
}

// UnmarshalDocument decodes a stored document, folding the legacy
// twoFactorActived key into TwoFactorActivated.
func UnmarshalDocument(data []byte) (AdminCredential, error) {
	var doc document
	if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
		return AdminCredential{}, err
	}
	cred := doc.AdminCredential
	cred.TwoFactorActivated = cred.TwoFactorActivated || doc.LegacyActivated
	return cred, nil
}

package middleware

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{name: "privy did", id: "did:privy:cm3x9a1b2c3d4e5f6", wantErr: nil},
		{name: "uuid", id: "8f14e45f-ceea-4e6b-9c6b-1e5f0b1c2d3e", wantErr: nil},
		{name: "empty", id: "", wantErr: ErrIdentifierEmpty},
		{name: "too long", id: strings.Repeat("a", MaxIdentifierLength+1), wantErr: ErrIdentifierTooLong},
		{name: "max length", id: strings.Repeat("a", MaxIdentifierLength), wantErr: nil},
		{name: "path separator", id: "cred/../users", wantErr: ErrIdentifierInvalid},
		{name: "backslash", id: `cred\1`, wantErr: ErrIdentifierInvalid},
		{name: "query marker", id: "cred?x=1", wantErr: ErrIdentifierInvalid},
		{name: "whitespace", id: "cred 1", wantErr: ErrIdentifierInvalid},
		{name: "control character", id: "cred\x001", wantErr: ErrIdentifierInvalid},
		{name: "invalid utf8", id: "cred\xff", wantErr: ErrIdentifierInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateIdentifier(%q) = %v, want %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

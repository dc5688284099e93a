package reaction

import (
	"testing"
	"time"
)

func TestMakeVerifyToken(t *testing.T) {
	secret := []byte("secret")
	expiry := 3 * 24 * time.Hour

	rec := Record{
		ID:         1,
		InstanceID: 10,
		ActivityID: 20,
		UserID:     7,
		Type:       TypeComplete,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}

	validToken := makeToken(secret, rec)

	// generate an expired token
	dayLate := expiry + (24 * time.Hour)
	nowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken := makeToken(secret, rec)
	nowFunc = time.Now // reset

	otherRec := rec
	otherRec.UserID = 8

	tests := []struct {
		name    string
		rec     Record
		token   string
		wantErr error
	}{
		{name: "no token", rec: rec, wantErr: ErrInvalidToken},
		{name: "invalid parts len", rec: rec, token: "lmaooolol", wantErr: ErrInvalidToken},
		{name: "invalid base32", rec: rec, token: "hahaha-sigsig-sig", wantErr: ErrInvalidToken},
		{name: "invalid timestamp", rec: rec, token: "NRXWY-sigsig-sig", wantErr: ErrInvalidToken},
		{name: "invalid signature", rec: rec, token: "HE4TS-sigsig-sig", wantErr: ErrInvalidToken},
		{name: "token bound to another record", rec: otherRec, token: validToken, wantErr: ErrInvalidToken},
		{name: "expired token", rec: rec, token: expiredToken, wantErr: ErrTokenExpired},
		{name: "valid token", rec: rec, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := verifyToken(secret, tt.rec, tt.token, expiry); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDecodeRecordID(t *testing.T) {
	id, err := decodeRecordID(EncodeRecordID(42))
	if err != nil {
		t.Fatalf("decodeRecordID() error = %v", err)
	}
	if id != 42 {
		t.Errorf("decodeRecordID() = %d, want 42", id)
	}
}

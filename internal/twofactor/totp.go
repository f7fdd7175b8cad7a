package twofactor

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"math/big"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

const (
	period          = 30
	skew            = 1
	qrSize          = 200
	backupAlphabet  = "abcdefghjkmnpqrstuvwxyz23456789"
	backupHalfChars = 4
)

var (
	ErrInvalidCode = errors.New("invalid verification code")
	ErrCodeReused  = errors.New("verification code already used")
)

var validateOpts = totp.ValidateOpts{
	Period:    period,
	Skew:      skew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Enrollment is the material shown to a user once during setup.
type Enrollment struct {
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauth_url"`
	QRCodePNG   string   `json:"qr_code_png"` // base64
	BackupCodes []string `json:"backup_codes"`
}

// Authenticator issues and checks TOTP secrets and backup codes.
type Authenticator struct {
	issuer      string
	backupCount int
	bcryptCost  int
	clock       clockwork.Clock
}

type Option func(*Authenticator)

func WithClock(c clockwork.Clock) Option {
	return func(a *Authenticator) { a.clock = c }
}

// WithBcryptCost lowers hashing cost, for tests.
func WithBcryptCost(cost int) Option {
	return func(a *Authenticator) { a.bcryptCost = cost }
}

func NewAuthenticator(issuer string, backupCount int, opts ...Option) *Authenticator {
	if backupCount < 1 {
		backupCount = 10
	}
	a := &Authenticator{
		issuer:      issuer,
		backupCount: backupCount,
		bcryptCost:  bcrypt.DefaultCost,
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enroll generates a new secret, its QR code and a fresh set of backup codes.
// The returned hashes are what gets stored.
func (a *Authenticator) Enroll(account string) (*Enrollment, []string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      a.issuer,
		AccountName: account,
		Period:      period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("generate totp key: %w", err)
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return nil, nil, fmt.Errorf("render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, nil, fmt.Errorf("encode qr code: %w", err)
	}

	codes, hashes, err := a.BackupCodes()
	if err != nil {
		return nil, nil, err
	}

	return &Enrollment{
		Secret:      key.Secret(),
		OTPAuthURL:  key.URL(),
		QRCodePNG:   base64.StdEncoding.EncodeToString(buf.Bytes()),
		BackupCodes: codes,
	}, hashes, nil
}

// ValidateTOTP checks code against secret within one step of skew and returns the matched
// time step. A step not greater than lastStep is rejected as a replay.
func (a *Authenticator) ValidateTOTP(secret, code string, lastStep int64) (int64, error) {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return 0, ErrInvalidCode
	}

	now := a.clock.Now()
	current := now.Unix() / period

	for offset := -skew; offset <= skew; offset++ {
		step := current + int64(offset)
		expected, err := totp.GenerateCodeCustom(secret, time.Unix(step*period, 0), validateOpts)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidCode, err)
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			if step <= lastStep {
				return 0, ErrCodeReused
			}
			return step, nil
		}
	}
	return 0, ErrInvalidCode
}

// BackupCodes returns plaintext codes and their bcrypt hashes, index-aligned.
func (a *Authenticator) BackupCodes() ([]string, []string, error) {
	codes := make([]string, a.backupCount)
	hashes := make([]string, a.backupCount)
	for i := range codes {
		code, err := randomCode()
		if err != nil {
			return nil, nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), a.bcryptCost)
		if err != nil {
			return nil, nil, fmt.Errorf("hash backup code: %w", err)
		}
		codes[i] = code
		hashes[i] = string(hash)
	}
	return codes, hashes, nil
}

// MatchBackupCode returns the index of the hash matching code, or -1.
func MatchBackupCode(hashes []string, code string) int {
	code = normalizeBackupCode(code)
	if code == "" {
		return -1
	}
	for i, h := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(code)) == nil {
			return i
		}
	}
	return -1
}

func normalizeBackupCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) == 2*backupHalfChars && !strings.Contains(code, "-") {
		code = code[:backupHalfChars] + "-" + code[backupHalfChars:]
	}
	return code
}

func randomCode() (string, error) {
	var sb strings.Builder
	limit := big.NewInt(int64(len(backupAlphabet)))
	for i := 0; i < 2*backupHalfChars; i++ {
		if i == backupHalfChars {
			sb.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate backup code: %w", err)
		}
		sb.WriteByte(backupAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

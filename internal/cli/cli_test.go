package cli

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/takimoto3/appleid-secret/token"
)

var frozen = time.Date(2026, 4, 1, 9, 30, 15, 0, time.UTC)

type result struct {
	stdout string
	stderr string
	err    error
}

func execute(t *testing.T, now time.Time, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand(func() time.Time { return now })
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

func writeKey(t *testing.T, curve elliptic.Curve) (string, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate ECDSA key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("failed to marshal PKCS8 private key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "AuthKey_KEY1.p8")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}
	return path, priv
}

func decodePayload(t *testing.T, tokenString string) string {
	t.Helper()
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		t.Fatalf("token should have 3 parts, got %d", len(parts))
	}
	b, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	return string(b)
}

func TestGenerate(t *testing.T) {
	keyPath, _ := writeKey(t, elliptic.P256())

	res := execute(t, frozen, "",
		"--team-id", "TEAM1", "--key-id", "KEY1", "--client-id", "app.example", "--p8-path", keyPath)
	if res.err != nil {
		t.Fatalf("unexpected error: %v", res.err)
	}

	if !strings.HasSuffix(res.stdout, "\n") || strings.Count(res.stdout, "\n") != 1 {
		t.Fatalf("stdout should be a single line, got %q", res.stdout)
	}
	want := `{"iss":"TEAM1","iat":1775035815,"exp":1790587815,"aud":"https://appleid.apple.com","sub":"app.example"}`
	if diff := cmp.Diff(want, decodePayload(t, strings.TrimSpace(res.stdout))); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("\nExpires (UTC): 2026-09-28T09:30:15+00:00\n", res.stderr); diff != "" {
		t.Errorf("stderr mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_LogLevel(t *testing.T) {
	keyPath, _ := writeKey(t, elliptic.P256())

	res := execute(t, frozen, "",
		"--team-id", "TEAM1", "--key-id", "KEY1", "--client-id", "app.example", "--p8-path", keyPath,
		"--days", "1", "--log-level", "debug")
	if res.err != nil {
		t.Fatalf("unexpected error: %v", res.err)
	}
	for _, want := range []string{"Private key loaded", "Client secret generated", "key_id=KEY1", "Expires (UTC): 2026-04-02T09:30:15+00:00"} {
		if !strings.Contains(res.stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, res.stderr)
		}
	}
	if strings.Contains(res.stderr, "PRIVATE KEY") {
		t.Error("key material must never be logged")
	}
}

func TestGenerate_Errors(t *testing.T) {
	keyPath, _ := writeKey(t, elliptic.P256())
	p384Path, _ := writeKey(t, elliptic.P384())
	garbage := filepath.Join(t.TempDir(), "garbage.p8")
	if err := os.WriteFile(garbage, []byte("not a key"), 0600); err != nil {
		t.Fatalf("failed to write garbage key: %v", err)
	}
	missing := filepath.Join(t.TempDir(), "missing.p8")

	base := func(path string, extra ...string) []string {
		return append([]string{"--team-id", "T", "--key-id", "K", "--client-id", "C", "--p8-path", path}, extra...)
	}

	tests := map[string]struct {
		args        []string
		wantErr     error
		wantCode    int
		errContains string
	}{
		// The key file does not exist: days must be rejected first.
		"zero days":         {args: base(missing, "--days", "0"), wantErr: token.ErrInvalidInput, wantCode: 2, errContains: "--days must be between 1 and 180"},
		"181 days":          {args: base(missing, "--days", "181"), wantErr: token.ErrInvalidInput, wantCode: 2, errContains: "--days must be between 1 and 180"},
		"non-numeric days":  {args: base(keyPath, "--days", "soon"), wantErr: token.ErrInvalidInput, wantCode: 2},
		"missing key file":  {args: base(missing), wantErr: token.ErrInvalidInput, wantCode: 2, errContains: "p8 file not found"},
		"missing team id":   {args: []string{"--key-id", "K", "--client-id", "C", "--p8-path", keyPath}, wantErr: token.ErrInvalidInput, wantCode: 2, errContains: "--team-id"},
		"unknown flag":      {args: base(keyPath, "--bogus"), wantErr: token.ErrInvalidInput, wantCode: 2},
		"positional arg":    {args: base(keyPath, "extra"), wantErr: token.ErrInvalidInput, wantCode: 2},
		"invalid log level": {args: base(keyPath, "--log-level", "loud"), wantErr: token.ErrInvalidInput, wantCode: 2},
		"missing env file":  {args: base(keyPath, "--env-file", filepath.Join(t.TempDir(), "none.env")), wantErr: token.ErrInvalidInput, wantCode: 2},
		"unparseable key":   {args: base(garbage), wantErr: token.ErrKeyFormat, wantCode: 1},
		"P-384 key":         {args: base(p384Path), wantErr: token.ErrKeyType, wantCode: 1},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			res := execute(t, frozen, "", tt.args...)
			if !errors.Is(res.err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, res.err)
			}
			if got := ExitCode(res.err); got != tt.wantCode {
				t.Errorf("ExitCode = %d, want %d", got, tt.wantCode)
			}
			if !strings.Contains(res.err.Error(), tt.errContains) {
				t.Errorf("error %q does not contain %q", res.err, tt.errContains)
			}
			if res.stdout != "" {
				t.Errorf("no output expected on failure, got %q", res.stdout)
			}
		})
	}
}

func TestGenerate_Environment(t *testing.T) {
	keyPath, _ := writeKey(t, elliptic.P256())
	t.Setenv("APPLEID_SECRET_TEAM_ID", "ENVTEAM")
	t.Setenv("APPLEID_SECRET_KEY_ID", "ENVKEY")
	t.Setenv("APPLEID_SECRET_CLIENT_ID", "com.example.env")
	t.Setenv("APPLEID_SECRET_P8_PATH", keyPath)
	t.Setenv("APPLEID_SECRET_DAYS", "30")

	res := execute(t, frozen, "", "--client-id", "com.example.flag")
	if res.err != nil {
		t.Fatalf("unexpected error: %v", res.err)
	}
	want := `{"iss":"ENVTEAM","iat":1775035815,"exp":1777627815,"aud":"https://appleid.apple.com","sub":"com.example.flag"}`
	if diff := cmp.Diff(want, decodePayload(t, strings.TrimSpace(res.stdout))); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_ConfigAndEnvFile(t *testing.T) {
	keyPath, _ := writeKey(t, elliptic.P256())
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "appleid-secret.yaml")
	if err := os.WriteFile(cfgPath, []byte("team_id: FILETEAM\nkey_id: FILEKEY\ndays: 2\n"), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	envPath := filepath.Join(dir, "secret.env")
	if err := os.WriteFile(envPath, []byte("APPLEID_SECRET_CLIENT_ID=com.example.dotenv\nAPPLEID_SECRET_P8_PATH="+keyPath+"\n"), 0600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	for _, k := range []string{"APPLEID_SECRET_CLIENT_ID", "APPLEID_SECRET_P8_PATH"} {
		os.Unsetenv(k)
		t.Cleanup(func() { os.Unsetenv(k) })
	}

	res := execute(t, frozen, "", "--config", cfgPath, "--env-file", envPath)
	if res.err != nil {
		t.Fatalf("unexpected error: %v", res.err)
	}
	want := `{"iss":"FILETEAM","iat":1775035815,"exp":1775208615,"aud":"https://appleid.apple.com","sub":"com.example.dotenv"}`
	if diff := cmp.Diff(want, decodePayload(t, strings.TrimSpace(res.stdout))); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestVerify(t *testing.T) {
	keyPath, _ := writeKey(t, elliptic.P256())
	gen := execute(t, frozen, "",
		"--team-id", "TEAM1", "--key-id", "KEY1", "--client-id", "app.example", "--p8-path", keyPath, "--days", "1")
	if gen.err != nil {
		t.Fatalf("generate failed: %v", gen.err)
	}
	secret := strings.TrimSpace(gen.stdout)

	want := token.Verified{
		Header: token.Header{Alg: "ES256", Kid: "KEY1", Typ: "JWT"},
		Payload: token.Payload{
			Issuer:    "TEAM1",
			IssuedAt:  token.NewNumericDate(frozen),
			ExpiresAt: token.NewNumericDate(frozen.Add(24 * time.Hour)),
			Audience:  token.Audience,
			Subject:   "app.example",
		},
	}

	tests := map[string]struct {
		stdin string
		args  []string
	}{
		"from stdin":    {stdin: gen.stdout, args: []string{"verify", "--p8-path", keyPath}},
		"from argument": {args: []string{"verify", "--p8-path", keyPath, secret}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			res := execute(t, frozen.Add(time.Minute), tt.stdin, tt.args...)
			if res.err != nil {
				t.Fatalf("verify failed: %v", res.err)
			}
			var got token.Verified
			if err := json.Unmarshal([]byte(res.stdout), &got); err != nil {
				t.Fatalf("verify output is not JSON: %v\n%s", err, res.stdout)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("verify output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVerify_Errors(t *testing.T) {
	keyPath, _ := writeKey(t, elliptic.P256())
	otherPath, _ := writeKey(t, elliptic.P256())
	gen := execute(t, frozen, "",
		"--team-id", "TEAM1", "--key-id", "KEY1", "--client-id", "app.example", "--p8-path", keyPath, "--days", "1")
	if gen.err != nil {
		t.Fatalf("generate failed: %v", gen.err)
	}

	tests := map[string]struct {
		now      time.Time
		stdin    string
		args     []string
		wantErr  error
		wantCode int
	}{
		"expired":         {now: frozen.Add(48 * time.Hour), stdin: gen.stdout, args: []string{"verify", "--p8-path", keyPath}, wantErr: token.ErrInvalidToken, wantCode: 1},
		"wrong key":       {now: frozen, stdin: gen.stdout, args: []string{"verify", "--p8-path", otherPath}, wantErr: token.ErrInvalidToken, wantCode: 1},
		"empty stdin":     {now: frozen, args: []string{"verify", "--p8-path", keyPath}, wantErr: token.ErrInvalidInput, wantCode: 2},
		"missing p8 path": {now: frozen, stdin: gen.stdout, args: []string{"verify"}, wantErr: token.ErrInvalidInput, wantCode: 2},
		"too many args":   {now: frozen, args: []string{"verify", "--p8-path", keyPath, "a", "b"}, wantErr: token.ErrInvalidInput, wantCode: 2},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			res := execute(t, tt.now, tt.stdin, tt.args...)
			if !errors.Is(res.err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, res.err)
			}
			if got := ExitCode(res.err); got != tt.wantCode {
				t.Errorf("ExitCode = %d, want %d", got, tt.wantCode)
			}
			if res.stdout != "" {
				t.Errorf("no output expected on failure, got %q", res.stdout)
			}
		})
	}
}

func TestRun_PrintsError(t *testing.T) {
	var errOut bytes.Buffer
	cmd := newRootCommand(func() time.Time { return frozen })
	cmd.SetArgs([]string{"--days", "0"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&errOut)

	if code := run(cmd); code != ExitUsage {
		t.Errorf("run() = %d, want %d", code, ExitUsage)
	}
	if !strings.HasPrefix(errOut.String(), "Error: invalid input: ") {
		t.Errorf("unexpected stderr %q", errOut.String())
	}
}

func TestExitCode(t *testing.T) {
	tests := map[string]struct {
		err  error
		want int
	}{
		"success":    {err: nil, want: ExitOK},
		"input":      {err: token.ErrInvalidInput, want: ExitUsage},
		"key format": {err: token.ErrKeyFormat, want: ExitFailure},
		"key type":   {err: token.ErrKeyType, want: ExitFailure},
		"signing":    {err: token.ErrSigning, want: ExitFailure},
		"unknown":    {err: errors.New("boom"), want: ExitFailure},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
